package manager

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	// Packages
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	backend "github.com/mutablelogic/go-upload/pkg/backend"
	digest "github.com/mutablelogic/go-upload/pkg/digest"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
	assert "github.com/stretchr/testify/assert"
	require "github.com/stretchr/testify/require"
)

////////////////////////////////////////////////////////////////////////////////
// DEDUP TESTS

func Test_Dedup(t *testing.T) {
	for _, alg := range []digest.Algorithm{digest.MD5, digest.SHA256, digest.BLAKE3} {
		t.Run(alg.String(), func(t *testing.T) {
			assert := assert.New(t)
			clock := newClock()
			storage := &faultyStorage{Storage: newStorage(t)}
			mgr := newManager(t, WithStorage(storage), WithHash(alg.String()), WithClock(clock.Now))

			uploadId, etags := uploadFile(t, mgr, "song.mp3", "la la ", "la")
			resp, err := mgr.Complete(context.TODO(), uploadId, schema.CompleteRequest{ETags: etags})
			require.NoError(t, err)
			mgr.Wait()

			puts, deletes := storage.puts.Load(), storage.deletes.Load()

			t.Run("Exists", func(t *testing.T) {
				dedup, err := mgr.Dedup(context.TODO(), schema.DedupRequest{Hash: strings.ToUpper(alg.Sum([]byte("la la la")))})
				require.NoError(t, err)
				assert.True(dedup.Exists)
				assert.Equal(resp.ContentId, dedup.RecordId)
				assert.NotEmpty(dedup.Url)
				assert.Empty(dedup.SuggestedUrl)
			})

			t.Run("Missing", func(t *testing.T) {
				dedup, err := mgr.Dedup(context.TODO(), schema.DedupRequest{Hash: alg.Sum([]byte("other")), FileName: "other.mp3"})
				require.NoError(t, err)
				assert.False(dedup.Exists)
				assert.Zero(dedup.RecordId)
				assert.Equal("mem://testbucket/uploads/2024/03/05/other.mp3", dedup.SuggestedUrl)
			})

			t.Run("Malformed", func(t *testing.T) {
				_, err := mgr.Dedup(context.TODO(), schema.DedupRequest{Hash: "xyz"})
				assert.ErrorIs(err, httpresponse.ErrBadRequest)
			})

			// Lookups never write to storage
			assert.Equal(puts, storage.puts.Load())
			assert.Equal(deletes, storage.deletes.Load())
		})
	}
}

func Test_Dedup_FailedNotMatched(t *testing.T) {
	assert := assert.New(t)
	storage := &faultyStorage{Storage: newStorage(t), failRead: ".part."}
	mgr := newManager(t, WithStorage(storage))

	uploadId, etags := uploadFile(t, mgr, "fail.txt", "content")
	_, err := mgr.Complete(context.TODO(), uploadId, schema.CompleteRequest{ETags: etags})
	require.NoError(t, err)
	mgr.Wait()

	dedup, err := mgr.Dedup(context.TODO(), schema.DedupRequest{Hash: digest.MD5.Sum([]byte("content"))})
	require.NoError(t, err)
	assert.False(dedup.Exists)
}

////////////////////////////////////////////////////////////////////////////////
// PRESIGN TESTS

func Test_Presign(t *testing.T) {
	assert := assert.New(t)
	clock := newClock()
	keyPath := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(keyPath, []byte("a-signing-secret"), 0o600))
	mgr := newManager(t,
		WithBackend(context.TODO(), "file://testbucket"+t.TempDir(), backend.WithURLSigner("http://localhost/signed", keyPath)),
		WithClock(clock.Now),
	)

	t.Run("Defaults", func(t *testing.T) {
		resp, err := mgr.Presign(context.TODO(), schema.PresignRequest{Key: "uploads/a.txt"})
		require.NoError(t, err)
		assert.Equal(http.MethodGet, resp.Method)
		assert.Equal(clock.Now().Add(schema.DefaultPresignTTL), resp.Expires)
		assert.True(strings.HasPrefix(resp.Url, "http://localhost/signed"), resp.Url)
	})

	t.Run("Put", func(t *testing.T) {
		resp, err := mgr.Presign(context.TODO(), schema.PresignRequest{Key: "uploads/a.txt", Method: "put", TTL: time.Minute})
		require.NoError(t, err)
		assert.Equal(http.MethodPut, resp.Method)
		assert.Equal(clock.Now().Add(time.Minute), resp.Expires)
	})

	t.Run("BadMethod", func(t *testing.T) {
		_, err := mgr.Presign(context.TODO(), schema.PresignRequest{Key: "uploads/a.txt", Method: http.MethodDelete})
		assert.ErrorIs(err, httpresponse.ErrBadRequest)
	})

	t.Run("BadKey", func(t *testing.T) {
		_, err := mgr.Presign(context.TODO(), schema.PresignRequest{Key: "../a.txt"})
		assert.ErrorIs(err, httpresponse.ErrBadRequest)
	})
}
