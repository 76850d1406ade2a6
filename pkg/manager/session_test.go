package manager

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"testing"

	// Packages
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	digest "github.com/mutablelogic/go-upload/pkg/digest"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
	session "github.com/mutablelogic/go-upload/pkg/session"
	assert "github.com/stretchr/testify/assert"
	require "github.com/stretchr/testify/require"
)

////////////////////////////////////////////////////////////////////////////////
// INIT TESTS

func Test_Session_Init(t *testing.T) {
	assert := assert.New(t)
	clock := newClock()
	mgr := newManager(t, WithStorage(newStorage(t)), WithClock(clock.Now))

	t.Run("Init", func(t *testing.T) {
		resp, err := mgr.Init(context.TODO(), schema.InitRequest{FileName: "Holiday Photo.PNG"})
		require.NoError(t, err)
		assert.NotEmpty(resp.UploadId)
		assert.Equal("testbucket", resp.Bucket)
		assert.Regexp(regexp.MustCompile(`^uploads/2024/03/05/Holiday_Photo-[0-9a-f]{8}\.png$`), resp.StorageKey)

		session, err := mgr.Session(context.TODO(), resp.UploadId)
		require.NoError(t, err)
		assert.Equal(schema.StatusUploading, session.Status)
		assert.Equal("image/png", session.ContentType)
		assert.Equal(clock.Now(), session.CreatedAt)
	})

	t.Run("ExplicitContentType", func(t *testing.T) {
		resp, err := mgr.Init(context.TODO(), schema.InitRequest{FileName: "clip", ContentType: "video/mp4"})
		require.NoError(t, err)
		session, err := mgr.Session(context.TODO(), resp.UploadId)
		require.NoError(t, err)
		assert.Equal("video/mp4", session.ContentType)
	})

	t.Run("DistinctKeys", func(t *testing.T) {
		a, err := mgr.Init(context.TODO(), schema.InitRequest{FileName: "same.png"})
		require.NoError(t, err)
		b, err := mgr.Init(context.TODO(), schema.InitRequest{FileName: "same.png"})
		require.NoError(t, err)
		assert.NotEqual(a.UploadId, b.UploadId)
		assert.NotEqual(a.StorageKey, b.StorageKey)
	})

	t.Run("MissingFileName", func(t *testing.T) {
		_, err := mgr.Init(context.TODO(), schema.InitRequest{})
		assert.ErrorIs(err, httpresponse.ErrBadRequest)
	})
}

////////////////////////////////////////////////////////////////////////////////
// PART TESTS

func Test_Session_UploadPart(t *testing.T) {
	assert := assert.New(t)
	storage := newStorage(t)
	mgr := newManager(t, WithStorage(storage), WithMaxPartSize(16))

	init, err := mgr.Init(context.TODO(), schema.InitRequest{FileName: "a.txt"})
	require.NoError(t, err)

	t.Run("Part", func(t *testing.T) {
		resp, err := mgr.UploadPart(context.TODO(), init.UploadId, 1, []byte("hello"))
		require.NoError(t, err)
		assert.True(resp.Success)
		assert.Equal(1, resp.PartNumber)
		assert.Equal(int64(5), resp.Size)
		assert.Equal(digest.ETag([]byte("hello")), resp.ETag)
		assert.True(exists(t, storage, schema.PartKey(init.StorageKey, 1)))
	})

	t.Run("Resend", func(t *testing.T) {
		_, err := mgr.UploadPart(context.TODO(), init.UploadId, 1, []byte("hello"))
		require.NoError(t, err)
		resp, err := mgr.UploadPart(context.TODO(), init.UploadId, 1, []byte("HELLO"))
		require.NoError(t, err)
		assert.Equal(digest.ETag([]byte("HELLO")), resp.ETag)

		session, err := mgr.Session(context.TODO(), init.UploadId)
		require.NoError(t, err)
		assert.Equal(1, session.CompletedParts)
		assert.Equal(resp.ETag, session.Parts[1].ETag)
	})

	t.Run("OutOfRange", func(t *testing.T) {
		for _, n := range []int{0, -1, schema.MaxPartNumber + 1} {
			_, err := mgr.UploadPart(context.TODO(), init.UploadId, n, []byte("x"))
			assert.ErrorIs(err, httpresponse.ErrBadRequest)
		}
	})

	t.Run("TooLarge", func(t *testing.T) {
		_, err := mgr.UploadPart(context.TODO(), init.UploadId, 2, make([]byte, 17))
		assert.ErrorIs(err, httpresponse.ErrBadRequest)
	})

	t.Run("UnknownUpload", func(t *testing.T) {
		_, err := mgr.UploadPart(context.TODO(), "missing", 1, []byte("x"))
		assert.ErrorIs(err, httpresponse.ErrNotFound)
	})
}

func Test_Session_ConcurrentParts(t *testing.T) {
	assert := assert.New(t)
	mgr := newManager(t, WithStorage(newStorage(t)))

	init, err := mgr.Init(context.TODO(), schema.InitRequest{FileName: "parts.bin"})
	require.NoError(t, err)

	// Every part is recorded even though all writers race on the session
	const parts = 25
	var wg sync.WaitGroup
	errs := make(chan error, parts)
	for n := 1; n <= parts; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := mgr.UploadPart(context.TODO(), init.UploadId, n, []byte(fmt.Sprintf("part-%02d;", n))); err != nil {
				errs <- err
			}
		}(n)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(err)
	}

	session, err := mgr.Session(context.TODO(), init.UploadId)
	require.NoError(t, err)
	assert.Equal(parts, session.CompletedParts)
	assert.Len(session.Parts, parts)
	for n := 1; n <= parts; n++ {
		assert.Equal(digest.ETag([]byte(fmt.Sprintf("part-%02d;", n))), session.Parts[n].ETag)
	}
}

////////////////////////////////////////////////////////////////////////////////
// COMPLETE TESTS

func Test_Session_Complete(t *testing.T) {
	assert := assert.New(t)
	storage := newStorage(t)
	mgr := newManager(t, WithStorage(storage))

	uploadId, etags := uploadFile(t, mgr, "photo.png", "abc", "def", "gh")
	session, err := mgr.Session(context.TODO(), uploadId)
	require.NoError(t, err)

	t.Run("ProgressBeforeComplete", func(t *testing.T) {
		status, err := mgr.Status(context.TODO(), uploadId)
		require.NoError(t, err)
		assert.Equal(schema.StatusUploading, status.Status)
		assert.Equal(0, status.Progress)
	})

	t.Run("Complete", func(t *testing.T) {
		resp, err := mgr.Complete(context.TODO(), uploadId, schema.CompleteRequest{StorageKey: session.StorageKey, ETags: etags})
		require.NoError(t, err)
		assert.Equal(uploadId, resp.UploadId)
		assert.NotZero(resp.ContentId)
		assert.Contains([]schema.Status{schema.StatusProcessing, schema.StatusCompleted}, resp.Status)
		mgr.Wait()

		status, err := mgr.Status(context.TODO(), uploadId)
		require.NoError(t, err)
		assert.Equal(schema.StatusCompleted, status.Status)
		assert.Equal(100, status.Progress)
		assert.Equal(resp.ContentId, status.ContentId)
		assert.Equal(storage.PublicURL(session.StorageKey), status.Url)
		assert.Empty(status.Error)
	})

	t.Run("MergedObject", func(t *testing.T) {
		data, err := mgr.fetch(context.TODO(), session.StorageKey)
		require.NoError(t, err)
		assert.Equal("abcdefgh", string(data))
		for n := 1; n <= 3; n++ {
			assert.False(exists(t, storage, session.PartKey(n)))
		}
	})

	t.Run("ContentRecord", func(t *testing.T) {
		status, err := mgr.Status(context.TODO(), uploadId)
		require.NoError(t, err)
		content, err := mgr.GetContent(context.TODO(), status.ContentId)
		require.NoError(t, err)
		assert.Equal(schema.StatusCompleted, content.Status)
		assert.Equal(schema.ContentImage, content.Type)
		assert.Equal("photo.png", content.Title)
		assert.Equal(int64(8), content.Size)
		assert.Equal(digest.MD5.Sum([]byte("abcdefgh")), content.Hash)
	})

	t.Run("CompleteAgain", func(t *testing.T) {
		first, err := mgr.Status(context.TODO(), uploadId)
		require.NoError(t, err)
		resp, err := mgr.Complete(context.TODO(), uploadId, schema.CompleteRequest{ETags: etags})
		require.NoError(t, err)
		assert.Equal(schema.StatusCompleted, resp.Status)
		assert.Equal(first.ContentId, resp.ContentId)
	})

	t.Run("AbortCompleted", func(t *testing.T) {
		assert.ErrorIs(mgr.Abort(context.TODO(), uploadId), httpresponse.ErrConflict)
	})

	t.Run("PartAfterComplete", func(t *testing.T) {
		_, err := mgr.UploadPart(context.TODO(), uploadId, 4, []byte("late"))
		assert.ErrorIs(err, httpresponse.ErrConflict)
	})
}

func Test_Session_CompleteValidation(t *testing.T) {
	assert := assert.New(t)
	mgr := newManager(t, WithStorage(newStorage(t)))

	uploadId, etags := uploadFile(t, mgr, "doc.pdf", "one", "two")
	tests := []struct {
		name string
		req  schema.CompleteRequest
	}{
		{"NoETags", schema.CompleteRequest{}},
		{"MissingPart", schema.CompleteRequest{ETags: append(etags, etags[0])}},
		{"WrongETag", schema.CompleteRequest{ETags: []string{etags[1], etags[0]}}},
		{"WrongKey", schema.CompleteRequest{StorageKey: "uploads/other.pdf", ETags: etags}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := mgr.Complete(context.TODO(), uploadId, test.req)
			assert.ErrorIs(err, httpresponse.ErrBadRequest)
		})
	}

	// Nothing changed, and unquoted etags are accepted
	session, err := mgr.Session(context.TODO(), uploadId)
	require.NoError(t, err)
	assert.Equal(schema.StatusUploading, session.Status)
	unquoted := []string{digest.NormaliseETag(etags[0]), digest.NormaliseETag(etags[1])}
	_, err = mgr.Complete(context.TODO(), uploadId, schema.CompleteRequest{ETags: unquoted})
	assert.NoError(err)
	mgr.Wait()

	_, err = mgr.Complete(context.TODO(), "missing", schema.CompleteRequest{ETags: etags})
	assert.ErrorIs(err, httpresponse.ErrNotFound)
}

func Test_Session_CompleteSubset(t *testing.T) {
	assert := assert.New(t)
	storage := newStorage(t)
	mgr := newManager(t, WithStorage(storage))

	// Parts beyond those listed are not merged, and are removed
	uploadId, etags := uploadFile(t, mgr, "notes.txt", "keep", "drop")
	resp, err := mgr.Complete(context.TODO(), uploadId, schema.CompleteRequest{ETags: etags[:1]})
	require.NoError(t, err)
	mgr.Wait()

	session, err := mgr.Session(context.TODO(), uploadId)
	require.NoError(t, err)
	assert.Equal(schema.StatusCompleted, session.Status)
	assert.Equal(1, session.TotalParts)
	assert.Equal(100, session.Progress())
	assert.False(exists(t, storage, session.PartKey(2)))

	content, err := mgr.GetContent(context.TODO(), resp.ContentId)
	require.NoError(t, err)
	assert.Equal(int64(4), content.Size)
}

func Test_Session_CompleteRace(t *testing.T) {
	assert := assert.New(t)
	mgr := newManager(t, WithStorage(newStorage(t)))

	uploadId, etags := uploadFile(t, mgr, "race.txt", "a", "b")

	// Concurrent completes all report the same content record
	const n = 8
	var wg sync.WaitGroup
	results := make([]uint64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := mgr.Complete(context.TODO(), uploadId, schema.CompleteRequest{ETags: etags})
			if assert.NoError(err) {
				results[i] = resp.ContentId
			}
		}(i)
	}
	wg.Wait()
	mgr.Wait()

	for _, id := range results {
		assert.Equal(results[0], id)
	}
	list, err := mgr.ListContent(context.TODO(), schema.ContentListRequest{})
	require.NoError(t, err)
	assert.Equal(uint64(1), list.Count)
}

////////////////////////////////////////////////////////////////////////////////
// ABORT TESTS

func Test_Session_Abort(t *testing.T) {
	assert := assert.New(t)
	storage := newStorage(t)
	mgr := newManager(t, WithStorage(storage))

	uploadId, _ := uploadFile(t, mgr, "abort.bin", "one", "two", "three")
	session, err := mgr.Session(context.TODO(), uploadId)
	require.NoError(t, err)

	require.NoError(t, mgr.Abort(context.TODO(), uploadId))
	for n := 1; n <= 3; n++ {
		assert.False(exists(t, storage, session.PartKey(n)))
	}

	_, err = mgr.Status(context.TODO(), uploadId)
	assert.ErrorIs(err, httpresponse.ErrNotFound)
	_, err = mgr.UploadPart(context.TODO(), uploadId, 4, []byte("four"))
	assert.ErrorIs(err, httpresponse.ErrNotFound)
	assert.ErrorIs(mgr.Abort(context.TODO(), uploadId), httpresponse.ErrNotFound)
}

func Test_Session_AbortPartialFailure(t *testing.T) {
	assert := assert.New(t)
	storage := &faultyStorage{Storage: newStorage(t), failDelete: ".part.1"}
	mgr := newManager(t, WithStorage(storage))

	uploadId, _ := uploadFile(t, mgr, "abort.bin", "one", "two", "three")
	session, err := mgr.Session(context.TODO(), uploadId)
	require.NoError(t, err)

	// The failed delete is reported after the others have run
	err = mgr.Abort(context.TODO(), uploadId)
	assert.ErrorIs(err, httpresponse.ErrGatewayError)
	assert.ErrorContains(err, "refused")
	assert.Equal(int64(3), storage.deletes.Load())
	assert.True(exists(t, storage, session.PartKey(1)))
	assert.False(exists(t, storage, session.PartKey(2)))
	assert.False(exists(t, storage, session.PartKey(3)))

	// The session is gone regardless
	_, err = mgr.Status(context.TODO(), uploadId)
	assert.ErrorIs(err, httpresponse.ErrNotFound)
}

func Test_Session_AbortAfterComplete(t *testing.T) {
	assert := assert.New(t)
	ctx := context.TODO()
	store := &hookStore{SessionStore: session.NewMemory()}
	storage := newStorage(t)
	mgr := newManager(t, WithStorage(storage), WithSessionStore(store))

	// Complete lands between the abort reading the session and removing it
	uploadId, etags := uploadFile(t, mgr, "race.bin", "aaaa", "bbbb")
	var complete *schema.CompleteResponse
	store.beforeDelete = func() {
		var err error
		complete, err = mgr.Complete(ctx, uploadId, schema.CompleteRequest{ETags: etags})
		require.NoError(t, err)
	}
	assert.ErrorIs(mgr.Abort(ctx, uploadId), httpresponse.ErrConflict)
	require.NotNil(t, complete)
	assert.Equal(schema.StatusProcessing, complete.Status)

	// The merge is unaffected
	mgr.Wait()
	status, err := mgr.Status(ctx, uploadId)
	require.NoError(t, err)
	assert.Equal(schema.StatusCompleted, status.Status)
	assert.Equal(100, status.Progress)
	content, err := mgr.GetContent(ctx, complete.ContentId)
	require.NoError(t, err)
	assert.Equal(schema.StatusCompleted, content.Status)
	assert.Equal(int64(8), content.Size)
}
