package session_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	// Packages
	miniredis "github.com/alicebob/miniredis/v2"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	upload "github.com/mutablelogic/go-upload"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
	session "github.com/mutablelogic/go-upload/pkg/session"
	assert "github.com/stretchr/testify/assert"
	require "github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]upload.SessionStore {
	t.Helper()
	mr := miniredis.RunT(t)
	redis, err := session.NewRedis(context.Background(), "redis://"+mr.Addr()+"/0", time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { redis.Close() })
	return map[string]upload.SessionStore{
		"memory": session.NewMemory(),
		"redis":  redis,
	}
}

func newSession(id string) *schema.Session {
	return &schema.Session{
		UploadId:   id,
		StorageKey: "uploads/2024/01/01/video-" + id[:8] + ".mp4",
		FileName:   "video.mp4",
		Status:     schema.StatusUploading,
		Parts:      map[int]schema.Part{},
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
	}
}

func Test_Store(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)
			ctx := context.Background()

			// Not found
			_, err := store.Get(ctx, "missing")
			assert.ErrorIs(err, httpresponse.ErrNotFound)
			assert.ErrorIs(store.Delete(ctx, "missing"), httpresponse.ErrNotFound)

			// Put and get
			s := newSession("0123456789abcdef")
			require.NoError(store.Put(ctx, s))
			assert.Equal(uint64(1), s.Version)
			got, err := store.Get(ctx, s.UploadId)
			require.NoError(err)
			assert.Equal(s.StorageKey, got.StorageKey)
			assert.Equal(uint64(1), got.Version)

			// Mutating the copy does not change the store
			got.Parts[1] = schema.Part{PartNumber: 1, ETag: `"e1"`, Size: 3}
			again, err := store.Get(ctx, s.UploadId)
			require.NoError(err)
			assert.Empty(again.Parts)

			// Swap succeeds from the current version
			next := got.Clone()
			next.CompletedParts = 1
			ok, err := store.CompareAndSwap(ctx, again, next)
			require.NoError(err)
			assert.True(ok)
			assert.Equal(uint64(2), next.Version)

			// Swap fails from a stale version
			stale := again.Clone()
			stale.CompletedParts = 5
			ok, err = store.CompareAndSwap(ctx, again, stale)
			require.NoError(err)
			assert.False(ok)

			got, err = store.Get(ctx, s.UploadId)
			require.NoError(err)
			assert.Equal(1, got.CompletedParts)
			assert.Equal(`"e1"`, got.Parts[1].ETag)

			// List
			require.NoError(store.Put(ctx, newSession("fedcba9876543210")))
			list, err := store.List(ctx)
			require.NoError(err)
			assert.Len(list, 2)

			// Delete
			require.NoError(store.Delete(ctx, s.UploadId))
			_, err = store.Get(ctx, s.UploadId)
			assert.ErrorIs(err, httpresponse.ErrNotFound)
			ok, err = store.CompareAndSwap(ctx, got, got.Clone())
			assert.ErrorIs(err, httpresponse.ErrNotFound)
			assert.False(ok)
		})
	}
}

func Test_StoreValidate(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			assert.ErrorIs(t, store.Put(ctx, nil), httpresponse.ErrBadRequest)
			assert.ErrorIs(t, store.Put(ctx, &schema.Session{Status: schema.StatusUploading}), httpresponse.ErrBadRequest)
			assert.ErrorIs(t, store.Put(ctx, &schema.Session{UploadId: "x", Status: "bad"}), httpresponse.ErrBadRequest)

			a, b := newSession("aaaaaaaaaaaaaaaa"), newSession("bbbbbbbbbbbbbbbb")
			_, err := store.CompareAndSwap(ctx, a, b)
			assert.ErrorIs(t, err, httpresponse.ErrBadRequest)
		})
	}
}

func Test_StoreConcurrentSwap(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			ctx := context.Background()
			s := newSession("cccccccccccccccc")
			require.NoError(t, store.Put(ctx, s))

			// Each writer retries until its part is recorded
			const writers = 10
			var wg sync.WaitGroup
			for i := 1; i <= writers; i++ {
				wg.Add(1)
				go func(n int) {
					defer wg.Done()
					for {
						current, err := store.Get(ctx, s.UploadId)
						if !assert.NoError(err) {
							return
						}
						next := current.Clone()
						next.Parts[n] = schema.Part{PartNumber: n, ETag: fmt.Sprint(n)}
						next.CompletedParts++
						if ok, err := store.CompareAndSwap(ctx, current, next); !assert.NoError(err) || ok {
							return
						}
					}
				}(i)
			}
			wg.Wait()

			got, err := store.Get(ctx, s.UploadId)
			require.NoError(t, err)
			assert.Equal(writers, got.CompletedParts)
			assert.Len(got.Parts, writers)
		})
	}
}

func Test_StoreCompareAndDelete(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)
			ctx := context.Background()
			s := newSession("eeeeeeeeeeeeeeee")
			require.NoError(store.Put(ctx, s))

			// A stale copy does not delete the session
			stale, err := store.Get(ctx, s.UploadId)
			require.NoError(err)
			next := stale.Clone()
			next.Status = schema.StatusProcessing
			ok, err := store.CompareAndSwap(ctx, stale, next)
			require.NoError(err)
			require.True(ok)
			ok, err = store.CompareAndDelete(ctx, stale)
			assert.NoError(err)
			assert.False(ok)
			got, err := store.Get(ctx, s.UploadId)
			require.NoError(err)
			assert.Equal(schema.StatusProcessing, got.Status)

			// The current copy does
			ok, err = store.CompareAndDelete(ctx, got)
			assert.NoError(err)
			assert.True(ok)
			_, err = store.Get(ctx, s.UploadId)
			assert.ErrorIs(err, httpresponse.ErrNotFound)

			// Missing
			ok, err = store.CompareAndDelete(ctx, got)
			assert.ErrorIs(err, httpresponse.ErrNotFound)
			assert.False(ok)
		})
	}
}

func Test_RedisExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := session.NewRedis(context.Background(), "redis://"+mr.Addr(), time.Minute)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, newSession("dddddddddddddddd")))
	mr.FastForward(2 * time.Minute)
	_, err = store.Get(ctx, "dddddddddddddddd")
	assert.ErrorIs(t, err, httpresponse.ErrNotFound)
}

func Test_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err := session.NewRedis(context.Background(), "redis://"+addr, 0)
	assert.ErrorIs(t, err, httpresponse.ErrGatewayError)
	_, err = session.NewRedis(context.Background(), "http://"+addr, 0)
	assert.ErrorIs(t, err, httpresponse.ErrBadRequest)
}
