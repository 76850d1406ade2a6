package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	// Packages
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
	assert "github.com/stretchr/testify/assert"
	require "github.com/stretchr/testify/require"
)

// partServer answers part uploads with each status in turn, then succeeds
func partServer(t *testing.T, codes ...int) (*Client, *atomic.Int64) {
	t.Helper()
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(requests.Add(1))
		if n <= len(codes) {
			_ = httpresponse.Error(w, httpresponse.Err(codes[n-1]))
			return
		}
		_ = httpresponse.JSON(w, http.StatusOK, 0, schema.PartResponse{PartNumber: 1, ETag: "etag", Size: 4, Success: true})
	}))
	t.Cleanup(srv.Close)
	c, err := New(srv.URL)
	require.NoError(t, err)
	return c, &requests
}

func Test_Upload_Retryable(t *testing.T) {
	assert := assert.New(t)
	assert.False(retryable(nil))
	assert.False(retryable(context.Canceled))
	assert.False(retryable(context.DeadlineExceeded))
	assert.False(retryable(httpresponse.ErrBadRequest.With("too large")))
	assert.False(retryable(httpresponse.ErrNotFound.With("no upload")))
	assert.False(retryable(httpresponse.ErrConflict.With("upload is processing")))
	assert.True(retryable(httpresponse.ErrGatewayError.With("storage")))
	assert.True(retryable(httpresponse.Err(http.StatusServiceUnavailable)))
	assert.True(retryable(errors.New("connection reset by peer")))
	assert.False(retryable(httpresponse.ErrResponse{Code: http.StatusConflict}))
	assert.True(retryable(httpresponse.ErrResponse{Code: http.StatusBadGateway}))
}

func Test_Upload_PartRetries(t *testing.T) {
	assert := assert.New(t)

	t.Run("Gateway", func(t *testing.T) {
		c, requests := partServer(t, http.StatusBadGateway, http.StatusBadGateway)
		part, err := c.uploadPart(context.TODO(), "abc", 1, []byte("data"), 3)
		require.NoError(t, err)
		assert.True(part.Success)
		assert.Equal(int64(3), requests.Load())
	})

	t.Run("GatewayExhausted", func(t *testing.T) {
		c, requests := partServer(t, http.StatusBadGateway, http.StatusBadGateway, http.StatusBadGateway)
		_, err := c.uploadPart(context.TODO(), "abc", 1, []byte("data"), 1)
		assert.Equal(http.StatusBadGateway, statusCode(err))
		assert.Equal(int64(2), requests.Load())
	})

	for _, code := range []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict} {
		t.Run(http.StatusText(code), func(t *testing.T) {
			c, requests := partServer(t, code)
			_, err := c.uploadPart(context.TODO(), "abc", 1, []byte("data"), 3)
			assert.Equal(code, statusCode(err))
			assert.Equal(int64(1), requests.Load())
		})
	}
}
