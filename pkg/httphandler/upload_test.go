package httphandler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	// Packages
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	httphandler "github.com/mutablelogic/go-upload/pkg/httphandler"
	manager "github.com/mutablelogic/go-upload/pkg/manager"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
	assert "github.com/stretchr/testify/assert"
	require "github.com/stretchr/testify/require"
)

///////////////////////////////////////////////////////////////////////////////
// HELPERS

func newTestManager(t *testing.T, opts ...manager.Opt) *manager.Manager {
	t.Helper()
	opts = append([]manager.Opt{manager.WithBackend(context.Background(), "mem://testbucket")}, opts...)
	mgr, err := manager.New(context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

func serveMux(t *testing.T, mgr *manager.Manager) *http.ServeMux {
	t.Helper()
	router := &mockRouter{mux: http.NewServeMux()}
	require.NoError(t, httphandler.RegisterHandlers(mgr, router))
	return router.mux
}

// do sends a request and decodes a JSON response into out, when out is not nil
func do(t *testing.T, mux http.Handler, method, path string, body []byte, out any) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil && method != http.MethodPut {
		req.Header.Set("Content-Type", "application/json")
	}
	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, req)
	resp := rw.Result()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

///////////////////////////////////////////////////////////////////////////////
// TESTS

func Test_upload(t *testing.T) {
	assert := assert.New(t)
	mgr := newTestManager(t)
	mux := serveMux(t, mgr)

	// Init
	var init schema.InitResponse
	resp := do(t, mux, http.MethodPost, "/upload", mustJSON(t, schema.InitRequest{FileName: "notes.txt"}), &init)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(init.UploadId)
	assert.True(strings.HasSuffix(init.StorageKey, ".txt"), init.StorageKey)
	assert.Equal("testbucket", init.Bucket)

	// Parts, out of order
	etags := make([]string, 3)
	for _, n := range []int{3, 1, 2} {
		var part schema.PartResponse
		resp := do(t, mux, http.MethodPut, fmt.Sprintf("/upload/%s/%d", init.UploadId, n), []byte(fmt.Sprintf("part%d;", n)), &part)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(part.Success)
		assert.Equal(n, part.PartNumber)
		assert.Equal(part.ETag, resp.Header.Get(schema.ETagHeader))
		etags[n-1] = part.ETag
	}

	// Status before complete
	var status schema.StatusResponse
	resp = do(t, mux, http.MethodGet, "/upload/"+init.UploadId, nil, &status)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(schema.StatusUploading, status.Status)
	assert.Equal(0, status.Progress)

	// Complete
	var complete schema.CompleteResponse
	resp = do(t, mux, http.MethodPost, "/upload/"+init.UploadId, mustJSON(t, schema.CompleteRequest{StorageKey: init.StorageKey, ETags: etags}), &complete)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.NotZero(complete.ContentId)
	mgr.Wait()

	resp = do(t, mux, http.MethodGet, "/upload/"+init.UploadId, nil, &status)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(schema.StatusCompleted, status.Status)
	assert.Equal(100, status.Progress)
	assert.NotEmpty(status.Url)

	// Content record and merged bytes, in part order
	var content schema.Content
	resp = do(t, mux, http.MethodGet, fmt.Sprintf("/content/%d", complete.ContentId), nil, &content)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(int64(len("part1;part2;part3;")), content.Size)
	r, _, err := mgr.Storage().ReadObject(context.Background(), init.StorageKey)
	require.NoError(t, err)
	defer r.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(r)
	require.NoError(t, err)
	assert.Equal("part1;part2;part3;", buf.String())

	// Abort after completion conflicts
	resp = do(t, mux, http.MethodDelete, "/upload/"+init.UploadId, nil, nil)
	assert.Equal(http.StatusConflict, resp.StatusCode)
}

func Test_upload_errors(t *testing.T) {
	assert := assert.New(t)
	mgr := newTestManager(t, manager.WithMaxPartSize(4))
	mux := serveMux(t, mgr)

	var init schema.InitResponse
	resp := do(t, mux, http.MethodPost, "/upload", mustJSON(t, schema.InitRequest{FileName: "a.bin"}), &init)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	tests := []struct {
		name   string
		method string
		path   string
		body   []byte
		want   int
	}{
		{"init without filename", http.MethodPost, "/upload", mustJSON(t, schema.InitRequest{}), http.StatusBadRequest},
		{"init wrong method", http.MethodGet, "/upload", nil, http.StatusMethodNotAllowed},
		{"part number not a number", http.MethodPut, "/upload/" + init.UploadId + "/one", []byte("x"), http.StatusBadRequest},
		{"part number zero", http.MethodPut, "/upload/" + init.UploadId + "/0", []byte("x"), http.StatusBadRequest},
		{"part too large", http.MethodPut, "/upload/" + init.UploadId + "/1", []byte("12345"), http.StatusBadRequest},
		{"part unknown upload", http.MethodPut, "/upload/missing/1", []byte("x"), http.StatusNotFound},
		{"status unknown upload", http.MethodGet, "/upload/missing", nil, http.StatusNotFound},
		{"complete missing part", http.MethodPost, "/upload/" + init.UploadId, mustJSON(t, schema.CompleteRequest{ETags: []string{"abc"}}), http.StatusBadRequest},
		{"abort unknown upload", http.MethodDelete, "/upload/missing", nil, http.StatusNotFound},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			resp := do(t, mux, test.method, test.path, test.body, nil)
			assert.Equal(test.want, resp.StatusCode)
		})
	}
}

func Test_upload_abort(t *testing.T) {
	assert := assert.New(t)
	mgr := newTestManager(t)
	mux := serveMux(t, mgr)

	var init schema.InitResponse
	do(t, mux, http.MethodPost, "/upload", mustJSON(t, schema.InitRequest{FileName: "a.bin"}), &init)
	resp := do(t, mux, http.MethodPut, "/upload/"+init.UploadId+"/1", []byte("data"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, mux, http.MethodDelete, "/upload/"+init.UploadId, nil, nil)
	assert.Equal(http.StatusNoContent, resp.StatusCode)

	exists, err := mgr.Storage().Exists(context.Background(), schema.PartKey(init.StorageKey, 1))
	require.NoError(t, err)
	assert.False(exists)

	resp = do(t, mux, http.MethodGet, "/upload/"+init.UploadId, nil, nil)
	assert.Equal(http.StatusNotFound, resp.StatusCode)
}

func Test_upload_errorResponse(t *testing.T) {
	assert := assert.New(t)
	mgr := newTestManager(t)
	mux := serveMux(t, mgr)

	var init schema.InitResponse
	do(t, mux, http.MethodPost, "/upload", mustJSON(t, schema.InitRequest{FileName: "a.bin"}), &init)
	var part schema.PartResponse
	do(t, mux, http.MethodPut, "/upload/"+init.UploadId+"/1", []byte("data"), &part)
	resp := do(t, mux, http.MethodPost, "/upload/"+init.UploadId, mustJSON(t, schema.CompleteRequest{ETags: []string{part.ETag}}), nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	mgr.Wait()

	// Manager errors carry their status and reason to the client
	resp = do(t, mux, http.MethodDelete, "/upload/"+init.UploadId, nil, nil)
	assert.Equal(http.StatusConflict, resp.StatusCode)
	var body httpresponse.ErrResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(http.StatusConflict, body.Code)
	assert.Contains(body.Reason, "completed")
}
