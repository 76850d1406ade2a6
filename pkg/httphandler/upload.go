package httphandler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	// Packages
	httprequest "github.com/mutablelogic/go-server/pkg/httprequest"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	openapi "github.com/mutablelogic/go-server/pkg/openapi/schema"
	types "github.com/mutablelogic/go-server/pkg/types"
	manager "github.com/mutablelogic/go-upload/pkg/manager"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
)

///////////////////////////////////////////////////////////////////////////////
// HANDLER FUNCTIONS

// Path: /upload
// POST starts a chunked upload.
func UploadHandler(mgr *manager.Manager) (string, http.HandlerFunc, *openapi.PathItem) {
	return "/upload", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost:
				_ = uploadInit(w, r, mgr)
			default:
				_ = httpresponse.Error(w, httpresponse.Err(http.StatusMethodNotAllowed), r.Method)
			}
		}, types.Ptr(openapi.PathItem{
			Post: &openapi.Operation{
				Description: "Start a chunked upload and return the upload id and storage key",
			},
		})
}

// Path: /upload/{id}
// GET returns upload status, POST completes the upload, DELETE aborts it.
func UploadSessionHandler(mgr *manager.Manager) (string, http.HandlerFunc, *openapi.PathItem) {
	return "/upload/{id}", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				_ = uploadStatus(w, r, mgr)
			case http.MethodPost:
				_ = uploadComplete(w, r, mgr)
			case http.MethodDelete:
				_ = uploadAbort(w, r, mgr)
			default:
				_ = httpresponse.Error(w, httpresponse.Err(http.StatusMethodNotAllowed), r.Method)
			}
		}, types.Ptr(openapi.PathItem{
			Get: &openapi.Operation{
				Description: "Get the status and progress of an upload",
			},
			Post: &openapi.Operation{
				Description: "Complete an upload with the ordered list of part ETags; the merge runs in the background",
			},
			Delete: &openapi.Operation{
				Description: "Abort an upload and delete its parts",
			},
		})
}

// Path: /upload/{id}/{part}
// PUT stores one part, with the raw part bytes as the request body.
func UploadPartHandler(mgr *manager.Manager) (string, http.HandlerFunc, *openapi.PathItem) {
	return "/upload/{id}/{part}", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPut:
				_ = uploadPart(w, r, mgr)
			default:
				_ = httpresponse.Error(w, httpresponse.Err(http.StatusMethodNotAllowed), r.Method)
			}
		}, types.Ptr(openapi.PathItem{
			Put: &openapi.Operation{
				Description: "Upload one part; the response carries the part ETag",
			},
		})
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func uploadInit(w http.ResponseWriter, r *http.Request, mgr *manager.Manager) error {
	var req schema.InitRequest
	if err := httprequest.Read(r, &req); err != nil {
		return httpresponse.Error(w, httpresponse.ErrBadRequest.With(err.Error()))
	}

	response, err := mgr.Init(r.Context(), req)
	if err != nil {
		return httpresponse.Error(w, err)
	}

	return httpresponse.JSON(w, http.StatusCreated, httprequest.Indent(r), response)
}

func uploadPart(w http.ResponseWriter, r *http.Request, mgr *manager.Manager) error {
	n, err := strconv.Atoi(r.PathValue("part"))
	if err != nil {
		return httpresponse.Error(w, httpresponse.ErrBadRequest.Withf("invalid part number %q", r.PathValue("part")))
	}

	// Read one byte more than allowed so oversized parts are rejected
	data, err := io.ReadAll(io.LimitReader(r.Body, mgr.MaxPartSize()+1))
	if err != nil {
		return httpresponse.Error(w, httpresponse.ErrBadRequest.With(err.Error()))
	}

	response, err := mgr.UploadPart(r.Context(), r.PathValue("id"), n, data)
	if errors.Is(err, httpresponse.ErrGatewayError) {
		// The client retries the part
		return httpresponse.JSON(w, http.StatusBadGateway, httprequest.Indent(r), schema.PartResponse{
			PartNumber: n,
			Success:    false,
			Error:      err.Error(),
		})
	} else if err != nil {
		return httpresponse.Error(w, err)
	}

	w.Header().Set(schema.ETagHeader, response.ETag)
	return httpresponse.JSON(w, http.StatusOK, httprequest.Indent(r), response)
}

func uploadComplete(w http.ResponseWriter, r *http.Request, mgr *manager.Manager) error {
	var req schema.CompleteRequest
	if err := httprequest.Read(r, &req); err != nil {
		return httpresponse.Error(w, httpresponse.ErrBadRequest.With(err.Error()))
	}

	response, err := mgr.Complete(r.Context(), r.PathValue("id"), req)
	if err != nil {
		return httpresponse.Error(w, err)
	}

	return httpresponse.JSON(w, http.StatusAccepted, httprequest.Indent(r), response)
}

func uploadStatus(w http.ResponseWriter, r *http.Request, mgr *manager.Manager) error {
	response, err := mgr.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		return httpresponse.Error(w, err)
	}

	return httpresponse.JSON(w, http.StatusOK, httprequest.Indent(r), response)
}

func uploadAbort(w http.ResponseWriter, r *http.Request, mgr *manager.Manager) error {
	if err := mgr.Abort(r.Context(), r.PathValue("id")); err != nil {
		return httpresponse.Error(w, err)
	}

	return httpresponse.Empty(w, http.StatusNoContent)
}
