package httphandler

import (
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

// Path: /content
// GET lists content records, newest first.
func ContentListHandler(mgr *manager.Manager) (string, http.HandlerFunc, *openapi.PathItem) {
	return "/content", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				_ = contentList(w, r, mgr)
			default:
				_ = httpresponse.Error(w, httpresponse.Err(http.StatusMethodNotAllowed), r.Method)
			}
		}, types.Ptr(openapi.PathItem{
			Get: &openapi.Operation{
				Description: "List content records (query: offset, limit, status)",
			},
		})
}

// Path: /content/{id}
// GET returns a content record, DELETE removes it and its stored object.
func ContentHandler(mgr *manager.Manager) (string, http.HandlerFunc, *openapi.PathItem) {
	return "/content/{id}", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				_ = contentGet(w, r, mgr)
			case http.MethodDelete:
				_ = contentDelete(w, r, mgr)
			default:
				_ = httpresponse.Error(w, httpresponse.Err(http.StatusMethodNotAllowed), r.Method)
			}
		}, types.Ptr(openapi.PathItem{
			Get: &openapi.Operation{
				Description: "Get a content record",
			},
			Delete: &openapi.Operation{
				Description: "Delete a content record and its stored object",
			},
		})
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func contentList(w http.ResponseWriter, r *http.Request, mgr *manager.Manager) error {
	var req schema.ContentListRequest
	if err := httprequest.Query(r.URL.Query(), &req); err != nil {
		return httpresponse.Error(w, httpresponse.ErrBadRequest.With(err.Error()))
	}

	response, err := mgr.ListContent(r.Context(), req)
	if err != nil {
		return httpresponse.Error(w, err)
	}

	return httpresponse.JSON(w, http.StatusOK, httprequest.Indent(r), response)
}

func contentGet(w http.ResponseWriter, r *http.Request, mgr *manager.Manager) error {
	id, err := contentId(r)
	if err != nil {
		return httpresponse.Error(w, err)
	}

	response, err := mgr.GetContent(r.Context(), id)
	if err != nil {
		return httpresponse.Error(w, err)
	}

	return httpresponse.JSON(w, http.StatusOK, httprequest.Indent(r), response)
}

func contentDelete(w http.ResponseWriter, r *http.Request, mgr *manager.Manager) error {
	id, err := contentId(r)
	if err != nil {
		return httpresponse.Error(w, err)
	}

	response, err := mgr.DeleteContent(r.Context(), id)
	if err != nil {
		return httpresponse.Error(w, err)
	}

	return httpresponse.JSON(w, http.StatusOK, httprequest.Indent(r), response)
}

func contentId(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, httpresponse.ErrBadRequest.Withf("invalid content id %q", r.PathValue("id"))
	}
	return id, nil
}
