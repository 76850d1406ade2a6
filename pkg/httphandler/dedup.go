package httphandler

import (
	"net/http"
	"time"

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

// Path: /dedup
// GET checks whether content with a hash has already been uploaded.
func DedupHandler(mgr *manager.Manager) (string, http.HandlerFunc, *openapi.PathItem) {
	return "/dedup", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				_ = dedup(w, r, mgr)
			default:
				_ = httpresponse.Error(w, httpresponse.Err(http.StatusMethodNotAllowed), r.Method)
			}
		}, types.Ptr(openapi.PathItem{
			Get: &openapi.Operation{
				Description: "Look up a completed upload by content hash (query: hash, filename)",
			},
		})
}

// Path: /presign
// GET returns a presigned URL for direct GET or PUT access to a key.
func PresignHandler(mgr *manager.Manager) (string, http.HandlerFunc, *openapi.PathItem) {
	return "/presign", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				_ = presign(w, r, mgr)
			default:
				_ = httpresponse.Error(w, httpresponse.Err(http.StatusMethodNotAllowed), r.Method)
			}
		}, types.Ptr(openapi.PathItem{
			Get: &openapi.Operation{
				Description: "Presign a storage key (query: key, method, ttl)",
			},
		})
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func dedup(w http.ResponseWriter, r *http.Request, mgr *manager.Manager) error {
	var req schema.DedupRequest
	if err := httprequest.Query(r.URL.Query(), &req); err != nil {
		return httpresponse.Error(w, httpresponse.ErrBadRequest.With(err.Error()))
	}

	response, err := mgr.Dedup(r.Context(), req)
	if err != nil {
		return httpresponse.Error(w, err)
	}

	return httpresponse.JSON(w, http.StatusOK, httprequest.Indent(r), response)
}

func presign(w http.ResponseWriter, r *http.Request, mgr *manager.Manager) error {
	q := r.URL.Query()
	req := schema.PresignRequest{
		Key:    q.Get("key"),
		Method: q.Get("method"),
	}
	if ttl := q.Get("ttl"); ttl != "" {
		if d, err := time.ParseDuration(ttl); err != nil {
			return httpresponse.Error(w, httpresponse.ErrBadRequest.Withf("invalid ttl %q", ttl))
		} else {
			req.TTL = d
		}
	}

	response, err := mgr.Presign(r.Context(), req)
	if err != nil {
		return httpresponse.Error(w, err)
	}

	return httpresponse.JSON(w, http.StatusOK, httprequest.Indent(r), response)
}
