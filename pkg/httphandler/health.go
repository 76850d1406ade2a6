package httphandler

import (
	"net/http"

	// Packages
	httprequest "github.com/mutablelogic/go-server/pkg/httprequest"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	openapi "github.com/mutablelogic/go-server/pkg/openapi/schema"
	types "github.com/mutablelogic/go-server/pkg/types"
	manager "github.com/mutablelogic/go-upload/pkg/manager"
)

///////////////////////////////////////////////////////////////////////////////
// HANDLER FUNCTIONS

// Path: /health
// GET reports whether the storage bucket is reachable.
func HealthHandler(mgr *manager.Manager) (string, http.HandlerFunc, *openapi.PathItem) {
	return "/health", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				_ = health(w, r, mgr)
			default:
				_ = httpresponse.Error(w, httpresponse.Err(http.StatusMethodNotAllowed), r.Method)
			}
		}, types.Ptr(openapi.PathItem{
			Get: &openapi.Operation{
				Description: "Storage health check",
			},
		})
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func health(w http.ResponseWriter, r *http.Request, mgr *manager.Manager) error {
	status := http.StatusOK
	response, err := mgr.Health(r.Context())
	if err != nil {
		status = http.StatusServiceUnavailable
	}
	return httpresponse.JSON(w, status, httprequest.Indent(r), response)
}
