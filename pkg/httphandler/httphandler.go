package httphandler

import (
	"errors"
	"net/http"

	// Packages
	openapi "github.com/mutablelogic/go-server/pkg/openapi/schema"
	manager "github.com/mutablelogic/go-upload/pkg/manager"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

// Router is the interface required to register HTTP handlers.
type Router interface {
	RegisterFunc(path string, handler http.HandlerFunc, middleware bool, spec *openapi.PathItem) error
}

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// RegisterHandlers registers all upload HTTP handlers on the provided router.
func RegisterHandlers(mgr *manager.Manager, router Router) error {
	var result error
	register := func(path string, handler http.HandlerFunc, spec *openapi.PathItem) {
		result = errors.Join(result, router.RegisterFunc(path, handler, true, spec))
	}
	register(UploadHandler(mgr))
	register(UploadSessionHandler(mgr))
	register(UploadPartHandler(mgr))
	register(DedupHandler(mgr))
	register(PresignHandler(mgr))
	register(ContentListHandler(mgr))
	register(ContentHandler(mgr))
	register(HealthHandler(mgr))
	return result
}
