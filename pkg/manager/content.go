package manager

import (
	"context"

	// Packages
	otel "github.com/mutablelogic/go-client/pkg/otel"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

func (manager *Manager) GetContent(ctx context.Context, id uint64) (_ *schema.Content, err error) {
	child, endFunc := otel.StartSpan(manager.tracer, ctx, spanManagerName("GetContent"))
	defer func() { endFunc(err) }()

	return manager.catalog.GetContent(child, id)
}

func (manager *Manager) ListContent(ctx context.Context, req schema.ContentListRequest) (_ *schema.ContentList, err error) {
	child, endFunc := otel.StartSpan(manager.tracer, ctx, spanManagerName("ListContent"))
	defer func() { endFunc(err) }()

	if req.Status != nil && !req.Status.Valid() {
		return nil, httpresponse.ErrBadRequest.Withf("invalid status %q", *req.Status)
	}
	return manager.catalog.ListContent(child, req)
}

// DeleteContent removes a content record and its stored object. Records
// which are still being merged cannot be deleted.
func (manager *Manager) DeleteContent(ctx context.Context, id uint64) (_ *schema.Content, err error) {
	child, endFunc := otel.StartSpan(manager.tracer, ctx, spanManagerName("DeleteContent"))
	defer func() { endFunc(err) }()

	content, err := manager.catalog.GetContent(child, id)
	if err != nil {
		return nil, err
	} else if content.Status == schema.StatusProcessing {
		return nil, httpresponse.ErrConflict.Withf("content %d is processing", id)
	}

	// Remove the object, then the record
	if content.Status == schema.StatusCompleted {
		if err := manager.delete(child, content.Key); err != nil {
			return nil, err
		}
	}
	return manager.catalog.DeleteContent(child, id)
}
