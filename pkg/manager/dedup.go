package manager

import (
	"context"
	"errors"
	"net/http"
	"strings"

	// Packages
	otel "github.com/mutablelogic/go-client/pkg/otel"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Dedup looks up a completed upload with the same content hash. When none
// exists, the response suggests where a new upload of the file would be
// served from.
func (manager *Manager) Dedup(ctx context.Context, req schema.DedupRequest) (_ *schema.DedupResponse, err error) {
	child, endFunc := otel.StartSpan(manager.tracer, ctx, spanManagerName("Dedup"))
	defer func() { endFunc(err) }()

	hash, err := manager.hash.Validate(req.Hash)
	if err != nil {
		return nil, err
	}

	content, err := manager.catalog.ContentByHash(child, hash)
	if errors.Is(err, httpresponse.ErrNotFound) {
		response := &schema.DedupResponse{}
		if req.FileName != "" {
			response.SuggestedUrl = manager.storage.PublicURL(suggestedKey(manager.keyPrefix, manager.now(), req.FileName))
		}
		return response, nil
	} else if err != nil {
		return nil, err
	}

	// Return success
	return &schema.DedupResponse{
		Exists:   true,
		RecordId: content.Id,
		Url:      content.Url,
	}, nil
}

// Presign returns a time-limited URL for reading or writing an object
// directly against the storage backend.
func (manager *Manager) Presign(ctx context.Context, req schema.PresignRequest) (_ *schema.PresignResponse, err error) {
	child, endFunc := otel.StartSpan(manager.tracer, ctx, spanManagerName("Presign"))
	defer func() { endFunc(err) }()

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	ttl := req.TTL
	if ttl <= 0 {
		ttl = schema.DefaultPresignTTL
	}

	ctx, cancel := context.WithTimeout(child, manager.storageTimeout)
	defer cancel()
	url, err := manager.storage.SignedURL(ctx, req.Key, method, ttl)
	if err != nil {
		return nil, err
	}

	// Return success
	return &schema.PresignResponse{
		Key:     req.Key,
		Method:  method,
		Url:     url,
		Expires: manager.now().Add(ttl),
	}, nil
}
