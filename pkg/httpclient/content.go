package httpclient

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	// Packages
	client "github.com/mutablelogic/go-client"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
)

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Dedup checks whether content with the hash has already been uploaded.
func (c *Client) Dedup(ctx context.Context, req schema.DedupRequest) (*schema.DedupResponse, error) {
	query := make(url.Values)
	query.Set("hash", req.Hash)
	if req.FileName != "" {
		query.Set("filename", req.FileName)
	}

	var response schema.DedupResponse
	if err := c.DoWithContext(ctx, client.NewRequest(), &response, client.OptPath("dedup"), client.OptQuery(query)); err != nil {
		return nil, err
	}
	return &response, nil
}

// Presign returns a presigned URL for a storage key.
func (c *Client) Presign(ctx context.Context, req schema.PresignRequest) (*schema.PresignResponse, error) {
	query := make(url.Values)
	query.Set("key", req.Key)
	if req.Method != "" {
		query.Set("method", req.Method)
	}
	if req.TTL > 0 {
		query.Set("ttl", req.TTL.String())
	}

	var response schema.PresignResponse
	if err := c.DoWithContext(ctx, client.NewRequest(), &response, client.OptPath("presign"), client.OptQuery(query)); err != nil {
		return nil, err
	}
	return &response, nil
}

// ListContent returns content records, newest first.
func (c *Client) ListContent(ctx context.Context, req schema.ContentListRequest) (*schema.ContentList, error) {
	query := make(url.Values)
	if req.Offset > 0 {
		query.Set("offset", strconv.FormatUint(req.Offset, 10))
	}
	if req.Limit != nil {
		query.Set("limit", strconv.FormatUint(*req.Limit, 10))
	}
	if req.Status != nil {
		query.Set("status", string(*req.Status))
	}

	var response schema.ContentList
	if err := c.DoWithContext(ctx, client.NewRequest(), &response, client.OptPath("content"), client.OptQuery(query)); err != nil {
		return nil, err
	}
	return &response, nil
}

// GetContent returns a content record.
func (c *Client) GetContent(ctx context.Context, id uint64) (*schema.Content, error) {
	var response schema.Content
	if err := c.DoWithContext(ctx, client.NewRequest(), &response, client.OptPath("content", strconv.FormatUint(id, 10))); err != nil {
		return nil, err
	}
	return &response, nil
}

// DeleteContent removes a content record and its stored object.
func (c *Client) DeleteContent(ctx context.Context, id uint64) (*schema.Content, error) {
	var response schema.Content
	if err := c.DoWithContext(ctx,
		client.NewRequestEx(http.MethodDelete, "application/json"),
		&response,
		client.OptPath("content", strconv.FormatUint(id, 10)),
	); err != nil {
		return nil, err
	}
	return &response, nil
}

// Health returns the storage health of the server.
func (c *Client) Health(ctx context.Context) (*schema.HealthResponse, error) {
	var response schema.HealthResponse
	if err := c.DoWithContext(ctx, client.NewRequest(), &response, client.OptPath("health")); err != nil {
		return nil, err
	}
	return &response, nil
}
