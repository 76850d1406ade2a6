package httpclient

import (
	"context"
	"net/http"
	"strconv"

	// Packages
	client "github.com/mutablelogic/go-client"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
)

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Init starts a chunked upload.
func (c *Client) Init(ctx context.Context, req schema.InitRequest) (*schema.InitResponse, error) {
	request, err := client.NewJSONRequest(req)
	if err != nil {
		return nil, err
	}

	// Perform request
	var response schema.InitResponse
	if err := c.DoWithContext(ctx, request, &response, client.OptPath("upload")); err != nil {
		return nil, err
	}

	// Return the response
	return &response, nil
}

// UploadPart sends one part of an upload. Part numbers start at one.
func (c *Client) UploadPart(ctx context.Context, uploadId string, n int, data []byte) (*schema.PartResponse, error) {
	var response schema.PartResponse
	if err := c.DoWithContext(ctx, newPartPayload(data), &response, client.OptPath("upload", uploadId, strconv.Itoa(n))); err != nil {
		return nil, err
	}
	return &response, nil
}

// Complete finishes an upload with the ETags of its parts, in part order.
// The server merges the parts in the background; use Status to follow it.
func (c *Client) Complete(ctx context.Context, uploadId string, req schema.CompleteRequest) (*schema.CompleteResponse, error) {
	request, err := client.NewJSONRequest(req)
	if err != nil {
		return nil, err
	}

	var response schema.CompleteResponse
	if err := c.DoWithContext(ctx, request, &response, client.OptPath("upload", uploadId)); err != nil {
		return nil, err
	}
	return &response, nil
}

// Status returns the state and progress of an upload.
func (c *Client) Status(ctx context.Context, uploadId string) (*schema.StatusResponse, error) {
	var response schema.StatusResponse
	if err := c.DoWithContext(ctx, client.NewRequest(), &response, client.OptPath("upload", uploadId)); err != nil {
		return nil, err
	}
	return &response, nil
}

// Abort cancels an upload which has not been completed.
func (c *Client) Abort(ctx context.Context, uploadId string) error {
	return c.DoWithContext(ctx, client.NewRequestEx(http.MethodDelete, ""), nil, client.OptPath("upload", uploadId))
}
