package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	// Packages
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	types "github.com/mutablelogic/go-server/pkg/types"
	digest "github.com/mutablelogic/go-upload/pkg/digest"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
	errgroup "golang.org/x/sync/errgroup"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

// UploadOpt is a functional option for Upload.
type UploadOpt func(*uploadOpts) error

type uploadOpts struct {
	partSize     int64
	concurrency  int
	retries      int
	pollInterval time.Duration
	contentType  string
	hash         digest.Algorithm
	dedup        bool
	progress     func(written, total int64)
}

// UploadResult is the outcome of Upload
type UploadResult struct {
	UploadId     string        `json:"upload_id,omitempty"`
	ContentId    uint64        `json:"content_id,omitempty"`
	Url          string        `json:"url,omitempty"`
	Status       schema.Status `json:"status,omitempty"`
	Parts        int           `json:"parts,omitempty"`
	Deduplicated bool          `json:"deduplicated,omitempty"`
}

///////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	DefaultPartSize     = 8 << 20
	DefaultConcurrency  = 4
	DefaultRetries      = 3
	DefaultPollInterval = 500 * time.Millisecond
)

///////////////////////////////////////////////////////////////////////////////
// OPTIONS

// WithPartSize sets the size of each part, in bytes.
func WithPartSize(size int64) UploadOpt {
	return func(o *uploadOpts) error {
		if size <= 0 {
			return httpresponse.ErrBadRequest.Withf("invalid part size: %d", size)
		}
		o.partSize = size
		return nil
	}
}

// WithConcurrency sets how many parts are sent at once.
func WithConcurrency(n int) UploadOpt {
	return func(o *uploadOpts) error {
		if n <= 0 {
			return httpresponse.ErrBadRequest.Withf("invalid concurrency: %d", n)
		}
		o.concurrency = n
		return nil
	}
}

// WithRetries sets how many times a failed part is sent again.
func WithRetries(n int) UploadOpt {
	return func(o *uploadOpts) error {
		o.retries = max(n, 0)
		return nil
	}
}

// WithPollInterval sets how often the status is polled after completion.
func WithPollInterval(d time.Duration) UploadOpt {
	return func(o *uploadOpts) error {
		if d <= 0 {
			return httpresponse.ErrBadRequest.Withf("invalid poll interval: %v", d)
		}
		o.pollInterval = d
		return nil
	}
}

// WithContentType sets the MIME type, which is otherwise inferred by the
// server from the file name.
func WithContentType(v string) UploadOpt {
	return func(o *uploadOpts) error {
		o.contentType = v
		return nil
	}
}

// WithHash sets the algorithm used for the dedup check, which must match
// the server. Pass an empty string to skip the dedup check.
func WithHash(name string) UploadOpt {
	return func(o *uploadOpts) error {
		if name == "" {
			o.dedup = false
			return nil
		}
		alg, err := digest.Parse(name)
		if err != nil {
			return err
		}
		o.hash, o.dedup = alg, true
		return nil
	}
}

// WithUploadProgress sets a callback invoked after each part is sent, with
// the number of bytes sent so far and the total.
func WithUploadProgress(fn func(written, total int64)) UploadOpt {
	return func(o *uploadOpts) error {
		o.progress = fn
		return nil
	}
}

///////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (r UploadResult) String() string {
	return types.Stringify(r)
}

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Upload sends size bytes from r as a chunked upload named filename. The
// content is hashed first and the upload is skipped when the server already
// holds it. Parts are sent concurrently and retried; once complete, the
// status is polled until the merge finishes. A failed upload is aborted.
func (c *Client) Upload(ctx context.Context, filename string, r io.ReaderAt, size int64, opts ...UploadOpt) (*UploadResult, error) {
	o, err := applyUploadOpts(opts)
	if err != nil {
		return nil, err
	}

	// Dedup check
	if o.dedup {
		hash, _, err := o.hash.Reader(io.NewSectionReader(r, 0, size))
		if err != nil {
			return nil, err
		}
		if dedup, err := c.Dedup(ctx, schema.DedupRequest{Hash: hash, FileName: filename}); err != nil {
			return nil, err
		} else if dedup.Exists {
			return &UploadResult{
				ContentId:    dedup.RecordId,
				Url:          dedup.Url,
				Status:       schema.StatusCompleted,
				Deduplicated: true,
			}, nil
		}
	}

	// Start the upload
	init, err := c.Init(ctx, schema.InitRequest{FileName: filename, ContentType: o.contentType})
	if err != nil {
		return nil, err
	}

	// Send the parts, aborting on failure
	etags, err := c.uploadParts(ctx, init.UploadId, r, size, o)
	if err != nil {
		return nil, errors.Join(err, c.Abort(context.WithoutCancel(ctx), init.UploadId))
	}

	// Complete and wait for the merge
	if _, err := c.Complete(ctx, init.UploadId, schema.CompleteRequest{StorageKey: init.StorageKey, ETags: etags}); err != nil {
		return nil, err
	}
	status, err := c.Wait(ctx, init.UploadId, o.pollInterval)
	if err != nil {
		return nil, err
	}

	result := &UploadResult{
		UploadId:  init.UploadId,
		ContentId: status.ContentId,
		Url:       status.Url,
		Status:    status.Status,
		Parts:     len(etags),
	}
	if status.Status == schema.StatusFailed {
		return result, httpresponse.ErrInternalError.With(status.Error)
	}

	// Return success
	return result, nil
}

// Wait polls the status of an upload until it is completed or failed.
func (c *Client) Wait(ctx context.Context, uploadId string, interval time.Duration) (*schema.StatusResponse, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		status, err := c.Status(ctx, uploadId)
		if err != nil {
			return nil, err
		} else if status.Status.Terminal() {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func applyUploadOpts(opts []UploadOpt) (*uploadOpts, error) {
	o := &uploadOpts{
		partSize:     DefaultPartSize,
		concurrency:  DefaultConcurrency,
		retries:      DefaultRetries,
		pollInterval: DefaultPollInterval,
		hash:         digest.Default,
		dedup:        true,
	}
	for _, fn := range opts {
		if err := fn(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// uploadParts sends each part and returns the ETags in part order
func (c *Client) uploadParts(ctx context.Context, uploadId string, r io.ReaderAt, size int64, o *uploadOpts) ([]string, error) {
	count := max(int((size+o.partSize-1)/o.partSize), 1)
	if count > schema.MaxPartNumber {
		return nil, httpresponse.ErrBadRequest.Withf("%d parts exceeds the limit of %d, increase the part size", count, schema.MaxPartNumber)
	}

	var written atomic.Int64
	etags := make([]string, count)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i := range count {
		offset := int64(i) * o.partSize
		length := min(o.partSize, size-offset)
		g.Go(func() error {
			data := make([]byte, length)
			if _, err := r.ReadAt(data, offset); err != nil && err != io.EOF {
				return err
			}
			part, err := c.uploadPart(ctx, uploadId, i+1, data, o.retries)
			if err != nil {
				return err
			}
			etags[i] = part.ETag
			if o.progress != nil {
				o.progress(written.Add(length), size)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return etags, nil
}

// uploadPart sends a part, retrying transient failures with a linear backoff
func (c *Client) uploadPart(ctx context.Context, uploadId string, n int, data []byte, retries int) (*schema.PartResponse, error) {
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 && !retryable(err) {
			break
		}
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
			}
		}
		var part *schema.PartResponse
		if part, err = c.UploadPart(ctx, uploadId, n, data); err == nil {
			return part, nil
		}
	}
	return nil, err
}

// retryable reports whether a failed request may succeed if sent again.
// Transport errors and gateway responses are retried; any other status
// means the request itself was refused.
func retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}
	switch statusCode(err) {
	case 0, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// statusCode returns the HTTP status of a response error, or zero for an
// error which did not come from a response
func statusCode(err error) int {
	var code httpresponse.Err
	var resp httpresponse.ErrResponse
	switch {
	case errors.As(err, &code):
		return int(code)
	case errors.As(err, &resp):
		return resp.Code
	default:
		return 0
	}
}
