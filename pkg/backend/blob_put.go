package backend

import (
	"context"
	"errors"
	"io"

	// Packages
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	upload "github.com/mutablelogic/go-upload"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
	blob "gocloud.dev/blob"
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// PutObject writes an object, replacing any object with the same key
func (b *blobbackend) PutObject(ctx context.Context, key string, r io.Reader, opts ...upload.Opt) (*schema.Object, error) {
	o, err := upload.ApplyOpts(opts...)
	if err != nil {
		return nil, err
	}
	sk, err := b.storageKey(key)
	if err != nil {
		return nil, err
	}

	// Write the object. The writer is aborted by cancelling its context
	// so a failed copy does not leave a partial object behind.
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w, err := b.bucket.NewWriter(wctx, sk, &blob.WriterOptions{
		ContentType: o.ContentType(),
		Metadata:    o.Meta(),
	})
	if err != nil {
		return nil, blobErr(err, b.Bucket()+":"+key)
	}
	n, err := io.Copy(w, r)
	if err == nil && o.ContentLength() >= 0 && n != o.ContentLength() {
		err = httpresponse.ErrBadRequest.Withf("expected %d bytes, read %d", o.ContentLength(), n)
	}
	if err != nil {
		cancel()
		return nil, blobErr(errors.Join(err, w.Close()), b.Bucket()+":"+key)
	} else if err := w.Close(); err != nil {
		return nil, blobErr(err, b.Bucket()+":"+key)
	}

	// Get attributes to return
	attrs, err := b.bucket.Attributes(ctx, sk)
	if err != nil {
		// The write succeeded but the metadata could not be read back
		return &schema.Object{
			Bucket:      b.Bucket(),
			Key:         key,
			Size:        n,
			ContentType: o.ContentType(),
		}, nil
	}

	// Return success
	return b.attrsToObject(key, attrs), nil
}
