package backend

import (
	"context"
	"io"

	// Packages
	schema "github.com/mutablelogic/go-upload/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// ReadObject opens an object for reading
func (b *blobbackend) ReadObject(ctx context.Context, key string) (io.ReadCloser, *schema.Object, error) {
	sk, err := b.storageKey(key)
	if err != nil {
		return nil, nil, err
	}
	attrs, err := b.bucket.Attributes(ctx, sk)
	if err != nil {
		return nil, nil, blobErr(err, b.Bucket()+":"+key)
	}
	r, err := b.bucket.NewReader(ctx, sk, nil)
	if err != nil {
		return nil, nil, blobErr(err, b.Bucket()+":"+key)
	}
	return r, b.attrsToObject(key, attrs), nil
}

// Exists returns true if an object exists at the key
func (b *blobbackend) Exists(ctx context.Context, key string) (bool, error) {
	sk, err := b.storageKey(key)
	if err != nil {
		return false, err
	}
	exists, err := b.bucket.Exists(ctx, sk)
	if err != nil {
		return false, blobErr(err, b.Bucket()+":"+key)
	}
	return exists, nil
}
