package backend

import (
	"context"

	// Packages
	gcerrors "gocloud.dev/gcerrors"
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// DeleteObject deletes an object. A missing object is not an error.
func (b *blobbackend) DeleteObject(ctx context.Context, key string) error {
	sk, err := b.storageKey(key)
	if err != nil {
		return err
	}
	if err := b.bucket.Delete(ctx, sk); err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return blobErr(err, b.Bucket()+":"+key)
	}
	return nil
}
