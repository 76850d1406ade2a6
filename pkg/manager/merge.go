package manager

import (
	"bytes"
	"context"
	"io"

	// Packages
	otel "github.com/mutablelogic/go-client/pkg/otel"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	types "github.com/mutablelogic/go-server/pkg/types"
	upload "github.com/mutablelogic/go-upload"
	digest "github.com/mutablelogic/go-upload/pkg/digest"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

type merged struct {
	url  string
	hash string
	size int64
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// merge assembles the parts of a processing session into the final object
// and finalizes the session and content record. It runs detached from the
// request which completed the upload, bounded by the merge timeout.
func (manager *Manager) merge(session *schema.Session) {
	defer manager.untrack(session.UploadId)

	ctx, cancel := context.WithTimeout(context.Background(), manager.mergeTimeout)
	defer cancel()

	var err error
	child, endFunc := otel.StartSpan(manager.tracer, ctx, spanManagerName("Merge"))
	defer func() { endFunc(err) }()

	// Limit the number of merges buffering parts at once
	if err = manager.sem.Acquire(child, 1); err != nil {
		manager.fail(child, session, httpresponse.ErrInternalError.With("timed out waiting to merge"))
		return
	}
	defer manager.sem.Release(1)

	result, err := manager.assemble(child, session)
	if err != nil {
		manager.fail(child, session, err)
		return
	}
	if err = manager.finalize(child, session, result); err != nil {
		manager.fail(child, session, err)
	}
}

// assemble fetches each part in order into one buffer, checking it against
// the recorded ETag, and writes the final object. Parts are deleted as they
// are consumed.
func (manager *Manager) assemble(ctx context.Context, session *schema.Session) (result *merged, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, httpresponse.ErrInternalError.Withf("panic: %v", r)
		}
	}()

	var buf bytes.Buffer
	buf.Grow(int(session.Size()))
	for n := schema.MinPartNumber; n <= session.TotalParts; n++ {
		part, exists := session.Parts[n]
		if !exists {
			return nil, httpresponse.ErrInternalError.Withf("part %d missing from upload", n)
		}
		key := session.PartKey(n)
		data, err := manager.fetch(ctx, key)
		if err != nil {
			return nil, httpresponse.ErrInternalError.Withf("part %d: %v", n, err)
		} else if digest.ETag(data) != part.ETag {
			return nil, httpresponse.ErrInternalError.Withf("part %d: checksum mismatch", n)
		} else if _, err := buf.Write(data); err != nil {
			return nil, httpresponse.ErrInternalError.Withf("part %d: %v", n, err)
		}
		manager.remove(ctx, key)
	}

	// Write the final object
	if err := manager.put(ctx, session.StorageKey, buf.Bytes(),
		upload.WithContentType(session.ContentType),
		upload.WithMeta("upload", session.UploadId),
		upload.WithMeta("filename", session.FileName),
	); err != nil {
		return nil, httpresponse.ErrInternalError.Withf("write %q: %v", session.StorageKey, err)
	}

	// Remove any parts beyond those merged
	for _, n := range session.PartNumbers() {
		if n > session.TotalParts {
			manager.remove(ctx, session.PartKey(n))
		}
	}

	// Return success
	return &merged{
		url:  manager.storage.PublicURL(session.StorageKey),
		hash: manager.hash.Sum(buf.Bytes()),
		size: int64(buf.Len()),
	}, nil
}

// finalize records the outcome of a successful merge on the session and
// then the content record. The final object is removed if the session
// cannot be completed, so a failed upload never leaves a merged object.
func (manager *Manager) finalize(ctx context.Context, session *schema.Session, result *merged) error {
	now := manager.now()
	if _, err := manager.update(ctx, session.UploadId, func(session *schema.Session) error {
		session.Status = schema.StatusCompleted
		session.Url = result.url
		session.Error = ""
		session.CompletedAt = types.Ptr(now)
		return nil
	}); err != nil {
		manager.remove(ctx, session.StorageKey)
		return err
	}

	// The session is terminal from here, so a content record which cannot
	// be updated is logged rather than failing the upload
	if _, err := manager.catalog.UpdateContent(ctx, session.ContentId, schema.ContentUpdate{
		Status: types.Ptr(schema.StatusCompleted),
		Url:    types.Ptr(result.url),
		Hash:   types.Ptr(result.hash),
		Size:   types.Ptr(result.size),
	}); err != nil {
		manager.logger.Error().Err(err).Uint64("content", session.ContentId).Msg("content record not marked as completed")
	}

	manager.metrics.merged(ctx, schema.StatusCompleted)
	manager.logger.Info().
		Str("upload", session.UploadId).
		Str("key", session.StorageKey).
		Int64("size", result.size).
		Uint64("content", session.ContentId).
		Msg("upload completed")

	// Return success
	return nil
}

// fail marks the session and its content record as failed and removes any
// temporary parts which remain. It runs with a fresh deadline so that a
// merge timeout is still recorded.
func (manager *Manager) fail(ctx context.Context, session *schema.Session, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), manager.storageTimeout)
	defer cancel()

	msg := cause.Error()
	manager.logger.Error().Err(cause).Str("upload", session.UploadId).Str("key", session.StorageKey).Msg("upload failed")

	// Parts are deleted whether or not they were consumed
	for _, n := range session.PartNumbers() {
		manager.remove(ctx, session.PartKey(n))
	}

	// Session
	if _, err := manager.update(ctx, session.UploadId, func(session *schema.Session) error {
		if session.Status.Terminal() {
			return errUnchanged
		}
		session.Status = schema.StatusFailed
		session.Error = msg
		return nil
	}); err != nil {
		manager.logger.Error().Err(err).Str("upload", session.UploadId).Msg("session not marked as failed")
	}

	// Content record
	if session.ContentId != 0 {
		if _, err := manager.catalog.UpdateContent(ctx, session.ContentId, schema.ContentUpdate{
			Status: types.Ptr(schema.StatusFailed),
			Url:    types.Ptr(""),
			Hash:   types.Ptr(""),
			Size:   types.Ptr(int64(0)),
			Error:  types.Ptr(msg),
		}); err != nil {
			manager.logger.Error().Err(err).Uint64("content", session.ContentId).Msg("content record not marked as failed")
		}
	}

	manager.metrics.merged(ctx, schema.StatusFailed)
}

// fetch reads a whole object with the storage timeout applied
func (manager *Manager) fetch(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, manager.storageTimeout)
	defer cancel()
	r, _, err := manager.storage.ReadObject(ctx, key)
	if err != nil {
		return nil, storageErr(err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, storageErr(err)
	}
	return data, nil
}
