package manager

import (
	"bytes"
	"context"
	"errors"
	"strconv"

	// Packages
	uuid "github.com/google/uuid"
	otel "github.com/mutablelogic/go-client/pkg/otel"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	upload "github.com/mutablelogic/go-upload"
	digest "github.com/mutablelogic/go-upload/pkg/digest"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
	errgroup "golang.org/x/sync/errgroup"
)

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

// errUnchanged is returned from an update function to leave the session as is
var errUnchanged = errors.New("unchanged")

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Init starts a new upload session and returns its identifier and the key
// the merged object will be stored under.
func (manager *Manager) Init(ctx context.Context, req schema.InitRequest) (_ *schema.InitResponse, err error) {
	child, endFunc := otel.StartSpan(manager.tracer, ctx, spanManagerName("Init"))
	defer func() { endFunc(err) }()

	if req.FileName == "" {
		return nil, httpresponse.ErrBadRequest.With("missing filename")
	}

	now := manager.now()
	uploadId := uuid.NewString()
	session := &schema.Session{
		UploadId:    uploadId,
		StorageKey:  objectKey(manager.keyPrefix, now, req.FileName, uploadId),
		Bucket:      manager.storage.Bucket(),
		FileName:    req.FileName,
		ContentType: req.ContentType,
		Parts:       make(map[int]schema.Part),
		Status:      schema.StatusUploading,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if session.ContentType == "" {
		session.ContentType = schema.MimeType(req.FileName)
	}
	if err := manager.sessions.Put(child, session); err != nil {
		return nil, err
	}

	manager.metrics.sessions.Add(child, 1)
	manager.logger.Debug().Str("upload", uploadId).Str("key", session.StorageKey).Msg("upload started")

	// Return success
	return &schema.InitResponse{
		UploadId:   session.UploadId,
		StorageKey: session.StorageKey,
		Bucket:     session.Bucket,
	}, nil
}

// UploadPart stores one part of an upload as a temporary object and records
// its ETag. Re-sending a part number overwrites the earlier part.
func (manager *Manager) UploadPart(ctx context.Context, uploadId string, n int, data []byte) (_ *schema.PartResponse, err error) {
	child, endFunc := otel.StartSpan(manager.tracer, ctx, spanManagerName("UploadPart"))
	defer func() { endFunc(err) }()

	// Check parameters
	if n < schema.MinPartNumber || n > schema.MaxPartNumber {
		return nil, httpresponse.ErrBadRequest.Withf("part number %d out of range [%d, %d]", n, schema.MinPartNumber, schema.MaxPartNumber)
	} else if int64(len(data)) > manager.maxPartSize {
		return nil, httpresponse.ErrBadRequest.Withf("part %d exceeds %d bytes", n, manager.maxPartSize)
	}

	// Session must be accepting parts
	session, err := manager.sessions.Get(child, uploadId)
	if err != nil {
		return nil, err
	} else if session.Status != schema.StatusUploading {
		return nil, httpresponse.ErrConflict.Withf("upload %q is %s", uploadId, session.Status)
	}

	// Store the part
	part := schema.Part{
		PartNumber: n,
		ETag:       digest.ETag(data),
		Size:       int64(len(data)),
	}
	key := session.PartKey(n)
	if err := manager.put(child, key, data,
		upload.WithContentType(schema.DefaultPartType),
		upload.WithMeta("upload", uploadId),
		upload.WithMeta("part", strconv.Itoa(n)),
	); err != nil {
		return nil, err
	}

	// Record the part
	if _, err := manager.update(child, uploadId, func(session *schema.Session) error {
		if session.Status != schema.StatusUploading {
			return httpresponse.ErrConflict.Withf("upload %q is %s", uploadId, session.Status)
		}
		if _, exists := session.Parts[n]; !exists {
			session.CompletedParts++
		}
		session.Parts[n] = part
		return nil
	}); errors.Is(err, httpresponse.ErrNotFound) {
		// Aborted or expired while the part was stored
		manager.remove(child, key)
		return nil, err
	} else if err != nil {
		return nil, err
	}

	manager.metrics.parts.Add(child, 1)
	manager.metrics.bytes.Add(child, part.Size)

	// Return success
	return &schema.PartResponse{
		PartNumber: part.PartNumber,
		ETag:       part.ETag,
		Size:       part.Size,
		Success:    true,
	}, nil
}

// Complete checks every part has been received, creates the content record
// and starts the merge in the background. Completing an upload which is
// already processing or finished returns the recorded outcome.
func (manager *Manager) Complete(ctx context.Context, uploadId string, req schema.CompleteRequest) (_ *schema.CompleteResponse, err error) {
	child, endFunc := otel.StartSpan(manager.tracer, ctx, spanManagerName("Complete"))
	defer func() { endFunc(err) }()

	session, err := manager.sessions.Get(child, uploadId)
	if err != nil {
		return nil, err
	} else if session.Status != schema.StatusUploading {
		return completeResponse(session), nil
	} else if err := validateComplete(session, req); err != nil {
		return nil, err
	}

	// Create the content record
	content, err := manager.catalog.CreateContent(child, schema.ContentMeta{
		Title:    session.FileName,
		Type:     schema.ContentTypeOf(session.ContentType),
		Key:      session.StorageKey,
		UploadId: session.UploadId,
	})
	if err != nil {
		return nil, err
	}

	// Move the session to processing
	total := len(req.ETags)
	session, err = manager.update(child, uploadId, func(session *schema.Session) error {
		if session.Status != schema.StatusUploading {
			return errUnchanged
		} else if err := validateComplete(session, req); err != nil {
			return err
		}
		session.Status = schema.StatusProcessing
		session.TotalParts = total
		session.CompletedParts = total
		session.ContentId = content.Id
		return nil
	})
	if err != nil || session.ContentId != content.Id {
		// Lost the race, or the session went away
		if _, err := manager.catalog.DeleteContent(context.WithoutCancel(child), content.Id); err != nil {
			manager.logger.Warn().Err(err).Uint64("content", content.Id).Msg("content record not removed")
		}
		if err != nil {
			return nil, err
		}
		return completeResponse(session), nil
	}

	// Merge in the background
	if !manager.track(uploadId) {
		err := httpresponse.ErrConflict.With("manager is closed")
		manager.fail(child, session, err)
		return nil, err
	}
	go manager.merge(session)

	// Return success
	return completeResponse(session), nil
}

// Abort deletes the temporary parts and the session of an upload which is
// still accepting parts.
func (manager *Manager) Abort(ctx context.Context, uploadId string) (err error) {
	child, endFunc := otel.StartSpan(manager.tracer, ctx, spanManagerName("Abort"))
	defer func() { endFunc(err) }()

	// Remove the session first so no more parts are recorded. A session
	// changed by a concurrent part is read again; one completed meanwhile
	// is left alone.
	var session *schema.Session
	for {
		if session, err = manager.sessions.Get(child, uploadId); err != nil {
			return err
		} else if session.Status != schema.StatusUploading {
			return httpresponse.ErrConflict.Withf("upload %q is %s", uploadId, session.Status)
		}
		if deleted, err := manager.sessions.CompareAndDelete(child, session); err != nil {
			return err
		} else if deleted {
			break
		}
		if err := child.Err(); err != nil {
			return err
		}
	}
	manager.metrics.aborts.Add(child, 1)

	// Delete the parts
	return manager.deleteParts(child, session)
}

// Status returns the state and progress of an upload.
func (manager *Manager) Status(ctx context.Context, uploadId string) (_ *schema.StatusResponse, err error) {
	child, endFunc := otel.StartSpan(manager.tracer, ctx, spanManagerName("Status"))
	defer func() { endFunc(err) }()

	session, err := manager.sessions.Get(child, uploadId)
	if err != nil {
		return nil, err
	}

	// Return success
	return &schema.StatusResponse{
		UploadId:  session.UploadId,
		Status:    session.Status,
		Progress:  session.Progress(),
		ContentId: session.ContentId,
		Url:       session.Url,
		Error:     session.Error,
	}, nil
}

// Session returns the full session state of an upload.
func (manager *Manager) Session(ctx context.Context, uploadId string) (*schema.Session, error) {
	return manager.sessions.Get(ctx, uploadId)
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// update applies fn to the latest copy of a session and writes it back with
// compare-and-swap, retrying when another writer got there first. The
// stored session is returned.
func (manager *Manager) update(ctx context.Context, uploadId string, fn func(*schema.Session) error) (*schema.Session, error) {
	for {
		current, err := manager.sessions.Get(ctx, uploadId)
		if err != nil {
			return nil, err
		}
		next := current.Clone()
		if next.Parts == nil {
			next.Parts = make(map[int]schema.Part)
		}
		if err := fn(next); errors.Is(err, errUnchanged) {
			return current, nil
		} else if err != nil {
			return nil, err
		} else if !current.Status.CanTransition(next.Status) {
			return nil, httpresponse.ErrConflict.Withf("upload %q cannot move from %s to %s", uploadId, current.Status, next.Status)
		}
		next.UpdatedAt = manager.now()
		if swapped, err := manager.sessions.CompareAndSwap(ctx, current, next); err != nil {
			return nil, err
		} else if swapped {
			return next, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

// deleteParts removes every recorded part of a session concurrently and
// returns the first error. A failed delete does not stop the others.
func (manager *Manager) deleteParts(ctx context.Context, session *schema.Session) error {
	var g errgroup.Group
	g.SetLimit(abortConcurrency)
	for _, n := range session.PartNumbers() {
		key := session.PartKey(n)
		g.Go(func() error {
			if err := manager.delete(ctx, key); err != nil {
				manager.logger.Warn().Err(err).Str("key", key).Msg("part not removed")
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// put writes an object with the storage timeout applied
func (manager *Manager) put(ctx context.Context, key string, data []byte, opts ...upload.Opt) error {
	ctx, cancel := context.WithTimeout(ctx, manager.storageTimeout)
	defer cancel()
	opts = append(opts, upload.WithContentLength(int64(len(data))))
	if _, err := manager.storage.PutObject(ctx, key, bytes.NewReader(data), opts...); err != nil {
		return storageErr(err)
	}
	return nil
}

// delete removes an object with the storage timeout applied
func (manager *Manager) delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, manager.storageTimeout)
	defer cancel()
	if err := manager.storage.DeleteObject(ctx, key); err != nil {
		return storageErr(err)
	}
	return nil
}

// remove deletes an object and logs any failure
func (manager *Manager) remove(ctx context.Context, key string) {
	if err := manager.delete(context.WithoutCancel(ctx), key); err != nil {
		manager.logger.Warn().Err(err).Str("key", key).Msg("object not removed")
	}
}

func validateComplete(session *schema.Session, req schema.CompleteRequest) error {
	if req.StorageKey != "" && req.StorageKey != session.StorageKey {
		return httpresponse.ErrBadRequest.Withf("key %q does not match upload", req.StorageKey)
	} else if len(req.ETags) == 0 {
		return httpresponse.ErrBadRequest.With("missing etags")
	} else if len(req.ETags) > schema.MaxPartNumber {
		return httpresponse.ErrBadRequest.Withf("too many parts: %d", len(req.ETags))
	}
	for i, etag := range req.ETags {
		n := i + schema.MinPartNumber
		part, exists := session.Parts[n]
		if !exists {
			return httpresponse.ErrBadRequest.Withf("part %d has not been uploaded", n)
		} else if digest.NormaliseETag(etag) != digest.NormaliseETag(part.ETag) {
			return httpresponse.ErrBadRequest.Withf("part %d etag mismatch", n)
		}
	}
	return nil
}

func completeResponse(session *schema.Session) *schema.CompleteResponse {
	return &schema.CompleteResponse{
		UploadId:  session.UploadId,
		Status:    session.Status,
		ContentId: session.ContentId,
	}
}

// storageErr wraps errors which are not already classified as a storage failure
func storageErr(err error) error {
	var code httpresponse.Err
	if errors.As(err, &code) {
		return err
	}
	return httpresponse.ErrGatewayError.With(err)
}
