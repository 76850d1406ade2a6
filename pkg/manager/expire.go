package manager

import (
	"context"
	"errors"
	"time"

	// Packages
	otel "github.com/mutablelogic/go-client/pkg/otel"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const minExpireInterval = time.Second

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Run removes idle sessions periodically until the context is cancelled.
func (manager *Manager) Run(ctx context.Context) error {
	interval := max(manager.sessionTTL/10, minExpireInterval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n, err := manager.Expire(ctx); err != nil {
				manager.logger.Warn().Err(err).Msg("expire sessions")
			} else if n > 0 {
				manager.logger.Info().Int("count", n).Msg("expired sessions")
			}
		}
	}
}

// Expire removes sessions which have not been updated within the session
// TTL and returns how many were removed. Uploading sessions are aborted,
// finished sessions are forgotten, and processing sessions with no merge
// running in this process are marked as failed.
func (manager *Manager) Expire(ctx context.Context) (_ int, err error) {
	child, endFunc := otel.StartSpan(manager.tracer, ctx, spanManagerName("Expire"))
	defer func() { endFunc(err) }()

	sessions, err := manager.sessions.List(child)
	if err != nil {
		return 0, err
	}

	var result error
	var count int
	cutoff := manager.now().Add(-manager.sessionTTL)
	for _, session := range sessions {
		if !session.UpdatedAt.Before(cutoff) {
			continue
		}
		switch {
		case session.Status == schema.StatusUploading:
			if err := manager.Abort(child, session.UploadId); errors.Is(err, httpresponse.ErrNotFound) || errors.Is(err, httpresponse.ErrConflict) {
				continue
			} else if err != nil {
				result = errors.Join(result, err)
			}
		case session.Status == schema.StatusProcessing:
			if manager.isMerging(session.UploadId) {
				continue
			}
			manager.fail(child, session, httpresponse.ErrInternalError.With("merge did not finish"))
		default:
			if err := manager.sessions.Delete(child, session.UploadId); errors.Is(err, httpresponse.ErrNotFound) {
				continue
			} else if err != nil {
				result = errors.Join(result, err)
				continue
			}
		}
		count++
		manager.metrics.expired.Add(child, 1)
		manager.logger.Debug().Str("upload", session.UploadId).Str("status", string(session.Status)).Msg("session expired")
	}

	// Return the count and any errors
	return count, result
}
