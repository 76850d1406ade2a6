package manager

import (
	"context"
	"errors"
	"sync"

	// Packages
	otel "github.com/mutablelogic/go-client/pkg/otel"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	upload "github.com/mutablelogic/go-upload"
	catalog "github.com/mutablelogic/go-upload/pkg/catalog"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
	session "github.com/mutablelogic/go-upload/pkg/session"
	noop "go.opentelemetry.io/otel/metric/noop"
	semaphore "golang.org/x/sync/semaphore"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Manager coordinates chunked uploads: it accepts parts, records session
// state, merges parts into a final object in the background and keeps the
// content catalog in step.
type Manager struct {
	opts
	metrics *metrics
	sem     *semaphore.Weighted

	// Background merges
	mu      sync.Mutex
	wg      sync.WaitGroup
	closed  bool
	merging map[string]struct{}
}

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// New creates a new upload manager. A storage backend is required; the
// session store and content catalog default to in-memory implementations.
func New(ctx context.Context, opts ...Opt) (*Manager, error) {
	self := new(Manager)

	// Apply options
	if opt, err := applyOpts(opts); err != nil {
		return nil, err
	} else {
		self.opts = opt
	}

	// Storage is required
	if self.storage == nil {
		return nil, httpresponse.ErrBadRequest.With("missing storage backend")
	}
	if self.sessions == nil {
		self.sessions = session.NewMemory()
	}
	if self.catalog == nil {
		self.catalog = catalog.NewMemory()
	}

	// Metrics
	if self.meter == nil {
		self.meter = noop.NewMeterProvider().Meter(schema.SchemaName)
	}
	if m, err := newMetrics(self.meter); err != nil {
		return nil, err
	} else {
		self.metrics = m
	}

	// Merge limits
	self.sem = semaphore.NewWeighted(self.mergeConcurrency)
	self.merging = make(map[string]struct{})

	// Return success
	return self, nil
}

// Close waits for running merges to finish, then closes the storage
// backend and the session store. New merges are refused once Close has
// been called.
func (manager *Manager) Close() error {
	manager.mu.Lock()
	manager.closed = true
	manager.mu.Unlock()

	// Wait for merges
	manager.wg.Wait()

	// Close stores
	var result error
	if err := manager.sessions.Close(); err != nil {
		result = errors.Join(result, err)
	}
	if err := manager.storage.Close(); err != nil {
		result = errors.Join(result, err)
	}

	// Return any errors
	return result
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Storage returns the storage backend
func (manager *Manager) Storage() upload.Storage {
	return manager.storage
}

// MaxPartSize returns the largest part accepted, in bytes
func (manager *Manager) MaxPartSize() int64 {
	return manager.maxPartSize
}

// Wait blocks until all background merges which have been started are done.
func (manager *Manager) Wait() {
	manager.wg.Wait()
}

// Health reports whether the storage backend is reachable.
func (manager *Manager) Health(ctx context.Context) (_ *schema.HealthResponse, err error) {
	child, endFunc := otel.StartSpan(manager.tracer, ctx, spanManagerName("Health"))
	defer func() { endFunc(err) }()

	response := schema.HealthResponse{
		Bucket:  manager.storage.Bucket(),
		Healthy: true,
	}

	ctx, cancel := context.WithTimeout(child, manager.storageTimeout)
	defer cancel()
	if err := manager.storage.Ping(ctx); err != nil {
		response.Healthy = false
		response.Error = err.Error()
		return &response, storageErr(err)
	}

	// Return success
	return &response, nil
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// track registers a merge for the upload so that Close waits for it. It
// returns false if the manager is closed or a merge is already running.
func (manager *Manager) track(uploadId string) bool {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	if manager.closed {
		return false
	}
	if _, exists := manager.merging[uploadId]; exists {
		return false
	}
	manager.merging[uploadId] = struct{}{}
	manager.wg.Add(1)
	return true
}

func (manager *Manager) untrack(uploadId string) {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	delete(manager.merging, uploadId)
	manager.wg.Done()
}

func (manager *Manager) isMerging(uploadId string) bool {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	_, exists := manager.merging[uploadId]
	return exists
}

func spanManagerName(op string) string {
	return schema.SchemaName + ".manager." + op
}
