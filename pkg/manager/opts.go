package manager

import (
	"context"
	"time"

	// Packages
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	upload "github.com/mutablelogic/go-upload"
	backend "github.com/mutablelogic/go-upload/pkg/backend"
	digest "github.com/mutablelogic/go-upload/pkg/digest"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
	zerolog "github.com/rs/zerolog"
	metric "go.opentelemetry.io/otel/metric"
	trace "go.opentelemetry.io/otel/trace"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Opt is a functional option for upload manager configuration.
type Opt func(*opts) error

type opts struct {
	tracer           trace.Tracer
	meter            metric.Meter
	logger           zerolog.Logger
	storage          upload.Storage
	sessions         upload.SessionStore
	catalog          upload.ContentStore
	hash             digest.Algorithm
	keyPrefix        string
	maxPartSize      int64
	storageTimeout   time.Duration
	mergeTimeout     time.Duration
	mergeConcurrency int64
	sessionTTL       time.Duration
	now              func() time.Time
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	defaultMaxPartSize      = 100 << 20
	defaultMergeConcurrency = 4
	abortConcurrency        = 8
)

////////////////////////////////////////////////////////////////////////////////
// OPTIONS

// WithTracer sets the tracer used for tracing operations.
func WithTracer(tracer trace.Tracer) Opt {
	return func(o *opts) error {
		o.tracer = tracer
		return nil
	}
}

// WithMeter sets the meter used for upload counters.
func WithMeter(meter metric.Meter) Opt {
	return func(o *opts) error {
		o.meter = meter
		return nil
	}
}

// WithLogger sets the logger for merge outcomes and cleanup failures.
func WithLogger(logger zerolog.Logger) Opt {
	return func(o *opts) error {
		o.logger = logger
		return nil
	}
}

// WithBackend opens a blob backend (mem://, file://, s3://) for parts and
// merged objects. The url host is the bucket name.
func WithBackend(ctx context.Context, url string, backendOpts ...backend.Opt) Opt {
	return func(o *opts) error {
		if o.storage != nil {
			return httpresponse.ErrConflict.With("storage already set")
		}
		b, err := backend.NewBlobBackend(ctx, url, backendOpts...)
		if err != nil {
			return err
		}
		o.storage = b
		return nil
	}
}

// WithStorage sets the object storage directly.
func WithStorage(storage upload.Storage) Opt {
	return func(o *opts) error {
		if o.storage != nil {
			return httpresponse.ErrConflict.With("storage already set")
		}
		o.storage = storage
		return nil
	}
}

// WithSessionStore replaces the default in-memory session store.
func WithSessionStore(store upload.SessionStore) Opt {
	return func(o *opts) error {
		o.sessions = store
		return nil
	}
}

// WithContentStore replaces the default in-memory content catalog.
func WithContentStore(store upload.ContentStore) Opt {
	return func(o *opts) error {
		o.catalog = store
		return nil
	}
}

// WithHash sets the algorithm used for content hashes and dedup lookups.
func WithHash(name string) Opt {
	return func(o *opts) error {
		alg, err := digest.Parse(name)
		if err != nil {
			return err
		}
		o.hash = alg
		return nil
	}
}

// WithKeyPrefix sets the prefix for storage keys of new uploads.
func WithKeyPrefix(prefix string) Opt {
	return func(o *opts) error {
		o.keyPrefix = prefix
		return nil
	}
}

// WithMaxPartSize sets the largest accepted part, in bytes.
func WithMaxPartSize(size int64) Opt {
	return func(o *opts) error {
		if size <= 0 {
			return httpresponse.ErrBadRequest.Withf("invalid part size: %d", size)
		}
		o.maxPartSize = size
		return nil
	}
}

// WithStorageTimeout bounds each individual storage call.
func WithStorageTimeout(d time.Duration) Opt {
	return func(o *opts) error {
		if d <= 0 {
			return httpresponse.ErrBadRequest.Withf("invalid storage timeout: %v", d)
		}
		o.storageTimeout = d
		return nil
	}
}

// WithMergeTimeout bounds a whole background merge.
func WithMergeTimeout(d time.Duration) Opt {
	return func(o *opts) error {
		if d <= 0 {
			return httpresponse.ErrBadRequest.Withf("invalid merge timeout: %v", d)
		}
		o.mergeTimeout = d
		return nil
	}
}

// WithMergeConcurrency limits the number of merges which run at once.
func WithMergeConcurrency(n int) Opt {
	return func(o *opts) error {
		if n <= 0 {
			return httpresponse.ErrBadRequest.Withf("invalid merge concurrency: %d", n)
		}
		o.mergeConcurrency = int64(n)
		return nil
	}
}

// WithSessionTTL sets how long an idle session is kept before it expires.
func WithSessionTTL(d time.Duration) Opt {
	return func(o *opts) error {
		if d <= 0 {
			return httpresponse.ErrBadRequest.Withf("invalid session ttl: %v", d)
		}
		o.sessionTTL = d
		return nil
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Opt {
	return func(o *opts) error {
		if now == nil {
			return httpresponse.ErrBadRequest.With("nil clock")
		}
		o.now = now
		return nil
	}
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func applyOpts(opt []Opt) (opts, error) {
	// Set defaults
	o := opts{
		logger:           zerolog.Nop(),
		hash:             digest.Default,
		keyPrefix:        schema.DefaultKeyPrefix,
		maxPartSize:      defaultMaxPartSize,
		storageTimeout:   schema.DefaultStorageTimeout,
		mergeTimeout:     schema.DefaultMergeTimeout,
		mergeConcurrency: defaultMergeConcurrency,
		sessionTTL:       schema.DefaultSessionTTL,
		now:              time.Now,
	}

	// Apply options
	for _, fn := range opt {
		if err := fn(&o); err != nil {
			return opts{}, err
		}
	}

	// Return success
	return o, nil
}
