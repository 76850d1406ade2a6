package upload

import (
	"maps"

	// Packages
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

type opt struct {
	contenttype   string
	contentlength int64
	meta          schema.ObjectMeta
}

// Opt represents a function that modifies the options for PutObject
type Opt func(*opt) error

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// ApplyOpts applies the given options to the opt struct
func ApplyOpts(opts ...Opt) (*opt, error) {
	var o opt

	// Apply the options
	for _, fn := range opts {
		if err := fn(&o); err != nil {
			return nil, err
		}
	}

	// Return success
	return &o, nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS - GET

func (o *opt) ContentType() string {
	return o.contenttype
}

// ContentLength returns the expected length, or -1 if unknown
func (o *opt) ContentLength() int64 {
	if o.contentlength <= 0 {
		return -1
	}
	return o.contentlength
}

func (o *opt) Meta() schema.ObjectMeta {
	if len(o.meta) == 0 {
		return nil
	}
	return maps.Clone(o.meta)
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS - SET

// Apply content type to the PutObject request
func WithContentType(v string) Opt {
	return func(o *opt) error {
		o.contenttype = v
		return nil
	}
}

// Apply content length to the PutObject request
func WithContentLength(v int64) Opt {
	return func(o *opt) error {
		if v < 0 {
			return httpresponse.ErrBadRequest.Withf("invalid content length: %d", v)
		}
		o.contentlength = v
		return nil
	}
}

// Apply additional metadata to the PutObject request
func WithMeta(k, v string) Opt {
	return func(o *opt) error {
		if k == "" {
			return httpresponse.ErrBadRequest.With("missing metadata key")
		}
		if o.meta == nil {
			o.meta = make(schema.ObjectMeta)
		}
		o.meta[k] = v
		return nil
	}
}
