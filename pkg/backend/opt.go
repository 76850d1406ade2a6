package backend

import (
	"net/url"
	"path/filepath"
	"strings"

	// Packages
	aws "github.com/aws/aws-sdk-go-v2/aws"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	trace "go.opentelemetry.io/otel/trace"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

type opt struct {
	url       *url.URL
	awsConfig *aws.Config
	endpoint  string       // S3-compatible endpoint, forces path-style addressing
	anonymous bool         // forces anonymous credentials
	accessKey string       // static credentials, when set
	secretKey string
	publicURL *url.URL     // base URL for object access URLs
	tracer    trace.Tracer // when set, AWS SDK middleware is injected
}

type Opt func(*opt) error

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	defaultRegion = "us-east-1"
)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

func apply(url *url.URL, opts ...Opt) (*opt, error) {
	// Apply options
	o := opt{url: url}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}
	// Return success
	return &o, nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// WithEndpoint sets the S3 endpoint for S3-compatible services such as MinIO
func WithEndpoint(endpoint string) Opt {
	return func(o *opt) error {
		if endpoint == "" {
			return nil
		} else if u, err := url.Parse(endpoint); err != nil {
			return httpresponse.ErrBadRequest.With(err)
		} else if u.Scheme != "http" && u.Scheme != "https" {
			return httpresponse.ErrBadRequest.Withf("endpoint must be http:// or https://, got %s://", u.Scheme)
		} else {
			o.endpoint = strings.TrimSuffix(u.String(), "/")
		}
		return nil
	}
}

// WithRegion sets the S3 region
func WithRegion(region string) Opt {
	return func(o *opt) error {
		o.set("region", region)
		return nil
	}
}

// WithCredentials sets static S3 credentials
func WithCredentials(accessKey, secretKey string) Opt {
	return func(o *opt) error {
		if accessKey == "" {
			return nil
		} else if secretKey == "" {
			return httpresponse.ErrBadRequest.With("missing secret key")
		}
		o.accessKey, o.secretKey = accessKey, secretKey
		return nil
	}
}

// WithAnonymous forces use of anonymous credentials.
// Use this for S3-compatible services that don't require authentication.
func WithAnonymous() Opt {
	return func(o *opt) error {
		o.anonymous = true
		return nil
	}
}

// WithCreateDir creates the directory for file:// URLs if it doesn't exist
func WithCreateDir() Opt {
	return func(o *opt) error {
		o.set("create_dir", "true")
		return nil
	}
}

// WithURLSigner enables presigned URLs for file:// URLs. Signed URLs start
// with base and are signed with the secret in the key file.
func WithURLSigner(base, keyPath string) Opt {
	return func(o *opt) error {
		if _, err := url.Parse(base); err != nil || base == "" {
			return httpresponse.ErrBadRequest.Withf("invalid signing base URL %q", base)
		} else if !filepath.IsAbs(keyPath) {
			return httpresponse.ErrBadRequest.Withf("signing key path %q must be absolute", keyPath)
		}
		o.set("base_url", base)
		o.set("secret_key_path", keyPath)
		return nil
	}
}

// WithPublicURL sets the base URL used to derive object access URLs
func WithPublicURL(base string) Opt {
	return func(o *opt) error {
		if base == "" {
			o.publicURL = nil
		} else if u, err := url.Parse(base); err != nil {
			return httpresponse.ErrBadRequest.With(err)
		} else if u.Scheme == "" || u.Host == "" {
			return httpresponse.ErrBadRequest.Withf("public URL %q must be absolute", base)
		} else {
			u.Path = strings.TrimSuffix(u.Path, "/")
			o.publicURL = u
		}
		return nil
	}
}

// WithTracer sets the OpenTelemetry tracer for the backend.
// When set on an s3:// backend, AWS SDK middleware is injected so each S3 API
// call produces a child span.
func WithTracer(tracer trace.Tracer) Opt {
	return func(o *opt) error {
		o.tracer = tracer
		return nil
	}
}

// WithAWSConfig provides an AWS SDK v2 Config directly.
// When provided for s3:// URLs, this config is used instead of the default
// configuration chain.
func WithAWSConfig(cfg aws.Config) Opt {
	return func(o *opt) error {
		o.awsConfig = &cfg
		return nil
	}
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func (o *opt) set(key, value string) {
	if o.url == nil {
		return
	}
	q := o.url.Query()
	if value == "" {
		q.Del(key)
	} else {
		q.Set(key, value)
	}
	o.url.RawQuery = q.Encode()
}
