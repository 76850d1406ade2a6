package backend

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	// Packages
	aws "github.com/aws/aws-sdk-go-v2/aws"
	config "github.com/aws/aws-sdk-go-v2/config"
	credentials "github.com/aws/aws-sdk-go-v2/credentials"
	s3 "github.com/aws/aws-sdk-go-v2/service/s3"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	types "github.com/mutablelogic/go-server/pkg/types"
	upload "github.com/mutablelogic/go-upload"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
	otelaws "go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
	blob "gocloud.dev/blob"
	s3blob "gocloud.dev/blob/s3blob"

	// Drivers
	_ "gocloud.dev/blob/fileblob" // file:// URLs
	_ "gocloud.dev/blob/memblob"  // mem:// URLs
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

type blobbackend struct {
	*opt
	bucket       *blob.Bucket
	bucketPrefix string // key prefix for bucket operations (empty for file://)
}

var _ upload.Storage = (*blobbackend)(nil)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// NewBlobBackend creates a new blob backend using Go CDK.
// Supported URL schemes: s3://, file://, mem://
// Examples:
//   - "s3://my-bucket/prefix?region=us-east-1"
//   - "file://my-bucket/path/to/directory"
//   - "mem://my-bucket"
//
// The URL host is the bucket name. For s3 and mem the URL path is a key
// prefix; for file it is the root directory.
func NewBlobBackend(ctx context.Context, u string, opts ...Opt) (*blobbackend, error) {
	self := new(blobbackend)

	// Set the options
	if url, err := url.Parse(u); err != nil {
		return nil, httpresponse.ErrBadRequest.With(err)
	} else if opt, err := apply(url, opts...); err != nil {
		return nil, err
	} else {
		self.opt = opt
	}

	// Validate the bucket name
	if !types.IsIdentifier(self.url.Host) {
		return nil, httpresponse.ErrBadRequest.Withf("bucket name %q must be a valid identifier", self.url.Host)
	}
	if self.url.Scheme != "file" {
		self.bucketPrefix = strings.Trim(self.url.Path, "/")
	}

	// Open the bucket
	var bucket *blob.Bucket
	var err error
	switch self.url.Scheme {
	case "s3":
		var client *s3.Client
		if client, err = self.s3client(ctx); err == nil {
			bucket, err = s3blob.OpenBucket(ctx, client, self.url.Host, nil)
		}
	case "file":
		if !path.IsAbs(self.url.Path) || self.url.Path == "/" {
			return nil, httpresponse.ErrBadRequest.Withf("file backend %q requires an absolute directory", u)
		}
		// The path is the bucket root directory
		openURL := &url.URL{Scheme: "file", Path: self.url.Path, RawQuery: self.fileQuery().Encode()}
		bucket, err = blob.OpenBucket(ctx, openURL.String())
	case "mem":
		bucket, err = blob.OpenBucket(ctx, "mem://")
	default:
		return nil, httpresponse.ErrBadRequest.Withf("unsupported storage scheme %q", self.url.Scheme)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open bucket: %w", err)
	}
	self.bucket = bucket

	// Return success
	return self, nil
}

// Close the backend
func (b *blobbackend) Close() error {
	var result error
	if b.bucket != nil {
		result = errors.Join(result, b.bucket.Close())
		b.bucket = nil
	}

	// Return any errors
	return result
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Bucket returns the bucket name (the host component of the URL)
func (b *blobbackend) Bucket() string {
	return b.url.Host
}

// URL returns the storage URL with credential parameters removed
func (b *blobbackend) URL() *url.URL {
	u := *b.url
	q := u.Query()
	for _, key := range []string{"secret_key_path", "access_key", "secret_key"} {
		q.Del(key)
	}
	u.RawQuery = q.Encode()
	return &u
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// storageKey returns the blob storage key for a key, prepending the bucket
// prefix. Keys which escape the bucket root are rejected.
func (b *blobbackend) storageKey(key string) (string, error) {
	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	if key == "" {
		return "", httpresponse.ErrBadRequest.With("missing object key")
	}
	if clean := path.Clean(key); clean != key || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", httpresponse.ErrBadRequest.Withf("invalid object key %q", key)
	}
	if b.bucketPrefix != "" {
		return b.bucketPrefix + "/" + key, nil
	}
	return key, nil
}

// fileQuery returns the query parameters understood by the fileblob driver
func (b *blobbackend) fileQuery() url.Values {
	q := make(url.Values)
	for key, values := range b.url.Query() {
		switch key {
		case "create_dir", "base_url", "secret_key_path", "metadata":
			q[key] = values
		}
	}
	return q
}

// s3client returns an S3 client configured from the options, or from the
// default AWS configuration chain
func (b *blobbackend) s3client(ctx context.Context) (*s3.Client, error) {
	var cfg aws.Config
	if b.awsConfig != nil {
		cfg = b.awsConfig.Copy()
	} else {
		var opts []func(*config.LoadOptions) error
		if region := b.url.Query().Get("region"); region != "" {
			opts = append(opts, config.WithRegion(region))
		}
		if b.accessKey != "" {
			opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(b.accessKey, b.secretKey, "")))
		}
		if loaded, err := config.LoadDefaultConfig(ctx, opts...); err != nil {
			return nil, err
		} else {
			cfg = loaded
		}
	}
	if b.anonymous {
		cfg.Credentials = aws.AnonymousCredentials{}
	}
	if cfg.Region == "" {
		cfg.Region = defaultRegion
	}

	// Instrument S3 calls when tracing
	if b.tracer != nil {
		otelaws.AppendMiddlewares(&cfg.APIOptions)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if b.endpoint != "" {
			o.BaseEndpoint = aws.String(b.endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func (b *blobbackend) attrsToObject(key string, attrs *blob.Attributes) *schema.Object {
	obj := &schema.Object{
		Bucket:      b.Bucket(),
		Key:         key,
		Size:        attrs.Size,
		ModTime:     attrs.ModTime,
		ContentType: attrs.ContentType,
		ETag:        attrs.ETag,
	}
	if len(attrs.Metadata) > 0 {
		obj.Meta = attrs.Metadata
	}
	return obj
}
