package backend

import (
	"context"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	// Packages
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
	blob "gocloud.dev/blob"
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// SignedURL returns a presigned URL for GET or PUT access to a key
func (b *blobbackend) SignedURL(ctx context.Context, key, method string, ttl time.Duration) (string, error) {
	sk, err := b.storageKey(key)
	if err != nil {
		return "", err
	}
	switch method = strings.ToUpper(method); method {
	case "":
		method = http.MethodGet
	case http.MethodGet, http.MethodPut:
		// no-op
	default:
		return "", httpresponse.ErrBadRequest.Withf("unsupported signing method %q", method)
	}
	if ttl <= 0 {
		ttl = schema.DefaultPresignTTL
	} else if ttl > schema.MaxPresignTTL {
		return "", httpresponse.ErrBadRequest.Withf("expiry %v exceeds maximum %v", ttl, schema.MaxPresignTTL)
	}

	// Sign the URL
	signed, err := b.bucket.SignedURL(ctx, sk, &blob.SignedURLOptions{
		Expiry: ttl,
		Method: method,
	})
	if err != nil {
		return "", blobErr(err, b.Bucket()+":"+key)
	}
	return signed, nil
}

// PublicURL returns the access URL for a key. With a public base URL the key
// is appended to it; otherwise the URL is derived from the storage location.
func (b *blobbackend) PublicURL(key string) string {
	sk, err := b.storageKey(key)
	if err != nil {
		sk = strings.TrimPrefix(key, "/")
	}
	switch {
	case b.publicURL != nil:
		return b.publicURL.JoinPath(sk).String()
	case b.url.Scheme == "s3" && b.endpoint != "":
		return strings.TrimSuffix(b.endpoint, "/") + "/" + b.Bucket() + "/" + escapeKey(sk)
	case b.url.Scheme == "s3":
		region := b.url.Query().Get("region")
		if region == "" {
			region = defaultRegion
		}
		return "https://" + b.Bucket() + ".s3." + region + ".amazonaws.com/" + escapeKey(sk)
	case b.url.Scheme == "file":
		return (&url.URL{Scheme: "file", Host: b.Bucket(), Path: "/" + path.Clean(sk)}).String()
	default:
		return (&url.URL{Scheme: b.url.Scheme, Host: b.Bucket(), Path: "/" + sk}).String()
	}
}

// Ping returns an error if the bucket is not accessible
func (b *blobbackend) Ping(ctx context.Context) error {
	if ok, err := b.bucket.IsAccessible(ctx); err != nil {
		return blobErr(err, b.Bucket())
	} else if !ok {
		return httpresponse.ErrGatewayError.Withf("bucket %q is not accessible", b.Bucket())
	}
	return nil
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func escapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}
