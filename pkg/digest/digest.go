// Package digest computes part ETags and content hashes for uploaded objects.
package digest

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"strings"

	// Packages
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	blake3 "github.com/zeebo/blake3"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Algorithm names a content hash function
type Algorithm string

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	MD5    Algorithm = "md5"
	SHA256 Algorithm = "sha256"
	BLAKE3 Algorithm = "blake3"

	// Default is used for dedup fingerprints unless configured otherwise
	Default = MD5
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Parse returns the algorithm for a name, or httpresponse.ErrBadRequest
func Parse(name string) (Algorithm, error) {
	switch alg := Algorithm(strings.ToLower(strings.TrimSpace(name))); alg {
	case "":
		return Default, nil
	case MD5, SHA256, BLAKE3:
		return alg, nil
	default:
		return "", httpresponse.ErrBadRequest.Withf("unsupported hash algorithm: %q", name)
	}
}

// New returns a new hash for the algorithm
func (a Algorithm) New() hash.Hash {
	switch a {
	case SHA256:
		return sha256.New()
	case BLAKE3:
		return blake3.New()
	default:
		return md5.New()
	}
}

// Size returns the digest length in bytes
func (a Algorithm) Size() int {
	switch a {
	case SHA256:
		return sha256.Size
	case BLAKE3:
		return 32
	default:
		return md5.Size
	}
}

// Sum returns the hex digest of data
func (a Algorithm) Sum(data []byte) string {
	h := a.New()
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Reader returns the hex digest of everything read from r
func (a Algorithm) Reader(r io.Reader) (string, int64, error) {
	h := a.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// Validate checks a hex digest has the right length for the algorithm
// and returns it in lowercase
func (a Algorithm) Validate(digest string) (string, error) {
	digest = strings.ToLower(strings.TrimSpace(digest))
	if len(digest) != a.Size()*2 {
		return "", httpresponse.ErrBadRequest.Withf("malformed %s hash: %q", a, digest)
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return "", httpresponse.ErrBadRequest.Withf("malformed %s hash: %q", a, digest)
	}
	return digest, nil
}

func (a Algorithm) String() string {
	return string(a)
}

// ETag returns the quoted hex MD5 of a part, as S3 reports it
func ETag(data []byte) string {
	sum := md5.Sum(data)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

// NormaliseETag strips quotes and weak prefixes so ETags supplied by
// clients can be compared with recorded ones
func NormaliseETag(etag string) string {
	etag = strings.TrimSpace(etag)
	etag = strings.TrimPrefix(etag, "W/")
	return strings.ToLower(strings.Trim(etag, `"`))
}
