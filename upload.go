package upload

import (
	"context"
	"io"
	"net/url"
	"time"

	// Packages
	schema "github.com/mutablelogic/go-upload/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// INTERFACES

// Storage is the object store holding temporary parts and merged objects
type Storage interface {
	io.Closer

	// Bucket returns the bucket name
	Bucket() string

	// URL returns the storage location, without credentials
	URL() *url.URL

	// PutObject writes an object, replacing any existing object with the same key
	PutObject(context.Context, string, io.Reader, ...Opt) (*schema.Object, error)

	// ReadObject opens an object for reading. Caller must close the reader.
	ReadObject(context.Context, string) (io.ReadCloser, *schema.Object, error)

	// DeleteObject removes an object. Deleting a missing object is not an error.
	DeleteObject(context.Context, string) error

	// Exists returns true if an object exists at the key
	Exists(context.Context, string) (bool, error)

	// SignedURL returns a presigned URL for the method (GET or PUT)
	SignedURL(context.Context, string, string, time.Duration) (string, error)

	// PublicURL returns the access URL for a key
	PublicURL(string) string

	// Ping checks the bucket is accessible
	Ping(context.Context) error
}

// SessionStore holds upload sessions. Updates are made with
// CompareAndSwap against the session version.
type SessionStore interface {
	io.Closer

	// Get returns a copy of the session, or httpresponse.ErrNotFound
	Get(context.Context, string) (*schema.Session, error)

	// Put stores the session unconditionally. The stored version is one
	// more than the version of the argument, which is updated to match.
	Put(context.Context, *schema.Session) error

	// Delete removes the session, or returns httpresponse.ErrNotFound
	Delete(context.Context, string) error

	// CompareAndSwap replaces the session if the stored version equals the
	// version of the first argument. On success the second argument carries
	// the new version. Returns false if the version did not match.
	CompareAndSwap(context.Context, *schema.Session, *schema.Session) (bool, error)

	// CompareAndDelete removes the session if the stored version equals the
	// version of the argument. Returns false if the version did not match.
	CompareAndDelete(context.Context, *schema.Session) (bool, error)

	// List returns all sessions
	List(context.Context) ([]*schema.Session, error)
}

// ContentStore is the catalog of uploaded assets
type ContentStore interface {
	CreateContent(context.Context, schema.ContentMeta) (*schema.Content, error)
	UpdateContent(context.Context, uint64, schema.ContentUpdate) (*schema.Content, error)
	GetContent(context.Context, uint64) (*schema.Content, error)
	DeleteContent(context.Context, uint64) (*schema.Content, error)
	ListContent(context.Context, schema.ContentListRequest) (*schema.ContentList, error)

	// ContentByHash returns the most recent completed record with the hash,
	// or httpresponse.ErrNotFound
	ContentByHash(context.Context, string) (*schema.Content, error)
}
