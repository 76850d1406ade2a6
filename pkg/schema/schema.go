package schema

import "time"

////////////////////////////////////////////////////////////////////////////////
// TYPES

const (
	SchemaName = "upload"

	// Storage key layout
	DefaultKeyPrefix = "uploads"
	PartKeyInfix     = ".part."
	KeySuffixLength  = 8

	// Part limits
	MinPartNumber = 1
	MaxPartNumber = 10000

	// DefaultPartType is the content type of temporary part objects
	DefaultPartType = "application/octet-stream"

	// Default timeouts and lifetimes
	DefaultStorageTimeout = 30 * time.Second
	DefaultMergeTimeout   = 10 * time.Minute
	DefaultSessionTTL     = 24 * time.Hour
	DefaultPresignTTL     = time.Hour
	MaxPresignTTL         = 7 * 24 * time.Hour

	// ContentListLimit is the maximum number of content records returned in
	// a single page.
	ContentListLimit = 1000

	// HTTP headers
	ETagHeader = "ETag"
)
