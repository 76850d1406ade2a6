package schema

import (
	"maps"
	"math"
	"slices"
	"strconv"
	"time"

	// Packages
	types "github.com/mutablelogic/go-server/pkg/types"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Status is the lifecycle state of an upload session or content record.
type Status string

// Part records one uploaded chunk of a session.
type Part struct {
	PartNumber int    `json:"part"`
	ETag       string `json:"etag"`
	Size       int64  `json:"size"`
}

// Session is the coordinator-side state of one chunked upload.
type Session struct {
	UploadId       string       `json:"upload_id"`
	StorageKey     string       `json:"key"`
	Bucket         string       `json:"bucket,omitempty"`
	FileName       string       `json:"filename"`
	ContentType    string       `json:"type,omitempty"`
	Parts          map[int]Part `json:"parts,omitempty"`
	Status         Status       `json:"status"`
	TotalParts     int          `json:"total_parts"`
	CompletedParts int          `json:"completed_parts"`
	ContentId      uint64       `json:"content_id,omitempty"`
	Url            string       `json:"url,omitempty"`
	Error          string       `json:"error,omitempty"`
	CreatedAt      time.Time    `json:"created_at,omitzero"`
	UpdatedAt      time.Time    `json:"updated_at,omitzero"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
	Version        uint64       `json:"version"`
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

////////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (s Session) String() string {
	return types.Stringify(s)
}

func (p Part) String() string {
	return types.Stringify(p)
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS - STATUS

// Terminal returns true for completed and failed states
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid returns true if the status is one of the known states
func (s Status) Valid() bool {
	switch s {
	case StatusUploading, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Rank orders the states so transitions can be checked as forward-only
func (s Status) Rank() int {
	switch s {
	case StatusUploading:
		return 1
	case StatusProcessing:
		return 2
	case StatusCompleted, StatusFailed:
		return 3
	}
	return 0
}

// CanTransition returns true if moving from s to next does not go backwards
// and does not leave a terminal state.
func (s Status) CanTransition(next Status) bool {
	if !next.Valid() {
		return false
	}
	if s.Terminal() {
		return s == next
	}
	return next.Rank() >= s.Rank()
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS - SESSION

// Clone returns a deep copy of the session
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Parts = maps.Clone(s.Parts)
	if s.CompletedAt != nil {
		c.CompletedAt = types.Ptr(*s.CompletedAt)
	}
	return &c
}

// Progress returns the completed percentage, rounded to the nearest integer.
// Zero is returned until the total number of parts is known.
func (s *Session) Progress() int {
	if s.TotalParts <= 0 {
		return 0
	}
	progress := int(math.Round(float64(s.CompletedParts) / float64(s.TotalParts) * 100))
	return min(progress, 100)
}

// PartNumbers returns the recorded part numbers in ascending order
func (s *Session) PartNumbers() []int {
	return slices.Sorted(maps.Keys(s.Parts))
}

// Size returns the sum of recorded part sizes
func (s *Session) Size() int64 {
	var size int64
	for _, part := range s.Parts {
		size += part.Size
	}
	return size
}

// PartKey returns the temporary object key for a part of this session
func (s *Session) PartKey(n int) string {
	return PartKey(s.StorageKey, n)
}

// PartKey returns the temporary object key for part n of the object at key
func PartKey(key string, n int) string {
	return key + PartKeyInfix + strconv.Itoa(n)
}
