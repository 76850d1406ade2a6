package schema

import (
	"time"

	// Packages
	types "github.com/mutablelogic/go-server/pkg/types"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

type InitRequest struct {
	FileName    string `json:"filename" arg:"" help:"File name"`
	ContentType string `json:"type,omitempty" help:"MIME type, inferred from the file extension when empty"`
}

type InitResponse struct {
	UploadId   string `json:"upload_id"`
	StorageKey string `json:"key"`
	Bucket     string `json:"bucket"`
}

type PartResponse struct {
	PartNumber int    `json:"part"`
	ETag       string `json:"etag,omitempty"`
	Size       int64  `json:"size"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

type CompleteRequest struct {
	StorageKey string   `json:"key"`
	ETags      []string `json:"etags"`
}

type CompleteResponse struct {
	UploadId  string `json:"upload_id"`
	Status    Status `json:"status"`
	ContentId uint64 `json:"content_id"`
}

type StatusResponse struct {
	UploadId  string `json:"upload_id"`
	Status    Status `json:"status"`
	Progress  int    `json:"progress"`
	ContentId uint64 `json:"content_id,omitempty"`
	Url       string `json:"url,omitempty"`
	Error     string `json:"error,omitempty"`
}

type DedupRequest struct {
	Hash     string `json:"hash" help:"Content hash"`
	FileName string `json:"filename,omitempty" help:"File name used for the suggested URL"`
}

type DedupResponse struct {
	Exists       bool   `json:"exists"`
	RecordId     uint64 `json:"record_id,omitempty"`
	Url          string `json:"url,omitempty"`
	SuggestedUrl string `json:"suggested_url,omitempty"`
}

type PresignRequest struct {
	Key    string        `json:"key"`
	Method string        `json:"method,omitempty"`
	TTL    time.Duration `json:"ttl,omitempty"`
}

type PresignResponse struct {
	Key     string    `json:"key"`
	Method  string    `json:"method"`
	Url     string    `json:"url"`
	Expires time.Time `json:"expires"`
}

type HealthResponse struct {
	Bucket  string `json:"bucket"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

////////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (r InitRequest) String() string {
	return types.Stringify(r)
}

func (r InitResponse) String() string {
	return types.Stringify(r)
}

func (r PartResponse) String() string {
	return types.Stringify(r)
}

func (r CompleteRequest) String() string {
	return types.Stringify(r)
}

func (r CompleteResponse) String() string {
	return types.Stringify(r)
}

func (r StatusResponse) String() string {
	return types.Stringify(r)
}

func (r DedupRequest) String() string {
	return types.Stringify(r)
}

func (r DedupResponse) String() string {
	return types.Stringify(r)
}

func (r PresignRequest) String() string {
	return types.Stringify(r)
}

func (r PresignResponse) String() string {
	return types.Stringify(r)
}

func (r HealthResponse) String() string {
	return types.Stringify(r)
}
