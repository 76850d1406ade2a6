package schema

import (
	"context"
	"mime"
	"path"
	"strings"
	"time"

	// Packages
	pg "github.com/mutablelogic/go-pg"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	types "github.com/mutablelogic/go-server/pkg/types"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// ContentType classifies an uploaded asset
type ContentType string

// ContentMeta are the fields supplied when a content record is created
type ContentMeta struct {
	Title    string      `json:"title"`
	Type     ContentType `json:"type"`
	Key      string      `json:"key"`
	UploadId string      `json:"upload_id,omitempty"`
}

// ContentUpdate carries the fields changed when a record is finalized.
// Nil fields are left unchanged.
type ContentUpdate struct {
	Status *Status `json:"status,omitempty"`
	Url    *string `json:"url,omitempty"`
	Hash   *string `json:"hash,omitempty"`
	Size   *int64  `json:"size,omitempty"`
	Error  *string `json:"error,omitempty"`
}

// ContentId selects a single content record
type ContentId uint64

// ContentHash selects the most recent completed record with a hash
type ContentHash string

// Content is a catalog entry for one uploaded asset
type Content struct {
	Id uint64 `json:"id"`
	ContentMeta
	Status    Status    `json:"status"`
	Url       string    `json:"url,omitempty"`
	Hash      string    `json:"hash,omitempty"`
	Size      int64     `json:"size"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

type ContentListRequest struct {
	pg.OffsetLimit
	Status *Status `json:"status,omitempty" help:"Filter by status"`
}

type ContentList struct {
	Count uint64    `json:"count"`
	Body  []Content `json:"body,omitempty"`
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	ContentVideo    ContentType = "video"
	ContentAudio    ContentType = "audio"
	ContentImage    ContentType = "image"
	ContentPDF      ContentType = "pdf"
	ContentDocument ContentType = "document"
	ContentOther    ContentType = "other"
)

const (
	contentTypeDefault = "application/octet-stream"
)

////////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (c Content) String() string {
	return types.Stringify(c)
}

func (c ContentMeta) String() string {
	return types.Stringify(c)
}

func (c ContentUpdate) String() string {
	return types.Stringify(c)
}

func (c ContentListRequest) String() string {
	return types.Stringify(c)
}

func (c ContentList) String() string {
	return types.Stringify(c)
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// MimeType returns the MIME type for a file name, falling back to
// application/octet-stream when the extension is unknown.
func MimeType(filename string) string {
	if t := mime.TypeByExtension(strings.ToLower(path.Ext(filename))); t != "" {
		return t
	}
	return contentTypeDefault
}

// ContentTypeOf classifies a MIME type
func ContentTypeOf(mimetype string) ContentType {
	mediatype, _, err := mime.ParseMediaType(mimetype)
	if err != nil {
		mediatype = strings.ToLower(strings.TrimSpace(mimetype))
	}
	switch {
	case strings.HasPrefix(mediatype, "video/"):
		return ContentVideo
	case strings.HasPrefix(mediatype, "audio/"):
		return ContentAudio
	case strings.HasPrefix(mediatype, "image/"):
		return ContentImage
	case mediatype == "application/pdf":
		return ContentPDF
	case strings.HasPrefix(mediatype, "text/"),
		strings.HasPrefix(mediatype, "application/msword"),
		strings.HasPrefix(mediatype, "application/vnd.openxmlformats-officedocument"),
		strings.HasPrefix(mediatype, "application/vnd.ms-"):
		return ContentDocument
	}
	return ContentOther
}

// Apply copies the non-nil fields of the update onto the record
func (u ContentUpdate) Apply(c *Content) {
	if u.Status != nil {
		c.Status = *u.Status
	}
	if u.Url != nil {
		c.Url = *u.Url
	}
	if u.Hash != nil {
		c.Hash = *u.Hash
	}
	if u.Size != nil {
		c.Size = *u.Size
	}
	if u.Error != nil {
		c.Error = *u.Error
	}
}

////////////////////////////////////////////////////////////////////////////////
// SELECTOR

func (c ContentId) Select(bind *pg.Bind, op pg.Op) (string, error) {
	if c == 0 {
		return "", httpresponse.ErrBadRequest.Withf("invalid content id: %v", uint64(c))
	} else {
		bind.Set("id", uint64(c))
	}

	switch op {
	case pg.Get:
		return contentGet, nil
	case pg.Update:
		return contentUpdate, nil
	case pg.Delete:
		return contentDelete, nil
	default:
		return "", httpresponse.ErrNotImplemented.Withf("ContentId operation: %q", op)
	}
}

func (c ContentHash) Select(bind *pg.Bind, op pg.Op) (string, error) {
	if c == "" {
		return "", httpresponse.ErrBadRequest.With("missing hash")
	} else {
		bind.Set("hash", strings.ToLower(string(c)))
		bind.Set("status", string(StatusCompleted))
	}

	switch op {
	case pg.Get:
		return contentGetByHash, nil
	default:
		return "", httpresponse.ErrNotImplemented.Withf("ContentHash operation: %q", op)
	}
}

func (c ContentListRequest) Select(bind *pg.Bind, op pg.Op) (string, error) {
	bind.Set("orderby", `ORDER BY "id" DESC`)
	if c.Status != nil {
		if !c.Status.Valid() {
			return "", httpresponse.ErrBadRequest.Withf("invalid status: %q", *c.Status)
		}
		bind.Set("status", string(*c.Status))
		bind.Set("where", `WHERE "status" = @status`)
	} else {
		bind.Set("where", "")
	}

	// Bind offset and limit
	c.OffsetLimit.Bind(bind, ContentListLimit)

	switch op {
	case pg.List:
		return contentList, nil
	default:
		return "", httpresponse.ErrNotImplemented.Withf("ContentListRequest operation: %q", op)
	}
}

////////////////////////////////////////////////////////////////////////////////
// READER

func (c *Content) Scan(row pg.Row) error {
	var typ, status string
	if err := row.Scan(&c.Id, &c.Title, &typ, &c.Key, &c.UploadId, &status, &c.Url, &c.Hash, &c.Size, &c.Error, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return err
	}
	c.Type = ContentType(typ)
	c.Status = Status(status)
	return nil
}

func (c *ContentList) Scan(row pg.Row) error {
	var content Content
	if err := content.Scan(row); err != nil {
		return err
	}
	c.Body = append(c.Body, content)
	return nil
}

func (c *ContentList) ScanCount(row pg.Row) error {
	return row.Scan(&c.Count)
}

////////////////////////////////////////////////////////////////////////////////
// WRITER

func (c ContentMeta) Insert(bind *pg.Bind) (string, error) {
	if key := strings.TrimSpace(c.Key); key == "" {
		return "", httpresponse.ErrBadRequest.With("missing storage key")
	} else {
		bind.Set("key", key)
	}
	if title := strings.TrimSpace(c.Title); title == "" {
		bind.Set("title", path.Base(c.Key))
	} else {
		bind.Set("title", title)
	}
	if c.Type == "" {
		bind.Set("type", string(ContentOther))
	} else {
		bind.Set("type", string(c.Type))
	}
	bind.Set("upload_id", c.UploadId)
	bind.Set("status", string(StatusProcessing))

	// Return the insert query
	return contentInsert, nil
}

func (c ContentMeta) Update(bind *pg.Bind) error {
	return httpresponse.ErrNotImplemented.With("ContentMeta update")
}

func (u ContentUpdate) Insert(bind *pg.Bind) (string, error) {
	return "", httpresponse.ErrNotImplemented.With("ContentUpdate insert")
}

func (u ContentUpdate) Update(bind *pg.Bind) error {
	if !bind.Has("id") {
		return httpresponse.ErrBadRequest.With("missing id")
	}
	if u.Status != nil {
		if !u.Status.Valid() {
			return httpresponse.ErrBadRequest.Withf("invalid status: %q", *u.Status)
		}
		bind.Set("status", types.Ptr(string(*u.Status)))
	} else {
		bind.Set("status", (*string)(nil))
	}
	bind.Set("url", u.Url)
	bind.Set("hash", u.Hash)
	bind.Set("size", u.Size)
	bind.Set("error", u.Error)
	return nil
}

////////////////////////////////////////////////////////////////////////////////
// SQL

// BootstrapContent creates the content table in the schema
func BootstrapContent(ctx context.Context, conn pg.Conn) error {
	q := []string{
		contentCreateTable,
		contentCreateHashIndex,
	}
	for _, query := range q {
		if err := conn.Exec(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

const (
	contentCreateTable = `
		CREATE TABLE IF NOT EXISTS ${"schema"}."content" (
			"id"         BIGSERIAL PRIMARY KEY,                          -- Identifier
			"title"      TEXT NOT NULL,                                  -- Display title
			"type"       TEXT NOT NULL DEFAULT 'other',                  -- Content classification
			"key"        TEXT NOT NULL,                                  -- Storage key of the merged object
			"upload_id"  TEXT NOT NULL DEFAULT '',                       -- Upload session identifier
			"status"     TEXT NOT NULL DEFAULT 'processing',             -- processing, completed or failed
			"url"        TEXT NOT NULL DEFAULT '',                       -- Access URL
			"hash"       TEXT NOT NULL DEFAULT '',                       -- Content hash (hex)
			"size"       BIGINT NOT NULL DEFAULT 0,                      -- Size in bytes
			"error"      TEXT NOT NULL DEFAULT '',                       -- Failure message
			"created_at" TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,   -- Creation time
			"updated_at" TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP    -- Last update time
		)
	`
	contentCreateHashIndex = `
		CREATE INDEX IF NOT EXISTS "content_hash_idx" ON ${"schema"}."content" ("hash") WHERE "hash" <> ''
	`
	contentColumns = `"id", "title", "type", "key", "upload_id", "status", "url", "hash", "size", "error", "created_at", "updated_at"`
	contentInsert  = `
		INSERT INTO ${"schema"}."content"
			("title", "type", "key", "upload_id", "status")
		VALUES
			(@title, @type, @key, @upload_id, @status)
		RETURNING
			` + contentColumns
	contentUpdate = `
		UPDATE ${"schema"}."content" SET
			"status" = COALESCE(@status, "status"),
			"url" = COALESCE(@url, "url"),
			"hash" = COALESCE(@hash, "hash"),
			"size" = COALESCE(@size, "size"),
			"error" = COALESCE(@error, "error"),
			"updated_at" = CURRENT_TIMESTAMP
		WHERE
			"id" = @id
		RETURNING
			` + contentColumns
	contentSelect    = `SELECT ` + contentColumns + ` FROM ${"schema"}."content"`
	contentGet       = contentSelect + ` WHERE "id" = @id`
	contentGetByHash = contentSelect + ` WHERE "hash" = @hash AND "status" = @status ORDER BY "id" DESC LIMIT 1`
	contentList      = `WITH q AS (` + contentSelect + `) SELECT * FROM q ${where} ${orderby}`
	contentDelete    = `DELETE FROM ${"schema"}."content" WHERE "id" = @id RETURNING ` + contentColumns
)
