package catalog

import (
	"context"
	"path"
	"strings"
	"sync"
	"time"

	// Packages
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	upload "github.com/mutablelogic/go-upload"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// memorycatalog keeps content records in process memory
type memorycatalog struct {
	sync.RWMutex
	next    uint64
	records map[uint64]*schema.Content
}

var _ upload.ContentStore = (*memorycatalog)(nil)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// NewMemory returns an empty in-memory content catalog
func NewMemory() *memorycatalog {
	self := new(memorycatalog)
	self.records = make(map[uint64]*schema.Content)
	return self
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

func (m *memorycatalog) CreateContent(_ context.Context, meta schema.ContentMeta) (*schema.Content, error) {
	meta.Key = strings.TrimSpace(meta.Key)
	if meta.Key == "" {
		return nil, httpresponse.ErrBadRequest.With("missing storage key")
	}
	if strings.TrimSpace(meta.Title) == "" {
		meta.Title = path.Base(meta.Key)
	}
	if meta.Type == "" {
		meta.Type = schema.ContentOther
	}

	m.Lock()
	defer m.Unlock()
	m.next++
	now := time.Now().UTC()
	record := &schema.Content{
		Id:          m.next,
		ContentMeta: meta,
		Status:      schema.StatusProcessing,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.records[record.Id] = record
	return clone(*record), nil
}

func (m *memorycatalog) UpdateContent(_ context.Context, id uint64, update schema.ContentUpdate) (*schema.Content, error) {
	if update.Status != nil && !update.Status.Valid() {
		return nil, httpresponse.ErrBadRequest.Withf("invalid status: %q", *update.Status)
	}
	m.Lock()
	defer m.Unlock()
	record, exists := m.records[id]
	if !exists {
		return nil, httpresponse.ErrNotFound.Withf("content %d", id)
	}
	update.Apply(record)
	record.UpdatedAt = time.Now().UTC()
	return clone(*record), nil
}

func (m *memorycatalog) GetContent(_ context.Context, id uint64) (*schema.Content, error) {
	m.RLock()
	defer m.RUnlock()
	if record, exists := m.records[id]; !exists {
		return nil, httpresponse.ErrNotFound.Withf("content %d", id)
	} else {
		return clone(*record), nil
	}
}

func (m *memorycatalog) DeleteContent(_ context.Context, id uint64) (*schema.Content, error) {
	m.Lock()
	defer m.Unlock()
	record, exists := m.records[id]
	if !exists {
		return nil, httpresponse.ErrNotFound.Withf("content %d", id)
	}
	delete(m.records, id)
	return clone(*record), nil
}

func (m *memorycatalog) ListContent(_ context.Context, req schema.ContentListRequest) (*schema.ContentList, error) {
	if req.Status != nil && !req.Status.Valid() {
		return nil, httpresponse.ErrBadRequest.Withf("invalid status: %q", *req.Status)
	}
	m.RLock()
	defer m.RUnlock()

	// Newest first
	var result schema.ContentList
	for id := m.next; id > 0; id-- {
		record, exists := m.records[id]
		if !exists || (req.Status != nil && record.Status != *req.Status) {
			continue
		}
		result.Count++
		if result.Count <= req.Offset || uint64(len(result.Body)) >= limit(req) {
			continue
		}
		result.Body = append(result.Body, *record)
	}
	return &result, nil
}

func (m *memorycatalog) ContentByHash(_ context.Context, hash string) (*schema.Content, error) {
	hash = strings.ToLower(strings.TrimSpace(hash))
	if hash == "" {
		return nil, httpresponse.ErrBadRequest.With("missing hash")
	}
	m.RLock()
	defer m.RUnlock()
	for id := m.next; id > 0; id-- {
		if record, exists := m.records[id]; exists && record.Status == schema.StatusCompleted && record.Hash == hash {
			return clone(*record), nil
		}
	}
	return nil, httpresponse.ErrNotFound.Withf("content with hash %q", hash)
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func clone(c schema.Content) *schema.Content {
	return &c
}

func limit(req schema.ContentListRequest) uint64 {
	if req.Limit == nil {
		return schema.ContentListLimit
	}
	return min(*req.Limit, schema.ContentListLimit)
}
