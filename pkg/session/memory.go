package session

import (
	"context"
	"slices"
	"strings"
	"sync"

	// Packages
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	upload "github.com/mutablelogic/go-upload"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// memorystore is a process-local session store. Sessions are lost on restart.
type memorystore struct {
	sync.Mutex
	sessions map[string]*schema.Session
}

var _ upload.SessionStore = (*memorystore)(nil)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// NewMemory returns an empty in-memory session store
func NewMemory() *memorystore {
	self := new(memorystore)
	self.sessions = make(map[string]*schema.Session)
	return self
}

func (m *memorystore) Close() error {
	m.Lock()
	defer m.Unlock()
	clear(m.sessions)
	return nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

func (m *memorystore) Get(_ context.Context, id string) (*schema.Session, error) {
	m.Lock()
	defer m.Unlock()
	if session, exists := m.sessions[id]; !exists {
		return nil, httpresponse.ErrNotFound.Withf("upload %q", id)
	} else {
		return session.Clone(), nil
	}
}

func (m *memorystore) Put(_ context.Context, session *schema.Session) error {
	if err := validate(session); err != nil {
		return err
	}
	m.Lock()
	defer m.Unlock()
	session.Version++
	m.sessions[session.UploadId] = session.Clone()
	return nil
}

func (m *memorystore) Delete(_ context.Context, id string) error {
	m.Lock()
	defer m.Unlock()
	if _, exists := m.sessions[id]; !exists {
		return httpresponse.ErrNotFound.Withf("upload %q", id)
	}
	delete(m.sessions, id)
	return nil
}

func (m *memorystore) CompareAndSwap(_ context.Context, old, next *schema.Session) (bool, error) {
	if err := validate(next); err != nil {
		return false, err
	} else if old == nil || old.UploadId != next.UploadId {
		return false, httpresponse.ErrBadRequest.With("session identifiers differ")
	}
	m.Lock()
	defer m.Unlock()
	current, exists := m.sessions[old.UploadId]
	if !exists {
		return false, httpresponse.ErrNotFound.Withf("upload %q", old.UploadId)
	} else if current.Version != old.Version {
		return false, nil
	}
	next.Version = current.Version + 1
	m.sessions[next.UploadId] = next.Clone()
	return true, nil
}

func (m *memorystore) CompareAndDelete(_ context.Context, old *schema.Session) (bool, error) {
	if err := validate(old); err != nil {
		return false, err
	}
	m.Lock()
	defer m.Unlock()
	current, exists := m.sessions[old.UploadId]
	if !exists {
		return false, httpresponse.ErrNotFound.Withf("upload %q", old.UploadId)
	} else if current.Version != old.Version {
		return false, nil
	}
	delete(m.sessions, old.UploadId)
	return true, nil
}

func (m *memorystore) List(_ context.Context) ([]*schema.Session, error) {
	m.Lock()
	defer m.Unlock()
	result := make([]*schema.Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		result = append(result, session.Clone())
	}
	slices.SortFunc(result, func(a, b *schema.Session) int {
		return strings.Compare(a.UploadId, b.UploadId)
	})
	return result, nil
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func validate(session *schema.Session) error {
	if session == nil {
		return httpresponse.ErrBadRequest.With("nil session")
	} else if session.UploadId == "" {
		return httpresponse.ErrBadRequest.With("missing upload id")
	} else if !session.Status.Valid() {
		return httpresponse.ErrBadRequest.Withf("invalid status %q", session.Status)
	}
	return nil
}
