// Package directory is the shared contact directory and location record.
// Sessions publish their profile and latest fix here so collaborators outside
// the session (the telephony bridge, the relay) can read them. Entries are
// replace-only and keyed by session id; there is no cross-session ordering.
package directory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sanchita-suni/Calyx/pkg/core/crisis/state"
)

// ErrNotFound is returned for unknown or expired sessions.
var ErrNotFound = errors.New("directory: session not found")

// DefaultTTL bounds how long an idle entry is kept.
const DefaultTTL = 24 * time.Hour

// Record is what the directory knows about one session.
type Record struct {
	SessionID string            `json:"session_id"`
	Profile   state.UserProfile `json:"profile"`
	Location  *state.Location   `json:"location,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Directory stores per-session profiles and locations. Implementations must
// be safe for concurrent use by many sessions.
type Directory interface {
	PutProfile(ctx context.Context, sessionID string, p state.UserProfile) error
	PutLocation(ctx context.Context, sessionID string, l state.Location) error
	Get(ctx context.Context, sessionID string) (Record, error)
	Delete(ctx context.Context, sessionID string) error
}

// Memory is an in-process Directory.
type Memory struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	records map[string]Record
}

// NewMemory returns an empty in-process directory. ttl <= 0 uses DefaultTTL.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{ttl: ttl, now: time.Now, records: make(map[string]Record)}
}

func (m *Memory) PutProfile(_ context.Context, sessionID string, p state.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.records[sessionID]
	r.SessionID = sessionID
	r.Profile = p.Clone()
	r.UpdatedAt = m.now()
	m.records[sessionID] = r
	return nil
}

func (m *Memory) PutLocation(_ context.Context, sessionID string, l state.Location) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.records[sessionID]
	r.SessionID = sessionID
	r.Location = &l
	r.UpdatedAt = m.now()
	m.records[sessionID] = r
	return nil
}

func (m *Memory) Get(_ context.Context, sessionID string) (Record, error) {
	m.mu.RLock()
	r, ok := m.records[sessionID]
	m.mu.RUnlock()
	if !ok {
		return Record{}, ErrNotFound
	}
	if m.now().Sub(r.UpdatedAt) > m.ttl {
		m.mu.Lock()
		delete(m.records, sessionID)
		m.mu.Unlock()
		return Record{}, ErrNotFound
	}
	r.Profile = r.Profile.Clone()
	if r.Location != nil {
		l := *r.Location
		r.Location = &l
	}
	return r, nil
}

func (m *Memory) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.records, sessionID)
	m.mu.Unlock()
	return nil
}
