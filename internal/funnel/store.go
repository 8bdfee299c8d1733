package funnel

import (
	"context"
	"sync"
	"time"

	"github.com/sunelia/solar-funnel/internal/pvgis"
)

// Store persists sessions for their (in-memory) lifetime. Nothing here is
// durable by design; an expired or lost session simply restarts the funnel.
//
// Save is a generation-guarded compare-and-swap: a write whose Generation is
// older than the stored one fails with ErrStaleSession. Background writers
// (the orchestrator, the countdown stream) race the visitor's own navigation,
// and the visitor always wins.
type Store interface {
	Create(ctx context.Context, session *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, session *Session) error
	Delete(ctx context.Context, id string) error
}

// clone returns a deep copy so store internals are never aliased by callers.
func (s *Session) clone() *Session {
	out := *s
	if s.ManualKit != nil {
		kit := *s.ManualKit
		out.ManualKit = &kit
	}
	if s.Result != nil {
		result := *s.Result
		result.MonthlyProduction = append([]float64(nil), s.Result.MonthlyProduction...)
		result.Financing = append([]pvgis.FinancingOption(nil), s.Result.Financing...)
		out.Result = &result
	}
	if s.FormData.WaterTankLiters != nil {
		liters := *s.FormData.WaterTankLiters
		out.FormData.WaterTankLiters = &liters
	}
	out.FormData.SecondaryHeating = append([]string(nil), s.FormData.SecondaryHeating...)
	return &out
}

type memoryEntry struct {
	session   *Session
	expiresAt time.Time
}

// MemoryStore is the default single-process session store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]memoryEntry
	ttl      time.Duration
}

// NewMemoryStore creates an in-memory store whose sessions expire after ttl.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]memoryEntry),
		ttl:      ttl,
	}
}

// Create stores a new session.
func (m *MemoryStore) Create(_ context.Context, session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = memoryEntry{session: session.clone(), expiresAt: time.Now().Add(m.ttl)}
	return nil
}

// Get returns a copy of the stored session.
func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	entry, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, ErrSessionNotFound
	}
	return entry.session.clone(), nil
}

// Save overwrites the stored session and refreshes its expiry. A write based
// on an older generation than the stored one is rejected.
func (m *MemoryStore) Save(_ context.Context, session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.sessions[session.ID]
	if !ok {
		return ErrSessionNotFound
	}
	if entry.session.Generation > session.Generation {
		return ErrStaleSession
	}
	m.sessions[session.ID] = memoryEntry{session: session.clone(), expiresAt: time.Now().Add(m.ttl)}
	return nil
}

// Delete removes a session.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// StartJanitor evicts expired sessions until ctx is cancelled.
func (m *MemoryStore) StartJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			m.mu.Lock()
			for id, entry := range m.sessions {
				if now.After(entry.expiresAt) {
					delete(m.sessions, id)
				}
			}
			m.mu.Unlock()
		}
	}
}
