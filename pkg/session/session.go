// Package session holds the assistant continuation token across requests.
package session

import (
	"sync"
	"time"
)

// Store is a single-slot holder for the last known continuation token.
// The token is written only from a successfully parsed completion payload,
// read by the next request when session continuity is requested, and cleared
// only by explicit user action. It outlives individual requests.
type Store struct {
	mu        sync.RWMutex
	token     string
	updatedAt time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Token returns the stored continuation token, if any.
func (s *Store) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// SetToken stores a continuation token, overwriting any prior one.
// Empty tokens are ignored.
func (s *Store) SetToken(token string) {
	if token == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.updatedAt = time.Now()
}

// Clear removes the stored token.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.updatedAt = time.Time{}
}

// State describes the store for debugging surfaces.
type State struct {
	Token     string    `json:"token,omitempty"`
	Held      bool      `json:"held"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Snapshot returns the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{
		Token:     s.token,
		Held:      s.token != "",
		UpdatedAt: s.updatedAt,
	}
}
