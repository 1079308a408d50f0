// Sentinel - Storefront Security Core
// Copyright 2026 Arcadia Commerce
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcadia-commerce/sentinel

package incident

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory incident store. Suitable for tests and
// single-process deployments where incidents need not survive
// restarts.
type MemoryStore struct {
	mu        sync.RWMutex
	incidents map[string]*Incident
}

// NewMemoryStore creates an empty in-memory incident store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{incidents: make(map[string]*Incident)}
}

// Save stores or overwrites an incident by ID.
func (s *MemoryStore) Save(ctx context.Context, inc *Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *inc
	clone.ResponseActions = append([]string(nil), inc.ResponseActions...)
	s.incidents[inc.ID] = &clone
	return nil
}

// Get returns an incident by id.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inc, ok := s.incidents[id]
	if !ok {
		return nil, ErrNotFound
	}

	clone := *inc
	clone.ResponseActions = append([]string(nil), inc.ResponseActions...)
	return &clone, nil
}

// List returns all incidents, newest first.
func (s *MemoryStore) List(ctx context.Context) ([]*Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Incident, 0, len(s.incidents))
	for _, inc := range s.incidents {
		clone := *inc
		clone.ResponseActions = append([]string(nil), inc.ResponseActions...)
		out = append(out, &clone)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

// Delete removes an incident. Deleting a missing id is a no-op.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.incidents, id)
	return nil
}
