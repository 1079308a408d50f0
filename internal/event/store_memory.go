// Sentinel - Storefront Security Core
// Copyright 2026 Arcadia Commerce
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcadia-commerce/sentinel

package event

import (
	"context"
	"sync"
)

// MemoryStore implements Store using in-memory storage. Suitable for
// development and single-instance deployments without DuckDB.
type MemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

// NewMemoryStore creates a new in-memory event store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Name identifies the sink in logs.
func (s *MemoryStore) Name() string {
	return "memory"
}

// SubmitBatch appends the batch to the in-memory trail.
func (s *MemoryStore) SubmitBatch(ctx context.Context, events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

// matches reports whether an event passes the filter.
func matches(e *Event, filter QueryFilter) bool {
	if len(filter.Types) > 0 {
		found := false
		for _, t := range filter.Types {
			if e.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.UserID != "" && e.UserID != filter.UserID {
		return false
	}
	if filter.IPAddress != "" && e.IPAddress != filter.IPAddress {
		return false
	}
	if filter.Source != "" && e.Source != filter.Source {
		return false
	}
	if filter.StartTime != nil && e.Timestamp.Before(*filter.StartTime) {
		return false
	}
	if filter.EndTime != nil && e.Timestamp.After(*filter.EndTime) {
		return false
	}
	return true
}

// Query retrieves stored events matching the filter, newest first.
func (s *MemoryStore) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var result []Event
	skipped := 0
	for i := len(s.events) - 1; i >= 0; i-- {
		e := s.events[i]
		if !matches(&e, filter) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		result = append(result, e)
		if len(result) >= limit {
			break
		}
	}

	return result, nil
}

// Count returns the number of events matching the filter.
func (s *MemoryStore) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for i := range s.events {
		if matches(&s.events[i], filter) {
			count++
		}
	}
	return count, nil
}
