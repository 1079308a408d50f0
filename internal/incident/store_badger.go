// Sentinel - Storefront Security Core
// Copyright 2026 Arcadia Commerce
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcadia-commerce/sentinel

package incident

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

const incidentKeyPrefix = "incident:"

// BadgerStore implements Store using BadgerDB for durable storage, so
// incidents survive process restarts.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore creates a BadgerDB-backed incident store.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// Save stores or overwrites an incident by ID.
func (s *BadgerStore) Save(ctx context.Context, inc *Incident) error {
	data, err := json.Marshal(inc)
	if err != nil {
		return fmt.Errorf("marshal incident: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(incidentKeyPrefix+inc.ID), data)
	})
}

// Get returns an incident by id.
func (s *BadgerStore) Get(ctx context.Context, id string) (*Incident, error) {
	var inc Incident

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(incidentKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get incident: %w", err)
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &inc)
		})
	})

	if err != nil {
		return nil, err
	}
	return &inc, nil
}

// List returns all incidents, newest first.
func (s *BadgerStore) List(ctx context.Context) ([]*Incident, error) {
	var incidents []*Incident

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(incidentKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var inc Incident
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &inc)
			})
			if err != nil {
				continue
			}
			incidents = append(incidents, &inc)
		}
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}

	sort.Slice(incidents, func(i, j int) bool {
		return incidents[i].Timestamp.After(incidents[j].Timestamp)
	})
	return incidents, nil
}

// Delete removes an incident. Deleting a missing id is a no-op.
func (s *BadgerStore) Delete(ctx context.Context, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(incidentKeyPrefix + id))
		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete incident: %w", err)
		}
		return nil
	})
}
