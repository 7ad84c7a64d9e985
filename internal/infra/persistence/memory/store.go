// Package memory provides the default in-process record store: one ordered
// slice per category, discarded with the session.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"growpilot/pkg/domain"
)

var _ domain.RecordStore = (*Store)(nil)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("record store closed")

type memoryState map[domain.Category][]domain.Record

func newMemoryState() memoryState {
	state := make(memoryState, len(domain.Categories()))
	for _, c := range domain.Categories() {
		state[c] = []domain.Record{}
	}
	return state
}

// Store is an append-only, mutex-guarded record store.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	closed bool
}

// NewStore returns a store holding four empty logs.
func NewStore() *Store {
	return &Store{state: newMemoryState()}
}

func checkCategory(c domain.Category) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrUnknownCategory, c)
	}
	return nil
}

// Append adds a copy of record to the end of the category's log.
func (s *Store) Append(_ context.Context, category domain.Category, record domain.Record) error {
	if err := checkCategory(category); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.state[category] = append(s.state[category], record.Clone())
	return nil
}

// Records returns copies of the category's records in insertion order.
func (s *Store) Records(_ context.Context, category domain.Category) ([]domain.Record, error) {
	if err := checkCategory(category); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	src := s.state[category]
	out := make([]domain.Record, len(src))
	for i, rec := range src {
		out[i] = rec.Clone()
	}
	return out, nil
}

// AsTable lays the category's records out as a table.
func (s *Store) AsTable(ctx context.Context, category domain.Category) (domain.Table, error) {
	records, err := s.Records(ctx, category)
	if err != nil {
		return domain.Table{}, err
	}
	return domain.BuildTable(category, records), nil
}

// Counts returns the number of records per category.
func (s *Store) Counts(_ context.Context) (map[domain.Category]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make(map[domain.Category]int, len(s.state))
	for c, recs := range s.state {
		out[c] = len(recs)
	}
	return out, nil
}

// Close drops all records. It is safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.state = nil
	return nil
}
