package memory

import (
	"context"
	"sync"

	"remedia/internal/trail"
	id "remedia/pkg/domain"
)

// Store is the in-memory history store. Append-only: nothing here mutates or
// removes an entry once written.
type Store struct {
	mu      sync.RWMutex
	entries map[id.ObservationID][]trail.Entry
}

func New() *Store {
	return &Store{entries: make(map[id.ObservationID][]trail.Entry)}
}

func (s *Store) Append(_ context.Context, entry trail.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.ObservationID] = append(s.entries[entry.ObservationID], entry)
	return nil
}

func (s *Store) ListByObservation(_ context.Context, observationID id.ObservationID) ([]trail.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]trail.Entry{}, s.entries[observationID]...), nil
}
