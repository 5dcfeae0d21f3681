// Package memory is the in-memory evidence store used by tests and
// single-node deployments.
package memory

import (
	"context"
	"sort"
	"sync"

	"remedia/internal/evidence"
	id "remedia/pkg/domain"
	"remedia/pkg/platform/sentinel"
)

type Store struct {
	mu   sync.RWMutex
	rows map[id.EvidenceID]evidence.Evidence
}

func NewStore() *Store {
	return &Store{rows: make(map[id.EvidenceID]evidence.Evidence)}
}

func (s *Store) Create(ctx context.Context, ev *evidence.Evidence) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rows[ev.ID]; exists {
		return sentinel.ErrConflict
	}
	s.rows[ev.ID] = *ev
	return nil
}

func (s *Store) Get(ctx context.Context, evidenceID id.EvidenceID) (*evidence.Evidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.rows[evidenceID]
	if !ok || row.DeletedAt != nil {
		return nil, sentinel.ErrNotFound
	}
	out := row
	return &out, nil
}

func (s *Store) Update(ctx context.Context, ev *evidence.Evidence) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.rows[ev.ID]
	if !ok || existing.DeletedAt != nil {
		return sentinel.ErrNotFound
	}
	s.rows[ev.ID] = *ev
	return nil
}

func (s *Store) ListByObservation(ctx context.Context, observationID id.ObservationID) ([]*evidence.Evidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*evidence.Evidence
	for _, row := range s.rows {
		if row.ObservationID != observationID || row.DeletedAt != nil {
			continue
		}
		copied := row
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].Version < out[j].Version
		}
		return out[i].UploadedAt.Before(out[j].UploadedAt)
	})
	return out, nil
}
