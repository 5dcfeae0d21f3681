// Package memory provides the in-memory workflow stores. They honor the same
// conditional-write contract as the postgres stores so services and tests
// observe identical concurrency semantics.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"remedia/internal/workflow/models"
	"remedia/internal/workflow/ports"
	id "remedia/pkg/domain"
	"remedia/pkg/platform/sentinel"
)

// ObservationStore keeps observations in a mutex-guarded map. Rows are stored
// by value copy on every write so callers never share mutable state with the
// store.
type ObservationStore struct {
	mu   sync.RWMutex
	rows map[id.ObservationID]*models.Observation
}

func NewObservationStore() *ObservationStore {
	return &ObservationStore{rows: make(map[id.ObservationID]*models.Observation)}
}

func (s *ObservationStore) Create(_ context.Context, obs *models.Observation, labelPrefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rows[obs.ID]; exists {
		return sentinel.ErrConflict
	}

	seq := 0
	for _, row := range s.rows {
		if row.AuditID == obs.AuditID && row.Sequence > seq {
			seq = row.Sequence
		}
	}
	obs.Sequence = seq + 1
	obs.Label = fmt.Sprintf("%s-OBS-%04d", labelPrefix, obs.Sequence)

	now := time.Now()
	if obs.CreatedAt.IsZero() {
		obs.CreatedAt = now
	}
	obs.UpdatedAt = now

	clone := *obs
	s.rows[obs.ID] = &clone
	return nil
}

func (s *ObservationStore) Get(_ context.Context, observationID id.ObservationID, includeDeleted bool) (*models.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.rows[observationID]
	if !ok || (!includeDeleted && row.DeletedAt != nil) {
		return nil, sentinel.ErrNotFound
	}
	clone := *row
	return &clone, nil
}

func (s *ObservationStore) Update(_ context.Context, obs *models.Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[obs.ID]
	if !ok || row.DeletedAt != nil {
		return sentinel.ErrNotFound
	}

	obs.UpdatedAt = time.Now()
	clone := *obs
	clone.Status = row.Status // status writes go through TransitionStatus only
	clone.PreviousStatus = row.PreviousStatus
	s.rows[obs.ID] = &clone
	return nil
}

func (s *ObservationStore) TransitionStatus(_ context.Context, observationID id.ObservationID, from, to models.ObservationStatus, apply func(*models.Observation)) (*models.Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[observationID]
	if !ok || row.DeletedAt != nil {
		return nil, sentinel.ErrNotFound
	}
	if row.Status != from {
		return nil, sentinel.ErrConflict
	}

	clone := *row
	if apply != nil {
		apply(&clone)
	}
	clone.Status = to
	clone.UpdatedAt = time.Now()
	s.rows[observationID] = &clone

	result := clone
	return &result, nil
}

func (s *ObservationStore) List(_ context.Context, filter ports.ObservationFilter) ([]*models.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Observation
	for _, row := range s.rows {
		if !filter.IncludeDeleted && row.DeletedAt != nil {
			continue
		}
		if filter.AuditID != nil && row.AuditID != *filter.AuditID {
			continue
		}
		if filter.Status != nil && row.Status != *filter.Status {
			continue
		}
		if filter.OwnerID != nil && row.OwnerID != *filter.OwnerID {
			continue
		}
		clone := *row
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AuditID != out[j].AuditID {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Sequence < out[j].Sequence
	})
	return out, nil
}

func (s *ObservationStore) ListOverdueCandidates(_ context.Context, before time.Time, limit int) ([]*models.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Observation
	for _, row := range s.rows {
		if row.DeletedAt != nil {
			continue
		}
		if row.Status == models.ObservationClosed || row.Status == models.ObservationOverdue {
			continue
		}
		if !row.TargetDate.Before(before) {
			continue
		}
		clone := *row
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TargetDate.Before(out[j].TargetDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *ObservationStore) CountActiveByAudit(_ context.Context, auditID id.AuditID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, row := range s.rows {
		if row.AuditID == auditID && row.DeletedAt == nil {
			count++
		}
	}
	return count, nil
}

func (s *ObservationStore) SoftDelete(_ context.Context, observationID id.ObservationID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[observationID]
	if !ok || row.DeletedAt != nil {
		return sentinel.ErrNotFound
	}
	clone := *row
	clone.DeletedAt = &at
	clone.UpdatedAt = time.Now()
	s.rows[observationID] = &clone
	return nil
}

// AuditStore keeps audit containers in a mutex-guarded map.
type AuditStore struct {
	mu   sync.RWMutex
	rows map[id.AuditID]*models.Audit
}

func NewAuditStore() *AuditStore {
	return &AuditStore{rows: make(map[id.AuditID]*models.Audit)}
}

func (s *AuditStore) Create(_ context.Context, audit *models.Audit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rows[audit.ID]; exists {
		return sentinel.ErrConflict
	}
	for _, row := range s.rows {
		if row.Number == audit.Number && row.DeletedAt == nil {
			return sentinel.ErrConflict
		}
	}

	now := time.Now()
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = now
	}
	audit.UpdatedAt = now

	clone := *audit
	s.rows[audit.ID] = &clone
	return nil
}

func (s *AuditStore) Get(_ context.Context, auditID id.AuditID, includeDeleted bool) (*models.Audit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.rows[auditID]
	if !ok || (!includeDeleted && row.DeletedAt != nil) {
		return nil, sentinel.ErrNotFound
	}
	clone := *row
	return &clone, nil
}

func (s *AuditStore) TransitionStatus(_ context.Context, auditID id.AuditID, from, to models.AuditStatus, apply func(*models.Audit)) (*models.Audit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[auditID]
	if !ok || row.DeletedAt != nil {
		return nil, sentinel.ErrNotFound
	}
	if row.Status != from {
		return nil, sentinel.ErrConflict
	}

	clone := *row
	if apply != nil {
		apply(&clone)
	}
	clone.Status = to
	clone.UpdatedAt = time.Now()
	s.rows[auditID] = &clone

	result := clone
	return &result, nil
}

func (s *AuditStore) List(_ context.Context, includeDeleted bool) ([]*models.Audit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Audit
	for _, row := range s.rows {
		if !includeDeleted && row.DeletedAt != nil {
			continue
		}
		clone := *row
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (s *AuditStore) SoftDelete(_ context.Context, auditID id.AuditID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[auditID]
	if !ok || row.DeletedAt != nil {
		return sentinel.ErrNotFound
	}
	clone := *row
	clone.DeletedAt = &at
	clone.UpdatedAt = time.Now()
	s.rows[auditID] = &clone
	return nil
}
