// Package trail records the append-only status history of observations.
// Entries are never updated or deleted. Recording is best-effort: a failed
// append is logged and counted but never rolls back the transition that
// already committed.
package trail

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"remedia/internal/platform/metrics"
	"remedia/internal/workflow/models"
	id "remedia/pkg/domain"
)

// Entry is one status transition of an observation. FromStatus is nil for the
// creation entry. Actor is the acting principal's ID, or domain.SystemActor
// for automated transitions.
type Entry struct {
	ID            uuid.UUID
	ObservationID id.ObservationID
	FromStatus    *models.ObservationStatus
	ToStatus      models.ObservationStatus
	Reason        string
	Actor         string
	CreatedAt     time.Time
}

// Store is the append-only persistence port for history entries.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListByObservation(ctx context.Context, observationID id.ObservationID) ([]Entry, error)
}

// Recorder writes history entries and absorbs store failures. History is a
// secondary record, not a transaction partner of the primary state.
type Recorder struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Recorder)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Recorder) {
		r.metrics = m
	}
}

func NewRecorder(store Store, opts ...Option) *Recorder {
	rec := &Recorder{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(rec)
	}
	return rec
}

// Record appends an entry, assigning ID and timestamp when unset. Failures
// are surfaced to logs and metrics only.
func (r *Recorder) Record(ctx context.Context, entry Entry) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if err := r.store.Append(ctx, entry); err != nil {
		r.metrics.IncHistoryWriteFailure()
		r.logger.ErrorContext(ctx, "status history append failed",
			"observation_id", entry.ObservationID.String(),
			"to_status", string(entry.ToStatus),
			"error", err.Error(),
		)
	}
}

// List returns the recorded history for an observation, oldest first.
func (r *Recorder) List(ctx context.Context, observationID id.ObservationID) ([]Entry, error) {
	return r.store.ListByObservation(ctx, observationID)
}
