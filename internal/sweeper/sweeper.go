// Package sweeper marks observations past their target date as OVERDUE. The
// sweep is system-driven and bypasses the user transition table: it writes
// through the same conditional status update as every other transition, so a
// user action racing the sweep makes one of the two lose cleanly.
package sweeper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"remedia/internal/notify"
	"remedia/internal/platform/metrics"
	"remedia/internal/trail"
	"remedia/internal/workflow/models"
	"remedia/internal/workflow/ports"
	"remedia/pkg/domain"
	"remedia/pkg/platform/sentinel"
	"remedia/pkg/requestcontext"
)

const (
	defaultInterval  = time.Hour
	defaultBatchSize = 100

	overdueReason = "automatically marked as overdue"
)

type Sweeper struct {
	observations ports.ObservationStore
	history      ports.HistoryRecorder
	notifier     ports.Notifier
	logger       *slog.Logger
	metrics      *metrics.Metrics
	interval     time.Duration
	batchSize    int
}

type Option func(*Sweeper)

func WithHistory(recorder ports.HistoryRecorder) Option {
	return func(s *Sweeper) {
		s.history = recorder
	}
}

func WithNotifier(notifier ports.Notifier) Option {
	return func(s *Sweeper) {
		s.notifier = notifier
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) {
		s.metrics = m
	}
}

func WithInterval(interval time.Duration) Option {
	return func(s *Sweeper) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

func WithBatchSize(size int) Option {
	return func(s *Sweeper) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

func New(observations ports.ObservationStore, opts ...Option) (*Sweeper, error) {
	if observations == nil {
		return nil, errors.New("observation store is required")
	}
	s := &Sweeper{
		observations: observations,
		logger:       slog.Default(),
		interval:     defaultInterval,
		batchSize:    defaultBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run sweeps once immediately and then on every interval tick until the
// context is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.ErrorContext(ctx, "sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sweep marks every observation whose target date lies strictly before the
// request clock as OVERDUE and returns the number marked. Re-running after a
// completed sweep marks nothing; rows that lost a race with a user transition
// are picked up on the next pass.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	started := time.Now()
	now := requestcontext.Now(ctx)
	marked := 0

	for {
		candidates, err := s.observations.ListOverdueCandidates(ctx, now, s.batchSize)
		if err != nil {
			return marked, err
		}
		if len(candidates) == 0 {
			break
		}

		markedInBatch := 0
		for _, obs := range candidates {
			if err := ctx.Err(); err != nil {
				return marked, err
			}
			if s.mark(ctx, obs, now) {
				markedInBatch++
			}
		}
		marked += markedInBatch

		// every row conflicted or vanished; bail out rather than spin on the
		// same candidates
		if markedInBatch == 0 {
			break
		}
		if len(candidates) < s.batchSize {
			break
		}
	}

	s.metrics.AddSweepMarked(marked)
	s.metrics.ObserveSweepDuration(time.Since(started).Seconds())
	if marked > 0 {
		s.logger.InfoContext(ctx, "overdue sweep complete", "marked", marked)
	}
	return marked, nil
}

func (s *Sweeper) mark(ctx context.Context, obs *models.Observation, now time.Time) bool {
	from := obs.Status
	updated, err := s.observations.TransitionStatus(ctx, obs.ID, from, models.ObservationOverdue, func(o *models.Observation) {
		prev := o.Status
		o.PreviousStatus = &prev
		o.StatusChangedAt = now
		o.StatusChangedBy = domain.SystemActor
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) || errors.Is(err, sentinel.ErrNotFound) {
			s.logger.DebugContext(ctx, "observation changed under sweep",
				"observation_id", obs.ID.String(),
				"from", string(from),
			)
			return false
		}
		s.logger.ErrorContext(ctx, "failed to mark observation overdue",
			"observation_id", obs.ID.String(),
			"error", err,
		)
		return false
	}

	if s.history != nil {
		s.history.Record(ctx, trail.Entry{
			ObservationID: updated.ID,
			FromStatus:    &from,
			ToStatus:      updated.Status,
			Reason:        overdueReason,
			Actor:         domain.SystemActor,
			CreatedAt:     now,
		})
	}
	if s.notifier != nil {
		s.notifier.Dispatch(ctx, notify.Notification{
			Type:        notify.TypeObservationOverdue,
			RecipientID: updated.OwnerID,
			Payload: map[string]string{
				"observation_id": updated.ID.String(),
				"label":          updated.Label,
				"target_date":    updated.TargetDate.Format(time.RFC3339),
			},
		})
	}
	return true
}
