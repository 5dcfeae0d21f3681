// Package service implements the workflow state machines. Every status write
// goes through a conditional store update keyed on the prior status; history
// recording and notification dispatch happen after the durable write and can
// never undo it.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	"remedia/internal/notify"
	"remedia/internal/platform/metrics"
	"remedia/internal/sla"
	"remedia/internal/trail"
	"remedia/internal/workflow/models"
	"remedia/internal/workflow/ports"
	id "remedia/pkg/domain"
	dErrors "remedia/pkg/domain-errors"
	"remedia/pkg/platform/sentinel"
	"remedia/pkg/requestcontext"
)

var tracer = otel.Tracer("remedia/internal/workflow/service")

// ObservationService drives the observation lifecycle.
type ObservationService struct {
	observations ports.ObservationStore
	audits       ports.AuditStore
	rules        ports.RuleSource
	directory    ports.UserDirectory
	history      ports.HistoryRecorder
	notifier     ports.Notifier
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

type ObservationOption func(*ObservationService)

func WithHistory(recorder ports.HistoryRecorder) ObservationOption {
	return func(s *ObservationService) {
		s.history = recorder
	}
}

func WithNotifier(notifier ports.Notifier) ObservationOption {
	return func(s *ObservationService) {
		s.notifier = notifier
	}
}

func WithLogger(logger *slog.Logger) ObservationOption {
	return func(s *ObservationService) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) ObservationOption {
	return func(s *ObservationService) {
		s.metrics = m
	}
}

func NewObservationService(
	observations ports.ObservationStore,
	audits ports.AuditStore,
	rules ports.RuleSource,
	directory ports.UserDirectory,
	opts ...ObservationOption,
) (*ObservationService, error) {
	if observations == nil {
		return nil, errors.New("observation store is required")
	}
	if audits == nil {
		return nil, errors.New("audit store is required")
	}
	if rules == nil {
		return nil, errors.New("rule source is required")
	}
	if directory == nil {
		return nil, errors.New("user directory is required")
	}

	svc := &ObservationService{
		observations: observations,
		audits:       audits,
		rules:        rules,
		directory:    directory,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// CreateObservationInput carries the caller-supplied fields of a new finding.
// A zero OpenDate defaults to the request clock.
type CreateObservationInput struct {
	AuditID     id.AuditID
	Title       string
	Description string
	RiskRating  models.RiskRating
	OpenDate    time.Time
	OwnerID     id.UserID
	ReviewerID  id.UserID
}

// Create validates the input, resolves the SLA deadline from the active rule
// set, persists the observation in OPEN, and records the creation history
// entry with a nil prior status.
func (s *ObservationService) Create(ctx context.Context, input CreateObservationInput, actorID id.UserID) (*models.Observation, error) {
	ctx, span := tracer.Start(ctx, "observation.create")
	defer span.End()

	if input.Title == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "title is required")
	}
	if !input.RiskRating.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown risk rating %q", input.RiskRating)
	}
	if input.AuditID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "audit id is required")
	}
	if input.OwnerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "owner id is required")
	}

	audit, err := s.audits.Get(ctx, input.AuditID, false)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "audit not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load audit")
	}

	ownerExists, err := s.directory.Exists(ctx, input.OwnerID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check owner")
	}
	if !ownerExists {
		return nil, dErrors.New(dErrors.CodeNotFound, "owner not found")
	}
	if !input.ReviewerID.IsNil() {
		reviewerExists, err := s.directory.Exists(ctx, input.ReviewerID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check reviewer")
		}
		if !reviewerExists {
			return nil, dErrors.New(dErrors.CodeNotFound, "reviewer not found")
		}
	}

	now := requestcontext.Now(ctx)
	openDate := input.OpenDate
	if openDate.IsZero() {
		openDate = now
	}

	rules, err := s.rules.ListActive(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load sla rules")
	}
	resolution := sla.Resolve(rules, input.RiskRating, &audit.Type)
	targetDate := openDate.AddDate(0, 0, resolution.Days)

	obs := &models.Observation{
		ID:                 id.NewObservationID(),
		AuditID:            audit.ID,
		Title:              input.Title,
		Description:        input.Description,
		Status:             models.ObservationOpen,
		RiskRating:         input.RiskRating,
		OpenDate:           openDate,
		TargetDate:         targetDate,
		OriginalTargetDate: targetDate,
		SLACalculatedAt:    now,
		SLADays:            resolution.Days,
		StatusChangedAt:    now,
		StatusChangedBy:    actorID.String(),
		OwnerID:            input.OwnerID,
		ReviewerID:         input.ReviewerID,
	}
	if err := s.observations.Create(ctx, obs, audit.Number); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "observation sequence collision, retry")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create observation")
	}

	s.recordHistory(ctx, trail.Entry{
		ObservationID: obs.ID,
		FromStatus:    nil,
		ToStatus:      obs.Status,
		Reason:        "observation created",
		Actor:         actorID.String(),
		CreatedAt:     now,
	})
	s.dispatch(ctx, notify.Notification{
		Type:        notify.TypeObservationCreated,
		RecipientID: obs.OwnerID,
		Payload: map[string]string{
			"observation_id": obs.ID.String(),
			"label":          obs.Label,
			"target_date":    obs.TargetDate.Format(time.RFC3339),
		},
	})
	s.metrics.IncTransition("observation", string(obs.Status))

	return obs, nil
}

// Transition moves an observation to targetStatus when the transition table
// allows it. The conditional store write guarantees that of two concurrent
// transitions from the same prior status, exactly one wins; the loser gets a
// conflict error.
func (s *ObservationService) Transition(ctx context.Context, observationID id.ObservationID, targetStatus models.ObservationStatus, actorID id.UserID, reason string) (*models.Observation, error) {
	ctx, span := tracer.Start(ctx, "observation.transition")
	defer span.End()

	if !targetStatus.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown observation status %q", targetStatus)
	}

	obs, err := s.observations.Get(ctx, observationID, false)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "observation not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load observation")
	}

	from := obs.Status
	if !from.CanTransitionTo(targetStatus) {
		s.metrics.IncInvalidTransition("observation")
		return nil, dErrors.Newf(dErrors.CodeInvalidTransition, "cannot transition observation from %s to %s", from, targetStatus).
			WithDetail("from", string(from)).
			WithDetail("to", string(targetStatus))
	}

	now := requestcontext.Now(ctx)
	updated, err := s.observations.TransitionStatus(ctx, observationID, from, targetStatus, func(o *models.Observation) {
		prev := o.Status
		o.PreviousStatus = &prev
		o.StatusChangedAt = now
		o.StatusChangedBy = actorID.String()
		if targetStatus == models.ObservationClosed {
			closedAt := now
			o.ClosedAt = &closedAt
		}
	})
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "observation not found")
		case errors.Is(err, sentinel.ErrConflict):
			s.metrics.IncTransitionConflict()
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "observation was modified concurrently").
				WithDetail("from", string(from)).
				WithDetail("to", string(targetStatus))
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to transition observation")
		}
	}

	s.recordHistory(ctx, trail.Entry{
		ObservationID: updated.ID,
		FromStatus:    &from,
		ToStatus:      updated.Status,
		Reason:        reason,
		Actor:         actorID.String(),
		CreatedAt:     now,
	})
	s.dispatch(ctx, notify.Notification{
		Type:        notify.TypeStatusChanged,
		RecipientID: updated.OwnerID,
		Payload: map[string]string{
			"observation_id": updated.ID.String(),
			"label":          updated.Label,
			"from":           string(from),
			"to":             string(updated.Status),
		},
	})
	s.metrics.IncTransition("observation", string(updated.Status))
	s.logger.InfoContext(ctx, "observation transitioned",
		"observation_id", updated.ID.String(),
		"from", string(from),
		"to", string(updated.Status),
		"actor", actorID.String(),
	)

	return updated, nil
}

// UpdateObservationInput patches non-status fields. Nil pointers leave the
// field untouched. ExtensionReason is consumed only when TargetDate moves
// later than the current deadline.
type UpdateObservationInput struct {
	Title           *string
	Description     *string
	TargetDate      *time.Time
	ExtensionReason string
	OwnerID         *id.UserID
	ReviewerID      *id.UserID
}

// Update edits an observation outside the status machine. Closed observations
// are immutable, and the owner is locked out while evidence is in review.
// Pushing the deadline later requires a reason and increments the extension
// count; the original target date never changes.
func (s *ObservationService) Update(ctx context.Context, observationID id.ObservationID, input UpdateObservationInput, actorID id.UserID) (*models.Observation, error) {
	ctx, span := tracer.Start(ctx, "observation.update")
	defer span.End()

	obs, err := s.observations.Get(ctx, observationID, false)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "observation not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load observation")
	}

	if obs.Status == models.ObservationClosed {
		return nil, dErrors.New(dErrors.CodeForbidden, "closed observations cannot be edited")
	}
	ownerLocked := obs.Status == models.ObservationEvidenceSubmitted || obs.Status == models.ObservationUnderReview
	if actorID == obs.OwnerID && ownerLocked {
		return nil, dErrors.Newf(dErrors.CodeForbidden, "owner cannot edit the observation while it is %s", obs.Status).
			WithDetail("status", string(obs.Status))
	}

	if input.Title != nil {
		if *input.Title == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "title must not be empty")
		}
		obs.Title = *input.Title
	}
	if input.Description != nil {
		obs.Description = *input.Description
	}
	if input.OwnerID != nil {
		if input.OwnerID.IsNil() {
			return nil, dErrors.New(dErrors.CodeValidation, "owner id must not be empty")
		}
		exists, err := s.directory.Exists(ctx, *input.OwnerID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check owner")
		}
		if !exists {
			return nil, dErrors.New(dErrors.CodeNotFound, "owner not found")
		}
		obs.OwnerID = *input.OwnerID
	}
	if input.ReviewerID != nil {
		if !input.ReviewerID.IsNil() {
			exists, err := s.directory.Exists(ctx, *input.ReviewerID)
			if err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check reviewer")
			}
			if !exists {
				return nil, dErrors.New(dErrors.CodeNotFound, "reviewer not found")
			}
		}
		obs.ReviewerID = *input.ReviewerID
	}

	if input.TargetDate != nil {
		if input.TargetDate.After(obs.TargetDate) {
			if input.ExtensionReason == "" {
				return nil, dErrors.New(dErrors.CodeValidation, "extension reason is required to move the target date later").
					WithDetail("current_target_date", obs.TargetDate.Format(time.RFC3339)).
					WithDetail("requested_target_date", input.TargetDate.Format(time.RFC3339))
			}
			obs.ExtensionCount++
			obs.ExtensionReason = input.ExtensionReason
		}
		obs.TargetDate = *input.TargetDate
	}

	if err := s.observations.Update(ctx, obs); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "observation not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update observation")
	}
	return obs, nil
}

// Get loads a single observation.
func (s *ObservationService) Get(ctx context.Context, observationID id.ObservationID) (*models.Observation, error) {
	obs, err := s.observations.Get(ctx, observationID, false)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "observation not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load observation")
	}
	return obs, nil
}

// List returns observations matching the filter.
func (s *ObservationService) List(ctx context.Context, filter ports.ObservationFilter) ([]*models.Observation, error) {
	out, err := s.observations.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list observations")
	}
	return out, nil
}

// SoftDelete stamps the observation deleted without removing the row; history
// and evidence chains stay intact.
func (s *ObservationService) SoftDelete(ctx context.Context, observationID id.ObservationID) error {
	if err := s.observations.SoftDelete(ctx, observationID, requestcontext.Now(ctx)); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeNotFound, "observation not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete observation")
	}
	return nil
}

func (s *ObservationService) recordHistory(ctx context.Context, entry trail.Entry) {
	if s.history == nil {
		return
	}
	s.history.Record(ctx, entry)
}

func (s *ObservationService) dispatch(ctx context.Context, n notify.Notification) {
	if s.notifier == nil {
		return
	}
	s.notifier.Dispatch(ctx, n)
}
