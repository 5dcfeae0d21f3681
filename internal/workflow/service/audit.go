package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"remedia/internal/notify"
	"remedia/internal/platform/metrics"
	"remedia/internal/workflow/models"
	"remedia/internal/workflow/ports"
	id "remedia/pkg/domain"
	dErrors "remedia/pkg/domain-errors"
	"remedia/pkg/platform/sentinel"
	"remedia/pkg/requestcontext"
)

// AuditService manages audit engagements and their lifecycle.
type AuditService struct {
	audits       ports.AuditStore
	observations ports.ObservationStore
	directory    ports.UserDirectory
	notifier     ports.Notifier
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

type AuditOption func(*AuditService)

func WithAuditNotifier(notifier ports.Notifier) AuditOption {
	return func(s *AuditService) {
		s.notifier = notifier
	}
}

func WithAuditLogger(logger *slog.Logger) AuditOption {
	return func(s *AuditService) {
		s.logger = logger
	}
}

func WithAuditMetrics(m *metrics.Metrics) AuditOption {
	return func(s *AuditService) {
		s.metrics = m
	}
}

func NewAuditService(
	audits ports.AuditStore,
	observations ports.ObservationStore,
	directory ports.UserDirectory,
	opts ...AuditOption,
) (*AuditService, error) {
	if audits == nil {
		return nil, errors.New("audit store is required")
	}
	if observations == nil {
		return nil, errors.New("observation store is required")
	}
	if directory == nil {
		return nil, errors.New("user directory is required")
	}

	svc := &AuditService{
		audits:       audits,
		observations: observations,
		directory:    directory,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// CreateAuditInput carries the fields of a new engagement. Number is the
// externally visible audit number and must be unique.
type CreateAuditInput struct {
	Number        string
	Type          models.AuditType
	Title         string
	PeriodStart   time.Time
	PeriodEnd     time.Time
	PlannedStart  *time.Time
	PlannedEnd    *time.Time
	LeadAuditorID id.UserID
}

// Create registers a new audit in PLANNED.
func (s *AuditService) Create(ctx context.Context, input CreateAuditInput, actorID id.UserID) (*models.Audit, error) {
	ctx, span := tracer.Start(ctx, "audit.create")
	defer span.End()

	if input.Number == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "audit number is required")
	}
	if input.Title == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "title is required")
	}
	if !input.Type.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown audit type %q", input.Type)
	}
	if input.PeriodEnd.Before(input.PeriodStart) {
		return nil, dErrors.New(dErrors.CodeValidation, "period end must not precede period start")
	}
	if input.LeadAuditorID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "lead auditor id is required")
	}

	exists, err := s.directory.Exists(ctx, input.LeadAuditorID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check lead auditor")
	}
	if !exists {
		return nil, dErrors.New(dErrors.CodeNotFound, "lead auditor not found")
	}

	audit := &models.Audit{
		ID:               id.NewAuditID(),
		Number:           input.Number,
		Type:             input.Type,
		Status:           models.AuditPlanned,
		Title:            input.Title,
		PeriodStart:      input.PeriodStart,
		PeriodEnd:        input.PeriodEnd,
		PlannedStartDate: input.PlannedStart,
		PlannedEndDate:   input.PlannedEnd,
		LeadAuditorID:    input.LeadAuditorID,
	}
	if err := s.audits.Create(ctx, audit); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "audit number already in use").
				WithDetail("number", input.Number)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create audit")
	}

	s.logger.InfoContext(ctx, "audit created",
		"audit_id", audit.ID.String(),
		"number", audit.Number,
		"actor", actorID.String(),
	)
	return audit, nil
}

// Transition moves an audit to targetStatus per the audit transition table.
// The first move into IN_PROGRESS stamps the actual start date; CLOSED stamps
// the actual end date and close time. Both stamps are idempotent.
func (s *AuditService) Transition(ctx context.Context, auditID id.AuditID, targetStatus models.AuditStatus, actorID id.UserID) (*models.Audit, error) {
	ctx, span := tracer.Start(ctx, "audit.transition")
	defer span.End()

	if !targetStatus.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown audit status %q", targetStatus)
	}

	audit, err := s.audits.Get(ctx, auditID, false)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "audit not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load audit")
	}

	from := audit.Status
	if !from.CanTransitionTo(targetStatus) {
		s.metrics.IncInvalidTransition("audit")
		return nil, dErrors.Newf(dErrors.CodeInvalidTransition, "cannot transition audit from %s to %s", from, targetStatus).
			WithDetail("from", string(from)).
			WithDetail("to", string(targetStatus))
	}

	now := requestcontext.Now(ctx)
	updated, err := s.audits.TransitionStatus(ctx, auditID, from, targetStatus, func(a *models.Audit) {
		if targetStatus == models.AuditInProgress && a.ActualStartDate == nil {
			startedAt := now
			a.ActualStartDate = &startedAt
		}
		if targetStatus == models.AuditClosed {
			closedAt := now
			if a.ActualEndDate == nil {
				a.ActualEndDate = &closedAt
			}
			a.ClosedAt = &closedAt
		}
	})
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "audit not found")
		case errors.Is(err, sentinel.ErrConflict):
			s.metrics.IncTransitionConflict()
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "audit was modified concurrently").
				WithDetail("from", string(from)).
				WithDetail("to", string(targetStatus))
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to transition audit")
		}
	}

	if s.notifier != nil {
		s.notifier.Dispatch(ctx, notify.Notification{
			Type:        notify.TypeAuditStatusChanged,
			RecipientID: updated.LeadAuditorID,
			Payload: map[string]string{
				"audit_id": updated.ID.String(),
				"number":   updated.Number,
				"from":     string(from),
				"to":       string(updated.Status),
			},
		})
	}
	s.metrics.IncTransition("audit", string(updated.Status))
	s.logger.InfoContext(ctx, "audit transitioned",
		"audit_id", updated.ID.String(),
		"from", string(from),
		"to", string(updated.Status),
		"actor", actorID.String(),
	)
	return updated, nil
}

// Get loads a single audit.
func (s *AuditService) Get(ctx context.Context, auditID id.AuditID) (*models.Audit, error) {
	audit, err := s.audits.Get(ctx, auditID, false)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "audit not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load audit")
	}
	return audit, nil
}

// List returns all audits, optionally including soft-deleted ones.
func (s *AuditService) List(ctx context.Context, includeDeleted bool) ([]*models.Audit, error) {
	out, err := s.audits.List(ctx, includeDeleted)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audits")
	}
	return out, nil
}

// SoftDelete marks an audit deleted. Audits with observations still open are
// refused; close or delete the observations first.
func (s *AuditService) SoftDelete(ctx context.Context, auditID id.AuditID) error {
	ctx, span := tracer.Start(ctx, "audit.delete")
	defer span.End()

	active, err := s.observations.CountActiveByAudit(ctx, auditID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to count observations")
	}
	if active > 0 {
		return dErrors.Newf(dErrors.CodeConflict, "audit has %d active observations", active).
			WithDetail("active_observations", strconv.Itoa(active))
	}
	if err := s.audits.SoftDelete(ctx, auditID, requestcontext.Now(ctx)); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeNotFound, "audit not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete audit")
	}
	return nil
}
