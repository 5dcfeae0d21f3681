package evidence

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"

	"remedia/internal/notify"
	"remedia/internal/workflow/models"
	id "remedia/pkg/domain"
	dErrors "remedia/pkg/domain-errors"
	"remedia/pkg/platform/sentinel"
	"remedia/pkg/requestcontext"
)

var tracer = otel.Tracer("remedia/internal/evidence")

// WorkflowDriver is the slice of the observation service the gate needs:
// loading the current status and driving the gated transitions. The driver
// owns the transition table and the conditional write.
type WorkflowDriver interface {
	Get(ctx context.Context, observationID id.ObservationID) (*models.Observation, error)
	Transition(ctx context.Context, observationID id.ObservationID, target models.ObservationStatus, actorID id.UserID, reason string) (*models.Observation, error)
}

// Notifier enqueues a notification without blocking.
type Notifier interface {
	Dispatch(ctx context.Context, n notify.Notification)
}

// Service enforces the evidence review gate.
type Service struct {
	store    Store
	workflow WorkflowDriver
	notifier Notifier
	logger   *slog.Logger
}

type Option func(*Service)

func WithNotifier(notifier Notifier) Option {
	return func(s *Service) {
		s.notifier = notifier
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func NewService(store Store, workflow WorkflowDriver, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("evidence store is required")
	}
	if workflow == nil {
		return nil, errors.New("workflow driver is required")
	}
	svc := &Service{
		store:    store,
		workflow: workflow,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// UploadInput carries a new evidence file. FileRef is the opaque storage
// reference; this service never touches file contents.
type UploadInput struct {
	ObservationID id.ObservationID
	FileName      string
	FileRef       string
}

// Upload attaches a new evidence version to an open observation. The first
// version of a file starts at 1 and in PENDING_REVIEW.
func (s *Service) Upload(ctx context.Context, input UploadInput, actorID id.UserID) (*Evidence, error) {
	ctx, span := tracer.Start(ctx, "evidence.upload")
	defer span.End()

	if input.FileName == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "file name is required")
	}
	if input.FileRef == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "file reference is required")
	}

	obs, err := s.workflow.Get(ctx, input.ObservationID)
	if err != nil {
		return nil, err
	}
	if obs.Status == models.ObservationClosed {
		return nil, dErrors.New(dErrors.CodeInvalidState, "cannot attach evidence to a closed observation")
	}

	ev := &Evidence{
		ID:            id.NewEvidenceID(),
		ObservationID: obs.ID,
		FileName:      input.FileName,
		FileRef:       input.FileRef,
		Version:       1,
		Status:        StatusPendingReview,
		UploadedByID:  actorID,
		UploadedAt:    requestcontext.Now(ctx),
	}
	if err := s.store.Create(ctx, ev); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store evidence")
	}
	return ev, nil
}

// Supersede uploads a corrected version of an existing evidence file. The new
// version starts a fresh review; the old version drops out of the gate but
// keeps its review outcome.
func (s *Service) Supersede(ctx context.Context, evidenceID id.EvidenceID, input UploadInput, actorID id.UserID) (*Evidence, error) {
	ctx, span := tracer.Start(ctx, "evidence.supersede")
	defer span.End()

	if input.FileName == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "file name is required")
	}
	if input.FileRef == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "file reference is required")
	}

	prior, err := s.store.Get(ctx, evidenceID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "evidence not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load evidence")
	}
	if !prior.Active() {
		return nil, dErrors.New(dErrors.CodeInvalidState, "evidence version is no longer active")
	}

	obs, err := s.workflow.Get(ctx, prior.ObservationID)
	if err != nil {
		return nil, err
	}
	if obs.Status == models.ObservationClosed {
		return nil, dErrors.New(dErrors.CodeInvalidState, "cannot attach evidence to a closed observation")
	}

	next := &Evidence{
		ID:            id.NewEvidenceID(),
		ObservationID: prior.ObservationID,
		FileName:      input.FileName,
		FileRef:       input.FileRef,
		Version:       prior.Version + 1,
		SupersedesID:  &prior.ID,
		Status:        StatusPendingReview,
		UploadedByID:  actorID,
		UploadedAt:    requestcontext.Now(ctx),
	}
	if err := s.store.Create(ctx, next); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store evidence")
	}

	prior.SupersededByID = &next.ID
	if err := s.store.Update(ctx, prior); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to supersede evidence")
	}
	return next, nil
}

// ReviewDecision is the reviewer's verdict on one evidence version.
type ReviewDecision string

const (
	DecisionApprove ReviewDecision = "APPROVE"
	DecisionReject  ReviewDecision = "REJECT"
)

// ReviewInput carries the verdict. RejectionReason is mandatory for rejects.
type ReviewInput struct {
	Decision        ReviewDecision
	Remarks         string
	RejectionReason string
}

// Review records a verdict on a pending evidence version. Each version is
// reviewed exactly once; corrections go through Supersede.
func (s *Service) Review(ctx context.Context, evidenceID id.EvidenceID, input ReviewInput, actorID id.UserID) (*Evidence, error) {
	ctx, span := tracer.Start(ctx, "evidence.review")
	defer span.End()

	ev, err := s.store.Get(ctx, evidenceID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "evidence not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load evidence")
	}
	if ev.Status != StatusPendingReview {
		return nil, dErrors.Newf(dErrors.CodeInvalidState, "evidence is already %s", ev.Status).
			WithDetail("status", string(ev.Status))
	}
	if !ev.Active() {
		return nil, dErrors.New(dErrors.CodeInvalidState, "evidence version is no longer active")
	}

	now := requestcontext.Now(ctx)
	switch input.Decision {
	case DecisionApprove:
		ev.Status = StatusApproved
	case DecisionReject:
		if input.RejectionReason == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "rejection reason is required")
		}
		ev.Status = StatusRejected
		ev.RejectionReason = input.RejectionReason
	default:
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown review decision %q", input.Decision)
	}
	ev.ReviewedByID = actorID
	ev.ReviewRemarks = input.Remarks
	ev.ReviewedAt = &now

	if err := s.store.Update(ctx, ev); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store review")
	}

	if s.notifier != nil {
		s.notifier.Dispatch(ctx, notify.Notification{
			Type:        notify.TypeEvidenceReviewed,
			RecipientID: ev.UploadedByID,
			Payload: map[string]string{
				"evidence_id": ev.ID.String(),
				"file_name":   ev.FileName,
				"status":      string(ev.Status),
			},
		})
	}
	return ev, nil
}

// SubmitForReview moves the observation to EVIDENCE_SUBMITTED. At least one
// active, non-rejected evidence version must exist; an observation with
// nothing to review never enters the review queue.
func (s *Service) SubmitForReview(ctx context.Context, observationID id.ObservationID, actorID id.UserID) (*models.Observation, error) {
	ctx, span := tracer.Start(ctx, "evidence.submit_for_review")
	defer span.End()

	versions, err := s.store.ListByObservation(ctx, observationID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list evidence")
	}
	submittable := 0
	for _, ev := range versions {
		if ev.Active() && ev.Status != StatusRejected {
			submittable++
		}
	}
	if submittable == 0 {
		if len(versions) == 0 {
			return nil, dErrors.New(dErrors.CodeInvalidState, "no evidence uploaded")
		}
		return nil, dErrors.New(dErrors.CodeInvalidState, "all evidence has been rejected")
	}

	return s.workflow.Transition(ctx, observationID, models.ObservationEvidenceSubmitted, actorID, "evidence submitted for review")
}

// ApproveAndClose closes an observation under review once every active
// evidence version carries an approval.
func (s *Service) ApproveAndClose(ctx context.Context, observationID id.ObservationID, actorID id.UserID) (*models.Observation, error) {
	ctx, span := tracer.Start(ctx, "evidence.approve_and_close")
	defer span.End()

	obs, err := s.workflow.Get(ctx, observationID)
	if err != nil {
		return nil, err
	}
	if obs.Status != models.ObservationUnderReview {
		return nil, dErrors.Newf(dErrors.CodeInvalidState, "observation is %s, not under review", obs.Status).
			WithDetail("status", string(obs.Status))
	}

	versions, err := s.store.ListByObservation(ctx, observationID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list evidence")
	}
	for _, ev := range versions {
		if ev.Active() && ev.Status != StatusApproved {
			return nil, dErrors.New(dErrors.CodeInvalidState, "unreviewed evidence remains").
				WithDetail("evidence_id", ev.ID.String()).
				WithDetail("status", string(ev.Status))
		}
	}

	return s.workflow.Transition(ctx, observationID, models.ObservationClosed, actorID, "evidence approved, observation closed")
}

// ListByObservation returns the full version history for an observation.
func (s *Service) ListByObservation(ctx context.Context, observationID id.ObservationID) ([]*Evidence, error) {
	versions, err := s.store.ListByObservation(ctx, observationID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list evidence")
	}
	return versions, nil
}
