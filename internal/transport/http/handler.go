// Package http wires the workflow services to their REST endpoints. Handlers
// decode, call the service, and encode; every rule lives below this layer.
package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"remedia/internal/evidence"
	"remedia/internal/sla"
	"remedia/internal/trail"
	"remedia/internal/workflow/models"
	"remedia/internal/workflow/ports"
	"remedia/internal/workflow/service"
	id "remedia/pkg/domain"
	dErrors "remedia/pkg/domain-errors"
	"remedia/pkg/platform/httputil"
	"remedia/pkg/requestcontext"
)

// ObservationService defines the observation operations the transport needs.
type ObservationService interface {
	Create(ctx context.Context, input service.CreateObservationInput, actorID id.UserID) (*models.Observation, error)
	Transition(ctx context.Context, observationID id.ObservationID, target models.ObservationStatus, actorID id.UserID, reason string) (*models.Observation, error)
	Update(ctx context.Context, observationID id.ObservationID, input service.UpdateObservationInput, actorID id.UserID) (*models.Observation, error)
	Get(ctx context.Context, observationID id.ObservationID) (*models.Observation, error)
	List(ctx context.Context, filter ports.ObservationFilter) ([]*models.Observation, error)
	SoftDelete(ctx context.Context, observationID id.ObservationID) error
}

// AuditService defines the audit operations the transport needs.
type AuditService interface {
	Create(ctx context.Context, input service.CreateAuditInput, actorID id.UserID) (*models.Audit, error)
	Transition(ctx context.Context, auditID id.AuditID, target models.AuditStatus, actorID id.UserID) (*models.Audit, error)
	Get(ctx context.Context, auditID id.AuditID) (*models.Audit, error)
	List(ctx context.Context, includeDeleted bool) ([]*models.Audit, error)
	SoftDelete(ctx context.Context, auditID id.AuditID) error
}

// EvidenceService defines the review gate operations.
type EvidenceService interface {
	Upload(ctx context.Context, input evidence.UploadInput, actorID id.UserID) (*evidence.Evidence, error)
	Supersede(ctx context.Context, evidenceID id.EvidenceID, input evidence.UploadInput, actorID id.UserID) (*evidence.Evidence, error)
	Review(ctx context.Context, evidenceID id.EvidenceID, input evidence.ReviewInput, actorID id.UserID) (*evidence.Evidence, error)
	SubmitForReview(ctx context.Context, observationID id.ObservationID, actorID id.UserID) (*models.Observation, error)
	ApproveAndClose(ctx context.Context, observationID id.ObservationID, actorID id.UserID) (*models.Observation, error)
	ListByObservation(ctx context.Context, observationID id.ObservationID) ([]*evidence.Evidence, error)
}

// RuleService defines SLA rule administration.
type RuleService interface {
	Create(ctx context.Context, input sla.CreateRuleInput) (sla.Rule, error)
	Deactivate(ctx context.Context, ruleID id.RuleID) error
	List(ctx context.Context) ([]sla.Rule, error)
}

// HistoryService lists the status trail of an observation.
type HistoryService interface {
	List(ctx context.Context, observationID id.ObservationID) ([]trail.Entry, error)
}

// SweepRunner triggers an on-demand overdue sweep.
type SweepRunner interface {
	Sweep(ctx context.Context) (int, error)
}

// Handler holds the services behind the REST surface.
type Handler struct {
	observations ObservationService
	audits       AuditService
	evidence     EvidenceService
	rules        RuleService
	history      HistoryService
	sweeper      SweepRunner
	logger       *slog.Logger
}

func New(
	observations ObservationService,
	audits AuditService,
	evidenceSvc EvidenceService,
	rules RuleService,
	history HistoryService,
	sweeper SweepRunner,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		observations: observations,
		audits:       audits,
		evidence:     evidenceSvc,
		rules:        rules,
		history:      history,
		sweeper:      sweeper,
		logger:       logger,
	}
}

// Register mounts all endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/audits", func(r chi.Router) {
		r.Post("/", h.HandleCreateAudit)
		r.Get("/", h.HandleListAudits)
		r.Get("/{auditID}", h.HandleGetAudit)
		r.Post("/{auditID}/transition", h.HandleTransitionAudit)
		r.Delete("/{auditID}", h.HandleDeleteAudit)
	})

	r.Route("/observations", func(r chi.Router) {
		r.Post("/", h.HandleCreateObservation)
		r.Get("/", h.HandleListObservations)
		r.Get("/{observationID}", h.HandleGetObservation)
		r.Patch("/{observationID}", h.HandleUpdateObservation)
		r.Delete("/{observationID}", h.HandleDeleteObservation)
		r.Post("/{observationID}/transition", h.HandleTransitionObservation)
		r.Get("/{observationID}/history", h.HandleObservationHistory)
		r.Post("/{observationID}/evidence", h.HandleUploadEvidence)
		r.Get("/{observationID}/evidence", h.HandleListEvidence)
		r.Post("/{observationID}/submit-for-review", h.HandleSubmitForReview)
		r.Post("/{observationID}/approve-and-close", h.HandleApproveAndClose)
	})

	r.Route("/evidence", func(r chi.Router) {
		r.Post("/{evidenceID}/review", h.HandleReviewEvidence)
		r.Post("/{evidenceID}/supersede", h.HandleSupersedeEvidence)
	})

	r.Route("/sla/rules", func(r chi.Router) {
		r.Post("/", h.HandleCreateRule)
		r.Get("/", h.HandleListRules)
		r.Delete("/{ruleID}", h.HandleDeactivateRule)
	})

	r.Post("/admin/sweep", h.HandleSweep)
}

// actor fetches the acting principal, rejecting requests without one.
func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (id.UserID, bool) {
	actorID := requestcontext.ActorID(r.Context())
	if actorID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "actor identity required"))
		return id.UserID{}, false
	}
	return actorID, true
}
