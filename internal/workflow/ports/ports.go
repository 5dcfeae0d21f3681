// Package ports defines the shared interfaces of the workflow engine.
// Interfaces live here when more than one service consumes them; stores get
// one implementation pair (memory, postgres) each.
package ports

import (
	"context"
	"time"

	"remedia/internal/notify"
	"remedia/internal/sla"
	"remedia/internal/trail"
	"remedia/internal/workflow/models"
	id "remedia/pkg/domain"
)

// ObservationFilter narrows List results. IncludeDeleted is explicit at the
// contract so soft-delete behavior is visible at every call site.
type ObservationFilter struct {
	AuditID        *id.AuditID
	Status         *models.ObservationStatus
	OwnerID        *id.UserID
	IncludeDeleted bool
}

// ObservationStore is the persistence port for observations. All status
// writes go through TransitionStatus; Update must never change Status.
type ObservationStore interface {
	// Create persists the observation, assigning the next per-audit sequence
	// number and the label "<labelPrefix>-OBS-<seq>".
	Create(ctx context.Context, obs *models.Observation, labelPrefix string) error

	Get(ctx context.Context, observationID id.ObservationID, includeDeleted bool) (*models.Observation, error)

	// Update persists non-status fields. Returns sentinel.ErrNotFound for
	// unknown or deleted rows.
	Update(ctx context.Context, obs *models.Observation) error

	// TransitionStatus applies a conditional status write: the row must still
	// be in `from` or the write fails with sentinel.ErrConflict, so two
	// concurrent transitions from the same prior status cannot both succeed.
	// apply mutates the row inside the same conditional write.
	TransitionStatus(ctx context.Context, observationID id.ObservationID, from, to models.ObservationStatus, apply func(*models.Observation)) (*models.Observation, error)

	List(ctx context.Context, filter ObservationFilter) ([]*models.Observation, error)

	// ListOverdueCandidates returns up to limit observations whose status is
	// outside {CLOSED, OVERDUE}, target date strictly before `before`, and
	// that are not soft-deleted.
	ListOverdueCandidates(ctx context.Context, before time.Time, limit int) ([]*models.Observation, error)

	// CountActiveByAudit counts non-deleted observations owned by an audit.
	CountActiveByAudit(ctx context.Context, auditID id.AuditID) (int, error)

	SoftDelete(ctx context.Context, observationID id.ObservationID, at time.Time) error
}

// AuditStore is the persistence port for audit containers.
type AuditStore interface {
	// Create persists the audit. Duplicate numbers fail with sentinel.ErrConflict.
	Create(ctx context.Context, audit *models.Audit) error

	Get(ctx context.Context, auditID id.AuditID, includeDeleted bool) (*models.Audit, error)

	// TransitionStatus applies a conditional status write, same contract as
	// ObservationStore.TransitionStatus.
	TransitionStatus(ctx context.Context, auditID id.AuditID, from, to models.AuditStatus, apply func(*models.Audit)) (*models.Audit, error)

	List(ctx context.Context, includeDeleted bool) ([]*models.Audit, error)

	SoftDelete(ctx context.Context, auditID id.AuditID, at time.Time) error
}

// RuleSource supplies the active SLA rules used in deadline resolution.
type RuleSource interface {
	ListActive(ctx context.Context) ([]sla.Rule, error)
}

// HistoryRecorder appends status history. Implementations absorb failures;
// callers treat recording as fire-and-forget.
type HistoryRecorder interface {
	Record(ctx context.Context, entry trail.Entry)
}

// Notifier enqueues a notification without blocking.
type Notifier interface {
	Dispatch(ctx context.Context, n notify.Notification)
}

// UserDirectory answers foreign-key existence checks against the external
// user/entity system.
type UserDirectory interface {
	Exists(ctx context.Context, userID id.UserID) (bool, error)
}
