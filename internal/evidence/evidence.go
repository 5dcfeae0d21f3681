// Package evidence implements the review gate between an observation and its
// closure. Files are versioned; a new version supersedes the old one instead
// of replacing it, so the review trail survives corrections.
package evidence

import (
	"context"
	"time"

	id "remedia/pkg/domain"
)

// Status is the review state of a single evidence version.
type Status string

const (
	StatusPendingReview Status = "PENDING_REVIEW"
	StatusApproved      Status = "APPROVED"
	StatusRejected      Status = "REJECTED"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPendingReview, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Evidence is one uploaded file version attached to an observation.
// SupersedesID links a correction to the version it replaces; SupersededByID
// is set on the replaced row. A row is active while it is neither deleted nor
// superseded.
type Evidence struct {
	ID              id.EvidenceID
	ObservationID   id.ObservationID
	FileName        string
	FileRef         string
	Version         int
	SupersedesID    *id.EvidenceID
	SupersededByID  *id.EvidenceID
	Status          Status
	UploadedByID    id.UserID
	ReviewedByID    id.UserID
	ReviewRemarks   string
	RejectionReason string
	UploadedAt      time.Time
	ReviewedAt      *time.Time
	DeletedAt       *time.Time
}

// Active reports whether this version still counts toward the review gate.
func (e *Evidence) Active() bool {
	return e.DeletedAt == nil && e.SupersededByID == nil
}

// Store is the persistence port for evidence rows.
type Store interface {
	Create(ctx context.Context, ev *Evidence) error

	Get(ctx context.Context, evidenceID id.EvidenceID) (*Evidence, error)

	// Update persists review outcomes and supersession links.
	Update(ctx context.Context, ev *Evidence) error

	// ListByObservation returns every non-deleted version for an observation,
	// oldest first.
	ListByObservation(ctx context.Context, observationID id.ObservationID) ([]*Evidence, error)
}
