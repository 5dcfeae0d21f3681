// Package postgres provides the SQL-backed evidence store.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"remedia/internal/evidence"
	id "remedia/pkg/domain"
	"remedia/pkg/platform/sentinel"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const evidenceColumns = `
	id, observation_id, file_name, file_ref, version, supersedes_id,
	superseded_by_id, status, uploaded_by_id, reviewed_by_id, review_remarks,
	rejection_reason, uploaded_at, reviewed_at, deleted_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvidence(row rowScanner) (*evidence.Evidence, error) {
	var (
		ev           evidence.Evidence
		evID         uuid.UUID
		obsID        uuid.UUID
		supersedes   uuid.NullUUID
		supersededBy uuid.NullUUID
		status       string
		uploadedBy   uuid.UUID
		reviewedBy   uuid.NullUUID
		remarks      sql.NullString
		rejection    sql.NullString
		reviewedAt   sql.NullTime
		deletedAt    sql.NullTime
	)
	err := row.Scan(
		&evID, &obsID, &ev.FileName, &ev.FileRef, &ev.Version, &supersedes,
		&supersededBy, &status, &uploadedBy, &reviewedBy, &remarks,
		&rejection, &ev.UploadedAt, &reviewedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}
	ev.ID = id.EvidenceID(evID)
	ev.ObservationID = id.ObservationID(obsID)
	ev.Status = evidence.Status(status)
	ev.UploadedByID = id.UserID(uploadedBy)
	if supersedes.Valid {
		linked := id.EvidenceID(supersedes.UUID)
		ev.SupersedesID = &linked
	}
	if supersededBy.Valid {
		linked := id.EvidenceID(supersededBy.UUID)
		ev.SupersededByID = &linked
	}
	if reviewedBy.Valid {
		ev.ReviewedByID = id.UserID(reviewedBy.UUID)
	}
	if remarks.Valid {
		ev.ReviewRemarks = remarks.String
	}
	if rejection.Valid {
		ev.RejectionReason = rejection.String
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time
		ev.ReviewedAt = &t
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		ev.DeletedAt = &t
	}
	return &ev, nil
}

func nullEvidenceID(e *id.EvidenceID) uuid.NullUUID {
	if e == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*e), Valid: true}
}

func nullUserID(u id.UserID) uuid.NullUUID {
	if u.IsNil() {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(u), Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func (s *Store) Create(ctx context.Context, ev *evidence.Evidence) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO evidence (
			id, observation_id, file_name, file_ref, version, supersedes_id,
			superseded_by_id, status, uploaded_by_id, reviewed_by_id,
			review_remarks, rejection_reason, uploaded_at, reviewed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		uuid.UUID(ev.ID), uuid.UUID(ev.ObservationID), ev.FileName, ev.FileRef,
		ev.Version, nullEvidenceID(ev.SupersedesID), nullEvidenceID(ev.SupersededByID),
		string(ev.Status), uuid.UUID(ev.UploadedByID), nullUserID(ev.ReviewedByID),
		ev.ReviewRemarks, ev.RejectionReason, ev.UploadedAt, nullTime(ev.ReviewedAt),
	)
	return err
}

func (s *Store) Get(ctx context.Context, evidenceID id.EvidenceID) (*evidence.Evidence, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+evidenceColumns+`
		FROM evidence
		WHERE id = $1 AND deleted_at IS NULL`,
		uuid.UUID(evidenceID),
	)
	ev, err := scanEvidence(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func (s *Store) Update(ctx context.Context, ev *evidence.Evidence) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE evidence
		SET status = $2, superseded_by_id = $3, reviewed_by_id = $4,
		    review_remarks = $5, rejection_reason = $6, reviewed_at = $7
		WHERE id = $1 AND deleted_at IS NULL`,
		uuid.UUID(ev.ID), string(ev.Status), nullEvidenceID(ev.SupersededByID),
		nullUserID(ev.ReviewedByID), ev.ReviewRemarks, ev.RejectionReason,
		nullTime(ev.ReviewedAt),
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Store) ListByObservation(ctx context.Context, observationID id.ObservationID) ([]*evidence.Evidence, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+evidenceColumns+`
		FROM evidence
		WHERE observation_id = $1 AND deleted_at IS NULL
		ORDER BY uploaded_at, version`,
		uuid.UUID(observationID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*evidence.Evidence
	for rows.Next() {
		ev, err := scanEvidence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
