package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"remedia/internal/trail"
	"remedia/internal/workflow/models"
	id "remedia/pkg/domain"
)

// Store persists status history in PostgreSQL. INSERT and SELECT only; the
// table carries no UPDATE or DELETE path by design.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, entry trail.Entry) error {
	var from sql.NullString
	if entry.FromStatus != nil {
		from = sql.NullString{String: string(*entry.FromStatus), Valid: true}
	}

	query := `
		INSERT INTO status_history (id, observation_id, from_status, to_status, reason, actor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		uuid.UUID(entry.ObservationID),
		from,
		string(entry.ToStatus),
		entry.Reason,
		entry.Actor,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert status history: %w", err)
	}
	return nil
}

func (s *Store) ListByObservation(ctx context.Context, observationID id.ObservationID) ([]trail.Entry, error) {
	query := `
		SELECT id, observation_id, from_status, to_status, reason, actor, created_at
		FROM status_history
		WHERE observation_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(observationID))
	if err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	defer rows.Close()

	var entries []trail.Entry
	for rows.Next() {
		var (
			entry trail.Entry
			obsID uuid.UUID
			from  sql.NullString
			to    string
		)
		if err := rows.Scan(&entry.ID, &obsID, &from, &to, &entry.Reason, &entry.Actor, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan status history: %w", err)
		}
		entry.ObservationID = id.ObservationID(obsID)
		if from.Valid {
			status := models.ObservationStatus(from.String)
			entry.FromStatus = &status
		}
		entry.ToStatus = models.ObservationStatus(to)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status history: %w", err)
	}
	return entries, nil
}
