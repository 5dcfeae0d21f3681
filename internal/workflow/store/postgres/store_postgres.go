// Package postgres provides the SQL-backed workflow stores. Status writes are
// applied under a row-level lock (SELECT ... FOR UPDATE) with the prior
// status re-checked inside the transaction, so a concurrent transition from
// the same prior status loses with sentinel.ErrConflict.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"remedia/internal/workflow/models"
	"remedia/internal/workflow/ports"
	id "remedia/pkg/domain"
	"remedia/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}

// ObservationStore persists observations in PostgreSQL.
type ObservationStore struct {
	db *sql.DB
}

func NewObservationStore(db *sql.DB) *ObservationStore {
	return &ObservationStore{db: db}
}

const observationColumns = `
	id, audit_id, sequence, label, title, description, status, previous_status,
	risk_rating, open_date, target_date, original_target_date, sla_calculated_at,
	sla_days, extension_count, extension_reason, status_changed_at,
	status_changed_by, closed_at, owner_id, reviewer_id, created_at, updated_at,
	deleted_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObservation(row rowScanner) (*models.Observation, error) {
	var (
		obs        models.Observation
		obsID      uuid.UUID
		auditID    uuid.UUID
		prevStatus sql.NullString
		extReason  sql.NullString
		closedAt   sql.NullTime
		ownerID    uuid.UUID
		reviewerID uuid.NullUUID
		deletedAt  sql.NullTime
		status     string
		risk       string
	)
	err := row.Scan(
		&obsID, &auditID, &obs.Sequence, &obs.Label, &obs.Title, &obs.Description,
		&status, &prevStatus, &risk, &obs.OpenDate, &obs.TargetDate,
		&obs.OriginalTargetDate, &obs.SLACalculatedAt, &obs.SLADays,
		&obs.ExtensionCount, &extReason, &obs.StatusChangedAt,
		&obs.StatusChangedBy, &closedAt, &ownerID, &reviewerID,
		&obs.CreatedAt, &obs.UpdatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}
	obs.ID = id.ObservationID(obsID)
	obs.AuditID = id.AuditID(auditID)
	obs.Status = models.ObservationStatus(status)
	obs.RiskRating = models.RiskRating(risk)
	if prevStatus.Valid {
		prev := models.ObservationStatus(prevStatus.String)
		obs.PreviousStatus = &prev
	}
	if extReason.Valid {
		obs.ExtensionReason = extReason.String
	}
	if closedAt.Valid {
		t := closedAt.Time
		obs.ClosedAt = &t
	}
	obs.OwnerID = id.UserID(ownerID)
	if reviewerID.Valid {
		obs.ReviewerID = id.UserID(reviewerID.UUID)
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		obs.DeletedAt = &t
	}
	return &obs, nil
}

func nullStatus(s *models.ObservationStatus) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*s), Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullUUIDFromUser(u id.UserID) uuid.NullUUID {
	if u.IsNil() {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(u), Valid: true}
}

// Create inserts the observation, computing the per-audit sequence number and
// label in the same statement so concurrent creators cannot collide silently;
// the unique (audit_id, sequence) index turns a race into ErrConflict.
func (s *ObservationStore) Create(ctx context.Context, obs *models.Observation, labelPrefix string) error {
	query := `
		WITH seq AS (
			SELECT COALESCE(MAX(sequence), 0) + 1 AS n
			FROM observations
			WHERE audit_id = $2
		)
		INSERT INTO observations (
			id, audit_id, sequence, label, title, description, status,
			risk_rating, open_date, target_date, original_target_date,
			sla_calculated_at, sla_days, extension_count, extension_reason,
			status_changed_at, status_changed_by, owner_id, reviewer_id,
			created_at, updated_at
		)
		SELECT $1, $2, seq.n, $3 || '-OBS-' || lpad(seq.n::text, 4, '0'),
			$4, $5, $6, $7, $8, $9, $10, $11, $12, 0, NULL, $13, $14, $15, $16,
			now(), now()
		FROM seq
		RETURNING sequence, label, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		uuid.UUID(obs.ID),
		uuid.UUID(obs.AuditID),
		labelPrefix,
		obs.Title,
		obs.Description,
		string(obs.Status),
		string(obs.RiskRating),
		obs.OpenDate,
		obs.TargetDate,
		obs.OriginalTargetDate,
		obs.SLACalculatedAt,
		obs.SLADays,
		obs.StatusChangedAt,
		obs.StatusChangedBy,
		uuid.UUID(obs.OwnerID),
		nullUUIDFromUser(obs.ReviewerID),
	).Scan(&obs.Sequence, &obs.Label, &obs.CreatedAt, &obs.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert observation: %w", err)
	}
	return nil
}

func (s *ObservationStore) Get(ctx context.Context, observationID id.ObservationID, includeDeleted bool) (*models.Observation, error) {
	query := `SELECT ` + observationColumns + ` FROM observations WHERE id = $1`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	obs, err := scanObservation(s.db.QueryRowContext(ctx, query, uuid.UUID(observationID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get observation: %w", err)
	}
	return obs, nil
}

func (s *ObservationStore) Update(ctx context.Context, obs *models.Observation) error {
	query := `
		UPDATE observations SET
			title = $2, description = $3, target_date = $4,
			extension_count = $5, extension_reason = $6,
			owner_id = $7, reviewer_id = $8, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`
	res, err := s.db.ExecContext(ctx, query,
		uuid.UUID(obs.ID),
		obs.Title,
		obs.Description,
		obs.TargetDate,
		obs.ExtensionCount,
		sql.NullString{String: obs.ExtensionReason, Valid: obs.ExtensionReason != ""},
		uuid.UUID(obs.OwnerID),
		nullUUIDFromUser(obs.ReviewerID),
	)
	if err != nil {
		return fmt.Errorf("update observation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update observation: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *ObservationStore) TransitionStatus(ctx context.Context, observationID id.ObservationID, from, to models.ObservationStatus, apply func(*models.Observation)) (*models.Observation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback()

	query := `SELECT ` + observationColumns + ` FROM observations WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`
	obs, err := scanObservation(tx.QueryRowContext(ctx, query, uuid.UUID(observationID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("lock observation: %w", err)
	}
	if obs.Status != from {
		return nil, sentinel.ErrConflict
	}

	if apply != nil {
		apply(obs)
	}
	obs.Status = to

	update := `
		UPDATE observations SET
			status = $2, previous_status = $3, status_changed_at = $4,
			status_changed_by = $5, closed_at = $6, updated_at = now()
		WHERE id = $1 AND status = $7
	`
	res, err := tx.ExecContext(ctx, update,
		uuid.UUID(observationID),
		string(obs.Status),
		nullStatus(obs.PreviousStatus),
		obs.StatusChangedAt,
		obs.StatusChangedBy,
		nullTime(obs.ClosedAt),
		string(from),
	)
	if err != nil {
		return nil, fmt.Errorf("transition observation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("transition observation: %w", err)
	}
	if affected == 0 {
		return nil, sentinel.ErrConflict
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}
	return obs, nil
}

func (s *ObservationStore) List(ctx context.Context, filter ports.ObservationFilter) ([]*models.Observation, error) {
	query := `SELECT ` + observationColumns + ` FROM observations WHERE 1=1`
	args := []any{}
	if !filter.IncludeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	if filter.AuditID != nil {
		args = append(args, uuid.UUID(*filter.AuditID))
		query += fmt.Sprintf(` AND audit_id = $%d`, len(args))
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if filter.OwnerID != nil {
		args = append(args, uuid.UUID(*filter.OwnerID))
		query += fmt.Sprintf(` AND owner_id = $%d`, len(args))
	}
	query += ` ORDER BY audit_id, sequence`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list observations: %w", err)
	}
	defer rows.Close()
	return collectObservations(rows)
}

func (s *ObservationStore) ListOverdueCandidates(ctx context.Context, before time.Time, limit int) ([]*models.Observation, error) {
	query := `
		SELECT ` + observationColumns + `
		FROM observations
		WHERE deleted_at IS NULL
		  AND status NOT IN ($1, $2)
		  AND target_date < $3
		ORDER BY target_date
		LIMIT $4
	`
	rows, err := s.db.QueryContext(ctx, query,
		string(models.ObservationClosed),
		string(models.ObservationOverdue),
		before,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list overdue candidates: %w", err)
	}
	defer rows.Close()
	return collectObservations(rows)
}

func collectObservations(rows *sql.Rows) ([]*models.Observation, error) {
	var out []*models.Observation
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		out = append(out, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observations: %w", err)
	}
	return out, nil
}

func (s *ObservationStore) CountActiveByAudit(ctx context.Context, auditID id.AuditID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM observations WHERE audit_id = $1 AND deleted_at IS NULL`,
		uuid.UUID(auditID),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count observations: %w", err)
	}
	return count, nil
}

func (s *ObservationStore) SoftDelete(ctx context.Context, observationID id.ObservationID, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE observations SET deleted_at = $2, updated_at = now() WHERE id = $1 AND deleted_at IS NULL`,
		uuid.UUID(observationID), at,
	)
	if err != nil {
		return fmt.Errorf("soft delete observation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("soft delete observation: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// AuditStore persists audit containers in PostgreSQL.
type AuditStore struct {
	db *sql.DB
}

func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

const auditColumns = `
	id, number, type, status, title, period_start, period_end,
	planned_start_date, planned_end_date, actual_start_date, actual_end_date,
	lead_auditor_id, closed_at, created_at, updated_at, deleted_at
`

func scanAudit(row rowScanner) (*models.Audit, error) {
	var (
		audit        models.Audit
		auditID      uuid.UUID
		status       string
		auditType    string
		plannedStart sql.NullTime
		plannedEnd   sql.NullTime
		actualStart  sql.NullTime
		actualEnd    sql.NullTime
		leadAuditor  uuid.UUID
		closedAt     sql.NullTime
		deletedAt    sql.NullTime
	)
	err := row.Scan(
		&auditID, &audit.Number, &auditType, &status, &audit.Title,
		&audit.PeriodStart, &audit.PeriodEnd, &plannedStart, &plannedEnd,
		&actualStart, &actualEnd, &leadAuditor, &closedAt,
		&audit.CreatedAt, &audit.UpdatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}
	audit.ID = id.AuditID(auditID)
	audit.Type = models.AuditType(auditType)
	audit.Status = models.AuditStatus(status)
	audit.LeadAuditorID = id.UserID(leadAuditor)
	for dst, src := range map[**time.Time]sql.NullTime{
		&audit.PlannedStartDate: plannedStart,
		&audit.PlannedEndDate:   plannedEnd,
		&audit.ActualStartDate:  actualStart,
		&audit.ActualEndDate:    actualEnd,
		&audit.ClosedAt:         closedAt,
		&audit.DeletedAt:        deletedAt,
	} {
		if src.Valid {
			t := src.Time
			*dst = &t
		}
	}
	return &audit, nil
}

func (s *AuditStore) Create(ctx context.Context, audit *models.Audit) error {
	query := `
		INSERT INTO audits (
			id, number, type, status, title, period_start, period_end,
			planned_start_date, planned_end_date, lead_auditor_id,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		RETURNING created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		uuid.UUID(audit.ID),
		audit.Number,
		string(audit.Type),
		string(audit.Status),
		audit.Title,
		audit.PeriodStart,
		audit.PeriodEnd,
		nullTime(audit.PlannedStartDate),
		nullTime(audit.PlannedEndDate),
		uuid.UUID(audit.LeadAuditorID),
	).Scan(&audit.CreatedAt, &audit.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}

func (s *AuditStore) Get(ctx context.Context, auditID id.AuditID, includeDeleted bool) (*models.Audit, error) {
	query := `SELECT ` + auditColumns + ` FROM audits WHERE id = $1`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	audit, err := scanAudit(s.db.QueryRowContext(ctx, query, uuid.UUID(auditID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get audit: %w", err)
	}
	return audit, nil
}

func (s *AuditStore) TransitionStatus(ctx context.Context, auditID id.AuditID, from, to models.AuditStatus, apply func(*models.Audit)) (*models.Audit, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin audit transition: %w", err)
	}
	defer tx.Rollback()

	query := `SELECT ` + auditColumns + ` FROM audits WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`
	audit, err := scanAudit(tx.QueryRowContext(ctx, query, uuid.UUID(auditID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("lock audit: %w", err)
	}
	if audit.Status != from {
		return nil, sentinel.ErrConflict
	}

	if apply != nil {
		apply(audit)
	}
	audit.Status = to

	update := `
		UPDATE audits SET
			status = $2, actual_start_date = $3, actual_end_date = $4,
			closed_at = $5, updated_at = now()
		WHERE id = $1 AND status = $6
	`
	res, err := tx.ExecContext(ctx, update,
		uuid.UUID(auditID),
		string(audit.Status),
		nullTime(audit.ActualStartDate),
		nullTime(audit.ActualEndDate),
		nullTime(audit.ClosedAt),
		string(from),
	)
	if err != nil {
		return nil, fmt.Errorf("transition audit: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("transition audit: %w", err)
	}
	if affected == 0 {
		return nil, sentinel.ErrConflict
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit audit transition: %w", err)
	}
	return audit, nil
}

func (s *AuditStore) List(ctx context.Context, includeDeleted bool) ([]*models.Audit, error) {
	query := `SELECT ` + auditColumns + ` FROM audits`
	if !includeDeleted {
		query += ` WHERE deleted_at IS NULL`
	}
	query += ` ORDER BY number`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list audits: %w", err)
	}
	defer rows.Close()

	var out []*models.Audit
	for rows.Next() {
		audit, err := scanAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		out = append(out, audit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audits: %w", err)
	}
	return out, nil
}

func (s *AuditStore) SoftDelete(ctx context.Context, auditID id.AuditID, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE audits SET deleted_at = $2, updated_at = now() WHERE id = $1 AND deleted_at IS NULL`,
		uuid.UUID(auditID), at,
	)
	if err != nil {
		return fmt.Errorf("soft delete audit: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("soft delete audit: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
