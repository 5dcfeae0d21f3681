package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"remedia/internal/sla"
	"remedia/internal/workflow/models"
	id "remedia/pkg/domain"
	"remedia/pkg/platform/sentinel"
)

// PostgresStore persists SLA rules in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const ruleColumns = `
	id, risk_rating, audit_type, base_days, warning_days, critical_days,
	escalation_days, priority, is_active, created_at, updated_at
`

func scanRule(row interface{ Scan(dest ...any) error }) (sla.Rule, error) {
	var (
		rule      sla.Rule
		ruleID    uuid.UUID
		risk      sql.NullString
		auditType sql.NullString
	)
	err := row.Scan(
		&ruleID, &risk, &auditType, &rule.BaseDays, &rule.WarningDays,
		&rule.CriticalDays, &rule.EscalationDays, &rule.Priority,
		&rule.IsActive, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return sla.Rule{}, err
	}
	rule.ID = id.RuleID(ruleID)
	if risk.Valid {
		r := models.RiskRating(risk.String)
		rule.RiskRating = &r
	}
	if auditType.Valid {
		t := models.AuditType(auditType.String)
		rule.AuditType = &t
	}
	return rule, nil
}

func (s *PostgresStore) ListActive(ctx context.Context) ([]sla.Rule, error) {
	return s.list(ctx, `SELECT `+ruleColumns+` FROM sla_rules WHERE is_active ORDER BY priority DESC, created_at`)
}

func (s *PostgresStore) List(ctx context.Context) ([]sla.Rule, error) {
	return s.list(ctx, `SELECT `+ruleColumns+` FROM sla_rules ORDER BY priority DESC, created_at`)
}

func (s *PostgresStore) list(ctx context.Context, query string) ([]sla.Rule, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sla rules: %w", err)
	}
	defer rows.Close()

	var out []sla.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sla rule: %w", err)
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sla rules: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Create(ctx context.Context, rule sla.Rule) error {
	var risk, auditType sql.NullString
	if rule.RiskRating != nil {
		risk = sql.NullString{String: string(*rule.RiskRating), Valid: true}
	}
	if rule.AuditType != nil {
		auditType = sql.NullString{String: string(*rule.AuditType), Valid: true}
	}

	query := `
		INSERT INTO sla_rules (
			id, risk_rating, audit_type, base_days, warning_days,
			critical_days, escalation_days, priority, is_active,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(rule.ID), risk, auditType, rule.BaseDays, rule.WarningDays,
		rule.CriticalDays, rule.EscalationDays, rule.Priority, rule.IsActive,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert sla rule: %w", err)
	}
	return nil
}

func (s *PostgresStore) Deactivate(ctx context.Context, ruleID id.RuleID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sla_rules SET is_active = false, updated_at = now() WHERE id = $1`,
		uuid.UUID(ruleID),
	)
	if err != nil {
		return fmt.Errorf("deactivate sla rule: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate sla rule: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
