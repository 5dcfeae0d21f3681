package sla

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"remedia/internal/workflow/models"
	id "remedia/pkg/domain"
	dErrors "remedia/pkg/domain-errors"
	"remedia/pkg/platform/sentinel"
)

// RuleStore is the persistence port for SLA rules.
type RuleStore interface {
	ListActive(ctx context.Context) ([]Rule, error)
	List(ctx context.Context) ([]Rule, error)
	Create(ctx context.Context, rule Rule) error
	Deactivate(ctx context.Context, ruleID id.RuleID) error
}

// Invalidator drops any cached view of the rule set after a write.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Service administers the SLA rule set. Resolution itself stays in Resolve;
// this service only manages the rows it reads.
type Service struct {
	store       RuleStore
	invalidator Invalidator
	logger      *slog.Logger
}

type ServiceOption func(*Service)

func WithInvalidator(inv Invalidator) ServiceOption {
	return func(s *Service) {
		s.invalidator = inv
	}
}

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

func NewService(store RuleStore, opts ...ServiceOption) *Service {
	svc := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// CreateRuleInput carries the fields of a new rule. Nil RiskRating/AuditType
// are wildcards.
type CreateRuleInput struct {
	RiskRating     *models.RiskRating
	AuditType      *models.AuditType
	BaseDays       int
	WarningDays    int
	CriticalDays   int
	EscalationDays int
	Priority       int
}

func (s *Service) Create(ctx context.Context, input CreateRuleInput) (Rule, error) {
	if input.BaseDays < 1 {
		return Rule{}, dErrors.New(dErrors.CodeValidation, "base days must be at least 1")
	}
	if input.RiskRating != nil && !input.RiskRating.IsValid() {
		return Rule{}, dErrors.Newf(dErrors.CodeValidation, "unknown risk rating %q", *input.RiskRating)
	}
	if input.AuditType != nil && !input.AuditType.IsValid() {
		return Rule{}, dErrors.Newf(dErrors.CodeValidation, "unknown audit type %q", *input.AuditType)
	}

	rule := Rule{
		ID:             id.NewRuleID(),
		RiskRating:     input.RiskRating,
		AuditType:      input.AuditType,
		BaseDays:       input.BaseDays,
		WarningDays:    input.WarningDays,
		CriticalDays:   input.CriticalDays,
		EscalationDays: input.EscalationDays,
		Priority:       input.Priority,
		IsActive:       true,
		CreatedAt:      time.Now(),
	}
	if err := s.store.Create(ctx, rule); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return Rule{}, dErrors.Wrap(err, dErrors.CodeConflict, "sla rule already exists")
		}
		return Rule{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create sla rule")
	}
	s.invalidate(ctx)
	return rule, nil
}

func (s *Service) Deactivate(ctx context.Context, ruleID id.RuleID) error {
	if err := s.store.Deactivate(ctx, ruleID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeNotFound, "sla rule not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to deactivate sla rule")
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) List(ctx context.Context) ([]Rule, error) {
	rules, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list sla rules")
	}
	return rules, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx); err != nil {
		s.logger.WarnContext(ctx, "sla rule cache invalidation failed", "error", err.Error())
	}
}
