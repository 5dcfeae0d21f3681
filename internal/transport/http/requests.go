package http

import (
	"time"

	"remedia/internal/evidence"
	"remedia/internal/sla"
	"remedia/internal/workflow/models"
	"remedia/internal/workflow/service"
	id "remedia/pkg/domain"
	dErrors "remedia/pkg/domain-errors"
)

type createAuditRequest struct {
	Number           string     `json:"number"`
	Type             string     `json:"type"`
	Title            string     `json:"title"`
	PeriodStart      time.Time  `json:"period_start"`
	PeriodEnd        time.Time  `json:"period_end"`
	PlannedStartDate *time.Time `json:"planned_start_date,omitempty"`
	PlannedEndDate   *time.Time `json:"planned_end_date,omitempty"`
	LeadAuditorID    string     `json:"lead_auditor_id"`
}

func (r createAuditRequest) toInput() (service.CreateAuditInput, error) {
	leadID, err := id.ParseUserID(r.LeadAuditorID)
	if err != nil {
		return service.CreateAuditInput{}, dErrors.Wrap(err, dErrors.CodeValidation, "malformed lead auditor id")
	}
	return service.CreateAuditInput{
		Number:        r.Number,
		Type:          models.AuditType(r.Type),
		Title:         r.Title,
		PeriodStart:   r.PeriodStart,
		PeriodEnd:     r.PeriodEnd,
		PlannedStart:  r.PlannedStartDate,
		PlannedEnd:    r.PlannedEndDate,
		LeadAuditorID: leadID,
	}, nil
}

type transitionRequest struct {
	Target string `json:"target"`
	Reason string `json:"reason,omitempty"`
}

type createObservationRequest struct {
	AuditID     string     `json:"audit_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	RiskRating  string     `json:"risk_rating"`
	OpenDate    *time.Time `json:"open_date,omitempty"`
	OwnerID     string     `json:"owner_id"`
	ReviewerID  string     `json:"reviewer_id,omitempty"`
}

func (r createObservationRequest) toInput() (service.CreateObservationInput, error) {
	auditID, err := id.ParseAuditID(r.AuditID)
	if err != nil {
		return service.CreateObservationInput{}, dErrors.Wrap(err, dErrors.CodeValidation, "malformed audit id")
	}
	ownerID, err := id.ParseUserID(r.OwnerID)
	if err != nil {
		return service.CreateObservationInput{}, dErrors.Wrap(err, dErrors.CodeValidation, "malformed owner id")
	}
	input := service.CreateObservationInput{
		AuditID:     auditID,
		Title:       r.Title,
		Description: r.Description,
		RiskRating:  models.RiskRating(r.RiskRating),
		OwnerID:     ownerID,
	}
	if r.OpenDate != nil {
		input.OpenDate = *r.OpenDate
	}
	if r.ReviewerID != "" {
		reviewerID, err := id.ParseUserID(r.ReviewerID)
		if err != nil {
			return service.CreateObservationInput{}, dErrors.Wrap(err, dErrors.CodeValidation, "malformed reviewer id")
		}
		input.ReviewerID = reviewerID
	}
	return input, nil
}

type updateObservationRequest struct {
	Title           *string    `json:"title,omitempty"`
	Description     *string    `json:"description,omitempty"`
	TargetDate      *time.Time `json:"target_date,omitempty"`
	ExtensionReason string     `json:"extension_reason,omitempty"`
	OwnerID         *string    `json:"owner_id,omitempty"`
	ReviewerID      *string    `json:"reviewer_id,omitempty"`
}

func (r updateObservationRequest) toInput() (service.UpdateObservationInput, error) {
	input := service.UpdateObservationInput{
		Title:           r.Title,
		Description:     r.Description,
		TargetDate:      r.TargetDate,
		ExtensionReason: r.ExtensionReason,
	}
	if r.OwnerID != nil {
		ownerID, err := id.ParseUserID(*r.OwnerID)
		if err != nil {
			return service.UpdateObservationInput{}, dErrors.Wrap(err, dErrors.CodeValidation, "malformed owner id")
		}
		input.OwnerID = &ownerID
	}
	if r.ReviewerID != nil {
		reviewerID, err := id.ParseUserID(*r.ReviewerID)
		if err != nil {
			return service.UpdateObservationInput{}, dErrors.Wrap(err, dErrors.CodeValidation, "malformed reviewer id")
		}
		input.ReviewerID = &reviewerID
	}
	return input, nil
}

type uploadEvidenceRequest struct {
	FileName string `json:"file_name"`
	FileRef  string `json:"file_ref"`
}

type reviewEvidenceRequest struct {
	Decision        string `json:"decision"`
	Remarks         string `json:"remarks,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`
}

func (r reviewEvidenceRequest) toInput() evidence.ReviewInput {
	return evidence.ReviewInput{
		Decision:        evidence.ReviewDecision(r.Decision),
		Remarks:         r.Remarks,
		RejectionReason: r.RejectionReason,
	}
}

type createRuleRequest struct {
	RiskRating     *string `json:"risk_rating,omitempty"`
	AuditType      *string `json:"audit_type,omitempty"`
	BaseDays       int     `json:"base_days"`
	WarningDays    int     `json:"warning_days,omitempty"`
	CriticalDays   int     `json:"critical_days,omitempty"`
	EscalationDays int     `json:"escalation_days,omitempty"`
	Priority       int     `json:"priority"`
}

func (r createRuleRequest) toInput() sla.CreateRuleInput {
	input := sla.CreateRuleInput{
		BaseDays:       r.BaseDays,
		WarningDays:    r.WarningDays,
		CriticalDays:   r.CriticalDays,
		EscalationDays: r.EscalationDays,
		Priority:       r.Priority,
	}
	if r.RiskRating != nil {
		risk := models.RiskRating(*r.RiskRating)
		input.RiskRating = &risk
	}
	if r.AuditType != nil {
		auditType := models.AuditType(*r.AuditType)
		input.AuditType = &auditType
	}
	return input
}
