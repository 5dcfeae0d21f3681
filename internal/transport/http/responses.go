package http

import (
	"time"

	"remedia/internal/evidence"
	"remedia/internal/sla"
	"remedia/internal/trail"
	"remedia/internal/workflow/models"
)

type auditResponse struct {
	ID               string     `json:"id"`
	Number           string     `json:"number"`
	Type             string     `json:"type"`
	Status           string     `json:"status"`
	Title            string     `json:"title"`
	PeriodStart      time.Time  `json:"period_start"`
	PeriodEnd        time.Time  `json:"period_end"`
	PlannedStartDate *time.Time `json:"planned_start_date,omitempty"`
	PlannedEndDate   *time.Time `json:"planned_end_date,omitempty"`
	ActualStartDate  *time.Time `json:"actual_start_date,omitempty"`
	ActualEndDate    *time.Time `json:"actual_end_date,omitempty"`
	LeadAuditorID    string     `json:"lead_auditor_id"`
	ClosedAt         *time.Time `json:"closed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func fromAudit(a *models.Audit) auditResponse {
	return auditResponse{
		ID:               a.ID.String(),
		Number:           a.Number,
		Type:             string(a.Type),
		Status:           string(a.Status),
		Title:            a.Title,
		PeriodStart:      a.PeriodStart,
		PeriodEnd:        a.PeriodEnd,
		PlannedStartDate: a.PlannedStartDate,
		PlannedEndDate:   a.PlannedEndDate,
		ActualStartDate:  a.ActualStartDate,
		ActualEndDate:    a.ActualEndDate,
		LeadAuditorID:    a.LeadAuditorID.String(),
		ClosedAt:         a.ClosedAt,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

func fromAudits(audits []*models.Audit) []auditResponse {
	out := make([]auditResponse, 0, len(audits))
	for _, a := range audits {
		out = append(out, fromAudit(a))
	}
	return out
}

type observationResponse struct {
	ID                 string     `json:"id"`
	AuditID            string     `json:"audit_id"`
	Sequence           int        `json:"sequence"`
	Label              string     `json:"label"`
	Title              string     `json:"title"`
	Description        string     `json:"description,omitempty"`
	Status             string     `json:"status"`
	PreviousStatus     *string    `json:"previous_status,omitempty"`
	RiskRating         string     `json:"risk_rating"`
	OpenDate           time.Time  `json:"open_date"`
	TargetDate         time.Time  `json:"target_date"`
	OriginalTargetDate time.Time  `json:"original_target_date"`
	SLADays            int        `json:"sla_days"`
	ExtensionCount     int        `json:"extension_count"`
	ExtensionReason    string     `json:"extension_reason,omitempty"`
	StatusChangedAt    time.Time  `json:"status_changed_at"`
	StatusChangedBy    string     `json:"status_changed_by"`
	ClosedAt           *time.Time `json:"closed_at,omitempty"`
	OwnerID            string     `json:"owner_id"`
	ReviewerID         string     `json:"reviewer_id,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func fromObservation(o *models.Observation) observationResponse {
	resp := observationResponse{
		ID:                 o.ID.String(),
		AuditID:            o.AuditID.String(),
		Sequence:           o.Sequence,
		Label:              o.Label,
		Title:              o.Title,
		Description:        o.Description,
		Status:             string(o.Status),
		RiskRating:         string(o.RiskRating),
		OpenDate:           o.OpenDate,
		TargetDate:         o.TargetDate,
		OriginalTargetDate: o.OriginalTargetDate,
		SLADays:            o.SLADays,
		ExtensionCount:     o.ExtensionCount,
		ExtensionReason:    o.ExtensionReason,
		StatusChangedAt:    o.StatusChangedAt,
		StatusChangedBy:    o.StatusChangedBy,
		ClosedAt:           o.ClosedAt,
		OwnerID:            o.OwnerID.String(),
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
	}
	if o.PreviousStatus != nil {
		prev := string(*o.PreviousStatus)
		resp.PreviousStatus = &prev
	}
	if !o.ReviewerID.IsNil() {
		resp.ReviewerID = o.ReviewerID.String()
	}
	return resp
}

func fromObservations(observations []*models.Observation) []observationResponse {
	out := make([]observationResponse, 0, len(observations))
	for _, o := range observations {
		out = append(out, fromObservation(o))
	}
	return out
}

type evidenceResponse struct {
	ID              string     `json:"id"`
	ObservationID   string     `json:"observation_id"`
	FileName        string     `json:"file_name"`
	FileRef         string     `json:"file_ref"`
	Version         int        `json:"version"`
	SupersedesID    *string    `json:"supersedes_id,omitempty"`
	SupersededByID  *string    `json:"superseded_by_id,omitempty"`
	Status          string     `json:"status"`
	UploadedByID    string     `json:"uploaded_by_id"`
	ReviewedByID    string     `json:"reviewed_by_id,omitempty"`
	ReviewRemarks   string     `json:"review_remarks,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	UploadedAt      time.Time  `json:"uploaded_at"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`
}

func fromEvidence(e *evidence.Evidence) evidenceResponse {
	resp := evidenceResponse{
		ID:              e.ID.String(),
		ObservationID:   e.ObservationID.String(),
		FileName:        e.FileName,
		FileRef:         e.FileRef,
		Version:         e.Version,
		Status:          string(e.Status),
		UploadedByID:    e.UploadedByID.String(),
		ReviewRemarks:   e.ReviewRemarks,
		RejectionReason: e.RejectionReason,
		UploadedAt:      e.UploadedAt,
		ReviewedAt:      e.ReviewedAt,
	}
	if e.SupersedesID != nil {
		s := e.SupersedesID.String()
		resp.SupersedesID = &s
	}
	if e.SupersededByID != nil {
		s := e.SupersededByID.String()
		resp.SupersededByID = &s
	}
	if !e.ReviewedByID.IsNil() {
		resp.ReviewedByID = e.ReviewedByID.String()
	}
	return resp
}

func fromEvidenceList(list []*evidence.Evidence) []evidenceResponse {
	out := make([]evidenceResponse, 0, len(list))
	for _, e := range list {
		out = append(out, fromEvidence(e))
	}
	return out
}

type historyEntryResponse struct {
	FromStatus *string   `json:"from_status,omitempty"`
	ToStatus   string    `json:"to_status"`
	Reason     string    `json:"reason,omitempty"`
	Actor      string    `json:"actor"`
	CreatedAt  time.Time `json:"created_at"`
}

func fromHistory(entries []trail.Entry) []historyEntryResponse {
	out := make([]historyEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp := historyEntryResponse{
			ToStatus:  string(e.ToStatus),
			Reason:    e.Reason,
			Actor:     e.Actor,
			CreatedAt: e.CreatedAt,
		}
		if e.FromStatus != nil {
			from := string(*e.FromStatus)
			resp.FromStatus = &from
		}
		out = append(out, resp)
	}
	return out
}

type ruleResponse struct {
	ID             string    `json:"id"`
	RiskRating     *string   `json:"risk_rating,omitempty"`
	AuditType      *string   `json:"audit_type,omitempty"`
	BaseDays       int       `json:"base_days"`
	WarningDays    int       `json:"warning_days,omitempty"`
	CriticalDays   int       `json:"critical_days,omitempty"`
	EscalationDays int       `json:"escalation_days,omitempty"`
	Priority       int       `json:"priority"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}

func fromRule(r sla.Rule) ruleResponse {
	resp := ruleResponse{
		ID:             r.ID.String(),
		BaseDays:       r.BaseDays,
		WarningDays:    r.WarningDays,
		CriticalDays:   r.CriticalDays,
		EscalationDays: r.EscalationDays,
		Priority:       r.Priority,
		IsActive:       r.IsActive,
		CreatedAt:      r.CreatedAt,
	}
	if r.RiskRating != nil {
		risk := string(*r.RiskRating)
		resp.RiskRating = &risk
	}
	if r.AuditType != nil {
		auditType := string(*r.AuditType)
		resp.AuditType = &auditType
	}
	return resp
}

func fromRules(rules []sla.Rule) []ruleResponse {
	out := make([]ruleResponse, 0, len(rules))
	for _, r := range rules {
		out = append(out, fromRule(r))
	}
	return out
}

type sweepResponse struct {
	Marked int `json:"marked"`
}
