// Package models holds the workflow entities and their status machines. The
// transition tables are static and enum-keyed; adding a status without
// extending a table is caught by the exhaustiveness tests.
package models

import (
	"time"

	id "remedia/pkg/domain"
)

// AuditType classifies the engagement an audit represents.
type AuditType string

const (
	AuditTypeInternal   AuditType = "INTERNAL"
	AuditTypeExternal   AuditType = "EXTERNAL"
	AuditTypeISO        AuditType = "ISO"
	AuditTypeSOC        AuditType = "SOC"
	AuditTypeFinancial  AuditType = "FINANCIAL"
	AuditTypeIT         AuditType = "IT"
	AuditTypeCompliance AuditType = "COMPLIANCE"
)

// AuditTypes lists every valid audit type.
func AuditTypes() []AuditType {
	return []AuditType{
		AuditTypeInternal, AuditTypeExternal, AuditTypeISO, AuditTypeSOC,
		AuditTypeFinancial, AuditTypeIT, AuditTypeCompliance,
	}
}

func (t AuditType) IsValid() bool {
	for _, known := range AuditTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// RiskRating grades the severity of an observation and drives SLA resolution.
type RiskRating string

const (
	RiskCritical      RiskRating = "CRITICAL"
	RiskHigh          RiskRating = "HIGH"
	RiskMedium        RiskRating = "MEDIUM"
	RiskLow           RiskRating = "LOW"
	RiskInformational RiskRating = "INFORMATIONAL"
)

// RiskRatings lists every valid risk rating.
func RiskRatings() []RiskRating {
	return []RiskRating{RiskCritical, RiskHigh, RiskMedium, RiskLow, RiskInformational}
}

func (r RiskRating) IsValid() bool {
	for _, known := range RiskRatings() {
		if r == known {
			return true
		}
	}
	return false
}

// AuditStatus is the lifecycle state of an audit container.
type AuditStatus string

const (
	AuditPlanned     AuditStatus = "PLANNED"
	AuditInProgress  AuditStatus = "IN_PROGRESS"
	AuditUnderReview AuditStatus = "UNDER_REVIEW"
	AuditClosed      AuditStatus = "CLOSED"
	AuditCancelled   AuditStatus = "CANCELLED"
)

// AuditStatuses lists every valid audit status.
func AuditStatuses() []AuditStatus {
	return []AuditStatus{AuditPlanned, AuditInProgress, AuditUnderReview, AuditClosed, AuditCancelled}
}

func (s AuditStatus) IsValid() bool {
	_, ok := auditTransitions[s]
	return ok
}

// auditTransitions is the authoritative allow-list for audit status changes.
// Terminal states have an explicit empty entry so IsValid and the
// exhaustiveness test stay honest.
var auditTransitions = map[AuditStatus][]AuditStatus{
	AuditPlanned:     {AuditInProgress, AuditCancelled},
	AuditInProgress:  {AuditUnderReview, AuditCancelled},
	AuditUnderReview: {AuditInProgress, AuditClosed, AuditCancelled},
	AuditClosed:      {},
	AuditCancelled:   {},
}

// CanTransitionTo reports whether the move from s to target is legal.
func (s AuditStatus) CanTransitionTo(target AuditStatus) bool {
	for _, allowed := range auditTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Terminal reports whether no outgoing transitions exist from s.
func (s AuditStatus) Terminal() bool {
	allowed, ok := auditTransitions[s]
	return ok && len(allowed) == 0
}

// ObservationStatus is the lifecycle state of a single finding.
type ObservationStatus string

const (
	ObservationOpen              ObservationStatus = "OPEN"
	ObservationInProgress        ObservationStatus = "IN_PROGRESS"
	ObservationEvidenceSubmitted ObservationStatus = "EVIDENCE_SUBMITTED"
	ObservationUnderReview       ObservationStatus = "UNDER_REVIEW"
	ObservationRejected          ObservationStatus = "REJECTED"
	ObservationClosed            ObservationStatus = "CLOSED"
	ObservationOverdue           ObservationStatus = "OVERDUE"
)

// ObservationStatuses lists every valid observation status.
func ObservationStatuses() []ObservationStatus {
	return []ObservationStatus{
		ObservationOpen, ObservationInProgress, ObservationEvidenceSubmitted,
		ObservationUnderReview, ObservationRejected, ObservationClosed,
		ObservationOverdue,
	}
}

func (s ObservationStatus) IsValid() bool {
	_, ok := observationTransitions[s]
	return ok
}

// observationTransitions is the authoritative allow-list for observation
// status changes. OPEN is the only creation state; CLOSED is terminal.
// OVERDUE may move straight to EVIDENCE_SUBMITTED: evidence queued before the
// deadline lapsed does not need a detour through IN_PROGRESS.
var observationTransitions = map[ObservationStatus][]ObservationStatus{
	ObservationOpen:              {ObservationInProgress, ObservationClosed},
	ObservationInProgress:        {ObservationEvidenceSubmitted, ObservationOpen, ObservationClosed},
	ObservationEvidenceSubmitted: {ObservationUnderReview, ObservationInProgress},
	ObservationUnderReview:       {ObservationClosed, ObservationRejected},
	ObservationRejected:          {ObservationInProgress, ObservationEvidenceSubmitted},
	ObservationClosed:            {},
	ObservationOverdue:           {ObservationInProgress, ObservationEvidenceSubmitted, ObservationClosed},
}

// CanTransitionTo reports whether the move from s to target is legal.
func (s ObservationStatus) CanTransitionTo(target ObservationStatus) bool {
	for _, allowed := range observationTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Terminal reports whether no outgoing transitions exist from s.
func (s ObservationStatus) Terminal() bool {
	allowed, ok := observationTransitions[s]
	return ok && len(allowed) == 0
}

// Audit is the engagement container grouping observations. It owns its
// lifecycle dates; observations reference it by ID.
type Audit struct {
	ID               id.AuditID
	Number           string
	Type             AuditType
	Status           AuditStatus
	Title            string
	PeriodStart      time.Time
	PeriodEnd        time.Time
	PlannedStartDate *time.Time
	PlannedEndDate   *time.Time
	ActualStartDate  *time.Time
	ActualEndDate    *time.Time
	LeadAuditorID    id.UserID
	ClosedAt         *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeletedAt        *time.Time
}

// Observation is a single audit finding tracked through remediation.
//
// Invariants maintained by the workflow service and stores:
//   - Status only changes through the transition table above, via a
//     conditional write keyed on the prior status.
//   - TargetDate may only move later than OriginalTargetDate together with a
//     non-empty ExtensionReason and an ExtensionCount increment.
//   - OriginalTargetDate never changes after creation.
type Observation struct {
	ID                 id.ObservationID
	AuditID            id.AuditID
	Sequence           int
	Label              string
	Title              string
	Description        string
	Status             ObservationStatus
	PreviousStatus     *ObservationStatus
	RiskRating         RiskRating
	OpenDate           time.Time
	TargetDate         time.Time
	OriginalTargetDate time.Time
	SLACalculatedAt    time.Time
	SLADays            int
	ExtensionCount     int
	ExtensionReason    string
	StatusChangedAt    time.Time
	StatusChangedBy    string
	ClosedAt           *time.Time
	OwnerID            id.UserID
	ReviewerID         id.UserID
	CreatedAt          time.Time
	UpdatedAt          time.Time
	DeletedAt          *time.Time
}
