// Package sla resolves remediation deadlines. Resolution is pure domain
// logic: no I/O, no clock reads, deterministic for a given rule set.
package sla

import (
	"time"

	"remedia/internal/workflow/models"
	id "remedia/pkg/domain"
)

// Rule maps a (risk rating, audit type) combination onto SLA day counts. A
// nil RiskRating or AuditType is a wildcard. Multiple rules may match an
// observation; exactly one governs.
type Rule struct {
	ID             id.RuleID
	RiskRating     *models.RiskRating
	AuditType      *models.AuditType
	BaseDays       int
	WarningDays    int
	CriticalDays   int
	EscalationDays int
	Priority       int
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Matches reports whether the rule applies to the given inputs. A nil field
// matches anything; auditType itself may be absent.
func (r Rule) Matches(risk models.RiskRating, auditType *models.AuditType) bool {
	if !r.IsActive {
		return false
	}
	if r.RiskRating != nil && *r.RiskRating != risk {
		return false
	}
	if r.AuditType != nil {
		if auditType == nil || *r.AuditType != *auditType {
			return false
		}
	}
	return true
}

// specificity counts the non-wildcard fields a rule matched on. Used only as
// a tie-break: an exact (risk, type) rule beats a wildcard at equal priority.
func (r Rule) specificity() int {
	n := 0
	if r.RiskRating != nil {
		n++
	}
	if r.AuditType != nil {
		n++
	}
	return n
}

// fallbackDays is the hard-coded table used when no active rule matches.
var fallbackDays = map[models.RiskRating]int{
	models.RiskCritical:      14,
	models.RiskHigh:          30,
	models.RiskMedium:        60,
	models.RiskLow:           90,
	models.RiskInformational: 180,
}

// Resolution is the outcome of resolving an observation's SLA. Rule is nil
// when the fallback table governed.
type Resolution struct {
	Days int
	Rule *Rule
}

// Resolve picks the governing rule for (risk, auditType) from the given rule
// set: highest priority wins, with specificity breaking ties. When nothing
// matches, the fallback table applies. The returned day count is always >= 1.
func Resolve(rules []Rule, risk models.RiskRating, auditType *models.AuditType) Resolution {
	var governing *Rule
	for i := range rules {
		rule := &rules[i]
		if !rule.Matches(risk, auditType) {
			continue
		}
		if governing == nil ||
			rule.Priority > governing.Priority ||
			(rule.Priority == governing.Priority && rule.specificity() > governing.specificity()) {
			governing = rule
		}
	}

	if governing != nil {
		days := governing.BaseDays
		if days < 1 {
			days = 1
		}
		return Resolution{Days: days, Rule: governing}
	}

	days, ok := fallbackDays[risk]
	if !ok || days < 1 {
		days = 1
	}
	return Resolution{Days: days}
}
