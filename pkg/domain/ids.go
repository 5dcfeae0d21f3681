// Package domain defines the typed identifiers shared across the engine.
// Dedicated types per entity stop an AuditID from being passed where an
// ObservationID is expected; the compiler enforces what review would miss.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "remedia/pkg/domain-errors"
)

// SystemActor labels automated transitions (sweeper) in history rows where a
// human principal would otherwise appear.
const SystemActor = "system"

type (
	AuditID       uuid.UUID
	ObservationID uuid.UUID
	EvidenceID    uuid.UUID
	RuleID        uuid.UUID
	UserID        uuid.UUID
)

func NewAuditID() AuditID             { return AuditID(uuid.New()) }
func NewObservationID() ObservationID { return ObservationID(uuid.New()) }
func NewEvidenceID() EvidenceID       { return EvidenceID(uuid.New()) }
func NewRuleID() RuleID               { return RuleID(uuid.New()) }
func NewUserID() UserID               { return UserID(uuid.New()) }

func (id AuditID) String() string       { return uuid.UUID(id).String() }
func (id ObservationID) String() string { return uuid.UUID(id).String() }
func (id EvidenceID) String() string    { return uuid.UUID(id).String() }
func (id RuleID) String() string        { return uuid.UUID(id).String() }
func (id UserID) String() string        { return uuid.UUID(id).String() }

func (id AuditID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id ObservationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id EvidenceID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id RuleID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }

// parse enforces the shared invariant: IDs must be valid, non-empty, non-nil
// UUIDs. Rejections are validation errors so transports surface them as
// caller faults rather than internal failures.
func parse(raw, kind string) (uuid.UUID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeValidation, "%s id must not be empty", kind)
	}
	if strings.ContainsRune(trimmed, 0) {
		return uuid.Nil, dErrors.Newf(dErrors.CodeValidation, "%s id is not a valid UUID", kind)
	}
	parsed, err := uuid.Parse(trimmed)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeValidation, "%s id is not a valid UUID", kind)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeValidation, "%s id must not be the nil UUID", kind)
	}
	return parsed, nil
}

func ParseAuditID(raw string) (AuditID, error) {
	parsed, err := parse(raw, "audit")
	return AuditID(parsed), err
}

func ParseObservationID(raw string) (ObservationID, error) {
	parsed, err := parse(raw, "observation")
	return ObservationID(parsed), err
}

func ParseEvidenceID(raw string) (EvidenceID, error) {
	parsed, err := parse(raw, "evidence")
	return EvidenceID(parsed), err
}

func ParseRuleID(raw string) (RuleID, error) {
	parsed, err := parse(raw, "rule")
	return RuleID(parsed), err
}

func ParseUserID(raw string) (UserID, error) {
	parsed, err := parse(raw, "user")
	return UserID(parsed), err
}
