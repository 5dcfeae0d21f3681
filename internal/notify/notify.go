// Package notify delivers workflow notifications as fire-and-forget side
// effects. Dispatch never blocks the transition that triggered it: events go
// onto a buffered channel consumed by a background worker, and a full buffer
// drops the event (counted and logged) rather than stalling the write path.
package notify

import (
	"context"
	"log/slog"

	id "remedia/pkg/domain"
)

// Type names the reason a notification was produced.
type Type string

const (
	TypeObservationCreated Type = "observation_created"
	TypeStatusChanged      Type = "status_changed"
	TypeObservationOverdue Type = "observation_overdue"
	TypeEvidenceReviewed   Type = "evidence_reviewed"
	TypeAuditStatusChanged Type = "audit_status_changed"
)

// Notification is the transport-agnostic payload handed to a sink.
type Notification struct {
	Type        Type
	RecipientID id.UserID
	Payload     map[string]string
}

// Sink is the delivery port (mail, chat, webhook). Failures are logged by the
// dispatcher and never reach the caller.
type Sink interface {
	Send(ctx context.Context, n Notification) error
}

// LogSink writes notifications to the structured log. The default sink when
// no external delivery channel is configured.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Send(ctx context.Context, n Notification) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "notification",
		"type", string(n.Type),
		"recipient_id", n.RecipientID.String(),
		"payload", n.Payload,
	)
	return nil
}
