// Package requestcontext provides transport-independent context accessors for
// request-scoped values. Middleware sets them, services read them; keeping the
// package free of net/http lets workers and tests use the same accessors.
//
// Usage in services (read values):
//
//	actorID := requestcontext.ActorID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"

	id "remedia/pkg/domain"
)

type (
	actorIDKey     struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// ActorID retrieves the acting principal from the context.
// Returns the zero value (nil UUID) if not set.
func ActorID(ctx context.Context) id.UserID {
	if actorID, ok := ctx.Value(actorIDKey{}).(id.UserID); ok {
		return actorID
	}
	return id.UserID{}
}

// WithActorID injects the acting principal into the context.
func WithActorID(ctx context.Context, actorID id.UserID) context.Context {
	return context.WithValue(ctx, actorIDKey{}, actorID)
}

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now retrieves the request-scoped time from context. This is the engine's
// clock port: date-dependent logic (SLA calculation, overdue checks) reads the
// clock through here so tests can pin it.
// Falls back to time.Now() for non-HTTP contexts (workers, CLI).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context. Useful for:
//   - service unit tests that don't run the HTTP middleware chain
//   - workers that need a consistent time within a batch operation
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
