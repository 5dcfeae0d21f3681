// Package actor resolves the acting principal for a request. Identity is
// asserted upstream (gateway or reverse proxy) and forwarded in the
// X-Actor-ID header; this middleware only parses and propagates it.
package actor

import (
	"net/http"

	id "remedia/pkg/domain"
	dErrors "remedia/pkg/domain-errors"
	"remedia/pkg/platform/httputil"
	"remedia/pkg/requestcontext"
)

// HeaderName carries the upstream-asserted actor ID.
const HeaderName = "X-Actor-ID"

// Middleware parses the actor header into the request context. Requests
// without the header pass through with a zero actor; handlers that need an
// actor reject those themselves. A present but malformed header is refused
// here.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(HeaderName)
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		actorID, err := id.ParseUserID(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeValidation, "malformed actor id"))
			return
		}
		ctx := requestcontext.WithActorID(r.Context(), actorID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
