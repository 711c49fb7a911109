package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/pkordes/carshare/backend/internal/domain"
)

// Identity headers. Authentication happens upstream (the club's portal);
// this service trusts the member id it is handed.
const (
	MemberIDHeader    = "X-Member-ID"
	MemberAdminHeader = "X-Member-Admin"
)

type actorKey struct{}

// NewIdentityHandler resolves the acting member from the identity headers and
// stores it in the request context. Requests without a valid member id get 401.
func NewIdentityHandler() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := uuid.Parse(r.Header.Get(MemberIDHeader))
			if err != nil || id == uuid.Nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", MemberIDHeader+" header must carry a member id")
				return
			}
			actor := domain.Actor{MemberID: id}
			if v := r.Header.Get(MemberAdminHeader); v != "" {
				// An unparsable flag is treated as false, never as admin.
				actor.IsAdmin, _ = strconv.ParseBool(v)
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// WithActor returns a copy of ctx carrying actor.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the member set by NewIdentityHandler.
func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(domain.Actor)
	return a, ok
}

// writeError writes the API's standard error envelope. Middleware runs before
// any handler, so it cannot reuse the handler package's helpers.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}
