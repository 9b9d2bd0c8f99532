package rbac

import (
	"log/slog"
	"net/http"

	"github.com/gatewarden/gatewarden/internal/platform/httpx"
	"github.com/gatewarden/gatewarden/internal/shared"
)

// Middleware wires authorization checks for HTTP handlers. Each protected
// route declares its required (resource, action) pair statically; the check
// runs after authentication and before the handler.
type Middleware struct {
	Evaluator *Evaluator
	Logger    *slog.Logger

	// Audit, when set, records denied evaluations. Allows are not audited;
	// they are the overwhelming majority and carry no investigative value.
	Audit *shared.AuditLogger
	// OnDecision, when set, observes every evaluation outcome (metrics).
	OnDecision func(allowed bool)
}

// Require ensures the current identity holds the given permission.
// A missing identity is 401, a denied permission 403 and an unreachable
// graph fails closed with 500.
func (m Middleware) Require(resource, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := shared.IdentityFromContext(r.Context())
			if identity == nil {
				httpx.RespondError(w, shared.ErrInvalidToken)
				return
			}
			decision, err := m.Evaluator.Evaluate(r.Context(), identity.UserID, resource, action)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("rbac evaluate",
						slog.Int64("user_id", identity.UserID),
						slog.String("permission", PermissionName(resource, action)),
						slog.Any("error", err))
				}
				httpx.RespondError(w, shared.ErrStoreUnavailable)
				return
			}
			if m.OnDecision != nil {
				m.OnDecision(decision == Allow)
			}
			if decision == Deny {
				if m.Logger != nil {
					m.Logger.Warn("permission denied",
						slog.Int64("user_id", identity.UserID),
						slog.String("permission", PermissionName(resource, action)))
				}
				if err := m.Audit.Record(r.Context(), shared.AuditLog{
					ActorID:  identity.UserID,
					Action:   shared.AuditAccessDenied,
					Entity:   "permission",
					EntityID: PermissionName(resource, action),
				}); err != nil && m.Logger != nil {
					m.Logger.Warn("audit record", slog.Any("error", err))
				}
				httpx.RespondError(w, shared.ErrPermissionDenied)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
