package ratelimit

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/gatewarden/gatewarden/internal/platform/httpx"
	"github.com/gatewarden/gatewarden/internal/shared"
)

// Middleware applies class-based admission control. Authenticated callers
// are keyed by user ID so a shared NAT address never collapses them into
// one bucket; anonymous callers are keyed by client IP.
type Middleware struct {
	Governor   *Governor
	Policies   Policies
	AdminRoles []string
	Enabled    bool
	Logger     *slog.Logger

	// OnDecision, when set, observes every admission decision (metrics).
	OnDecision func(class string, allowed bool)
}

// Limit pins the traffic class for the routes it wraps. Credential routes
// use this to opt into their tighter budgets.
func (m *Middleware) Limit(class string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.admit(w, r, next, class)
		})
	}
}

// ByCaller classes each request by its caller: admin role holders, other
// authenticated users, or anonymous.
func (m *Middleware) ByCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.admit(w, r, next, m.callerClass(r))
	})
}

func (m *Middleware) callerClass(r *http.Request) string {
	identity := shared.IdentityFromContext(r.Context())
	if identity == nil {
		return ClassAnonymous
	}
	for _, role := range m.AdminRoles {
		if identity.HasRole(role) {
			return ClassAdmin
		}
	}
	return ClassAuthenticated
}

func (m *Middleware) admit(w http.ResponseWriter, r *http.Request, next http.Handler, class string) {
	if !m.Enabled {
		next.ServeHTTP(w, r)
		return
	}
	policy, ok := m.Policies[class]
	if !ok || policy.Max <= 0 {
		next.ServeHTTP(w, r)
		return
	}

	key := class + ":" + callerKey(r)
	result := m.Governor.Allow(key, policy)
	if m.OnDecision != nil {
		m.OnDecision(class, result.Allowed)
	}

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

	if !result.Allowed {
		retry := int(result.RetryAfter.Seconds())
		if retry < 1 {
			retry = 1
		}
		m.Logger.Warn("rate limit exceeded",
			slog.String("class", class),
			slog.String("key", key),
			slog.Int("retry_after", retry),
		)
		httpx.ProblemWithRetry(w, http.StatusTooManyRequests, "Too Many Requests", "rate limit exceeded, slow down", retry)
		return
	}
	next.ServeHTTP(w, r)
}

// callerKey identifies the caller: user ID when authenticated, client IP
// otherwise. Assumes RealIP middleware already normalised RemoteAddr.
func callerKey(r *http.Request) string {
	if identity := shared.IdentityFromContext(r.Context()); identity != nil {
		return "user:" + strconv.FormatInt(identity.UserID, 10)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
