package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gatewarden/gatewarden/internal/platform/httpx"
	"github.com/gatewarden/gatewarden/internal/shared"
)

// RoleSource resolves the active role names a user holds.
type RoleSource interface {
	RoleNames(ctx context.Context, userID int64) ([]string, error)
}

// Middleware authenticates bearer tokens and attaches the resolved identity
// to the request context.
type Middleware struct {
	Tokens *TokenService
	Repo   RepositoryPort
	Roles  RoleSource
	Logger *slog.Logger

	// OnVerify, when set, observes every verification outcome (metrics).
	// Each request is counted once: by Identify when it resolves the
	// caller, otherwise by RequireAuth.
	OnVerify func(outcome string)
}

// Verification outcomes reported through OnVerify.
const (
	VerifyOutcomeValid       = "valid"
	VerifyOutcomeInvalid     = "invalid"
	VerifyOutcomeUnavailable = "unavailable"
)

func (m *Middleware) observe(outcome string) {
	if m.OnVerify != nil {
		m.OnVerify(outcome)
	}
}

// RequireAuth rejects requests without a valid, unrevoked access token
// belonging to an active account. The handler downstream can rely on
// shared.IdentityFromContext returning a non-nil identity. When Identify
// already resolved the caller earlier in the chain the work is not repeated.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shared.IdentityFromContext(r.Context()) != nil {
			next.ServeHTTP(w, r)
			return
		}
		token := BearerToken(r)
		if token == "" {
			m.observe(VerifyOutcomeInvalid)
			httpx.RespondError(w, shared.ErrInvalidToken)
			return
		}
		claims, err := m.Tokens.Verify(r.Context(), token, TokenTypeAccess)
		if err != nil {
			if errors.Is(err, shared.ErrStoreUnavailable) {
				m.observe(VerifyOutcomeUnavailable)
			} else {
				m.observe(VerifyOutcomeInvalid)
			}
			httpx.RespondError(w, err)
			return
		}
		userID, err := claims.UserID()
		if err != nil {
			m.observe(VerifyOutcomeInvalid)
			httpx.RespondError(w, shared.ErrInvalidToken)
			return
		}
		user, err := m.Repo.GetUser(r.Context(), userID)
		if err != nil || !user.IsActive {
			m.observe(VerifyOutcomeInvalid)
			httpx.RespondError(w, shared.ErrInvalidToken)
			return
		}
		roles, err := m.Roles.RoleNames(r.Context(), userID)
		if err != nil {
			m.Logger.Error("resolve roles", slog.Int64("user_id", userID), slog.Any("error", err))
			m.observe(VerifyOutcomeUnavailable)
			httpx.RespondError(w, shared.ErrStoreUnavailable)
			return
		}
		m.observe(VerifyOutcomeValid)
		identity := &shared.Identity{
			UserID:   user.ID,
			Username: user.Username,
			TokenID:  claims.ID,
			Roles:    roles,
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithIdentity(r.Context(), identity)))
	})
}

// Identify is the optional variant of RequireAuth: a valid token attaches an
// identity, an absent or invalid one passes the request through anonymous.
// Used ahead of rate limiting so authenticated traffic is keyed by user.
func (m *Middleware) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		claims, err := m.Tokens.Verify(r.Context(), token, TokenTypeAccess)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		userID, err := claims.UserID()
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		user, err := m.Repo.GetUser(r.Context(), userID)
		if err != nil || !user.IsActive {
			next.ServeHTTP(w, r)
			return
		}
		roles, _ := m.Roles.RoleNames(r.Context(), userID)
		m.observe(VerifyOutcomeValid)
		identity := &shared.Identity{
			UserID:   user.ID,
			Username: user.Username,
			TokenID:  claims.ID,
			Roles:    roles,
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithIdentity(r.Context(), identity)))
	})
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
