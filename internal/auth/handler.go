package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gatewarden/gatewarden/internal/platform/httpx"
	"github.com/gatewarden/gatewarden/internal/ratelimit"
	"github.com/gatewarden/gatewarden/internal/shared"
)

// PermissionSource resolves the effective permission names of a user.
type PermissionSource interface {
	EffectivePermissions(ctx context.Context, userID int64) ([]string, error)
}

// Handler exposes the authentication endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	perms    PermissionSource
	audit    *shared.AuditLogger
	mw       *Middleware
	rate     *ratelimit.Middleware
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, perms PermissionSource, audit *shared.AuditLogger, mw *Middleware, rate *ratelimit.Middleware) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		perms:    perms,
		audit:    audit,
		mw:       mw,
		rate:     rate,
		validate: validator.New(),
	}
}

// MountRoutes registers authentication routes. Login and refresh are public
// under their own tight rate classes; the rest require a valid access token
// and are rate limited by caller.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rate.Limit(ratelimit.ClassLogin)).Post("/login", h.login)
	r.With(h.rate.Limit(ratelimit.ClassRefresh)).Post("/refresh", h.refresh)
	r.Group(func(r chi.Router) {
		r.Use(h.mw.Identify)
		r.Use(h.rate.ByCaller)
		r.Use(h.mw.RequireAuth)
		r.Post("/logout", h.logout)
		r.Get("/me", h.me)
		r.Get("/permissions", h.permissions)
	})
}

type loginRequest struct {
	Identifier string `json:"identifier" validate:"required,min=1,max=255"`
	Password   string `json:"password" validate:"required,min=1,max=128"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

func toTokenResponse(pair TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "bearer",
		ExpiresIn:    pair.ExpiresIn,
	}
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "identifier and password are required")
		return
	}
	user, pair, err := h.service.Login(r.Context(), req.Identifier, req.Password)
	if err != nil {
		h.recordAudit(r.Context(), shared.AuditLoginFailed, 0, NormalizeIdentifier(req.Identifier), nil)
		httpx.RespondError(w, err)
		return
	}
	h.recordAudit(r.Context(), shared.AuditLogin, user.ID, strconv.FormatInt(user.ID, 10), nil)
	httpx.JSON(w, http.StatusOK, toTokenResponse(pair))
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "refresh_token is required")
		return
	}
	pair, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.recordAudit(r.Context(), shared.AuditRefresh, 0, "rotation", nil)
	httpx.JSON(w, http.StatusOK, toTokenResponse(pair))
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())

	// Body is optional; a missing refresh token just means only the access
	// token gets revoked.
	var req logoutRequest
	_ = httpx.DecodeJSON(r, &req)

	if err := h.service.Tokens().Revoke(r.Context(), identity.TokenID); err != nil {
		h.logger.Error("revoke access token", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if req.RefreshToken != "" {
		h.service.Logout(r.Context(), "", req.RefreshToken)
	}
	h.recordAudit(r.Context(), shared.AuditLogout, identity.UserID, identity.TokenID, nil)
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

type meResponse struct {
	ID       int64    `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	IsActive bool     `json:"is_active"`
	Roles    []string `json:"roles"`
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	user, err := h.service.repo.GetUser(r.Context(), identity.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, meResponse{
		ID:       user.ID,
		Username: user.Username,
		Email:    user.Email,
		IsActive: user.IsActive,
		Roles:    identity.Roles,
	})
}

func (h *Handler) permissions(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	names, err := h.perms.EffectivePermissions(r.Context(), identity.UserID)
	if err != nil {
		h.logger.Error("effective permissions", slog.Int64("user_id", identity.UserID), slog.Any("error", err))
		httpx.RespondError(w, shared.ErrStoreUnavailable)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user_id":     identity.UserID,
		"permissions": names,
	})
}

// recordAudit logs the auth event. An audit write failure never fails the
// request it describes.
func (h *Handler) recordAudit(ctx context.Context, action string, actorID int64, entityID string, meta map[string]any) {
	err := h.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "user",
		EntityID: entityID,
		Meta:     meta,
	})
	if err != nil {
		h.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
