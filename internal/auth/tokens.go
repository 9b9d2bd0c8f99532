package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/gatewarden/gatewarden/internal/shared"
)

// TokenStore persists token records. Postgres is the durable system of
// record; the RevocationStore answers the hot-path lookups.
type TokenStore interface {
	InsertToken(ctx context.Context, rec TokenRecord) error
	// RevokeToken marks the jti and every descendant in its rotation chain
	// as revoked, returning the records that were newly revoked.
	RevokeToken(ctx context.Context, jti string, at time.Time) ([]TokenRecord, error)
	RevokeUserTokens(ctx context.Context, userID int64, at time.Time) ([]TokenRecord, error)
	PurgeExpiredTokens(ctx context.Context, before time.Time) (int64, error)
}

// TokenConfig collects the signing parameters.
type TokenConfig struct {
	Secret     []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// TokenService issues, verifies, refreshes and revokes token pairs.
type TokenService struct {
	cfg         TokenConfig
	revocations RevocationStore
	store       TokenStore
	logger      *slog.Logger
	now         func() time.Time
}

// NewTokenService constructs a TokenService.
func NewTokenService(cfg TokenConfig, revocations RevocationStore, store TokenStore, logger *slog.Logger) *TokenService {
	return &TokenService{
		cfg:         cfg,
		revocations: revocations,
		store:       store,
		logger:      logger,
		now:         time.Now,
	}
}

// IssuePair mints an access/refresh pair for the subject with distinct jtis.
func (s *TokenService) IssuePair(ctx context.Context, userID int64) (TokenPair, error) {
	return s.issuePair(ctx, userID, "")
}

func (s *TokenService) issuePair(ctx context.Context, userID int64, parentJTI string) (TokenPair, error) {
	access, _, err := s.sign(ctx, userID, TokenTypeAccess, s.cfg.AccessTTL, "")
	if err != nil {
		return TokenPair{}, err
	}
	refresh, _, err := s.sign(ctx, userID, TokenTypeRefresh, s.cfg.RefreshTTL, parentJTI)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.cfg.AccessTTL.Seconds()),
	}, nil
}

func (s *TokenService) sign(ctx context.Context, userID int64, tokenType string, ttl time.Duration, parentJTI string) (string, string, error) {
	now := s.now().UTC()
	jti := uuid.NewString()
	claims := Claims{
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ID:        jti,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
	if err != nil {
		return "", "", fmt.Errorf("auth: sign token: %w", err)
	}
	if err := s.store.InsertToken(ctx, TokenRecord{
		JTI:       jti,
		UserID:    userID,
		TokenType: tokenType,
		ParentJTI: parentJTI,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}); err != nil {
		return "", "", fmt.Errorf("auth: record token: %w", err)
	}
	return signed, jti, nil
}

// Verify checks signature, expiry, type and revocation. Every user-caused
// failure collapses into shared.ErrInvalidToken; the specific cause is only
// logged. A revocation-store outage is the one distinct error, and it still
// rejects.
func (s *TokenService) Verify(ctx context.Context, token, expectedType string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.cfg.Secret, nil
	}, jwt.WithIssuedAt())
	if err != nil || !parsed.Valid {
		s.debug("token parse failed", err)
		return nil, shared.ErrInvalidToken
	}
	if claims.TokenType != expectedType {
		s.debug("token type mismatch", nil)
		return nil, shared.ErrInvalidToken
	}
	if claims.ExpiresAt == nil || s.now().After(claims.ExpiresAt.Time) {
		s.debug("token expired", nil)
		return nil, shared.ErrInvalidToken
	}
	revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		// Fail closed: without the revocation set we cannot trust any token.
		return nil, err
	}
	if revoked {
		s.debug("token revoked", nil)
		return nil, shared.ErrInvalidToken
	}
	return claims, nil
}

// UserID returns the subject parsed as a user ID.
func (c *Claims) UserID() (int64, error) {
	return strconv.ParseInt(c.RegisteredClaims.Subject, 10, 64)
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// pair is issued with the old jti recorded as the rotation parent. Replaying
// the superseded token afterwards fails. The revocation doubles as the
// rotation lock: of two concurrent presentations only the one whose revoke
// actually flips the row gets a new pair, the other sees its jti missing
// from the revoked set and is rejected as a replay.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (TokenPair, *Claims, error) {
	claims, err := s.Verify(ctx, refreshToken, TokenTypeRefresh)
	if err != nil {
		return TokenPair{}, nil, err
	}
	userID, err := claims.UserID()
	if err != nil {
		s.debug("token subject malformed", err)
		return TokenPair{}, nil, shared.ErrInvalidToken
	}
	now := s.now().UTC()
	revoked, err := s.store.RevokeToken(ctx, claims.ID, now)
	if err != nil {
		return TokenPair{}, nil, fmt.Errorf("auth: revoke: %w", err)
	}
	if err := s.markAll(ctx, revoked, now); err != nil {
		return TokenPair{}, nil, err
	}
	if !revokedHere(revoked, claims.ID) {
		s.debug("refresh token already consumed", nil)
		return TokenPair{}, nil, shared.ErrInvalidToken
	}
	pair, err := s.issuePair(ctx, userID, claims.ID)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, claims, nil
}

func revokedHere(records []TokenRecord, jti string) bool {
	for _, rec := range records {
		if rec.JTI == jti {
			return true
		}
	}
	return false
}

// Revoke marks the jti, and any tokens minted through its rotation chain, as
// revoked. It is idempotent: revoking an already revoked or unknown jti
// leaves the same end state without error.
func (s *TokenService) Revoke(ctx context.Context, jti string) error {
	now := s.now().UTC()
	revoked, err := s.store.RevokeToken(ctx, jti, now)
	if err != nil {
		return fmt.Errorf("auth: revoke: %w", err)
	}
	return s.markAll(ctx, revoked, now)
}

// RevokeAllForUser revokes every live token of a user, used on password
// change and logout-everywhere.
func (s *TokenService) RevokeAllForUser(ctx context.Context, userID int64) error {
	now := s.now().UTC()
	revoked, err := s.store.RevokeUserTokens(ctx, userID, now)
	if err != nil {
		return fmt.Errorf("auth: revoke user tokens: %w", err)
	}
	return s.markAll(ctx, revoked, now)
}

func (s *TokenService) markAll(ctx context.Context, records []TokenRecord, now time.Time) error {
	var firstErr error
	for _, rec := range records {
		if err := s.revocations.MarkRevoked(ctx, rec.JTI, rec.ExpiresAt.Sub(now)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *TokenService) debug(msg string, err error) {
	if s.logger == nil {
		return
	}
	if err != nil {
		s.logger.Debug(msg, slog.Any("error", err))
		return
	}
	s.logger.Debug(msg)
}
