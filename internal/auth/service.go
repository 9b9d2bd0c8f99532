package auth

import (
	"context"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/gatewarden/gatewarden/internal/shared"
)

// NormalizeIdentifier case-folds and trims a login identifier so "Alice"
// and "alice" resolve to the same account. A fresh caser per call: Caser
// values are stateful and must not be shared across goroutines.
func NormalizeIdentifier(identifier string) string {
	return cases.Fold().String(strings.TrimSpace(identifier))
}

// Service wraps the login flow: credential check plus token issuance.
type Service struct {
	repo   RepositoryPort
	hasher *PasswordHasher
	tokens *TokenService
}

// NewService constructs a new Service.
func NewService(repo RepositoryPort, hasher *PasswordHasher, tokens *TokenService) *Service {
	return &Service{repo: repo, hasher: hasher, tokens: tokens}
}

// Authenticate validates identifier/password credentials. Unknown
// identifier, wrong password and disabled account all return the same
// shared.ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, identifier, password string) (*User, error) {
	user, err := s.repo.FindByIdentifier(ctx, NormalizeIdentifier(identifier))
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates and issues a fresh token pair.
func (s *Service) Login(ctx context.Context, identifier, password string) (*User, TokenPair, error) {
	user, err := s.Authenticate(ctx, identifier, password)
	if err != nil {
		return nil, TokenPair{}, err
	}
	pair, err := s.tokens.IssuePair(ctx, user.ID)
	if err != nil {
		return nil, TokenPair{}, err
	}
	_ = s.repo.TouchLastLogin(ctx, user.ID, time.Now())
	return user, pair, nil
}

// Refresh rotates a refresh token into a new pair. The account must still
// be active; a deactivated user cannot mint new credentials.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.tokens.Verify(ctx, refreshToken, TokenTypeRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	userID, err := claims.UserID()
	if err != nil {
		return TokenPair{}, shared.ErrInvalidToken
	}
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil || !user.IsActive {
		return TokenPair{}, shared.ErrInvalidToken
	}
	pair, _, err := s.tokens.Refresh(ctx, refreshToken)
	return pair, err
}

// Logout revokes the presented tokens. It succeeds regardless of their
// prior state.
func (s *Service) Logout(ctx context.Context, accessToken, refreshToken string) {
	for _, token := range []string{accessToken, refreshToken} {
		if token == "" {
			continue
		}
		if claims := s.parseID(ctx, token); claims != "" {
			_ = s.tokens.Revoke(ctx, claims)
		}
	}
}

// parseID extracts the jti from a still-valid token. Expired or already
// revoked tokens yield nothing, which is fine: there is nothing left to
// revoke.
func (s *Service) parseID(ctx context.Context, token string) string {
	for _, typ := range []string{TokenTypeAccess, TokenTypeRefresh} {
		if claims, err := s.tokens.Verify(ctx, token, typ); err == nil {
			return claims.ID
		}
	}
	return ""
}

// Tokens exposes the underlying token service for callers that revoke
// directly (password change, administrative revocation).
func (s *Service) Tokens() *TokenService {
	return s.tokens
}
