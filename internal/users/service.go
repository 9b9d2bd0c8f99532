package users

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gatewarden/gatewarden/internal/auth"
	"github.com/gatewarden/gatewarden/internal/shared"
)

// GraphInvalidator drops the cached permission graph after a grant changes.
type GraphInvalidator interface {
	Invalidate()
}

// TokenRevoker revokes every live token of a user.
type TokenRevoker interface {
	RevokeAllForUser(ctx context.Context, userID int64) error
}

// Service implements the account lifecycle.
type Service struct {
	repo        RepositoryPort
	hasher      *auth.PasswordHasher
	tokens      TokenRevoker
	graph       GraphInvalidator
	policy      PasswordPolicy
	defaultRole string
	logger      *slog.Logger
}

// NewService constructs a Service.
func NewService(repo RepositoryPort, hasher *auth.PasswordHasher, tokens TokenRevoker, graph GraphInvalidator, policy PasswordPolicy, defaultRole string, logger *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		hasher:      hasher,
		tokens:      tokens,
		graph:       graph,
		policy:      policy,
		defaultRole: defaultRole,
		logger:      logger,
	}
}

// Register creates a new active account holding the default role. The
// username is case-folded and the email lowercased so lookups stay
// case-insensitive.
func (s *Service) Register(ctx context.Context, username, email, password string) (User, error) {
	username = auth.NormalizeIdentifier(username)
	email = strings.ToLower(strings.TrimSpace(email))
	if err := s.policy.Validate(password); err != nil {
		return User{}, err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return User{}, fmt.Errorf("users: hash password: %w", err)
	}
	user, err := s.repo.CreateUserWithRole(ctx, username, email, hash, s.defaultRole)
	if err != nil {
		return User{}, err
	}
	s.graph.Invalidate()
	s.logger.Info("user registered", slog.Int64("user_id", user.ID), slog.String("username", user.Username))
	return user, nil
}

// ChangePassword verifies the current password before accepting the new
// one, then revokes every outstanding token of the account.
func (s *Service) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	hash, err := s.repo.GetPasswordHash(ctx, userID)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(current, hash) {
		return shared.ErrInvalidCredentials
	}
	if err := s.policy.Validate(next); err != nil {
		return err
	}
	newHash, err := s.hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("users: hash password: %w", err)
	}
	if err := s.repo.UpdatePassword(ctx, userID, newHash); err != nil {
		return err
	}
	if err := s.tokens.RevokeAllForUser(ctx, userID); err != nil {
		s.logger.Error("revoke tokens after password change", slog.Int64("user_id", userID), slog.Any("error", err))
		return err
	}
	return nil
}

// Get returns one account.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// List returns a page of accounts with pagination metadata.
func (s *Service) List(ctx context.Context, page, perPage int) ([]User, shared.Pagination, error) {
	p := shared.NewPagination(page, perPage, 0)
	users, total, err := s.repo.ListUsers(ctx, p)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return users, shared.NewPagination(p.Page, p.PerPage, total), nil
}

// UpdateEmail changes the account email.
func (s *Service) UpdateEmail(ctx context.Context, id int64, email string) (User, error) {
	return s.repo.UpdateEmail(ctx, id, strings.ToLower(strings.TrimSpace(email)))
}

// SetActive enables or disables an account. Deactivation revokes every
// outstanding token so the account loses access immediately, not at token
// expiry.
func (s *Service) SetActive(ctx context.Context, id int64, active bool) (User, error) {
	user, err := s.repo.SetActive(ctx, id, active)
	if err != nil {
		return User{}, err
	}
	if !active {
		if err := s.tokens.RevokeAllForUser(ctx, id); err != nil {
			s.logger.Error("revoke tokens after deactivation", slog.Int64("user_id", id), slog.Any("error", err))
			return User{}, err
		}
	}
	return user, nil
}

// Delete removes an account and revokes its tokens. Role grants go with the
// account via foreign keys, so the permission graph is invalidated too.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.tokens.RevokeAllForUser(ctx, id); err != nil {
		return err
	}
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.graph.Invalidate()
	return nil
}
