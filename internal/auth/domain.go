package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token types embedded in the type claim. Refresh tokens are the only tokens
// that can mint new pairs.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// User is the authentication view of an account.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	LastLoginAt  *time.Time
}

// Claims carries the signed token payload: {sub, jti, type, iat, exp}.
// Roles are deliberately not embedded; they are re-evaluated live so a
// token never grants stale privileges.
type Claims struct {
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// TokenPair is the result of issuing or refreshing credentials.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

// TokenRecord is the durable row tracking an issued token. Records only
// move forward: issued, then expired by time or revoked by action.
type TokenRecord struct {
	JTI       string
	UserID    int64
	TokenType string
	ParentJTI string
	IssuedAt  time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}
