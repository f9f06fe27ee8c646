package auth

import (
	"context"
	"errors"

	"github.com/people-registry/registry/internal/users"
)

var (
	// ErrInvalidCredentials is returned for any failed login.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrInvalidToken is returned when a bearer token cannot be trusted.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrAccountLocked is returned while an account is locked out.
	ErrAccountLocked = errors.New("auth: account locked")
)

// Principal is the authenticated caller behind a bearer token.
type Principal struct {
	UserID string
	Email  string
}

// Repository defines the user lookups authentication depends on.
type Repository interface {
	FindByID(ctx context.Context, id string) (*users.User, error)
	FindByEmail(ctx context.Context, email string) (*users.User, error)
}

// AuditRecorder receives security events. Implementations must not block for long.
type AuditRecorder interface {
	RecordSecurityEvent(ctx context.Context, action, actorID, subjectID string, meta map[string]any) error
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}
