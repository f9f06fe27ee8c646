package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/people-registry/registry/internal/users"
)

// Service wraps authentication business rules.
type Service struct {
	repo    Repository
	tokens  *TokenManager
	lockout *LockoutStore
	audit   AuditRecorder
	logger  *slog.Logger
	compare func(hash, password []byte) error
}

// dummyHash is compared against when no usable hash exists so that unknown
// and inactive accounts cost as much as a wrong password.
var dummyHash = sync.OnceValue(func() []byte {
	hash, err := bcrypt.GenerateFromPassword([]byte("registry-no-such-account"), bcrypt.DefaultCost)
	if err != nil {
		panic(fmt.Sprintf("auth: dummy hash: %v", err))
	}
	return hash
})

// NewService constructs a new Service. audit may be nil.
func NewService(repo Repository, tokens *TokenManager, lockout *LockoutStore, audit AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, tokens: tokens, lockout: lockout, audit: audit, logger: logger, compare: bcrypt.CompareHashAndPassword}
}

// ValidateToken verifies a bearer token and confirms its user still exists and is active.
func (s *Service) ValidateToken(ctx context.Context, raw string) (Principal, error) {
	claims, err := s.tokens.Parse(raw)
	if err != nil {
		return Principal{}, err
	}
	user, err := s.repo.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return Principal{}, fmt.Errorf("%w: unknown subject", ErrInvalidToken)
		}
		return Principal{}, fmt.Errorf("auth: load token subject: %w", err)
	}
	if !user.IsActive {
		return Principal{}, fmt.Errorf("%w: inactive user", ErrInvalidToken)
	}
	return Principal{UserID: user.ID, Email: user.Email}, nil
}

// IsAccountLocked reports whether userID is locked out.
func (s *Service) IsAccountLocked(ctx context.Context, userID string) (bool, error) {
	return s.lockout.IsLocked(ctx, userID)
}

// Login validates email/password credentials and issues an access token.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	user, err := s.repo.FindByEmail(ctx, users.NormalizeEmail(email))
	if err != nil {
		if !errors.Is(err, users.ErrNotFound) {
			s.logger.Error("auth login lookup", slog.Any("error", err))
		}
		_ = s.compare(dummyHash(), []byte(password))
		return LoginResult{}, ErrInvalidCredentials
	}

	locked, err := s.lockout.IsLocked(ctx, user.ID)
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: lockout check: %w", err)
	}
	if locked {
		s.logger.Warn("authn locked account", slog.String("user_id", user.ID))
		return LoginResult{}, ErrAccountLocked
	}

	if !user.IsActive || user.PasswordHash == "" {
		_ = s.compare(dummyHash(), []byte(password))
		return LoginResult{}, ErrInvalidCredentials
	}
	if err := s.compare([]byte(user.PasswordHash), []byte(password)); err != nil {
		lockedNow, ferr := s.lockout.RecordFailure(ctx, user.ID)
		if ferr != nil {
			s.logger.Error("auth record failure", slog.String("user_id", user.ID), slog.Any("error", ferr))
		}
		if lockedNow {
			s.logger.Warn("auth account locked", slog.String("user_id", user.ID))
			s.record(ctx, "auth.lock", user.ID, user.ID, nil)
		}
		return LoginResult{}, ErrInvalidCredentials
	}

	if err := s.lockout.Clear(ctx, user.ID); err != nil {
		s.logger.Warn("auth clear failures", slog.String("user_id", user.ID), slog.Any("error", err))
	}
	token, _, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return LoginResult{}, err
	}
	s.record(ctx, "auth.login", user.ID, user.ID, nil)
	return LoginResult{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.tokens.TTL().Seconds()),
	}, nil
}

// Unlock clears the lock on userID on behalf of an administrator.
func (s *Service) Unlock(ctx context.Context, userID, adminID string) error {
	if _, err := s.repo.FindByID(ctx, userID); err != nil {
		return err
	}
	if err := s.lockout.Unlock(ctx, userID); err != nil {
		return fmt.Errorf("auth: unlock: %w", err)
	}
	s.logger.Info("auth account unlocked", slog.String("user_id", userID), slog.String("admin_id", adminID))
	s.record(ctx, "auth.unlock", adminID, userID, nil)
	return nil
}

func (s *Service) record(ctx context.Context, action, actorID, subjectID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.RecordSecurityEvent(ctx, action, actorID, subjectID, meta); err != nil {
		s.logger.Warn("auth audit record", slog.String("action", action), slog.Any("error", err))
	}
}
