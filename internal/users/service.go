package users

import (
	"context"
	"errors"

	"github.com/people-registry/registry/internal/rbac"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
}

// Service exposes the user directory to the authorization core.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Get returns the full user record.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.repo.FindByID(ctx, id)
}

// GetByEmail returns the full user record for an address.
func (s *Service) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.repo.FindByEmail(ctx, NormalizeEmail(email))
}

// FindUserByID implements rbac.UserDirectory.
func (s *Service) FindUserByID(ctx context.Context, id string) (rbac.User, error) {
	u, err := s.repo.FindByID(ctx, id)
	return toDirectoryUser(u, err)
}

// FindUserByEmail implements rbac.UserDirectory.
func (s *Service) FindUserByEmail(ctx context.Context, email string) (rbac.User, error) {
	u, err := s.repo.FindByEmail(ctx, NormalizeEmail(email))
	return toDirectoryUser(u, err)
}

func toDirectoryUser(u *User, err error) (rbac.User, error) {
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return rbac.User{}, rbac.ErrNotFound
		}
		return rbac.User{}, err
	}
	return rbac.User{ID: u.ID, Email: u.Email, IsAdmin: u.IsAdmin}, nil
}

var _ rbac.UserDirectory = (*Service)(nil)
