package users

import (
	"errors"
	"time"
)

// ErrNotFound indicates the user does not exist.
var ErrNotFound = errors.New("users: not found")

// User represents a registry account.
type User struct {
	ID           string
	Email        string
	Name         string
	IsAdmin      bool
	IsActive     bool
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
