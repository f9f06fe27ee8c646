package rbac

import (
	"context"
	"time"
)

// SystemBootstrap is the assigned_by sentinel for assignments created without a human principal.
const SystemBootstrap = "system-bootstrap"

// Assignment records that one user holds one role. Revocation flips IsActive
// and keeps the record for audit history.
type Assignment struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	UserEmail  string     `json:"user_email"`
	RoleType   RoleType   `json:"role_type"`
	AssignedBy string     `json:"assigned_by"`
	AssignedAt time.Time  `json:"assigned_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	IsActive   bool       `json:"is_active"`
	Notes      string     `json:"notes,omitempty"`
}

// Effective reports whether the assignment grants its role at the given instant.
func (a Assignment) Effective(at time.Time) bool {
	if !a.IsActive {
		return false
	}
	return a.ExpiresAt == nil || a.ExpiresAt.After(at)
}

// AssignmentRequest asks for a role to be granted to the user owning TargetEmail.
type AssignmentRequest struct {
	TargetEmail string     `json:"user_email" validate:"required,email"`
	RoleType    RoleType   `json:"role_type"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Notes       string     `json:"notes,omitempty" validate:"max=500"`
}

// AssignmentResult is returned by AssignRole.
type AssignmentResult struct {
	Success    bool        `json:"success"`
	Message    string      `json:"message"`
	Assignment *Assignment `json:"assignment,omitempty"`
	Errors     []string    `json:"errors"`
}

// PermissionCheckResult is produced fresh on every permission check.
type PermissionCheckResult struct {
	HasPermission bool      `json:"has_permission"`
	Reason        string    `json:"reason"`
	CheckedAt     time.Time `json:"checked_at"`
}

// User is the subset of a user record the authorization core depends on.
type User struct {
	ID      string
	Email   string
	IsAdmin bool
}

// AssignmentStore persists role assignments. Implementations own their
// concurrency guarantees; Insert must return ErrConflict when the user
// already holds an active assignment of the same role.
type AssignmentStore interface {
	ListActive(ctx context.Context, userID string) ([]Assignment, error)
	ListByUser(ctx context.Context, userID string) ([]Assignment, error)
	Insert(ctx context.Context, a Assignment) error
	MarkInactive(ctx context.Context, id string, at time.Time) error
}

// UserDirectory resolves users. Lookups for unknown users return ErrNotFound.
type UserDirectory interface {
	FindUserByID(ctx context.Context, id string) (User, error)
	FindUserByEmail(ctx context.Context, email string) (User, error)
}

// AuditRecorder receives role lifecycle events.
type AuditRecorder interface {
	RecordRoleEvent(ctx context.Context, event RoleEvent) error
}

// RoleEvent describes an assignment or revocation for the audit trail.
type RoleEvent struct {
	Action       string
	ActorID      string
	AssignmentID string
	UserID       string
	RoleType     RoleType
	At           time.Time
}
