package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Service manages who holds which role.
type Service struct {
	store  AssignmentStore
	users  UserDirectory
	audit  AuditRecorder
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// NewService constructs a Service. audit may be nil.
func NewService(store AssignmentStore, users UserDirectory, audit AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		users:  users,
		audit:  audit,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

// GetUserRoles returns the active roles of userID. Users without
// assignments fall back to admin (legacy flag) or user; unknown users and
// lookup failures resolve to guest. It never returns an error.
func (s *Service) GetUserRoles(ctx context.Context, userID string) RoleSet {
	if userID == "" {
		return GuestRoles()
	}
	assignments, err := s.store.ListActive(ctx, userID)
	if err != nil {
		s.logger.Error("rbac get user roles", slog.String("user_id", userID), slog.Any("error", err))
		return GuestRoles()
	}
	now := s.now()
	roles := RoleSet{}
	for _, a := range assignments {
		if a.Effective(now) && a.RoleType.Valid() {
			roles[a.RoleType] = struct{}{}
		}
	}
	if len(roles) > 0 {
		return roles
	}

	user, err := s.users.FindUserByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Error("rbac get user roles fallback", slog.String("user_id", userID), slog.Any("error", err))
		}
		return GuestRoles()
	}
	if user.IsAdmin {
		return NewRoleSet(RoleAdmin)
	}
	return NewRoleSet(RoleUser)
}

// EffectivePermissions returns the union of permissions granted by the user's roles.
func (s *Service) EffectivePermissions(ctx context.Context, userID string) PermissionSet {
	return s.GetUserRoles(ctx, userID).Permissions()
}

// CheckUserPermission resolves the user's roles and runs CheckPermission.
func (s *Service) CheckUserPermission(ctx context.Context, userID string, required Permission, resourceID string, owns OwnershipPredicate) PermissionCheckResult {
	roles := s.GetUserRoles(ctx, userID)
	result := CheckPermission(userID, roles, required, resourceID, owns)
	s.logger.Debug("rbac permission check",
		slog.String("user_id", userID),
		slog.String("permission", required.String()),
		slog.String("resource_id", resourceID),
		slog.Bool("granted", result.HasPermission),
	)
	return result
}

// UserIsAdmin reports whether the user holds admin or super_admin.
func (s *Service) UserIsAdmin(ctx context.Context, userID string) bool {
	for r := range s.GetUserRoles(ctx, userID) {
		if IsAdminRole(r) {
			return true
		}
	}
	return false
}

// UserIsSuperAdmin reports whether the user holds super_admin.
func (s *Service) UserIsSuperAdmin(ctx context.Context, userID string) bool {
	return s.GetUserRoles(ctx, userID).Has(RoleSuperAdmin)
}

// ListAssignments returns every assignment record of the user, revoked ones included.
func (s *Service) ListAssignments(ctx context.Context, userID string) ([]Assignment, error) {
	assignments, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		s.logger.Error("rbac list assignments", slog.String("user_id", userID), slog.Any("error", err))
		return nil, ErrInternal
	}
	return assignments, nil
}

// AssignRole grants req.RoleType to the user identified by req.TargetEmail.
func (s *Service) AssignRole(ctx context.Context, req AssignmentRequest, assignedBy string) (AssignmentResult, error) {
	role := req.RoleType
	if !role.Valid() {
		return failure("invalid role", ErrInvalidRole), ErrInvalidRole
	}
	now := s.now()
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		err := fmt.Errorf("%w: expiry must be in the future", ErrInvalidRequest)
		return failure("invalid expiry", err), err
	}

	assignerRoles := s.GetUserRoles(ctx, assignedBy)
	if !CanAssignRole(assignerRoles, role) {
		s.logger.Warn("rbac assign denied",
			slog.String("assigned_by", assignedBy),
			slog.Any("assigner_roles", assignerRoles.Names()),
			slog.String("role", role.String()),
		)
		err := fmt.Errorf("%w: cannot assign %s", ErrInsufficientAssignerPrivilege, role)
		return failure("role assignment not permitted", err), err
	}

	target, err := s.users.FindUserByEmail(ctx, req.TargetEmail)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Info("rbac assign target missing", slog.String("email", req.TargetEmail))
			return failure("resource not found", ErrNotFound), ErrNotFound
		}
		s.logger.Error("rbac assign lookup target", slog.String("email", req.TargetEmail), slog.Any("error", err))
		return failure("role assignment failed", ErrInternal), ErrInternal
	}

	active, err := s.store.ListActive(ctx, target.ID)
	if err != nil {
		s.logger.Error("rbac assign list active", slog.String("user_id", target.ID), slog.Any("error", err))
		return failure("role assignment failed", ErrInternal), ErrInternal
	}
	for _, a := range active {
		if a.RoleType != role {
			continue
		}
		if a.Effective(now) {
			err := fmt.Errorf("%w: %s", ErrConflict, role)
			return failure("user already has role "+role.String(), err), err
		}
		// Expired but still flagged active; retire it so the new record is the only active one.
		if err := s.store.MarkInactive(ctx, a.ID, now); err != nil && !errors.Is(err, ErrNotFound) {
			s.logger.Error("rbac retire expired assignment", slog.String("assignment_id", a.ID), slog.Any("error", err))
			return failure("role assignment failed", ErrInternal), ErrInternal
		}
	}

	assignment := Assignment{
		ID:         s.newID(),
		UserID:     target.ID,
		UserEmail:  target.Email,
		RoleType:   role,
		AssignedBy: assignedBy,
		AssignedAt: now,
		UpdatedAt:  now,
		ExpiresAt:  req.ExpiresAt,
		IsActive:   true,
		Notes:      req.Notes,
	}
	if err := s.store.Insert(ctx, assignment); err != nil {
		if errors.Is(err, ErrConflict) {
			err = fmt.Errorf("%w: %s", ErrConflict, role)
			return failure("user already has role "+role.String(), err), err
		}
		s.logger.Error("rbac insert assignment", slog.String("user_id", target.ID), slog.Any("error", err))
		return failure("role assignment failed", ErrInternal), ErrInternal
	}

	s.recordEvent(ctx, RoleEvent{
		Action:       "role.assign",
		ActorID:      assignedBy,
		AssignmentID: assignment.ID,
		UserID:       target.ID,
		RoleType:     role,
		At:           now,
	})
	s.logger.Info("rbac role assigned",
		slog.String("user_id", target.ID),
		slog.String("role", role.String()),
		slog.String("assigned_by", assignedBy),
	)
	return AssignmentResult{
		Success:    true,
		Message:    fmt.Sprintf("role %s assigned successfully", role),
		Assignment: &assignment,
		Errors:     []string{},
	}, nil
}

// RevokeRole deactivates the user's active assignment of role.
func (s *Service) RevokeRole(ctx context.Context, userID string, role RoleType, revokedBy string) (bool, error) {
	if !role.Valid() {
		return false, ErrInvalidRole
	}
	revokerRoles := s.GetUserRoles(ctx, revokedBy)
	if !CanAssignRole(revokerRoles, role) {
		s.logger.Warn("rbac revoke denied",
			slog.String("revoked_by", revokedBy),
			slog.Any("revoker_roles", revokerRoles.Names()),
			slog.String("role", role.String()),
		)
		return false, fmt.Errorf("%w: cannot revoke %s", ErrInsufficientAssignerPrivilege, role)
	}

	active, err := s.store.ListActive(ctx, userID)
	if err != nil {
		s.logger.Error("rbac revoke list active", slog.String("user_id", userID), slog.Any("error", err))
		return false, ErrInternal
	}
	var target *Assignment
	for i := range active {
		if active[i].RoleType == role && active[i].IsActive {
			target = &active[i]
			break
		}
	}
	if target == nil {
		s.logger.Info("rbac revoke assignment missing", slog.String("user_id", userID), slog.String("role", role.String()))
		return false, ErrNotFound
	}

	now := s.now()
	if err := s.store.MarkInactive(ctx, target.ID, now); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, ErrNotFound
		}
		s.logger.Error("rbac mark inactive", slog.String("assignment_id", target.ID), slog.Any("error", err))
		return false, ErrInternal
	}

	s.recordEvent(ctx, RoleEvent{
		Action:       "role.revoke",
		ActorID:      revokedBy,
		AssignmentID: target.ID,
		UserID:       userID,
		RoleType:     role,
		At:           now,
	})
	s.logger.Info("rbac role revoked",
		slog.String("user_id", userID),
		slog.String("role", role.String()),
		slog.String("revoked_by", revokedBy),
	)
	return true, nil
}

func (s *Service) recordEvent(ctx context.Context, event RoleEvent) {
	if s.audit == nil {
		return
	}
	if err := s.audit.RecordRoleEvent(ctx, event); err != nil {
		s.logger.Warn("rbac audit record", slog.String("action", event.Action), slog.Any("error", err))
	}
}

func failure(message string, err error) AssignmentResult {
	return AssignmentResult{Success: false, Message: message, Errors: []string{err.Error()}}
}
