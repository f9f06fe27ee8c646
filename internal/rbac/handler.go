package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/people-registry/registry/internal/platform/httpx"
)

// OwnershipSource builds ownership predicates for own-scoped permissions.
type OwnershipSource interface {
	PredicateFor(ctx context.Context, perm Permission) OwnershipPredicate
}

// Handler exposes role management and self-inspection endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     Middleware
	owners    OwnershipSource
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard Middleware, owners OwnershipSource) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard, owners: owners, validator: validator.New()}
}

// MountAdminRoutes registers role management routes.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(PermRoleRead, PermRoleAdmin))
		r.Get("/", h.listRoles)
		r.Get("/users/{userID}", h.listUserAssignments)
	})
	// Revocation follows the same hierarchy rule as assignment, so whoever may
	// assign a role may also take it back.
	r.With(h.guard.RequireAny(PermRoleAssign, PermRoleAdmin)).Post("/assign", h.assignRole)
	r.With(h.guard.RequireAny(PermRoleAssign, PermRoleRevoke, PermRoleAdmin)).Post("/revoke", h.revokeRole)
}

// MountSelfRoutes registers routes that inspect the caller's own access.
func (h *Handler) MountSelfRoutes(r chi.Router) {
	r.Get("/roles", h.myRoles)
	r.Post("/permissions/check", h.checkPermission)
}

type roleView struct {
	RoleType         string   `json:"role_type"`
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	HierarchyLevel   int      `json:"hierarchy_level"`
	Permissions      []string `json:"permissions"`
	IsAdminRole      bool     `json:"is_admin_role"`
	IsSuperAdminRole bool     `json:"is_super_admin_role"`
}

type catalogView struct {
	Roles                []roleView `json:"roles"`
	AvailablePermissions []string   `json:"available_permissions"`
}

func buildCatalog() catalogView {
	roles := AllRoleTypes()
	view := catalogView{Roles: make([]roleView, 0, len(roles))}
	for _, role := range roles {
		def := Definition(role)
		view.Roles = append(view.Roles, roleView{
			RoleType:         role.String(),
			Name:             def.Name,
			Description:      def.Description,
			HierarchyLevel:   def.Level,
			Permissions:      def.Permissions.Names(),
			IsAdminRole:      IsAdminRole(role),
			IsSuperAdminRole: IsSuperAdminRole(role),
		})
	}
	view.AvailablePermissions = NewPermissionSet(AllPermissions()...).Names()
	return view
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, buildCatalog())
}

func (h *Handler) listUserAssignments(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	assignments, err := h.service.ListAssignments(r.Context(), userID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if assignments == nil {
		assignments = []Assignment{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user_id": userID, "assignments": assignments})
}

type assignRoleBody struct {
	UserEmail string     `json:"user_email" validate:"required,email"`
	RoleType  string     `json:"role_type" validate:"required"`
	ExpiresAt *time.Time `json:"expires_at"`
	Notes     string     `json:"notes" validate:"max=500"`
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.guard.currentUserID(r)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	var body assignRoleBody
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed request body")
		return
	}
	if err := h.validator.Struct(body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
		return
	}
	role, err := ParseRoleType(body.RoleType)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown role_type")
		return
	}
	result, err := h.service.AssignRole(r.Context(), AssignmentRequest{
		TargetEmail: body.UserEmail,
		RoleType:    role,
		ExpiresAt:   body.ExpiresAt,
		Notes:       body.Notes,
	}, actorID)
	if err != nil {
		httpx.JSON(w, statusFor(err), result)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

type revokeRoleBody struct {
	UserID   string `json:"user_id" validate:"required"`
	RoleType string `json:"role_type" validate:"required"`
}

func (h *Handler) revokeRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.guard.currentUserID(r)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	var body revokeRoleBody
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed request body")
		return
	}
	if err := h.validator.Struct(body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
		return
	}
	role, err := ParseRoleType(body.RoleType)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown role_type")
		return
	}
	if _, err := h.service.RevokeRole(r.Context(), body.UserID, role, actorID); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "role " + role.String() + " revoked",
	})
}

func (h *Handler) myRoles(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.guard.currentUserID(r)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	roles := h.service.GetUserRoles(r.Context(), userID)
	isAdmin := false
	for role := range roles {
		if IsAdminRole(role) {
			isAdmin = true
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user_id":        userID,
		"roles":          roles.Names(),
		"permissions":    roles.Permissions().Names(),
		"is_admin":       isAdmin,
		"is_super_admin": roles.Has(RoleSuperAdmin),
	})
}

type checkPermissionBody struct {
	Permission string `json:"permission" validate:"required"`
	ResourceID string `json:"resource_id"`
}

func (h *Handler) checkPermission(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.guard.currentUserID(r)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	var body checkPermissionBody
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed request body")
		return
	}
	if err := h.validator.Struct(body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
		return
	}
	perm, err := ParsePermission(body.Permission)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown permission")
		return
	}
	var owns OwnershipPredicate
	if h.owners != nil {
		owns = h.owners.PredicateFor(r.Context(), perm)
	}
	result := h.service.CheckUserPermission(r.Context(), userID, perm, body.ResourceID, owns)
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	switch status {
	case http.StatusForbidden:
		httpx.Problem(w, status, "Forbidden", "role is above your privilege level; ask a higher-privileged administrator")
	case http.StatusNotFound:
		httpx.Problem(w, status, "Not Found", "resource not found")
	case http.StatusConflict:
		httpx.Problem(w, status, "Conflict", "role already assigned")
	case http.StatusBadRequest:
		httpx.Problem(w, status, "Validation Failed", err.Error())
	default:
		h.logger.Error("rbac handler", slog.Any("error", err))
		httpx.Problem(w, status, "Internal Error", "")
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInsufficientAssignerPrivilege):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidRole), errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func validationDetail(err error) string {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return fieldErrs[0].Field() + " failed " + fieldErrs[0].Tag()
	}
	return "invalid request"
}
