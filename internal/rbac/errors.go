package rbac

import "errors"

var (
	// ErrNotFound indicates that the referenced user or assignment does not exist.
	ErrNotFound = errors.New("rbac: not found")
	// ErrConflict indicates the target already holds an active assignment of the role.
	ErrConflict = errors.New("rbac: role already assigned")
	// ErrInsufficientAssignerPrivilege indicates the caller's hierarchy level is too low to manage the role.
	ErrInsufficientAssignerPrivilege = errors.New("rbac: insufficient privilege to manage role")
	// ErrInternal hides collaborator failures from callers.
	ErrInternal = errors.New("rbac: internal error")
	// ErrInvalidRole indicates an unknown role slug.
	ErrInvalidRole = errors.New("rbac: invalid role")
	// ErrInvalidPermission indicates an unknown permission identifier.
	ErrInvalidPermission = errors.New("rbac: invalid permission")
	// ErrInvalidRequest indicates a malformed assignment request.
	ErrInvalidRequest = errors.New("rbac: invalid request")
)
