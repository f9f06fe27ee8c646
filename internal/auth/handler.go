package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/people-registry/registry/internal/platform/httpx"
	"github.com/people-registry/registry/internal/users"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	validator   *validator.Validate
	currentUser func(r *http.Request) (string, bool)
}

// NewHandler constructs a Handler instance. currentUser resolves the
// authenticated administrator for unlock requests.
func NewHandler(logger *slog.Logger, service *Service, currentUser func(r *http.Request) (string, bool)) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New(), currentUser: currentUser}
}

// MountRoutes registers public auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
}

// MountAdminRoutes registers account administration routes.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Post("/{userID}/unlock", h.handleUnlock)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "email and password are required")
		return
	}
	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	switch {
	case err == nil:
		httpx.JSON(w, http.StatusOK, result)
	case errors.Is(err, ErrAccountLocked):
		httpx.RespondError(w, httpx.ErrLocked)
	case errors.Is(err, ErrInvalidCredentials):
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid email or password")
	default:
		h.logger.Error("auth login", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func (h *Handler) handleUnlock(w http.ResponseWriter, r *http.Request) {
	adminID, ok := "", false
	if h.currentUser != nil {
		adminID, ok = h.currentUser(r)
	}
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	userID := chi.URLParam(r, "userID")
	if err := h.service.Unlock(r.Context(), userID, adminID); err != nil {
		if errors.Is(err, users.ErrNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		h.logger.Error("auth unlock", slog.String("user_id", userID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "user_id": userID})
}
