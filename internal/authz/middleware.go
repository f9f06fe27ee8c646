package authz

import (
	"log/slog"
	"net/http"

	"github.com/people-registry/registry/internal/platform/httpx"
	"github.com/people-registry/registry/internal/shared"
)

// DecisionObserver receives one observation per evaluated request.
type DecisionObserver interface {
	ObserveAuthzDecision(decision string)
}

// Middleware enforces Pipeline decisions on an HTTP handler chain.
type Middleware struct {
	pipeline *Pipeline
	logger   *slog.Logger
	observer DecisionObserver
}

// NewMiddleware builds Middleware. observer may be nil.
func NewMiddleware(pipeline *Pipeline, logger *slog.Logger, observer DecisionObserver) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{pipeline: pipeline, logger: logger, observer: observer}
}

// Handler returns the chi-compatible middleware.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result := m.pipeline.Evaluate(r.Context(), r)
		if m.observer != nil {
			m.observer.ObserveAuthzDecision(result.Decision.String())
		}
		switch result.Decision {
		case Allow:
			ctx := WithRequestContext(r.Context(), result.Context)
			if result.Context.Authenticated() {
				ctx = shared.ContextWithUserID(ctx, result.Context.UserID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		case DenyUnauthenticated:
			httpx.RespondError(w, httpx.ErrUnauthorized)
		case DenyLocked:
			httpx.RespondError(w, httpx.ErrLocked)
		default:
			rc := result.Context
			m.logger.Warn("authz denied",
				slog.String("user_id", rc.UserID),
				slog.String("method", rc.Method),
				slog.String("path", rc.Path),
				slog.String("permission", rc.Permission.String()),
				slog.String("resource_id", rc.ResourceID),
				slog.String("reason", result.Reason),
			)
			httpx.RespondError(w, httpx.ErrForbidden)
		}
	})
}
