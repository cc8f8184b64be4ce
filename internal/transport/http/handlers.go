// Copyright 2026 The Counsel Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// @title Counsel Admin API
// @version 1.0.0
// @description Permission administration for the Counsel CMS admin panel

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/counselcms/counsel/internal/audit"
	"github.com/counselcms/counsel/internal/identity"
	"github.com/counselcms/counsel/internal/observability/logger"
	"github.com/counselcms/counsel/internal/permission"
)

const maxBodyBytes = 1 << 20

// Pinger reports the health of a backing store
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds HTTP handlers and dependencies
type Handler struct {
	permissionService *permission.Service
	identityService   *identity.Service
	verifier          *TokenVerifier
	auditLogger       audit.Logger
	db                Pinger
}

// NewHandler creates a new HTTP handler. db may be nil when no store needs
// a health probe.
func NewHandler(
	permissionService *permission.Service,
	identityService *identity.Service,
	verifier *TokenVerifier,
	auditLogger audit.Logger,
	db Pinger,
) *Handler {
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}
	return &Handler{
		permissionService: permissionService,
		identityService:   identityService,
		verifier:          verifier,
		auditLogger:       auditLogger,
		db:                db,
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter, requestTimeout time.Duration) *chi.Mux {
	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.AuthMiddleware)

		r.Get("/me/permissions", h.GetMyPermissions)

		r.Route("/permissions", func(r chi.Router) {
			read := h.RequirePermission(permission.ModulePermissions, permission.ActionRead)
			update := h.RequirePermission(permission.ModulePermissions, permission.ActionUpdate)

			r.With(read).Get("/modules", h.ListActiveModules)
			r.With(read).Get("/modules/all", h.ListAllModules)
			r.With(h.RequirePermission(permission.ModulePermissions, permission.ActionCreate)).
				Post("/modules", h.RegisterModule)
			r.With(update).Put("/modules/{key}", h.UpdateModule)
			r.With(update).Post("/modules/{key}/activate", h.ActivateModule)
			r.With(update).Post("/modules/{key}/deactivate", h.DeactivateModule)
			r.With(h.RequirePermission(permission.ModulePermissions, permission.ActionDelete)).
				Delete("/modules/{key}", h.DeleteModule)

			r.With(update).Post("/cache/clear", h.ClearCache)
			r.With(read).Get("/audit", h.AuditPermissions)

			r.With(read).Get("/templates", h.ListTemplates)
			r.With(update).Put("/templates/{role}", h.SaveTemplate)
		})

		r.Route("/users", func(r chi.Router) {
			r.With(h.RequirePermission(permission.ModuleUsers, permission.ActionCreate)).
				Post("/", h.CreateUser)
			r.With(h.RequirePermission(permission.ModuleUsers, permission.ActionUpdate)).
				Put("/{id}/role", h.ChangeUserRole)
		})
	})

	return r
}

// HealthCheck returns the health status
// @Summary Health Check
// @Description Checks if the service and its database are up
// @Tags System
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			slog.ErrorContext(r.Context(), "health check failed", logger.Error(err))
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":  "unhealthy",
				"service": "counsel",
			})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "counsel",
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// respondServiceError maps domain errors onto HTTP statuses. Validation
// messages are returned verbatim; anything unexpected is logged and hidden.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, permission.ErrModuleNotFound),
		errors.Is(err, permission.ErrTemplateNotFound),
		errors.Is(err, identity.ErrUserNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, permission.ErrSystemModule),
		errors.Is(err, permission.ErrModuleAlreadyExists),
		errors.Is(err, identity.ErrUserAlreadyExists):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, permission.ErrInvalidModule),
		errors.Is(err, permission.ErrInvalidTemplate),
		errors.Is(err, permission.ErrInvalidRole),
		errors.Is(err, permission.ErrInvalidAction),
		errors.Is(err, permission.ErrInvalidCategory),
		errors.Is(err, permission.ErrInvalidCondition),
		errors.Is(err, identity.ErrInvalidUser),
		errors.Is(err, identity.ErrInvalidGrants):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		slog.ErrorContext(r.Context(), fallback, logger.Error(err))
		respondError(w, http.StatusInternalServerError, fallback)
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

func getIPAddress(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
