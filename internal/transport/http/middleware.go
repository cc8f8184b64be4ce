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

package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/counselcms/counsel/internal/audit"
	"github.com/counselcms/counsel/internal/observability/logger"
	"github.com/counselcms/counsel/internal/permission"
)

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			slog.DebugContext(r.Context(), "http_request_start",
				logger.RequestID(middleware.GetReqID(r.Context())),
				logger.Method(r.Method),
				logger.Path(r.URL.Path),
				logger.RemoteAddr(r.RemoteAddr),
			)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				slog.InfoContext(r.Context(), "http_request_end",
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.RemoteAddr(r.RemoteAddr),
					logger.UserAgent(r.UserAgent()),
					logger.StatusCode(ww.Status()),
					logger.Duration(time.Since(start).Milliseconds()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// AuthMiddleware resolves the bearer token to an active user's principal and
// stores it in the request context. The principal's user ID also becomes the
// actor of audit events written further down the chain.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			respondError(w, http.StatusUnauthorized, "not authenticated")
			return
		}

		userID, err := h.verifier.Verify(raw)
		if err != nil {
			slog.DebugContext(r.Context(), "bearer token rejected", logger.Error(err))
			respondError(w, http.StatusUnauthorized, "not authenticated")
			return
		}

		principal, err := h.identityService.Principal(r.Context(), userID)
		if err != nil {
			slog.WarnContext(r.Context(), "failed to resolve principal",
				logger.UserID(userID),
				logger.Error(err),
			)
			respondError(w, http.StatusUnauthorized, "not authenticated")
			return
		}

		ctx := context.WithValue(r.Context(), principalKey, principal)
		ctx = permission.WithActor(ctx, principal.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequirePermission only lets requests through whose principal holds action
// on module. Denials get a generic 403 and an audit event.
func (h *Handler) RequirePermission(module string, action permission.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipal(r.Context())
			if h.permissionService.HasPermission(r.Context(), principal, module, action) {
				next.ServeHTTP(w, r)
				return
			}

			slog.InfoContext(r.Context(), "permission denied",
				logger.Component("http"),
				logger.UserID(permission.ActorFromContext(r.Context())),
				logger.ModuleKey(module),
				logger.Action(string(action)),
				logger.Path(r.URL.Path),
			)
			h.auditLogger.Log(r.Context(), audit.Event{
				Type:      audit.TypePermissionDenied,
				ActorID:   permission.ActorFromContext(r.Context()),
				Resource:  module,
				IPAddress: getIPAddress(r),
				UserAgent: r.UserAgent(),
				Metadata: map[string]any{
					"action": string(action),
					"method": r.Method,
					"path":   r.URL.Path,
				},
			})
			respondError(w, http.StatusForbidden, "forbidden")
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
