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
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/counselcms/counsel/internal/audit"
	"github.com/counselcms/counsel/internal/observability/logger"
	"github.com/counselcms/counsel/internal/permission"
)

// RegisterModuleResponse is returned by module registration
type RegisterModuleResponse struct {
	Module        *permission.Module         `json:"module"`
	Created       bool                       `json:"created"`
	Retrofit      *permission.RetrofitReport `json:"retrofit,omitempty"`
	RetrofitError string                     `json:"retrofit_error,omitempty"`
}

// ListActiveModules returns the cached active modules
// @Summary List active modules
// @Tags Permissions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]any
// @Failure 403 {object} map[string]string
// @Router /permissions/modules [get]
func (h *Handler) ListActiveModules(w http.ResponseWriter, r *http.Request) {
	modules := h.permissionService.GetActiveModules(r.Context())
	respondJSON(w, http.StatusOK, map[string]any{
		"modules": modules,
		"count":   len(modules),
	})
}

// ListAllModules returns every module including inactive ones
// @Summary List all modules
// @Tags Permissions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]any
// @Router /permissions/modules/all [get]
func (h *Handler) ListAllModules(w http.ResponseWriter, r *http.Request) {
	modules, err := h.permissionService.ListModules(r.Context())
	if err != nil {
		respondServiceError(w, r, err, "failed to list modules")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"modules": modules,
		"count":   len(modules),
	})
}

// RegisterModule registers a module and retrofits it onto existing users
// @Summary Register module
// @Description Idempotent by key. A new module is granted to existing users per their role template.
// @Tags Permissions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body permission.Module true "Module definition"
// @Success 200 {object} RegisterModuleResponse "already registered"
// @Success 201 {object} RegisterModuleResponse
// @Failure 400 {object} map[string]string
// @Router /permissions/modules [post]
func (h *Handler) RegisterModule(w http.ResponseWriter, r *http.Request) {
	var m permission.Module
	if !decodeJSON(w, r, &m) {
		return
	}

	reg, err := h.permissionService.RegisterModule(r.Context(), m)
	if err != nil && (reg == nil || !reg.Created) {
		respondServiceError(w, r, err, "failed to register module")
		return
	}

	resp := RegisterModuleResponse{
		Module:   reg.Module,
		Created:  reg.Created,
		Retrofit: reg.Retrofit,
	}
	if err != nil {
		// The module is persisted; only the retrofit is incomplete.
		slog.ErrorContext(r.Context(), "module registered with incomplete retrofit",
			logger.ModuleKey(m.Key),
			logger.Error(err),
		)
		resp.RetrofitError = "retrofit incomplete, run the permission audit"
	}

	status := http.StatusOK
	if reg.Created {
		status = http.StatusCreated
	}
	respondJSON(w, status, resp)
}

// UpdateModule replaces a module definition
// @Summary Update module
// @Tags Permissions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param key path string true "Module key"
// @Param request body permission.Module true "Module definition"
// @Success 200 {object} permission.Module
// @Failure 404 {object} map[string]string
// @Router /permissions/modules/{key} [put]
func (h *Handler) UpdateModule(w http.ResponseWriter, r *http.Request) {
	var m permission.Module
	if !decodeJSON(w, r, &m) {
		return
	}
	m.Key = chi.URLParam(r, "key")

	updated, err := h.permissionService.UpdateModule(r.Context(), m)
	if err != nil {
		respondServiceError(w, r, err, "failed to update module")
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

// ActivateModule marks a module active
func (h *Handler) ActivateModule(w http.ResponseWriter, r *http.Request) {
	h.setModuleActive(w, r, true)
}

// DeactivateModule marks a module inactive. Existing grants are kept.
func (h *Handler) DeactivateModule(w http.ResponseWriter, r *http.Request) {
	h.setModuleActive(w, r, false)
}

func (h *Handler) setModuleActive(w http.ResponseWriter, r *http.Request, active bool) {
	m, err := h.permissionService.SetModuleActive(r.Context(), chi.URLParam(r, "key"), active)
	if err != nil {
		respondServiceError(w, r, err, "failed to update module")
		return
	}
	respondJSON(w, http.StatusOK, m)
}

// DeleteModule removes a non-system module
// @Summary Delete module
// @Tags Permissions
// @Security BearerAuth
// @Param key path string true "Module key"
// @Success 204
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /permissions/modules/{key} [delete]
func (h *Handler) DeleteModule(w http.ResponseWriter, r *http.Request) {
	if err := h.permissionService.DeleteModule(r.Context(), chi.URLParam(r, "key")); err != nil {
		respondServiceError(w, r, err, "failed to delete module")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearCache drops the active module cache on every instance
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	h.permissionService.ClearCache(r.Context())

	h.auditLogger.Log(r.Context(), audit.Event{
		Type:      audit.TypeCacheCleared,
		ActorID:   permission.ActorFromContext(r.Context()),
		Resource:  "permission_modules",
		IPAddress: getIPAddress(r),
		UserAgent: r.UserAgent(),
	})

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "permission cache cleared",
	})
}

// AuditPermissions reports users whose grants drifted from their role defaults
// @Summary Permission drift report
// @Tags Permissions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]any
// @Router /permissions/audit [get]
func (h *Handler) AuditPermissions(w http.ResponseWriter, r *http.Request) {
	discrepancies, err := h.permissionService.AuditUserPermissions(r.Context())
	if err != nil {
		respondServiceError(w, r, err, "failed to audit permissions")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"discrepancies": discrepancies,
		"count":         len(discrepancies),
	})
}
