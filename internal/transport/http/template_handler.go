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
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/counselcms/counsel/internal/permission"
)

// ListTemplates returns every role template ordered by level
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.permissionService.ListTemplates(r.Context())
	if err != nil {
		respondServiceError(w, r, err, "failed to list role templates")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"templates": templates,
	})
}

// SaveTemplate creates or replaces the template of a role
// @Summary Save role template
// @Tags Permissions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param role path string true "Role"
// @Param request body permission.RoleTemplate true "Template"
// @Success 200 {object} permission.RoleTemplate
// @Failure 400 {object} map[string]string
// @Router /permissions/templates/{role} [put]
func (h *Handler) SaveTemplate(w http.ResponseWriter, r *http.Request) {
	var t permission.RoleTemplate
	if !decodeJSON(w, r, &t) {
		return
	}
	t.Role = permission.Role(chi.URLParam(r, "role"))

	saved, err := h.permissionService.SaveTemplate(r.Context(), t)
	if err != nil {
		respondServiceError(w, r, err, "failed to save role template")
		return
	}
	respondJSON(w, http.StatusOK, saved)
}
