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

	"github.com/counselcms/counsel/internal/identity"
	"github.com/counselcms/counsel/internal/permission"
)

// ChangeRoleRequest moves a user to a role. Omitting permissions (or sending
// null) assigns the role's defaults; an empty list revokes everything.
type ChangeRoleRequest struct {
	Role        permission.Role    `json:"role"`
	Permissions []permission.Grant `json:"permissions"`
}

// ModuleAccess lists the actions the caller may perform on one active module
type ModuleAccess struct {
	Module  string              `json:"module"`
	Name    string              `json:"name"`
	Actions []permission.Action `json:"actions"`
}

// CreateUser creates an admin user
// @Summary Create user
// @Description Without a permissions list the role's default grants are assigned.
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body identity.CreateUserInput true "User"
// @Success 201 {object} identity.User
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /users [post]
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var in identity.CreateUserInput
	if !decodeJSON(w, r, &in) {
		return
	}

	user, err := h.identityService.CreateUser(r.Context(), in)
	if err != nil {
		respondServiceError(w, r, err, "failed to create user")
		return
	}
	respondJSON(w, http.StatusCreated, user)
}

// ChangeUserRole changes a user's role and replaces their grants
// @Summary Change user role
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param request body ChangeRoleRequest true "Role change"
// @Success 200 {object} identity.User
// @Failure 404 {object} map[string]string
// @Router /users/{id}/role [put]
func (h *Handler) ChangeUserRole(w http.ResponseWriter, r *http.Request) {
	var req ChangeRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.identityService.ChangeRole(r.Context(), chi.URLParam(r, "id"), req.Role, req.Permissions)
	if err != nil {
		respondServiceError(w, r, err, "failed to change role")
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// GetMyPermissions returns the caller's principal and the actions it holds
// on each active module, for building the admin navigation.
func (h *Handler) GetMyPermissions(w http.ResponseWriter, r *http.Request) {
	principal := GetPrincipal(r.Context())
	if principal == nil {
		respondError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	access := []ModuleAccess{}
	for _, m := range h.permissionService.GetActiveModules(r.Context()) {
		var actions []permission.Action
		for _, a := range m.AvailableActions {
			if h.permissionService.HasPermission(r.Context(), principal, m.Key, a) {
				actions = append(actions, a)
			}
		}
		if len(actions) > 0 {
			access = append(access, ModuleAccess{Module: m.Key, Name: m.Name, Actions: actions})
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"user_id":     principal.UserID,
		"role":        principal.Role,
		"permissions": principal.Permissions,
		"modules":     access,
	})
}
