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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/counselcms/counsel/internal/audit"
	"github.com/counselcms/counsel/internal/identity"
	"github.com/counselcms/counsel/internal/permission"
	"github.com/counselcms/counsel/internal/store/memory"
)

const testSecret = "test-secret-that-is-at-least-32-bytes"

type recordingAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingAudit) Log(_ context.Context, e audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingAudit) find(eventType string) (audit.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Type == eventType {
			return e, true
		}
	}
	return audit.Event{}, false
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

type apiFixture struct {
	router      http.Handler
	handler     *Handler
	permissions *permission.Service
	identity    *identity.Service
	users       *memory.Users
	verifier    *TokenVerifier
	audit       *recordingAudit
	admin       *identity.User
	editor      *identity.User
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	ctx := context.Background()

	rec := &recordingAudit{}
	users := memory.NewUsers()
	permSvc := permission.NewService(memory.NewModules(), memory.NewTemplates(), users, rec, time.Minute)
	idSvc := identity.NewService(users, permSvc, rec)

	for _, tmpl := range permission.DefaultRoleTemplates() {
		_, err := permSvc.SaveTemplate(ctx, tmpl)
		require.NoError(t, err)
	}
	for _, m := range permission.DefaultModules() {
		_, err := permSvc.RegisterModule(ctx, m)
		require.NoError(t, err)
	}

	admin, err := idSvc.CreateUser(ctx, identity.CreateUserInput{
		Email: "root@firm.test", Name: "Root", Role: permission.RoleSuperAdmin,
	})
	require.NoError(t, err)
	editor, err := idSvc.CreateUser(ctx, identity.CreateUserInput{
		Email: "editor@firm.test", Name: "Eddie", Role: permission.RoleEditor,
	})
	require.NoError(t, err)

	verifier := NewTokenVerifier(testSecret, "counsel", time.Hour)
	h := NewHandler(permSvc, idSvc, verifier, rec, nil)
	rl := NewRateLimiter(1000, 1000)
	t.Cleanup(rl.Stop)

	return &apiFixture{
		router:      NewRouter(h, rl, 5*time.Second),
		handler:     h,
		permissions: permSvc,
		identity:    idSvc,
		users:       users,
		verifier:    verifier,
		audit:       rec,
		admin:       admin,
		editor:      editor,
	}
}

func (f *apiFixture) do(t *testing.T, user *identity.User, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		token, err := f.verifier.Issue(user.ID)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	return out
}

func caseStudiesModule() permission.Module {
	return permission.Module{
		Key:              "case-studies",
		Name:             "Case Studies",
		Category:         permission.CategoryContent,
		AvailableActions: []permission.Action{permission.ActionCreate, permission.ActionRead, permission.ActionUpdate, permission.ActionDelete},
		DefaultPermissions: map[permission.Role][]permission.Action{
			permission.RoleEditor: {permission.ActionRead, permission.ActionUpdate},
		},
		IsActive: true,
		Order:    35,
	}
}

// =============================================================================
// SYSTEM & AUTHENTICATION
// =============================================================================

// TestPurpose: Validates the health endpoint with and without a reachable database.
// Scope: Unit Test
// Security: N/A
// Expected: 200 when no store is configured or it answers; 503 when the ping fails.
// Test Case ID: HTTP-01
func TestHealthCheck(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, nil, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	h := NewHandler(f.permissions, f.identity, f.verifier, nil, failingPinger{})
	w = httptest.NewRecorder()
	h.HealthCheck(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// TestPurpose: Validates that API routes require a valid bearer token for an active user.
// Scope: Unit Test
// Security: Authentication boundary
// Expected: Missing, malformed, foreign-signed and unknown-subject tokens all get 401.
// Test Case ID: HTTP-02
func TestAuthMiddleware_RejectsUnauthenticated(t *testing.T) {
	f := newAPIFixture(t)

	foreign, err := NewTokenVerifier("another-secret-of-at-least-32-bytes!", "counsel", time.Hour).Issue(f.admin.ID)
	require.NoError(t, err)
	ghost, err := f.verifier.Issue("no-such-user")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic dXNlcjpwYXNz"},
		{"garbage token", "Bearer not-a-jwt"},
		{"foreign signature", "Bearer " + foreign},
		{"unknown subject", "Bearer " + ghost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/me/permissions", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			f.router.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

// =============================================================================
// PERMISSION GUARDS
// =============================================================================

// TestPurpose: Validates that route guards deny principals lacking the module action.
// Scope: Unit Test
// Security: Authorization enforcement, audit of denials, no information leakage
// Expected: Editor gets a generic 403 on the permissions API and a denial is audited.
// Test Case ID: HTTP-03
func TestRequirePermission_DeniesEditor(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, f.editor, http.MethodGet, "/api/v1/permissions/modules", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	body := decodeBody[map[string]string](t, w)
	assert.Equal(t, "forbidden", body["error"])

	event, ok := f.audit.find(audit.TypePermissionDenied)
	require.True(t, ok)
	assert.Equal(t, f.editor.ID, event.ActorID)
	assert.Equal(t, permission.ModulePermissions, event.Resource)
	assert.Equal(t, "read", event.Metadata["action"])

	w = f.do(t, f.admin, http.MethodGet, "/api/v1/permissions/modules", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

// =============================================================================
// MODULE REGISTRY API
// =============================================================================

// TestPurpose: Validates module registration through the API, including retrofit and idempotency.
// Scope: Unit Test
// Security: New modules reach existing users only within their role defaults
// Expected: 201 with a retrofit report on first call; 200 with created=false on repeat.
// Test Case ID: HTTP-04
func TestRegisterModule_RetrofitsAndIsIdempotent(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, f.admin, http.MethodPost, "/api/v1/permissions/modules", caseStudiesModule())
	require.Equal(t, http.StatusCreated, w.Code)
	resp := decodeBody[RegisterModuleResponse](t, w)
	assert.True(t, resp.Created)
	require.NotNil(t, resp.Retrofit)
	assert.Equal(t, 1, resp.Retrofit.Granted)

	editor, err := f.identity.GetUser(context.Background(), f.editor.ID)
	require.NoError(t, err)
	grant, ok := permission.FindGrant(editor.Permissions, "case-studies")
	require.True(t, ok)
	assert.Equal(t, []permission.Action{permission.ActionRead, permission.ActionUpdate}, grant.Actions)

	w = f.do(t, f.admin, http.MethodPost, "/api/v1/permissions/modules", caseStudiesModule())
	require.Equal(t, http.StatusOK, w.Code)
	resp = decodeBody[RegisterModuleResponse](t, w)
	assert.False(t, resp.Created)
	assert.Nil(t, resp.Retrofit)
}

// TestPurpose: Validates error mapping of the module endpoints.
// Scope: Unit Test
// Security: Protected system modules, input validation
// Expected: 400 for invalid definitions, 404 for unknown keys, 409 for system modules.
// Test Case ID: HTTP-05
func TestModuleEndpoints_ErrorMapping(t *testing.T) {
	f := newAPIFixture(t)

	invalid := caseStudiesModule()
	invalid.Key = "Case Studies"
	w := f.do(t, f.admin, http.MethodPost, "/api/v1/permissions/modules", invalid)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, f.admin, http.MethodDelete, "/api/v1/permissions/modules/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, f.admin, http.MethodDelete, "/api/v1/permissions/modules/"+permission.ModuleUsers, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/permissions/modules", bytes.NewBufferString("{"))
	token, err := f.verifier.Issue(f.admin.ID)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	rw := httptest.NewRecorder()
	f.router.ServeHTTP(rw, req)
	assert.Equal(t, http.StatusBadRequest, rw.Code)
}

// TestPurpose: Validates deactivation hides a module from checks without touching grants.
// Scope: Unit Test
// Security: Deactivated modules are unreachable for non-super-admins
// Expected: Editor loses team access after deactivation and regains it on activation.
// Test Case ID: HTTP-06
func TestModuleActivation(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()
	principal := f.editor.Principal()

	require.True(t, f.permissions.HasPermission(ctx, principal, permission.ModuleTeam, permission.ActionRead))

	w := f.do(t, f.admin, http.MethodPost, "/api/v1/permissions/modules/team/deactivate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, f.permissions.HasPermission(ctx, principal, permission.ModuleTeam, permission.ActionRead))

	w = f.do(t, f.admin, http.MethodGet, "/api/v1/permissions/modules/all", nil)
	require.Equal(t, http.StatusOK, w.Code)
	all := decodeBody[struct {
		Count int `json:"count"`
	}](t, w)
	assert.Equal(t, len(permission.DefaultModules()), all.Count)

	w = f.do(t, f.admin, http.MethodPost, "/api/v1/permissions/modules/team/activate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, f.permissions.HasPermission(ctx, principal, permission.ModuleTeam, permission.ActionRead))
}

// TestPurpose: Validates that a module update omitting is_active leaves the module active.
// Scope: Unit Test
// Security: Editing a module cannot silently revoke access
// Expected: 200 with the new name, is_active still true, editor keeps access, no deactivation event.
// Test Case ID: HTTP-12
func TestUpdateModule_PreservesActiveFlag(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()
	principal := f.editor.Principal()

	body := map[string]any{
		"name":              "People",
		"category":          permission.CategoryContent,
		"available_actions": []permission.Action{permission.ActionCreate, permission.ActionRead, permission.ActionUpdate, permission.ActionDelete, permission.ActionPublish},
		"default_permissions": map[permission.Role][]permission.Action{
			permission.RoleEditor: {permission.ActionRead, permission.ActionUpdate},
		},
		"order": 20,
	}
	w := f.do(t, f.admin, http.MethodPut, "/api/v1/permissions/modules/"+permission.ModuleTeam, body)
	require.Equal(t, http.StatusOK, w.Code)
	updated := decodeBody[permission.Module](t, w)
	assert.Equal(t, "People", updated.Name)
	assert.True(t, updated.IsActive)

	stored, err := f.permissions.GetModule(ctx, permission.ModuleTeam)
	require.NoError(t, err)
	assert.True(t, stored.IsActive)
	assert.True(t, f.permissions.HasPermission(ctx, principal, permission.ModuleTeam, permission.ActionRead))

	_, deactivated := f.audit.find(audit.TypeModuleDeactivated)
	assert.False(t, deactivated)
}

// TestPurpose: Validates the cache clear endpoint and its audit record.
// Scope: Unit Test
// Security: Administrative actions are attributable
// Expected: 200 and a cache-cleared audit event carrying the caller as actor.
// Test Case ID: HTTP-07
func TestClearCache(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, f.admin, http.MethodPost, "/api/v1/permissions/cache/clear", nil)
	require.Equal(t, http.StatusOK, w.Code)

	event, ok := f.audit.find(audit.TypeCacheCleared)
	require.True(t, ok)
	assert.Equal(t, f.admin.ID, event.ActorID)
}

// TestPurpose: Validates the drift report endpoint.
// Scope: Unit Test
// Security: Detects users whose grants diverge from their role
// Expected: A freshly seeded system has no drift; a user stripped of grants is reported.
// Test Case ID: HTTP-08
func TestAuditPermissions(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, f.admin, http.MethodGet, "/api/v1/permissions/audit", nil)
	require.Equal(t, http.StatusOK, w.Code)
	clean := decodeBody[struct {
		Count int `json:"count"`
	}](t, w)
	assert.Equal(t, 0, clean.Count)

	require.NoError(t, f.users.UpdateRole(context.Background(), f.editor.ID, permission.RoleEditor, []permission.Grant{}))

	w = f.do(t, f.admin, http.MethodGet, "/api/v1/permissions/audit", nil)
	require.Equal(t, http.StatusOK, w.Code)
	drift := decodeBody[struct {
		Discrepancies []permission.Discrepancy `json:"discrepancies"`
		Count         int                      `json:"count"`
	}](t, w)
	require.Equal(t, 1, drift.Count)
	assert.Equal(t, f.editor.ID, drift.Discrepancies[0].UserID)
	assert.Contains(t, drift.Discrepancies[0].MissingModules, permission.ModuleArticles)
}

// =============================================================================
// TEMPLATES & USERS
// =============================================================================

// TestPurpose: Validates saving a role template through the API.
// Scope: Unit Test
// Security: Template validation prevents invalid auto-grant rules
// Expected: 200 for a valid template, 400 for an unknown role or bad condition.
// Test Case ID: HTTP-09
func TestSaveTemplate(t *testing.T) {
	f := newAPIFixture(t)

	valid := permission.RoleTemplate{
		AutoGrantRules: []permission.AutoGrantRule{
			{Category: permission.CategoryContent, Actions: []permission.Action{permission.ActionRead}, Condition: permission.ConditionAlways},
		},
	}
	w := f.do(t, f.admin, http.MethodPut, "/api/v1/permissions/templates/moderator", valid)
	require.Equal(t, http.StatusOK, w.Code)
	saved := decodeBody[permission.RoleTemplate](t, w)
	assert.Equal(t, permission.RoleModerator, saved.Role)
	assert.Equal(t, permission.RoleModerator.Level(), saved.Level)

	w = f.do(t, f.admin, http.MethodPut, "/api/v1/permissions/templates/intern", valid)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	bad := valid
	bad.AutoGrantRules = []permission.AutoGrantRule{{Category: permission.CategoryContent, Condition: "sometimes"}}
	w = f.do(t, f.admin, http.MethodPut, "/api/v1/permissions/templates/moderator", bad)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, f.admin, http.MethodGet, "/api/v1/permissions/templates", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

// TestPurpose: Validates user creation and role change through the API.
// Scope: Unit Test
// Security: New and re-roled users get exactly their role defaults unless grants are explicit
// Expected: 201 with defaults, 409 on duplicate email, role change replaces grants.
// Test Case ID: HTTP-10
func TestUserEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, f.admin, http.MethodPost, "/api/v1/users", identity.CreateUserInput{
		Email: "mod@firm.test", Name: "Mo", Role: permission.RoleModerator,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	created := decodeBody[identity.User](t, w)
	grant, ok := permission.FindGrant(created.Permissions, permission.ModuleArticles)
	require.True(t, ok)
	assert.Equal(t, []permission.Action{permission.ActionRead, permission.ActionApprove}, grant.Actions)

	w = f.do(t, f.admin, http.MethodPost, "/api/v1/users", identity.CreateUserInput{
		Email: "MOD@firm.test", Name: "Mo Again", Role: permission.RoleModerator,
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, f.admin, http.MethodPut, "/api/v1/users/"+created.ID+"/role", ChangeRoleRequest{Role: permission.RoleEditor})
	require.Equal(t, http.StatusOK, w.Code)
	changed := decodeBody[identity.User](t, w)
	assert.Equal(t, permission.RoleEditor, changed.Role)
	grant, ok = permission.FindGrant(changed.Permissions, permission.ModuleArticles)
	require.True(t, ok)
	assert.Equal(t, []permission.Action{permission.ActionCreate, permission.ActionRead, permission.ActionUpdate, permission.ActionPublish}, grant.Actions)

	w = f.do(t, f.admin, http.MethodPut, "/api/v1/users/missing/role", ChangeRoleRequest{Role: permission.RoleEditor})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, f.editor, http.MethodPost, "/api/v1/users", identity.CreateUserInput{
		Email: "sneaky@firm.test", Name: "Sneaky", Role: permission.RoleSuperAdmin,
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

// TestPurpose: Validates the caller's effective permission listing.
// Scope: Unit Test
// Security: Navigation reflects exactly what the evaluator allows
// Expected: Editor sees articles with its granted actions and no permissions module.
// Test Case ID: HTTP-11
func TestGetMyPermissions(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, f.editor, http.MethodGet, "/api/v1/me/permissions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody[struct {
		UserID  string         `json:"user_id"`
		Role    string         `json:"role"`
		Modules []ModuleAccess `json:"modules"`
	}](t, w)

	assert.Equal(t, f.editor.ID, body.UserID)
	assert.Equal(t, "editor", body.Role)

	byKey := map[string][]permission.Action{}
	for _, m := range body.Modules {
		byKey[m.Module] = m.Actions
	}
	assert.Equal(t, []permission.Action{permission.ActionCreate, permission.ActionRead, permission.ActionUpdate, permission.ActionPublish}, byKey[permission.ModuleArticles])
	assert.NotContains(t, byKey, permission.ModulePermissions)
}
