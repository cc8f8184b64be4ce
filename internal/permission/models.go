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

package permission

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Domain errors
var (
	ErrModuleNotFound      = errors.New("module not found")
	ErrModuleAlreadyExists = errors.New("module already exists")
	ErrSystemModule        = errors.New("system modules cannot be deleted")
	ErrInvalidModule       = errors.New("invalid module")
	ErrTemplateNotFound    = errors.New("role template not found")
	ErrInvalidTemplate     = errors.New("invalid role template")
	ErrInvalidRole         = errors.New("invalid role")
	ErrInvalidAction       = errors.New("invalid action")
	ErrInvalidCategory     = errors.New("invalid module category")
	ErrInvalidCondition    = errors.New("invalid auto-grant condition")
)

// Role is one of the closed set of administrative roles.
type Role string

const (
	RoleSuperAdmin Role = "super-admin"
	RoleAdmin      Role = "admin"
	RoleEditor     Role = "editor"
	RoleModerator  Role = "moderator"
)

// Roles lists every role ordered from most to least privileged.
var Roles = []Role{RoleSuperAdmin, RoleAdmin, RoleEditor, RoleModerator}

var roleLevels = map[Role]int{
	RoleSuperAdmin: 1,
	RoleAdmin:      2,
	RoleEditor:     3,
	RoleModerator:  4,
}

// ParseRole validates a raw role value.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := roleLevels[r]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return r, nil
}

// Level returns the privilege level of the role; lower is more privileged.
// Unknown roles return 0.
func (r Role) Level() int {
	return roleLevels[r]
}

func (r Role) String() string { return string(r) }

// Action is an operation within a module.
type Action string

const (
	ActionCreate  Action = "create"
	ActionRead    Action = "read"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionExport  Action = "export"
	ActionImport  Action = "import"
	ActionApprove Action = "approve"
	ActionPublish Action = "publish"
)

// Actions lists the closed action set in canonical order.
var Actions = []Action{
	ActionCreate, ActionRead, ActionUpdate, ActionDelete,
	ActionExport, ActionImport, ActionApprove, ActionPublish,
}

// ParseAction validates a raw action value.
func ParseAction(s string) (Action, error) {
	for _, a := range Actions {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
}

// ParseActions validates a list of raw action values.
func ParseActions(raw []string) ([]Action, error) {
	actions := make([]Action, 0, len(raw))
	for _, s := range raw {
		a, err := ParseAction(s)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, nil
}

// Category groups modules for role-template matching.
type Category string

const (
	CategoryCore     Category = "core"
	CategoryContent  Category = "content"
	CategoryUsers    Category = "users"
	CategorySettings Category = "settings"
	CategoryTools    Category = "tools"
)

// Categories lists the closed category set.
var Categories = []Category{CategoryCore, CategoryContent, CategoryUsers, CategorySettings, CategoryTools}

// ParseCategory validates a raw category value.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
}

// Condition controls when an auto-grant rule applies.
type Condition string

const (
	// ConditionAlways applies both at user creation and when retrofitting new modules.
	ConditionAlways Condition = "always"
	// ConditionNever never grants automatically.
	ConditionNever Condition = "never"
	// ConditionOnCreate applies at user creation and when retrofitting new modules.
	ConditionOnCreate Condition = "on-create"
	// ConditionManual is treated exactly like ConditionNever.
	ConditionManual Condition = "manual"
)

// ParseCondition validates a raw condition value.
func ParseCondition(s string) (Condition, error) {
	switch c := Condition(s); c {
	case ConditionAlways, ConditionNever, ConditionOnCreate, ConditionManual:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCondition, s)
}

// Grants reports whether the condition leads to an automatic grant.
func (c Condition) Grants() bool {
	return c == ConditionAlways || c == ConditionOnCreate
}

// Module is a protected capability area of the admin panel.
type Module struct {
	ID                 string            `json:"id"`
	Key                string            `json:"key" validate:"required,max=64,lowercase"`
	Name               string            `json:"name" validate:"required,max=128"`
	Description        string            `json:"description,omitempty"`
	Category           Category          `json:"category" validate:"required"`
	AvailableActions   []Action          `json:"available_actions" validate:"required,min=1,unique"`
	DefaultPermissions map[Role][]Action `json:"default_permissions"`
	IsActive           bool              `json:"is_active"`
	IsSystem           bool              `json:"is_system"`
	Order              int               `json:"order" validate:"gte=0"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// DefaultFor returns the baseline actions the module grants to a role.
func (m *Module) DefaultFor(role Role) []Action {
	if m.DefaultPermissions == nil {
		return nil
	}
	return m.DefaultPermissions[role]
}

// Supports reports whether the module offers the action.
func (m *Module) Supports(action Action) bool {
	return containsAction(m.AvailableActions, action)
}

// Clone returns a deep copy of the module.
func (m Module) Clone() Module {
	c := m
	c.AvailableActions = append([]Action(nil), m.AvailableActions...)
	if m.DefaultPermissions != nil {
		c.DefaultPermissions = make(map[Role][]Action, len(m.DefaultPermissions))
		for role, actions := range m.DefaultPermissions {
			c.DefaultPermissions[role] = append([]Action(nil), actions...)
		}
	}
	return c
}

// AutoGrantRule maps a module category to the actions a role may receive automatically.
type AutoGrantRule struct {
	Category  Category  `json:"module_category"`
	Actions   []Action  `json:"actions"`
	Condition Condition `json:"condition"`
}

// RoleTemplate describes how a role is onboarded onto modules.
type RoleTemplate struct {
	Role           Role            `json:"role"`
	Level          int             `json:"level"`
	Description    string          `json:"description,omitempty"`
	AutoGrantRules []AutoGrantRule `json:"auto_grant_rules"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// RuleFor returns the first rule whose category matches.
func (t *RoleTemplate) RuleFor(category Category) (AutoGrantRule, bool) {
	for _, rule := range t.AutoGrantRules {
		if rule.Category == category {
			return rule, true
		}
	}
	return AutoGrantRule{}, false
}

// Grant is the concrete set of actions a user holds on one module.
type Grant struct {
	Module  string   `json:"module"`
	Actions []Action `json:"actions"`
}

// Allows reports whether the grant lists the action.
func (g Grant) Allows(action Action) bool {
	return containsAction(g.Actions, action)
}

// FindGrant returns the grant entry for a module key.
func FindGrant(grants []Grant, moduleKey string) (Grant, bool) {
	for _, g := range grants {
		if g.Module == moduleKey {
			return g, true
		}
	}
	return Grant{}, false
}

// Principal is the authenticated actor as supplied by the identity collaborator.
// A nil Permissions slice means the principal carries no grant list at all.
type Principal struct {
	UserID      string  `json:"user_id"`
	Role        Role    `json:"role"`
	Permissions []Grant `json:"permissions"`
}

// UserGrants is the permission-relevant projection of a user record.
type UserGrants struct {
	UserID      string
	Email       string
	Role        Role
	Permissions []Grant
}

// ModuleRepository defines the interface for module persistence
type ModuleRepository interface {
	// Create persists a new module
	Create(ctx context.Context, module *Module) error

	// GetByKey retrieves a module by key
	GetByKey(ctx context.Context, key string) (*Module, error)

	// List retrieves every module, active or not
	List(ctx context.Context) ([]*Module, error)

	// ListActive retrieves modules with IsActive set
	ListActive(ctx context.Context) ([]*Module, error)

	// Update updates module information
	Update(ctx context.Context, module *Module) error

	// Delete physically removes a module
	Delete(ctx context.Context, key string) error
}

// TemplateRepository defines the interface for role template persistence
type TemplateRepository interface {
	// List retrieves all role templates
	List(ctx context.Context) ([]*RoleTemplate, error)

	// GetByRole retrieves the template of a role
	GetByRole(ctx context.Context, role Role) (*RoleTemplate, error)

	// Save creates or replaces the template of a role
	Save(ctx context.Context, template *RoleTemplate) error
}

// UserRepository defines the permission-grant view over user records
type UserRepository interface {
	// ListActive retrieves all active users
	ListActive(ctx context.Context) ([]*UserGrants, error)

	// ListActiveByRole retrieves active users holding a role
	ListActiveByRole(ctx context.Context, role Role) ([]*UserGrants, error)

	// AppendGrant atomically appends a grant unless the user already holds
	// an entry for the same module. It reports whether the grant was added.
	AppendGrant(ctx context.Context, userID string, grant Grant) (bool, error)
}

func containsAction(actions []Action, action Action) bool {
	for _, a := range actions {
		if a == action {
			return true
		}
	}
	return false
}
