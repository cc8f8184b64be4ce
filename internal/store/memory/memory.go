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

// Package memory provides process-local repositories for development
// servers and handler tests. Every read returns a copy.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/counselcms/counsel/internal/identity"
	"github.com/counselcms/counsel/internal/permission"
)

// Modules implements permission.ModuleRepository
type Modules struct {
	mu      sync.RWMutex
	modules map[string]permission.Module
}

func NewModules() *Modules {
	return &Modules{modules: make(map[string]permission.Module)}
}

func (r *Modules) Create(_ context.Context, m *permission.Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.modules[m.Key]; ok {
		return permission.ErrModuleAlreadyExists
	}
	r.modules[m.Key] = m.Clone()
	return nil
}

func (r *Modules) GetByKey(_ context.Context, key string) (*permission.Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[key]
	if !ok {
		return nil, permission.ErrModuleNotFound
	}
	c := m.Clone()
	return &c, nil
}

func (r *Modules) List(_ context.Context) ([]*permission.Module, error) {
	return r.list(false), nil
}

func (r *Modules) ListActive(_ context.Context) ([]*permission.Module, error) {
	return r.list(true), nil
}

func (r *Modules) Update(_ context.Context, m *permission.Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.modules[m.Key]; !ok {
		return permission.ErrModuleNotFound
	}
	r.modules[m.Key] = m.Clone()
	return nil
}

func (r *Modules) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.modules[key]
	if !ok {
		return permission.ErrModuleNotFound
	}
	if m.IsSystem {
		return permission.ErrSystemModule
	}
	delete(r.modules, key)
	return nil
}

func (r *Modules) list(activeOnly bool) []*permission.Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*permission.Module, 0, len(r.modules))
	for _, m := range r.modules {
		if activeOnly && !m.IsActive {
			continue
		}
		c := m.Clone()
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Templates implements permission.TemplateRepository
type Templates struct {
	mu        sync.RWMutex
	templates map[permission.Role]permission.RoleTemplate
}

func NewTemplates() *Templates {
	return &Templates{templates: make(map[permission.Role]permission.RoleTemplate)}
}

func (r *Templates) List(_ context.Context) ([]*permission.RoleTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*permission.RoleTemplate, 0, len(r.templates))
	for _, role := range permission.Roles {
		if t, ok := r.templates[role]; ok {
			c := cloneTemplate(t)
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *Templates) GetByRole(_ context.Context, role permission.Role) (*permission.RoleTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[role]
	if !ok {
		return nil, permission.ErrTemplateNotFound
	}
	c := cloneTemplate(t)
	return &c, nil
}

func (r *Templates) Save(_ context.Context, t *permission.RoleTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[t.Role] = cloneTemplate(*t)
	return nil
}

func cloneTemplate(t permission.RoleTemplate) permission.RoleTemplate {
	c := t
	c.AutoGrantRules = make([]permission.AutoGrantRule, len(t.AutoGrantRules))
	for i, rule := range t.AutoGrantRules {
		rule.Actions = append([]permission.Action(nil), rule.Actions...)
		c.AutoGrantRules[i] = rule
	}
	return c
}

// Users implements identity.UserRepository and permission.UserRepository
type Users struct {
	mu    sync.RWMutex
	users map[string]identity.User
}

func NewUsers() *Users {
	return &Users{users: make(map[string]identity.User)}
}

func (r *Users) Create(_ context.Context, u *identity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return identity.ErrUserAlreadyExists
		}
	}
	r.users[u.ID] = cloneUser(*u)
	return nil
}

func (r *Users) GetByID(_ context.Context, id string) (*identity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	c := cloneUser(u)
	return &c, nil
}

func (r *Users) GetByEmail(_ context.Context, email string) (*identity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Email == email {
			c := cloneUser(u)
			return &c, nil
		}
	}
	return nil, identity.ErrUserNotFound
}

func (r *Users) UpdateRole(_ context.Context, id string, role permission.Role, grants []permission.Grant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return identity.ErrUserNotFound
	}
	u.Role = role
	u.Permissions = cloneGrants(grants)
	u.UpdatedAt = time.Now()
	r.users[id] = u
	return nil
}

func (r *Users) ListActive(_ context.Context) ([]*permission.UserGrants, error) {
	return r.grants(func(identity.User) bool { return true }), nil
}

func (r *Users) ListActiveByRole(_ context.Context, role permission.Role) ([]*permission.UserGrants, error) {
	return r.grants(func(u identity.User) bool { return u.Role == role }), nil
}

func (r *Users) AppendGrant(_ context.Context, userID string, grant permission.Grant) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return false, identity.ErrUserNotFound
	}
	if _, held := permission.FindGrant(u.Permissions, grant.Module); held {
		return false, nil
	}
	u.Permissions = append(cloneGrants(u.Permissions), permission.Grant{
		Module:  grant.Module,
		Actions: append([]permission.Action(nil), grant.Actions...),
	})
	u.UpdatedAt = time.Now()
	r.users[userID] = u
	return true, nil
}

func (r *Users) grants(keep func(identity.User) bool) []*permission.UserGrants {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*permission.UserGrants, 0, len(r.users))
	for _, u := range r.users {
		if !u.IsActive || !keep(u) {
			continue
		}
		out = append(out, &permission.UserGrants{
			UserID:      u.ID,
			Email:       u.Email,
			Role:        u.Role,
			Permissions: cloneGrants(u.Permissions),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func cloneUser(u identity.User) identity.User {
	u.Permissions = cloneGrants(u.Permissions)
	return u
}

func cloneGrants(grants []permission.Grant) []permission.Grant {
	if grants == nil {
		return nil
	}
	out := make([]permission.Grant, len(grants))
	for i, g := range grants {
		out[i] = permission.Grant{Module: g.Module, Actions: append([]permission.Action(nil), g.Actions...)}
	}
	return out
}
