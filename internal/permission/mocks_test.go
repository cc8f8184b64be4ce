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

package permission_test

import (
	"context"
	"sync"

	"github.com/counselcms/counsel/internal/audit"
	"github.com/counselcms/counsel/internal/permission"
)

// MockModuleRepository implements permission.ModuleRepository for testing
type MockModuleRepository struct {
	mu          sync.Mutex
	modules     map[string]*permission.Module
	listErr     error
	createCalls int
	listCalls   int
}

func NewMockModuleRepository(modules ...permission.Module) *MockModuleRepository {
	r := &MockModuleRepository{modules: map[string]*permission.Module{}}
	for _, m := range modules {
		c := m.Clone()
		r.modules[m.Key] = &c
	}
	return r
}

func (r *MockModuleRepository) Create(_ context.Context, m *permission.Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createCalls++
	if _, ok := r.modules[m.Key]; ok {
		return permission.ErrModuleAlreadyExists
	}
	c := m.Clone()
	r.modules[m.Key] = &c
	return nil
}

func (r *MockModuleRepository) GetByKey(_ context.Context, key string) (*permission.Module, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.modules[key]
	if !ok {
		return nil, permission.ErrModuleNotFound
	}
	c := m.Clone()
	return &c, nil
}

func (r *MockModuleRepository) List(_ context.Context) ([]*permission.Module, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*permission.Module
	for _, m := range r.modules {
		c := m.Clone()
		out = append(out, &c)
	}
	return out, nil
}

func (r *MockModuleRepository) ListActive(_ context.Context) ([]*permission.Module, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []*permission.Module
	for _, m := range r.modules {
		if m.IsActive {
			c := m.Clone()
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *MockModuleRepository) Update(_ context.Context, m *permission.Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.modules[m.Key]; !ok {
		return permission.ErrModuleNotFound
	}
	c := m.Clone()
	r.modules[m.Key] = &c
	return nil
}

func (r *MockModuleRepository) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.modules[key]; !ok {
		return permission.ErrModuleNotFound
	}
	delete(r.modules, key)
	return nil
}

// MockTemplateRepository implements permission.TemplateRepository for testing
type MockTemplateRepository struct {
	templates map[permission.Role]*permission.RoleTemplate
	listErr   error
}

func NewMockTemplateRepository(templates ...permission.RoleTemplate) *MockTemplateRepository {
	r := &MockTemplateRepository{templates: map[permission.Role]*permission.RoleTemplate{}}
	for i := range templates {
		t := templates[i]
		r.templates[t.Role] = &t
	}
	return r
}

func (r *MockTemplateRepository) List(_ context.Context) ([]*permission.RoleTemplate, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []*permission.RoleTemplate
	for _, role := range permission.Roles {
		if t, ok := r.templates[role]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *MockTemplateRepository) GetByRole(_ context.Context, role permission.Role) (*permission.RoleTemplate, error) {
	t, ok := r.templates[role]
	if !ok {
		return nil, permission.ErrTemplateNotFound
	}
	return t, nil
}

func (r *MockTemplateRepository) Save(_ context.Context, t *permission.RoleTemplate) error {
	c := *t
	r.templates[t.Role] = &c
	return nil
}

// MockUserRepository implements permission.UserRepository for testing
type MockUserRepository struct {
	mu        sync.Mutex
	users     []*permission.UserGrants
	failFor   map[string]error
	listErr   error
	appendCnt int
}

func NewMockUserRepository(users ...*permission.UserGrants) *MockUserRepository {
	return &MockUserRepository{users: users, failFor: map[string]error{}}
}

func (r *MockUserRepository) ListActive(_ context.Context) ([]*permission.UserGrants, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.snapshot(func(*permission.UserGrants) bool { return true }), nil
}

func (r *MockUserRepository) ListActiveByRole(_ context.Context, role permission.Role) ([]*permission.UserGrants, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.snapshot(func(u *permission.UserGrants) bool { return u.Role == role }), nil
}

func (r *MockUserRepository) AppendGrant(_ context.Context, userID string, grant permission.Grant) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendCnt++
	if err, ok := r.failFor[userID]; ok {
		return false, err
	}
	for _, u := range r.users {
		if u.UserID != userID {
			continue
		}
		if _, held := permission.FindGrant(u.Permissions, grant.Module); held {
			return false, nil
		}
		u.Permissions = append(u.Permissions, grant)
		return true, nil
	}
	return false, nil
}

func (r *MockUserRepository) user(id string) *permission.UserGrants {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.UserID == id {
			return u
		}
	}
	return nil
}

func (r *MockUserRepository) snapshot(keep func(*permission.UserGrants) bool) []*permission.UserGrants {
	var out []*permission.UserGrants
	for _, u := range r.users {
		if !keep(u) {
			continue
		}
		c := *u
		c.Permissions = append([]permission.Grant(nil), u.Permissions...)
		out = append(out, &c)
	}
	return out
}

// MockAuditLogger records audit events
type MockAuditLogger struct {
	mu     sync.Mutex
	events []audit.Event
}

func (l *MockAuditLogger) Log(_ context.Context, e audit.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *MockAuditLogger) types() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, e := range l.events {
		out = append(out, e.Type)
	}
	return out
}

// MockNotifier counts published invalidations
type MockNotifier struct {
	published int
}

func (n *MockNotifier) Publish(context.Context) error {
	n.published++
	return nil
}
