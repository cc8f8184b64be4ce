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

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/counselcms/counsel/internal/permission"
)

const moduleColumns = `
	id, key, name, description, category, available_actions, default_permissions,
	is_active, is_system, display_order, created_at, updated_at`

// ModuleRepository implements permission.ModuleRepository
type ModuleRepository struct {
	db *DB
}

// NewModuleRepository creates a new module repository
func NewModuleRepository(db *DB) *ModuleRepository {
	return &ModuleRepository{db: db}
}

// Create persists a new module
func (r *ModuleRepository) Create(ctx context.Context, m *permission.Module) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO permission_modules (`+moduleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		m.ID, m.Key, m.Name, m.Description, string(m.Category),
		actionsToStrings(m.AvailableActions), defaultsToStrings(m.DefaultPermissions),
		m.IsActive, m.IsSystem, m.Order, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return permission.ErrModuleAlreadyExists
		}
		return fmt.Errorf("failed to insert module: %w", err)
	}
	return nil
}

// GetByKey retrieves a module by key
func (r *ModuleRepository) GetByKey(ctx context.Context, key string) (*permission.Module, error) {
	row := r.db.pool.QueryRow(ctx, `SELECT `+moduleColumns+` FROM permission_modules WHERE key = $1`, key)
	m, err := scanModule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, permission.ErrModuleNotFound
		}
		return nil, fmt.Errorf("failed to get module: %w", err)
	}
	return m, nil
}

// List retrieves every module, active or not
func (r *ModuleRepository) List(ctx context.Context) ([]*permission.Module, error) {
	return r.query(ctx, `SELECT `+moduleColumns+` FROM permission_modules ORDER BY display_order, name`)
}

// ListActive retrieves modules with IsActive set
func (r *ModuleRepository) ListActive(ctx context.Context) ([]*permission.Module, error) {
	return r.query(ctx, `SELECT `+moduleColumns+` FROM permission_modules WHERE is_active ORDER BY display_order, name`)
}

// Update updates module information. The key and system flag are immutable.
func (r *ModuleRepository) Update(ctx context.Context, m *permission.Module) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE permission_modules
		SET name = $2, description = $3, category = $4, available_actions = $5,
			default_permissions = $6, is_active = $7, display_order = $8, updated_at = $9
		WHERE key = $1
	`,
		m.Key, m.Name, m.Description, string(m.Category),
		actionsToStrings(m.AvailableActions), defaultsToStrings(m.DefaultPermissions),
		m.IsActive, m.Order, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update module: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return permission.ErrModuleNotFound
	}
	return nil
}

// Delete physically removes a non-system module
func (r *ModuleRepository) Delete(ctx context.Context, key string) error {
	tag, err := r.db.pool.Exec(ctx, `DELETE FROM permission_modules WHERE key = $1 AND NOT is_system`, key)
	if err != nil {
		return fmt.Errorf("failed to delete module: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := r.GetByKey(ctx, key); getErr == nil {
			return permission.ErrSystemModule
		}
		return permission.ErrModuleNotFound
	}
	return nil
}

func (r *ModuleRepository) query(ctx context.Context, sql string) ([]*permission.Module, error) {
	rows, err := r.db.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("failed to query modules: %w", err)
	}
	defer rows.Close()

	var modules []*permission.Module
	for rows.Next() {
		m, err := scanModule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan module: %w", err)
		}
		modules = append(modules, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate modules: %w", err)
	}
	return modules, nil
}

// scanModule reads one row and rejects enum values outside the closed sets.
func scanModule(row pgx.Row) (*permission.Module, error) {
	var (
		m        permission.Module
		category string
		actions  []string
		defaults map[string][]string
	)
	if err := row.Scan(
		&m.ID, &m.Key, &m.Name, &m.Description, &category, &actions, &defaults,
		&m.IsActive, &m.IsSystem, &m.Order, &m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if m.Category, err = permission.ParseCategory(category); err != nil {
		return nil, fmt.Errorf("module %s: %w", m.Key, err)
	}
	if m.AvailableActions, err = permission.ParseActions(actions); err != nil {
		return nil, fmt.Errorf("module %s: %w", m.Key, err)
	}
	m.DefaultPermissions = make(map[permission.Role][]permission.Action, len(defaults))
	for rawRole, rawActions := range defaults {
		role, err := permission.ParseRole(rawRole)
		if err != nil {
			return nil, fmt.Errorf("module %s: %w", m.Key, err)
		}
		if m.DefaultPermissions[role], err = permission.ParseActions(rawActions); err != nil {
			return nil, fmt.Errorf("module %s: %w", m.Key, err)
		}
	}
	return &m, nil
}

func actionsToStrings(actions []permission.Action) []string {
	out := make([]string, 0, len(actions))
	for _, a := range actions {
		out = append(out, string(a))
	}
	return out
}

func defaultsToStrings(defaults map[permission.Role][]permission.Action) map[string][]string {
	out := make(map[string][]string, len(defaults))
	for role, actions := range defaults {
		out[string(role)] = actionsToStrings(actions)
	}
	return out
}
