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

// ruleRecord is the stored shape of an auto-grant rule
type ruleRecord struct {
	Category  string   `json:"module_category"`
	Actions   []string `json:"actions"`
	Condition string   `json:"condition"`
}

// TemplateRepository implements permission.TemplateRepository
type TemplateRepository struct {
	db *DB
}

// NewTemplateRepository creates a new role template repository
func NewTemplateRepository(db *DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// List retrieves all role templates
func (r *TemplateRepository) List(ctx context.Context) ([]*permission.RoleTemplate, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT role, level, description, auto_grant_rules, updated_at
		FROM role_templates
		ORDER BY level
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query role templates: %w", err)
	}
	defer rows.Close()

	var templates []*permission.RoleTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role template: %w", err)
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate role templates: %w", err)
	}
	return templates, nil
}

// GetByRole retrieves the template of a role
func (r *TemplateRepository) GetByRole(ctx context.Context, role permission.Role) (*permission.RoleTemplate, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT role, level, description, auto_grant_rules, updated_at
		FROM role_templates
		WHERE role = $1
	`, string(role))
	t, err := scanTemplate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, permission.ErrTemplateNotFound
		}
		return nil, fmt.Errorf("failed to get role template: %w", err)
	}
	return t, nil
}

// Save creates or replaces the template of a role
func (r *TemplateRepository) Save(ctx context.Context, t *permission.RoleTemplate) error {
	rules := make([]ruleRecord, 0, len(t.AutoGrantRules))
	for _, rule := range t.AutoGrantRules {
		rules = append(rules, ruleRecord{
			Category:  string(rule.Category),
			Actions:   actionsToStrings(rule.Actions),
			Condition: string(rule.Condition),
		})
	}

	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO role_templates (role, level, description, auto_grant_rules, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (role) DO UPDATE
		SET level = EXCLUDED.level,
			description = EXCLUDED.description,
			auto_grant_rules = EXCLUDED.auto_grant_rules,
			updated_at = EXCLUDED.updated_at
	`, string(t.Role), t.Level, t.Description, rules, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save role template: %w", err)
	}
	return nil
}

func scanTemplate(row pgx.Row) (*permission.RoleTemplate, error) {
	var (
		t     permission.RoleTemplate
		role  string
		rules []ruleRecord
	)
	if err := row.Scan(&role, &t.Level, &t.Description, &rules, &t.UpdatedAt); err != nil {
		return nil, err
	}

	var err error
	if t.Role, err = permission.ParseRole(role); err != nil {
		return nil, err
	}
	t.AutoGrantRules = make([]permission.AutoGrantRule, 0, len(rules))
	for _, rec := range rules {
		var rule permission.AutoGrantRule
		if rule.Category, err = permission.ParseCategory(rec.Category); err != nil {
			return nil, fmt.Errorf("template %s: %w", role, err)
		}
		if rule.Condition, err = permission.ParseCondition(rec.Condition); err != nil {
			return nil, fmt.Errorf("template %s: %w", role, err)
		}
		if rule.Actions, err = permission.ParseActions(rec.Actions); err != nil {
			return nil, fmt.Errorf("template %s: %w", role, err)
		}
		t.AutoGrantRules = append(t.AutoGrantRules, rule)
	}
	return &t, nil
}
