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
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/counselcms/counsel/internal/identity"
	"github.com/counselcms/counsel/internal/permission"
)

// grantRecord is the stored shape of a permission grant
type grantRecord struct {
	Module  string   `json:"module"`
	Actions []string `json:"actions"`
}

// UserRepository implements identity.UserRepository and permission.UserRepository
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *identity.User) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO users (id, email, name, role, is_active, permissions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		user.ID, user.Email, user.Name, string(user.Role), user.IsActive,
		grantsToRecords(user.Permissions), user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return identity.ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*identity.User, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT id, email, name, role, is_active, permissions, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id)
	return r.scanOne(row)
}

// GetByEmail retrieves a user by email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*identity.User, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT id, email, name, role, is_active, permissions, created_at, updated_at
		FROM users
		WHERE email = $1
	`, email)
	return r.scanOne(row)
}

// UpdateRole replaces the role and the whole grant list of a user
func (r *UserRepository) UpdateRole(ctx context.Context, id string, role permission.Role, grants []permission.Grant) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE users SET role = $2, permissions = $3, updated_at = $4 WHERE id = $1
	`, id, string(role), grantsToRecords(grants), time.Now())
	if err != nil {
		return fmt.Errorf("failed to update user role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}

// ListActive retrieves all active users
func (r *UserRepository) ListActive(ctx context.Context) ([]*permission.UserGrants, error) {
	return r.listGrants(ctx, `
		SELECT id, email, role, permissions FROM users WHERE is_active ORDER BY created_at, id
	`)
}

// ListActiveByRole retrieves active users holding a role
func (r *UserRepository) ListActiveByRole(ctx context.Context, role permission.Role) ([]*permission.UserGrants, error) {
	return r.listGrants(ctx, `
		SELECT id, email, role, permissions FROM users WHERE is_active AND role = $1 ORDER BY created_at, id
	`, string(role))
}

// AppendGrant appends a grant in a single statement, unless the user already
// holds an entry for the same module.
func (r *UserRepository) AppendGrant(ctx context.Context, userID string, grant permission.Grant) (bool, error) {
	record := grantRecord{Module: grant.Module, Actions: actionsToStrings(grant.Actions)}
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE users
		SET permissions = permissions || jsonb_build_array($2::jsonb), updated_at = NOW()
		WHERE id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM jsonb_array_elements(permissions) AS e WHERE e->>'module' = $3
		  )
	`, userID, record, grant.Module)
	if err != nil {
		return false, fmt.Errorf("failed to append grant: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *UserRepository) scanOne(row pgx.Row) (*identity.User, error) {
	var (
		user    identity.User
		role    string
		records []grantRecord
	)
	err := row.Scan(&user.ID, &user.Email, &user.Name, &role, &user.IsActive, &records, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, identity.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user.Role, err = permission.ParseRole(role); err != nil {
		return nil, fmt.Errorf("user %s: %w", user.ID, err)
	}
	if user.Permissions, err = recordsToGrants(records); err != nil {
		return nil, fmt.Errorf("user %s: %w", user.ID, err)
	}
	return &user, nil
}

func (r *UserRepository) listGrants(ctx context.Context, sql string, args ...any) ([]*permission.UserGrants, error) {
	rows, err := r.db.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*permission.UserGrants
	for rows.Next() {
		var (
			u       permission.UserGrants
			role    string
			records []grantRecord
		)
		if err := rows.Scan(&u.UserID, &u.Email, &role, &records); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		if u.Role, err = permission.ParseRole(role); err != nil {
			return nil, fmt.Errorf("user %s: %w", u.UserID, err)
		}
		if u.Permissions, err = recordsToGrants(records); err != nil {
			return nil, fmt.Errorf("user %s: %w", u.UserID, err)
		}
		users = append(users, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

func grantsToRecords(grants []permission.Grant) []grantRecord {
	out := make([]grantRecord, 0, len(grants))
	for _, g := range grants {
		out = append(out, grantRecord{Module: g.Module, Actions: actionsToStrings(g.Actions)})
	}
	return out
}

func recordsToGrants(records []grantRecord) ([]permission.Grant, error) {
	out := make([]permission.Grant, 0, len(records))
	for _, rec := range records {
		actions, err := permission.ParseActions(rec.Actions)
		if err != nil {
			return nil, err
		}
		out = append(out, permission.Grant{Module: rec.Module, Actions: actions})
	}
	return out, nil
}
