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

package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/counselcms/counsel/internal/audit"
	"github.com/counselcms/counsel/internal/permission"
)

// PermissionAssigner computes the default grants of a role
type PermissionAssigner interface {
	AssignDefaultPermissions(ctx context.Context, role permission.Role) ([]permission.Grant, error)
}

// CreateUserInput describes a new user. A nil Permissions slice means the
// role's default grants are assigned.
type CreateUserInput struct {
	Email       string             `json:"email" validate:"required,email,max=254"`
	Name        string             `json:"name" validate:"required,max=128"`
	Role        permission.Role    `json:"role" validate:"required"`
	Permissions []permission.Grant `json:"permissions"`
}

// Service provides identity-related business logic
type Service struct {
	repo        UserRepository
	permissions PermissionAssigner
	auditLogger audit.Logger
	validate    *validator.Validate
}

// NewService creates a new identity service
func NewService(repo UserRepository, permissions PermissionAssigner, auditLogger audit.Logger) *Service {
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}
	return &Service{
		repo:        repo,
		permissions: permissions,
		auditLogger: auditLogger,
		validate:    validator.New(),
	}
}

// CreateUser creates an active user with either explicit grants or the
// defaults of the role.
func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (*User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)

	if err := s.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, fmt.Errorf("%w: field %s failed %q", ErrInvalidUser, verrs[0].Field(), verrs[0].Tag())
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidUser, err)
	}
	if _, err := permission.ParseRole(string(in.Role)); err != nil {
		return nil, err
	}

	if existing, err := s.repo.GetByEmail(ctx, in.Email); err == nil && existing != nil {
		return nil, ErrUserAlreadyExists
	} else if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	grants, explicit, err := s.resolveGrants(ctx, in.Role, in.Permissions)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &User{
		ID:          uuid.NewString(),
		Email:       in.Email,
		Name:        in.Name,
		Role:        in.Role,
		IsActive:    true,
		Permissions: grants,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeUserCreated,
		ActorID:  permission.ActorFromContext(ctx),
		Resource: user.ID,
		Metadata: map[string]any{
			"email":    user.Email,
			"role":     string(user.Role),
			"modules":  len(grants),
			"explicit": explicit,
		},
	})

	return user, nil
}

// ChangeRole moves a user to a new role. The grant list is replaced with
// grants, or with the new role's defaults when grants is nil.
func (s *Service) ChangeRole(ctx context.Context, userID string, role permission.Role, grants []permission.Grant) (*User, error) {
	if _, err := permission.ParseRole(string(role)); err != nil {
		return nil, err
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	resolved, explicit, err := s.resolveGrants(ctx, role, grants)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateRole(ctx, userID, role, resolved); err != nil {
		return nil, fmt.Errorf("failed to update role: %w", err)
	}

	previous := user.Role
	user.Role = role
	user.Permissions = resolved
	user.UpdatedAt = time.Now()

	eventType := audit.TypeRoleChanged
	if previous == role {
		eventType = audit.TypePermissionsReplaced
	}
	s.auditLogger.Log(ctx, audit.Event{
		Type:     eventType,
		ActorID:  permission.ActorFromContext(ctx),
		Resource: userID,
		Metadata: map[string]any{
			"previous_role": string(previous),
			"role":          string(role),
			"modules":       len(resolved),
			"explicit":      explicit,
		},
	})

	return user, nil
}

// GetUser retrieves a user by ID
func (s *Service) GetUser(ctx context.Context, userID string) (*User, error) {
	return s.repo.GetByID(ctx, userID)
}

// Principal returns the authorization principal of an active user.
func (s *Service) Principal(ctx context.Context, userID string) (*permission.Principal, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}
	return user.Principal(), nil
}

func (s *Service) resolveGrants(ctx context.Context, role permission.Role, grants []permission.Grant) ([]permission.Grant, bool, error) {
	if grants == nil {
		defaults, err := s.permissions.AssignDefaultPermissions(ctx, role)
		if err != nil {
			return nil, false, fmt.Errorf("failed to assign default permissions: %w", err)
		}
		return defaults, false, nil
	}
	if err := validateGrants(grants); err != nil {
		return nil, true, err
	}
	return grants, true, nil
}

// validateGrants enforces known actions and at most one entry per module.
func validateGrants(grants []permission.Grant) error {
	seen := make(map[string]struct{}, len(grants))
	for _, g := range grants {
		if strings.TrimSpace(g.Module) == "" {
			return fmt.Errorf("%w: empty module key", ErrInvalidGrants)
		}
		if _, dup := seen[g.Module]; dup {
			return fmt.Errorf("%w: duplicate entry for module %s", ErrInvalidGrants, g.Module)
		}
		seen[g.Module] = struct{}{}
		for _, a := range g.Actions {
			if _, err := permission.ParseAction(string(a)); err != nil {
				return fmt.Errorf("%w: %w", ErrInvalidGrants, err)
			}
		}
	}
	return nil
}
