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
	"time"

	"github.com/counselcms/counsel/internal/permission"
)

// Domain errors
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserInactive      = errors.New("user is inactive")
	ErrInvalidUser       = errors.New("invalid user")
	ErrInvalidGrants     = errors.New("invalid permission grants")
)

// User is an admin panel account. Authentication happens elsewhere; this
// record carries the role and the concrete permission grants.
type User struct {
	ID          string             `json:"id"`
	Email       string             `json:"email"`
	Name        string             `json:"name"`
	Role        permission.Role    `json:"role"`
	IsActive    bool               `json:"is_active"`
	Permissions []permission.Grant `json:"permissions"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// Principal returns the authorization view of the user.
func (u *User) Principal() *permission.Principal {
	grants := u.Permissions
	if grants == nil {
		grants = []permission.Grant{}
	}
	return &permission.Principal{
		UserID:      u.ID,
		Role:        u.Role,
		Permissions: grants,
	}
}

// UserRepository defines the interface for user persistence
type UserRepository interface {
	// Create creates a new user
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id string) (*User, error)

	// GetByEmail retrieves a user by email
	GetByEmail(ctx context.Context, email string) (*User, error)

	// UpdateRole replaces the role and the whole grant list of a user
	UpdateRole(ctx context.Context, id string, role permission.Role, grants []permission.Grant) error
}
