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
	"log/slog"
	"os"
	"strings"

	"github.com/counselcms/counsel/internal/audit"
	"github.com/counselcms/counsel/internal/observability/logger"
	"github.com/counselcms/counsel/internal/permission"
)

const (
	EnvBootstrapAdminEmail = "COUNSEL_BOOTSTRAP_ADMIN_EMAIL"
	EnvBootstrapAdminName  = "COUNSEL_BOOTSTRAP_ADMIN_NAME"
)

// Bootstrap creates the initial super-admin named by the bootstrap
// environment variables. It does nothing when the email is unset or the
// user already exists.
func (s *Service) Bootstrap(ctx context.Context) (*User, error) {
	email := strings.ToLower(strings.TrimSpace(os.Getenv(EnvBootstrapAdminEmail)))
	if email == "" {
		return nil, nil
	}
	name := os.Getenv(EnvBootstrapAdminName)
	if name == "" {
		name = "Administrator"
	}

	existing, err := s.repo.GetByEmail(ctx, email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("failed to check for bootstrap admin: %w", err)
	}

	ctx = permission.WithActor(ctx, audit.ActorMigrate)
	user, err := s.CreateUser(ctx, CreateUserInput{
		Email: email,
		Name:  name,
		Role:  permission.RoleSuperAdmin,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bootstrap admin: %w", err)
	}

	slog.InfoContext(ctx, "bootstrapped initial super-admin",
		logger.UserID(user.ID),
		logger.Email(user.Email),
	)
	return user, nil
}
