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
	"fmt"

	"go.opentelemetry.io/otel/codes"
)

// Discrepancy describes how a user's grants drifted from what the active
// modules would assign to their role.
type Discrepancy struct {
	UserID         string   `json:"user_id"`
	Email          string   `json:"email"`
	Role           Role     `json:"role"`
	MissingModules []string `json:"missing_modules"`
	ExtraModules   []string `json:"extra_modules"`
	MissingCount   int      `json:"missing_count"`
	ExtraCount     int      `json:"extra_count"`
}

// AuditUserPermissions reports every active user whose grants miss an active
// module with a non-empty default for their role, or reference a module that
// is no longer active. It never modifies grants.
func (s *Service) AuditUserPermissions(ctx context.Context) ([]Discrepancy, error) {
	ctx, span := s.startSpan(ctx, "AuditUserPermissions")
	defer span.End()

	// Bypass the cache so the report reflects the stored catalog.
	modules, err := s.loadActiveModules(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "module load failed")
		return nil, err
	}
	users, err := s.users.ListActive(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "user list failed")
		return nil, fmt.Errorf("failed to list active users: %w", err)
	}

	activeKeys := make(map[string]struct{}, len(modules))
	for _, m := range modules {
		activeKeys[m.Key] = struct{}{}
	}

	out := []Discrepancy{}
	for _, u := range users {
		held := make(map[string]struct{}, len(u.Permissions))
		for _, g := range u.Permissions {
			held[g.Module] = struct{}{}
		}

		var missing, extra []string
		for i := range modules {
			m := &modules[i]
			if len(m.DefaultFor(u.Role)) == 0 {
				continue
			}
			if _, ok := held[m.Key]; !ok {
				missing = append(missing, m.Key)
			}
		}
		for _, g := range u.Permissions {
			if _, ok := activeKeys[g.Module]; !ok {
				extra = append(extra, g.Module)
			}
		}

		if len(missing) == 0 && len(extra) == 0 {
			continue
		}
		if missing == nil {
			missing = []string{}
		}
		if extra == nil {
			extra = []string{}
		}
		out = append(out, Discrepancy{
			UserID:         u.UserID,
			Email:          u.Email,
			Role:           u.Role,
			MissingModules: missing,
			ExtraModules:   extra,
			MissingCount:   len(missing),
			ExtraCount:     len(extra),
		})
	}

	return out, nil
}
