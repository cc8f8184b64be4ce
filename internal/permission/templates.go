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
	"sort"
	"time"

	"github.com/counselcms/counsel/internal/audit"
)

// ListTemplates returns every role template, most privileged first
func (s *Service) ListTemplates(ctx context.Context) ([]RoleTemplate, error) {
	rows, err := s.templates.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list role templates: %w", err)
	}
	out := make([]RoleTemplate, 0, len(rows))
	for _, t := range rows {
		out = append(out, *t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out, nil
}

// GetTemplate returns the template of a role
func (s *Service) GetTemplate(ctx context.Context, role Role) (*RoleTemplate, error) {
	if _, err := ParseRole(string(role)); err != nil {
		return nil, err
	}
	return s.templates.GetByRole(ctx, role)
}

// SaveTemplate creates or replaces the template of a role. Existing grants
// are not recomputed; the new rules apply to future assignments and retrofits.
func (s *Service) SaveTemplate(ctx context.Context, t RoleTemplate) (*RoleTemplate, error) {
	if err := validateTemplate(&t); err != nil {
		return nil, err
	}
	t.UpdatedAt = time.Now()

	if err := s.templates.Save(ctx, &t); err != nil {
		return nil, fmt.Errorf("failed to save role template: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTemplateSaved,
		ActorID:  ActorFromContext(ctx),
		Resource: string(t.Role),
		Metadata: map[string]any{"rules": len(t.AutoGrantRules)},
	})
	return &t, nil
}
