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
	"errors"
	"fmt"
	"log/slog"

	"github.com/counselcms/counsel/internal/observability/logger"
)

// SeedReport counts what SeedDefaults changed.
type SeedReport struct {
	TemplatesSaved    int
	ModulesRegistered int
}

// SeedDefaults stores the default template of every role that has none yet
// and registers the default modules. Stored templates are never overwritten
// and modules register idempotently, so it is safe to run on every deploy.
func (s *Service) SeedDefaults(ctx context.Context) (*SeedReport, error) {
	ctx, span := s.startSpan(ctx, "SeedDefaults")
	defer span.End()

	report := &SeedReport{}

	for _, t := range DefaultRoleTemplates() {
		_, err := s.templates.GetByRole(ctx, t.Role)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrTemplateNotFound) {
			return report, fmt.Errorf("failed to look up template %s: %w", t.Role, err)
		}
		if _, err := s.SaveTemplate(ctx, t); err != nil {
			return report, fmt.Errorf("failed to seed template %s: %w", t.Role, err)
		}
		report.TemplatesSaved++
	}

	for _, m := range DefaultModules() {
		reg, err := s.RegisterModule(ctx, m)
		if err != nil {
			return report, fmt.Errorf("failed to seed module %s: %w", m.Key, err)
		}
		if reg.Created {
			report.ModulesRegistered++
		}
	}

	slog.InfoContext(ctx, "seeded permission defaults",
		logger.Component("permission"),
		logger.Count("templates_saved", report.TemplatesSaved),
		logger.Count("modules_registered", report.ModulesRegistered),
	)
	return report, nil
}
