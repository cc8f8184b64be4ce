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

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/counselcms/counsel/internal/audit"
	"github.com/counselcms/counsel/internal/observability/logger"
)

// Per-user retrofit outcomes
const (
	OutcomeGranted = "granted"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// UserResult is the retrofit outcome for one user.
type UserResult struct {
	UserID  string   `json:"user_id"`
	Role    Role     `json:"role"`
	Outcome string   `json:"outcome"`
	Actions []Action `json:"actions,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// RetrofitReport summarizes applying a new module to existing users.
type RetrofitReport struct {
	Module  string       `json:"module"`
	Granted int          `json:"granted"`
	Skipped int          `json:"skipped"`
	Failed  int          `json:"failed"`
	Results []UserResult `json:"results"`
}

func (r *RetrofitReport) add(res UserResult) {
	switch res.Outcome {
	case OutcomeGranted:
		r.Granted++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeFailed:
		r.Failed++
	}
	r.Results = append(r.Results, res)
}

// resolveActions computes the actions a rule grants on a module for role.
//
// The rule's actions filter the module default for the role. When the filter
// leaves nothing, the full default is granted instead. A module with no
// default for the role grants nothing.
func resolveActions(rule AutoGrantRule, m *Module, role Role) []Action {
	if !rule.Condition.Grants() {
		return nil
	}
	defaults := m.DefaultFor(role)
	if len(defaults) == 0 {
		return nil
	}

	granted := make([]Action, 0, len(rule.Actions))
	for _, a := range rule.Actions {
		if containsAction(defaults, a) && !containsAction(granted, a) {
			granted = append(granted, a)
		}
	}
	if len(granted) == 0 {
		return append([]Action(nil), defaults...)
	}
	return granted
}

// AssignDefaultPermissions computes the grant list a user of role starts
// with. It does not persist anything.
//
// A missing role template yields an empty list. Failing to read the active
// modules is returned as an error.
func (s *Service) AssignDefaultPermissions(ctx context.Context, role Role) ([]Grant, error) {
	ctx, span := s.startSpan(ctx, "AssignDefaultPermissions")
	defer span.End()
	span.SetAttributes(attribute.String("role", string(role)))

	if _, err := ParseRole(string(role)); err != nil {
		return nil, err
	}

	grants := []Grant{}

	tmpl, err := s.templates.GetByRole(ctx, role)
	if err != nil {
		if errors.Is(err, ErrTemplateNotFound) {
			slog.WarnContext(ctx, "no role template, assigning no permissions",
				logger.Component("permission"),
				logger.Role(string(role)),
			)
			return grants, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "template lookup failed")
		return nil, fmt.Errorf("failed to get role template: %w", err)
	}

	modules, err := s.activeModules(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "module load failed")
		return nil, err
	}

	for i := range modules {
		m := &modules[i]
		rule, ok := tmpl.RuleFor(m.Category)
		if !ok {
			continue
		}
		actions := resolveActions(rule, m, role)
		if len(actions) == 0 {
			continue
		}
		grants = append(grants, Grant{Module: m.Key, Actions: actions})
	}

	return grants, nil
}

// AutoGrantPermissionsForNewModule retrofits a newly registered module onto
// existing active users, role by role.
//
// Users that already hold a grant for the module are left untouched. A
// failure for one user is recorded in the report and does not stop the
// others. Failing to list templates or users is returned as an error.
func (s *Service) AutoGrantPermissionsForNewModule(ctx context.Context, m Module) (*RetrofitReport, error) {
	ctx, span := s.startSpan(ctx, "AutoGrantPermissionsForNewModule")
	defer span.End()
	span.SetAttributes(attribute.String("module", m.Key))

	report := &RetrofitReport{Module: m.Key, Results: []UserResult{}}

	if !m.IsActive {
		slog.InfoContext(ctx, "module inactive, skipping retrofit",
			logger.Component("permission"),
			logger.ModuleKey(m.Key),
		)
		return report, nil
	}

	templates, err := s.templates.List(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "template list failed")
		return nil, fmt.Errorf("failed to list role templates: %w", err)
	}

	for _, tmpl := range templates {
		rule, ok := tmpl.RuleFor(m.Category)
		if !ok || !rule.Condition.Grants() {
			continue
		}
		actions := resolveActions(rule, &m, tmpl.Role)
		if len(actions) == 0 {
			continue
		}

		users, err := s.users.ListActiveByRole(ctx, tmpl.Role)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "user list failed")
			return report, fmt.Errorf("failed to list users for role %s: %w", tmpl.Role, err)
		}

		for _, u := range users {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			res := s.retrofitUser(ctx, u, m.Key, tmpl.Role, actions)
			s.metrics.Retrofit(ctx, res.Outcome)
			report.add(res)
		}
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypePermissionsRetrofitted,
		ActorID:  ActorFromContext(ctx),
		Resource: m.Key,
		Metadata: map[string]any{
			"granted": report.Granted,
			"skipped": report.Skipped,
			"failed":  report.Failed,
		},
	})

	slog.InfoContext(ctx, "module retrofit complete",
		logger.Component("permission"),
		logger.ModuleKey(m.Key),
		logger.Count("granted", report.Granted),
		logger.Count("skipped", report.Skipped),
		logger.Count("failed", report.Failed),
	)

	return report, nil
}

func (s *Service) retrofitUser(ctx context.Context, u *UserGrants, moduleKey string, role Role, actions []Action) UserResult {
	res := UserResult{UserID: u.UserID, Role: role}

	if _, held := FindGrant(u.Permissions, moduleKey); held {
		res.Outcome = OutcomeSkipped
		return res
	}

	grant := Grant{Module: moduleKey, Actions: append([]Action(nil), actions...)}
	added, err := s.users.AppendGrant(ctx, u.UserID, grant)
	if err != nil {
		slog.ErrorContext(ctx, "failed to retrofit user",
			logger.Component("permission"),
			logger.UserID(u.UserID),
			logger.ModuleKey(moduleKey),
			logger.Error(err),
		)
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeRetrofitFailed,
			ActorID:  ActorFromContext(ctx),
			Resource: u.UserID,
			Metadata: map[string]any{"module": moduleKey, "error": err.Error()},
		})
		res.Outcome = OutcomeFailed
		res.Error = err.Error()
		return res
	}
	if !added {
		// Another writer granted the module between the read and the append.
		res.Outcome = OutcomeSkipped
		return res
	}

	res.Outcome = OutcomeGranted
	res.Actions = grant.Actions
	return res
}
