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
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var moduleKeyPattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// validateModule trims free-text fields and validates every enumerated value.
func (s *Service) validateModule(m *Module) error {
	m.Key = strings.TrimSpace(m.Key)
	m.Name = strings.TrimSpace(m.Name)
	m.Description = strings.TrimSpace(m.Description)

	if err := s.validate.Struct(m); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: field %s failed %q", ErrInvalidModule, fe.Field(), fe.Tag())
		}
		return fmt.Errorf("%w: %w", ErrInvalidModule, err)
	}
	if !moduleKeyPattern.MatchString(m.Key) {
		return fmt.Errorf("%w: key %q must be a lowercase slug", ErrInvalidModule, m.Key)
	}
	if _, err := ParseCategory(string(m.Category)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidModule, err)
	}
	for _, a := range m.AvailableActions {
		if _, err := ParseAction(string(a)); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidModule, err)
		}
	}
	for role, actions := range m.DefaultPermissions {
		if _, err := ParseRole(string(role)); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidModule, err)
		}
		for _, a := range actions {
			if !m.Supports(a) {
				return fmt.Errorf("%w: default action %q for %s is not available on the module", ErrInvalidModule, a, role)
			}
		}
	}
	return nil
}

func validateTemplate(t *RoleTemplate) error {
	if _, err := ParseRole(string(t.Role)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTemplate, err)
	}
	if t.Level == 0 {
		t.Level = t.Role.Level()
	}
	if t.Level != t.Role.Level() {
		return fmt.Errorf("%w: level %d does not match role %s", ErrInvalidTemplate, t.Level, t.Role)
	}

	seen := make(map[Category]struct{}, len(t.AutoGrantRules))
	for _, rule := range t.AutoGrantRules {
		if _, err := ParseCategory(string(rule.Category)); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidTemplate, err)
		}
		if _, dup := seen[rule.Category]; dup {
			return fmt.Errorf("%w: duplicate rule for category %s", ErrInvalidTemplate, rule.Category)
		}
		seen[rule.Category] = struct{}{}

		if _, err := ParseCondition(string(rule.Condition)); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidTemplate, err)
		}
		for _, a := range rule.Actions {
			if _, err := ParseAction(string(a)); err != nil {
				return fmt.Errorf("%w: %w", ErrInvalidTemplate, err)
			}
		}
	}
	return nil
}
