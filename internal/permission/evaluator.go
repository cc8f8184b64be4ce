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
)

// Decision reasons recorded with every check. They are never returned to
// end users.
const (
	reasonNoPrincipal   = "no_principal"
	reasonSuperAdmin    = "super_admin"
	reasonNoGrants      = "no_grants"
	reasonUnknownModule = "unknown_module"
	reasonNoModuleGrant = "no_module_grant"
	reasonActionMissing = "action_not_granted"
	reasonGranted       = "granted"
)

// HasPermission reports whether the principal may perform action on the
// module identified by moduleKey.
//
// Super-admins bypass module and grant checks entirely, including for unknown
// modules. Everyone else needs the module to be active and an explicit grant
// entry listing the action. Any failure to read the module registry denies.
func (s *Service) HasPermission(ctx context.Context, p *Principal, moduleKey string, action Action) bool {
	allowed, reason := s.decide(ctx, p, moduleKey, action)
	s.metrics.Check(ctx, allowed, reason)
	return allowed
}

func (s *Service) decide(ctx context.Context, p *Principal, moduleKey string, action Action) (bool, string) {
	if p == nil || p.Role == "" {
		return false, reasonNoPrincipal
	}
	if p.Role == RoleSuperAdmin {
		return true, reasonSuperAdmin
	}
	if p.Permissions == nil {
		return false, reasonNoGrants
	}

	active := false
	for _, m := range s.GetActiveModules(ctx) {
		if m.Key == moduleKey {
			active = m.IsActive
			break
		}
	}
	if !active {
		return false, reasonUnknownModule
	}

	grant, ok := FindGrant(p.Permissions, moduleKey)
	if !ok {
		return false, reasonNoModuleGrant
	}
	if !grant.Allows(action) {
		return false, reasonActionMissing
	}
	return true, reasonGranted
}
