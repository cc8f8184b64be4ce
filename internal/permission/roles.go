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

// -----------------------------------------------------------------------------
// Module Key Constants
// Keys of the modules shipped with the admin panel. Keys are stable and are
// referenced from route guards.
// -----------------------------------------------------------------------------

const (
	ModuleDashboard     = "dashboard"
	ModuleArticles      = "articles"
	ModuleTeam          = "team"
	ModulePracticeAreas = "practice-areas"
	ModuleContacts      = "contacts"
	ModuleUsers         = "users"
	ModuleSettings      = "settings"
	ModulePermissions   = "permissions"
)

// -----------------------------------------------------------------------------
// Role Template Seeds
// Used by the migrate command and as fixtures. Stored templates win once seeded.
// -----------------------------------------------------------------------------

// DefaultRoleTemplates returns the seed template of every role.
func DefaultRoleTemplates() []RoleTemplate {
	all := append([]Action(nil), Actions...)

	return []RoleTemplate{
		{
			Role:        RoleSuperAdmin,
			Level:       RoleSuperAdmin.Level(),
			Description: "Full access to every module",
			AutoGrantRules: []AutoGrantRule{
				{Category: CategoryCore, Actions: all, Condition: ConditionAlways},
				{Category: CategoryContent, Actions: all, Condition: ConditionAlways},
				{Category: CategoryUsers, Actions: all, Condition: ConditionAlways},
				{Category: CategorySettings, Actions: all, Condition: ConditionAlways},
				{Category: CategoryTools, Actions: all, Condition: ConditionAlways},
			},
		},
		{
			Role:        RoleAdmin,
			Level:       RoleAdmin.Level(),
			Description: "Manages content, users and site settings",
			AutoGrantRules: []AutoGrantRule{
				{Category: CategoryCore, Actions: []Action{ActionRead, ActionUpdate}, Condition: ConditionAlways},
				{Category: CategoryContent, Actions: []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionApprove, ActionPublish, ActionExport}, Condition: ConditionAlways},
				{Category: CategoryUsers, Actions: []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete}, Condition: ConditionAlways},
				{Category: CategorySettings, Actions: []Action{ActionRead, ActionUpdate}, Condition: ConditionAlways},
				{Category: CategoryTools, Actions: []Action{ActionRead, ActionExport, ActionImport}, Condition: ConditionAlways},
			},
		},
		{
			Role:        RoleEditor,
			Level:       RoleEditor.Level(),
			Description: "Writes and publishes site content",
			AutoGrantRules: []AutoGrantRule{
				{Category: CategoryCore, Actions: []Action{ActionRead}, Condition: ConditionOnCreate},
				{Category: CategoryContent, Actions: []Action{ActionCreate, ActionRead, ActionUpdate, ActionPublish}, Condition: ConditionOnCreate},
				{Category: CategoryUsers, Condition: ConditionNever},
				{Category: CategorySettings, Condition: ConditionNever},
				{Category: CategoryTools, Actions: []Action{ActionExport}, Condition: ConditionManual},
			},
		},
		{
			Role:        RoleModerator,
			Level:       RoleModerator.Level(),
			Description: "Reviews content and contact submissions",
			AutoGrantRules: []AutoGrantRule{
				{Category: CategoryCore, Actions: []Action{ActionRead}, Condition: ConditionOnCreate},
				{Category: CategoryContent, Actions: []Action{ActionRead, ActionUpdate, ActionApprove}, Condition: ConditionAlways},
				{Category: CategoryUsers, Condition: ConditionNever},
				{Category: CategorySettings, Condition: ConditionNever},
				{Category: CategoryTools, Actions: []Action{ActionRead}, Condition: ConditionOnCreate},
			},
		},
	}
}

// -----------------------------------------------------------------------------
// Module Seeds
// -----------------------------------------------------------------------------

// DefaultModules returns the modules shipped with the admin panel.
func DefaultModules() []Module {
	crud := []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete}
	content := []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionApprove, ActionPublish, ActionExport}

	return []Module{
		{
			Key:              ModuleDashboard,
			Name:             "Dashboard",
			Category:         CategoryCore,
			AvailableActions: []Action{ActionRead},
			DefaultPermissions: map[Role][]Action{
				RoleSuperAdmin: {ActionRead},
				RoleAdmin:      {ActionRead},
				RoleEditor:     {ActionRead},
				RoleModerator:  {ActionRead},
			},
			IsActive: true,
			IsSystem: true,
			Order:    0,
		},
		{
			Key:              ModuleArticles,
			Name:             "Articles",
			Description:      "Firm news and legal insight articles",
			Category:         CategoryContent,
			AvailableActions: content,
			DefaultPermissions: map[Role][]Action{
				RoleSuperAdmin: content,
				RoleAdmin:      content,
				RoleEditor:     {ActionCreate, ActionRead, ActionUpdate, ActionPublish},
				RoleModerator:  {ActionRead, ActionApprove},
			},
			IsActive: true,
			IsSystem: true,
			Order:    10,
		},
		{
			Key:              ModuleTeam,
			Name:             "Team",
			Description:      "Attorney and staff biographies",
			Category:         CategoryContent,
			AvailableActions: append(append([]Action(nil), crud...), ActionPublish),
			DefaultPermissions: map[Role][]Action{
				RoleSuperAdmin: {ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionPublish},
				RoleAdmin:      {ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionPublish},
				RoleEditor:     {ActionRead, ActionUpdate},
			},
			IsActive: true,
			Order:    20,
		},
		{
			Key:              ModulePracticeAreas,
			Name:             "Practice Areas",
			Category:         CategoryContent,
			AvailableActions: append(append([]Action(nil), crud...), ActionPublish),
			DefaultPermissions: map[Role][]Action{
				RoleSuperAdmin: {ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionPublish},
				RoleAdmin:      {ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionPublish},
				RoleEditor:     {ActionRead, ActionUpdate},
			},
			IsActive: true,
			Order:    30,
		},
		{
			Key:              ModuleContacts,
			Name:             "Contact Submissions",
			Category:         CategoryTools,
			AvailableActions: []Action{ActionRead, ActionUpdate, ActionDelete, ActionExport},
			DefaultPermissions: map[Role][]Action{
				RoleSuperAdmin: {ActionRead, ActionUpdate, ActionDelete, ActionExport},
				RoleAdmin:      {ActionRead, ActionUpdate, ActionExport},
				RoleModerator:  {ActionRead},
			},
			IsActive: true,
			Order:    40,
		},
		{
			Key:              ModuleUsers,
			Name:             "Users",
			Category:         CategoryUsers,
			AvailableActions: crud,
			DefaultPermissions: map[Role][]Action{
				RoleSuperAdmin: crud,
				RoleAdmin:      {ActionCreate, ActionRead, ActionUpdate},
			},
			IsActive: true,
			IsSystem: true,
			Order:    50,
		},
		{
			Key:              ModuleSettings,
			Name:             "Settings",
			Category:         CategorySettings,
			AvailableActions: []Action{ActionRead, ActionUpdate},
			DefaultPermissions: map[Role][]Action{
				RoleSuperAdmin: {ActionRead, ActionUpdate},
			},
			IsActive: true,
			IsSystem: true,
			Order:    60,
		},
		{
			Key:              ModulePermissions,
			Name:             "Permissions",
			Description:      "Modules, role templates and permission audit",
			Category:         CategorySettings,
			AvailableActions: crud,
			DefaultPermissions: map[Role][]Action{
				RoleSuperAdmin: crud,
			},
			IsActive: true,
			IsSystem: true,
			Order:    70,
		},
	}
}
