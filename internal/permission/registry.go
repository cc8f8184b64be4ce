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
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/counselcms/counsel/internal/audit"
	"github.com/counselcms/counsel/internal/observability/logger"
)

// Registration is the outcome of RegisterModule.
type Registration struct {
	Module   *Module         `json:"module"`
	Created  bool            `json:"created"`
	Retrofit *RetrofitReport `json:"retrofit,omitempty"`
}

// GetActiveModules returns active modules ordered by Order then Name.
// Read failures are logged and yield an empty list so that callers fail closed.
func (s *Service) GetActiveModules(ctx context.Context) []Module {
	modules, err := s.activeModules(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load active modules",
			logger.Component("permission"),
			logger.Error(err),
		)
		return []Module{}
	}
	return modules
}

// ClearCache invalidates the active module cache of this process and
// notifies other processes when a notifier is configured.
func (s *Service) ClearCache(ctx context.Context) {
	s.cache.Invalidate()
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx); err != nil {
		slog.WarnContext(ctx, "failed to publish cache invalidation",
			logger.Component("permission"),
			logger.Error(err),
		)
	}
}

// InvalidateLocalCache invalidates only this process's cache. It is the
// handler for invalidations received from other processes.
func (s *Service) InvalidateLocalCache() {
	s.cache.Invalidate()
}

// RegisterModule registers a module, idempotently by key. A new module is
// retrofitted onto existing users according to their role templates.
func (s *Service) RegisterModule(ctx context.Context, m Module) (*Registration, error) {
	ctx, span := s.startSpan(ctx, "RegisterModule")
	defer span.End()

	m.Key = strings.TrimSpace(m.Key)
	existing, err := s.modules.GetByKey(ctx, m.Key)
	if err == nil {
		slog.InfoContext(ctx, "module already registered, skipping",
			logger.Component("permission"),
			logger.ModuleKey(m.Key),
		)
		return &Registration{Module: existing}, nil
	}
	if !errors.Is(err, ErrModuleNotFound) {
		return nil, fmt.Errorf("failed to look up module: %w", err)
	}
	if err := s.validateModule(&m); err != nil {
		return nil, err
	}

	now := time.Now()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = now
	m.UpdatedAt = now

	if err := s.modules.Create(ctx, &m); err != nil {
		if errors.Is(err, ErrModuleAlreadyExists) {
			// Lost a race with a concurrent registration of the same key.
			existing, getErr := s.modules.GetByKey(ctx, m.Key)
			if getErr != nil {
				return nil, fmt.Errorf("failed to get concurrently registered module: %w", getErr)
			}
			return &Registration{Module: existing}, nil
		}
		return nil, fmt.Errorf("failed to create module: %w", err)
	}
	s.ClearCache(ctx)

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeModuleRegistered,
		ActorID:  ActorFromContext(ctx),
		Resource: m.Key,
		Metadata: map[string]any{
			"category":  string(m.Category),
			"is_active": m.IsActive,
			"is_system": m.IsSystem,
		},
	})

	registered := m.Clone()
	report, err := s.AutoGrantPermissionsForNewModule(ctx, m)
	if err != nil {
		return &Registration{Module: &registered, Created: true}, fmt.Errorf("module registered but retrofit failed: %w", err)
	}

	return &Registration{Module: &registered, Created: true, Retrofit: report}, nil
}

// GetModule retrieves a module by key, active or not
func (s *Service) GetModule(ctx context.Context, key string) (*Module, error) {
	return s.modules.GetByKey(ctx, key)
}

// ListModules retrieves every module ordered for display
func (s *Service) ListModules(ctx context.Context) ([]Module, error) {
	rows, err := s.modules.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list modules: %w", err)
	}
	out := make([]Module, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.Clone())
	}
	sortModules(out)
	return out, nil
}

// UpdateModule replaces the descriptive fields, actions and defaults of a
// module. The key, ID and system flag are immutable, and the active flag only
// changes through SetModuleActive.
func (s *Service) UpdateModule(ctx context.Context, m Module) (*Module, error) {
	existing, err := s.modules.GetByKey(ctx, m.Key)
	if err != nil {
		return nil, err
	}

	m.ID = existing.ID
	m.IsSystem = existing.IsSystem
	m.IsActive = existing.IsActive
	m.CreatedAt = existing.CreatedAt
	m.UpdatedAt = time.Now()

	if err := s.validateModule(&m); err != nil {
		return nil, err
	}
	if err := s.modules.Update(ctx, &m); err != nil {
		return nil, fmt.Errorf("failed to update module: %w", err)
	}
	s.ClearCache(ctx)

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeModuleUpdated,
		ActorID:  ActorFromContext(ctx),
		Resource: m.Key,
	})

	return &m, nil
}

// SetModuleActive flips the active flag. Deactivation is logical: grants held
// by users are left in place. Activation retrofits the module onto existing
// users the same way a new registration does.
func (s *Service) SetModuleActive(ctx context.Context, key string, active bool) (*Module, error) {
	m, err := s.modules.GetByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if m.IsActive == active {
		return m, nil
	}

	m.IsActive = active
	m.UpdatedAt = time.Now()
	if err := s.modules.Update(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to update module: %w", err)
	}
	s.ClearCache(ctx)

	eventType := audit.TypeModuleDeactivated
	if active {
		eventType = audit.TypeModuleActivated
	}
	s.auditLogger.Log(ctx, audit.Event{
		Type:     eventType,
		ActorID:  ActorFromContext(ctx),
		Resource: key,
	})

	if active {
		if _, err := s.AutoGrantPermissionsForNewModule(ctx, *m); err != nil {
			slog.WarnContext(ctx, "module activated but retrofit failed",
				logger.Component("permission"),
				logger.ModuleKey(key),
				logger.Error(err),
			)
		}
	}

	return m, nil
}

// DeleteModule physically removes a non-system module.
func (s *Service) DeleteModule(ctx context.Context, key string) error {
	m, err := s.modules.GetByKey(ctx, key)
	if err != nil {
		return err
	}
	if m.IsSystem {
		return ErrSystemModule
	}
	if err := s.modules.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete module: %w", err)
	}
	s.ClearCache(ctx)

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeModuleDeleted,
		ActorID:  ActorFromContext(ctx),
		Resource: key,
	})
	return nil
}

func (s *Service) activeModules(ctx context.Context) ([]Module, error) {
	modules, _, err := s.cache.Get(ctx, s.loadActiveModules)
	return modules, err
}

func (s *Service) loadActiveModules(ctx context.Context) ([]Module, error) {
	start := time.Now()
	rows, err := s.modules.ListActive(ctx)
	elapsed := float64(time.Since(start).Microseconds()) / 1000
	if err != nil {
		s.metrics.CacheReload(ctx, false, elapsed)
		return nil, fmt.Errorf("failed to list active modules: %w", err)
	}
	s.metrics.CacheReload(ctx, true, elapsed)

	out := make([]Module, 0, len(rows))
	for _, m := range rows {
		if m.IsActive {
			out = append(out, *m)
		}
	}
	sortModules(out)

	slog.DebugContext(ctx, "reloaded active modules",
		logger.Component("permission"),
		logger.Count("modules", len(out)),
	)
	return out, nil
}

func sortModules(modules []Module) {
	sort.SliceStable(modules, func(i, j int) bool {
		if modules[i].Order != modules[j].Order {
			return modules[i].Order < modules[j].Order
		}
		return modules[i].Name < modules[j].Name
	})
}

type contextKey string

const actorKey contextKey = "actor_id"

// WithActor attaches the acting user ID to ctx for audit events.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey, actorID)
}

// ActorFromContext returns the acting user ID, or audit.ActorSystem.
func ActorFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(actorKey).(string); ok && v != "" {
		return v
	}
	return audit.ActorSystem
}
