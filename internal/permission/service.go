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
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/counselcms/counsel/internal/audit"
	"github.com/counselcms/counsel/internal/observability/metrics"
)

const tracerName = "github.com/counselcms/counsel/internal/permission"

// Notifier broadcasts module cache invalidations to other processes.
type Notifier interface {
	Publish(ctx context.Context) error
}

// Service is the permission engine: module registry, role templates,
// authorization checks, grant assignment and drift audit.
type Service struct {
	modules     ModuleRepository
	templates   TemplateRepository
	users       UserRepository
	cache       *ModuleCache
	auditLogger audit.Logger
	notifier    Notifier
	metrics     *metrics.PermissionMetrics
	validate    *validator.Validate
	tracer      trace.Tracer
}

// Option configures optional Service collaborators
type Option func(*Service)

// WithNotifier broadcasts ClearCache to other processes.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithMetrics records engine instruments.
func WithMetrics(m *metrics.PermissionMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTracer replaces the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithCache replaces the module cache, mainly for tests that control the clock.
func WithCache(c *ModuleCache) Option {
	return func(s *Service) { s.cache = c }
}

// NewService creates a new permission service
func NewService(
	modules ModuleRepository,
	templates TemplateRepository,
	users UserRepository,
	auditLogger audit.Logger,
	cacheTTL time.Duration,
	opts ...Option,
) *Service {
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}
	s := &Service{
		modules:     modules,
		templates:   templates,
		users:       users,
		cache:       NewModuleCache(cacheTTL),
		auditLogger: auditLogger,
		validate:    validator.New(),
		tracer:      otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "permission."+name)
}
