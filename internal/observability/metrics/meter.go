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

package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Config holds metrics configuration
type Config struct {
	Enabled bool
}

// Meter wraps OpenTelemetry meter
type Meter struct {
	meter metric.Meter
}

// New creates a new meter instance
func New(ctx context.Context, cfg Config, serviceName string) (*Meter, error) {
	if !cfg.Enabled {
		return &Meter{
			meter: otel.Meter("noop"),
		}, nil
	}

	// Instruments record into whatever global provider is installed
	return &Meter{
		meter: otel.Meter(serviceName),
	}, nil
}

// FromMeter wraps an existing OpenTelemetry meter
func FromMeter(m metric.Meter) *Meter {
	return &Meter{meter: m}
}

// GetMeter returns the underlying meter
func (m *Meter) GetMeter() metric.Meter {
	return m.meter
}

// CreateCounter creates a new counter metric
func (m *Meter) CreateCounter(name, description string) (metric.Int64Counter, error) {
	counter, err := m.meter.Int64Counter(
		name,
		metric.WithDescription(description),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter %s: %w", name, err)
	}
	return counter, nil
}

// CreateHistogram creates a new histogram metric
func (m *Meter) CreateHistogram(name, description, unit string) (metric.Float64Histogram, error) {
	histogram, err := m.meter.Float64Histogram(
		name,
		metric.WithDescription(description),
		metric.WithUnit(unit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create histogram %s: %w", name, err)
	}
	return histogram, nil
}

// PermissionMetrics holds the instruments recorded by the permission engine.
// A nil *PermissionMetrics records nothing.
type PermissionMetrics struct {
	checks       metric.Int64Counter
	cacheLoads   metric.Int64Counter
	retrofits    metric.Int64Counter
	loadDuration metric.Float64Histogram
}

// NewPermissionMetrics registers the permission engine instruments
func (m *Meter) NewPermissionMetrics() (*PermissionMetrics, error) {
	checks, err := m.CreateCounter("permission.checks", "Authorization decisions by outcome")
	if err != nil {
		return nil, err
	}
	cacheLoads, err := m.CreateCounter("permission.cache.reloads", "Active module list reloads by outcome")
	if err != nil {
		return nil, err
	}
	retrofits, err := m.CreateCounter("permission.retrofit.users", "Users processed while retrofitting a new module, by outcome")
	if err != nil {
		return nil, err
	}
	loadDuration, err := m.CreateHistogram("permission.cache.reload.duration", "Time spent reloading the active module list", "ms")
	if err != nil {
		return nil, err
	}
	return &PermissionMetrics{
		checks:       checks,
		cacheLoads:   cacheLoads,
		retrofits:    retrofits,
		loadDuration: loadDuration,
	}, nil
}

// Check records one authorization decision.
func (p *PermissionMetrics) Check(ctx context.Context, allowed bool, reason string) {
	if p == nil {
		return
	}
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	p.checks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("decision", decision),
		attribute.String("reason", reason),
	))
}

// CacheReload records one reload of the active module list.
func (p *PermissionMetrics) CacheReload(ctx context.Context, ok bool, durationMs float64) {
	if p == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "error"
	}
	p.cacheLoads.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	p.loadDuration.Record(ctx, durationMs, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Retrofit records the outcome of processing one user during a retrofit.
func (p *PermissionMetrics) Retrofit(ctx context.Context, outcome string) {
	if p == nil {
		return
	}
	p.retrofits.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
