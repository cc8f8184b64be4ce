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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestPermissionMetrics(t *testing.T) {
	ctx := context.Background()
	m := FromMeter(noop.NewMeterProvider().Meter("test"))

	pm, err := m.NewPermissionMetrics()
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		pm.Check(ctx, true, "granted")
		pm.CacheReload(ctx, false, 1.5)
		pm.Retrofit(ctx, "skipped")
	})

	var nilMetrics *PermissionMetrics
	assert.NotPanics(t, func() {
		nilMetrics.Check(ctx, false, "no_principal")
		nilMetrics.CacheReload(ctx, true, 0)
		nilMetrics.Retrofit(ctx, "granted")
	})
}
