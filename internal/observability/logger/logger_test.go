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

package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel(" WARN "))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

// TestPurpose: Validates that the JSON logger emits the permission attribute helpers and honours the level.
// Scope: Unit Test
// Security: N/A
// Expected: Info records carry module/role attributes; debug records are dropped at info level.
// Test Case ID: LOG-01
func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "info", Format: "json", ServiceName: "test", Output: &buf})

	l.DebugContext(context.Background(), "hidden")
	l.InfoContext(context.Background(), "permission denied",
		ModuleKey("articles"),
		Role("editor"),
		Action("delete"),
		Count("granted", 2),
	)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "permission denied", record["msg"])
	assert.Equal(t, "articles", record["module"])
	assert.Equal(t, "editor", record["role"])
	assert.Equal(t, "delete", record["action"])
	assert.Equal(t, float64(2), record["granted"])
}
