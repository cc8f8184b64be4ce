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

package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPurpose: Validates that sensitive keys are correctly identified as secrets to prevent them from being logged in plaintext.
// Scope: Unit Test
// Security: Data Masking and Leakage Prevention (CWE-532)
// Expected: Returns true for keys containing 'password', 'token', 'secret', etc., and false for non-sensitive keys.
// Test Case ID: AUD-01
func TestAudit_IsSecret(t *testing.T) {
	tests := []struct {
		key      string
		isSecret bool
	}{
		{"password", true},
		{"Password", true},
		{"PASSWORD", true},
		{"token", true},
		{"access_token", true},
		{"secret", true},
		{"api_key", true},
		{"hash", true},
		{"password_hash", true},
		{"credential", true},
		{"user_id", false},
		{"module", false},
		{"role", false},
		{"email", false},
		{"granted", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := isSecret(tt.key); got != tt.isSecret {
				t.Errorf("isSecret(%q) = %v, want %v", tt.key, got, tt.isSecret)
			}
		})
	}
}

// TestPurpose: Validates that audit events are emitted as structured records with secrets redacted.
// Scope: Unit Test
// Security: Audit trail integrity
// Expected: The record carries audit_type, resource and metadata; secret metadata is replaced by [REDACTED].
// Test Case ID: AUD-02
func TestAudit_SlogLogger_Log(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlogLoggerWith(slog.New(slog.NewJSONHandler(&buf, nil)))

	l.Log(context.Background(), Event{
		Type:     TypeModuleRegistered,
		ActorID:  "user-1",
		Resource: "articles",
		Metadata: map[string]any{"role": "editor", "token": "abc"},
	})

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "AUDIT_EVENT", record["msg"])
	assert.Equal(t, TypeModuleRegistered, record["audit_type"])
	assert.Equal(t, "articles", record["resource"])
	assert.Equal(t, "audit", record["component"])

	meta, ok := record["metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "editor", meta["role"])
	assert.Equal(t, "[REDACTED]", meta["token"])
}
