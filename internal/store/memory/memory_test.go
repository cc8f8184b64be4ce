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

package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/counselcms/counsel/internal/identity"
	"github.com/counselcms/counsel/internal/permission"
)

// TestPurpose: Validates that the in-memory module store enforces key uniqueness and system protection.
// Scope: Unit Test
// Security: System modules cannot be removed
// Expected: Duplicate create and system delete fail with the domain errors; reads are copies.
// Test Case ID: MEM-01
func TestModules(t *testing.T) {
	ctx := context.Background()
	r := NewModules()

	m := permission.Module{Key: "articles", IsActive: true, IsSystem: true, AvailableActions: []permission.Action{permission.ActionRead}}
	require.NoError(t, r.Create(ctx, &m))
	assert.ErrorIs(t, r.Create(ctx, &m), permission.ErrModuleAlreadyExists)
	require.NoError(t, r.Create(ctx, &permission.Module{Key: "drafts"}))

	got, err := r.GetByKey(ctx, "articles")
	require.NoError(t, err)
	got.AvailableActions[0] = permission.ActionDelete
	again, _ := r.GetByKey(ctx, "articles")
	assert.Equal(t, permission.ActionRead, again.AvailableActions[0])

	active, _ := r.ListActive(ctx)
	assert.Len(t, active, 1)
	all, _ := r.List(ctx)
	assert.Len(t, all, 2)

	assert.ErrorIs(t, r.Delete(ctx, "articles"), permission.ErrSystemModule)
	assert.ErrorIs(t, r.Delete(ctx, "missing"), permission.ErrModuleNotFound)
	require.NoError(t, r.Delete(ctx, "drafts"))
}

// TestPurpose: Validates that AppendGrant only adds a grant when the module is not yet held.
// Scope: Unit Test
// Security: Retrofit never overwrites an existing grant
// Expected: Concurrent appends for one user add exactly one entry.
// Test Case ID: MEM-02
func TestUsers_AppendGrantOnce(t *testing.T) {
	ctx := context.Background()
	r := NewUsers()
	require.NoError(t, r.Create(ctx, &identity.User{ID: "u1", Email: "a@firm.test", Role: permission.RoleEditor, IsActive: true}))
	require.NoError(t, r.Create(ctx, &identity.User{ID: "u2", Email: "b@firm.test", Role: permission.RoleEditor}))
	assert.ErrorIs(t, r.Create(ctx, &identity.User{ID: "u3", Email: "a@firm.test"}), identity.ErrUserAlreadyExists)

	var wg sync.WaitGroup
	var mu sync.Mutex
	added := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := r.AppendGrant(ctx, "u1", permission.Grant{Module: "articles", Actions: []permission.Action{permission.ActionRead}})
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				added++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, added)

	u, err := r.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, u.Permissions, 1)

	editors, _ := r.ListActiveByRole(ctx, permission.RoleEditor)
	require.Len(t, editors, 1)
	assert.Equal(t, "u1", editors[0].UserID)
}
