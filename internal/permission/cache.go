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
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultCacheTTL is how long the active module list is served before reloading.
const DefaultCacheTTL = 5 * time.Minute

// ModuleLoader loads the current active module list.
type ModuleLoader func(ctx context.Context) ([]Module, error)

// ModuleCache is the process-wide, time-bounded cache of active modules.
//
// The cached slice is never handed out; readers get deep copies. An
// invalidation bumps the generation so that a load started before it cannot
// repopulate the cache with stale data.
type ModuleCache struct {
	mu         sync.RWMutex
	modules    []Module
	expiresAt  time.Time
	generation uint64

	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group
}

// NewModuleCache creates a cache with the given time-to-live.
func NewModuleCache(ttl time.Duration) *ModuleCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &ModuleCache{ttl: ttl, now: time.Now}
}

// Get returns the cached list when unexpired, otherwise reloads it with load.
// The second return value reports whether the list came from the cache.
func (c *ModuleCache) Get(ctx context.Context, load ModuleLoader) ([]Module, bool, error) {
	c.mu.RLock()
	if c.modules != nil && c.now().Before(c.expiresAt) {
		out := cloneModules(c.modules)
		c.mu.RUnlock()
		return out, true, nil
	}
	gen := c.generation
	c.mu.RUnlock()

	v, err, _ := c.group.Do(strconv.FormatUint(gen, 10), func() (interface{}, error) {
		// Shared by every waiter, so one caller's cancellation must not fail the rest.
		modules, err := load(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		stored := cloneModules(modules)

		c.mu.Lock()
		if c.generation == gen {
			c.modules = stored
			c.expiresAt = c.now().Add(c.ttl)
		}
		c.mu.Unlock()
		return stored, nil
	})
	if err != nil {
		return nil, false, err
	}
	return cloneModules(v.([]Module)), false, nil
}

// Invalidate drops the cached list; the next Get reloads.
func (c *ModuleCache) Invalidate() {
	c.mu.Lock()
	c.modules = nil
	c.expiresAt = time.Time{}
	c.generation++
	c.mu.Unlock()
}

func cloneModules(in []Module) []Module {
	out := make([]Module, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}
