// SPDX-License-Identifier: Apache-2.0
/*
 * chunkah: content-affinity OCI layer packer
 * Copyright (C) 2026 chunkah contributors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package claim holds the process-wide ClaimSource registry. Concrete
// sources (rpmsource, xattrsource, bigfiles) register themselves; the
// resolution algorithm in pkg/component iterates the registry in priority
// order.
package claim

import (
	"sort"
	"sync"

	"github.com/chunkah/chunkah/pkg/pathmap"
)

var (
	registryLock sync.RWMutex
	registry     []pathmap.ClaimSource
)

// Register adds source to the process-wide registry. Sources registered at
// the same Priority() are consulted in registration order (first registered
// wins ties), per the Open Question resolution recorded in DESIGN.md.
func Register(source pathmap.ClaimSource) {
	registryLock.Lock()
	defer registryLock.Unlock()
	registry = append(registry, source)
}

// Sources returns every registered source, ordered by ascending priority
// (lower values first); ties preserve registration order via a stable sort.
func Sources() []pathmap.ClaimSource {
	registryLock.RLock()
	defer registryLock.RUnlock()

	out := make([]pathmap.ClaimSource, len(registry))
	copy(out, registry)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority() < out[j].Priority()
	})
	return out
}

// Reset clears the registry. Exposed for tests that need a clean slate
// between runs; production callers never need to call this.
func Reset() {
	registryLock.Lock()
	defer registryLock.Unlock()
	registry = nil
}
