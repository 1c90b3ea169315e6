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

// Package component resolves claim-source output into a single
// pathmap.ComponentMap: for each path, the first (by ascending priority)
// claiming source wins; everything else falls into pathmap.Unclaimed.
package component

import (
	"github.com/apex/log"

	"github.com/chunkah/chunkah/pkg/pathmap"
)

// Resolve folds claims from sources (already priority-ordered, e.g. by
// claim.Sources()) into a ComponentMap. Hardlink groups whose members would
// otherwise land in different components are folded into the first
// member's component, with a warning, per spec's required conflict policy.
func Resolve(pm *pathmap.PathMap, sources []pathmap.ClaimSource) *pathmap.ComponentMap {
	cm := pathmap.NewComponentMap()

	// assignment records the component each path was assigned to, before
	// hardlink-conflict folding.
	assignment := make(map[string]pathmap.ComponentId, pm.Len())

	for _, path := range pm.Paths() {
		entry := pm.Get(path)
		assignment[path] = resolveOne(path, entry, sources)
	}

	// Hardlink-conflict folding: every member of a hardlink group must
	// belong to the same component (the first member's, in lexicographic
	// order), since a regular file's content is only emitted once.
	firstComponent := map[string]pathmap.ComponentId{}
	firstPath := map[string]string{}
	for _, path := range pm.Paths() {
		entry := pm.Get(path)
		gid, ok := entry.HardlinkGroupID()
		if !ok {
			continue
		}
		if _, seen := firstComponent[gid]; !seen {
			firstComponent[gid] = assignment[path]
			firstPath[gid] = path
			continue
		}
		want := firstComponent[gid]
		if assignment[path] != want {
			log.Warnf("component: folding hardlink member %q (claimed by %q) into %q to match first member %q",
				path, assignment[path], want, firstPath[gid])
			assignment[path] = want
		}
	}

	for _, path := range pm.Paths() {
		entry := pm.Get(path)
		id := assignment[path]
		c := cm.GetOrCreate(id)
		c.AddPath(path)

		switch entry.Kind {
		case pathmap.Regular, pathmap.HardlinkMember:
			gid, ok := entry.HardlinkGroupID()
			if !ok || firstPath[gid] == path {
				c.ByteSize += entry.Size
			}
			// Non-first members contribute zero: the content is only
			// written once, attributed to the first member.
		}
	}

	return cm
}

// resolveOne applies the priority-resolution algorithm for a single path:
// iterate sources in ascending-priority order, return the first non-empty
// claim, or pathmap.Unclaimed if none claims it.
func resolveOne(path string, entry *pathmap.Entry, sources []pathmap.ClaimSource) pathmap.ComponentId {
	for _, src := range sources {
		if id, ok := src.Claim(path, entry); ok && id != "" {
			return id
		}
	}
	return pathmap.Unclaimed
}
