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

// Package bigfiles claims individually large regular files into their own
// component, so a single oversized file can float into a standalone layer
// rather than inflating whatever component would otherwise have claimed it.
package bigfiles

import (
	"path/filepath"
	"strings"

	"github.com/chunkah/chunkah/pkg/pathmap"
)

// Priority is bigfiles' fixed priority: it is the last-resort source,
// consulted after rpm and xattr.
const Priority = 30

// DefaultThreshold is the size (in bytes) above which a regular file is
// claimed by this source when no threshold is configured explicitly.
const DefaultThreshold = 1 << 20 // 1 MiB

// Source implements pathmap.ClaimSource for oversized regular files.
type Source struct {
	threshold int64
}

// New returns a bigfiles Source that claims regular files whose size (in
// bytes) exceeds threshold. A non-positive threshold falls back to
// DefaultThreshold.
func New(threshold int64) *Source {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Source{threshold: threshold}
}

// Name implements pathmap.ClaimSource.
func (s *Source) Name() string { return "bigfiles" }

// Priority implements pathmap.ClaimSource.
func (s *Source) Priority() int { return Priority }

// Claim implements pathmap.ClaimSource.
func (s *Source) Claim(path string, entry *pathmap.Entry) (pathmap.ComponentId, bool) {
	if entry.Kind != pathmap.Regular && entry.Kind != pathmap.HardlinkMember {
		return "", false
	}
	if entry.Size <= s.threshold {
		return "", false
	}
	return pathmap.ComponentId("bigfiles/" + sanitizeBasename(path)), true
}

// whPrefix mirrors the tar writer's whiteout-prefix safety check: a
// component id built from a path's basename must not collide with it.
const whPrefix = ".wh."

// sanitizeBasename derives a component-id-safe name from path's basename:
// strips any leading whiteout-like prefix and replaces '/' (which cannot
// appear in a basename but could in a crafted xattr-derived path) so the
// resulting id never contains a second "/" beyond the "bigfiles/" one.
func sanitizeBasename(path string) string {
	base := filepath.Base(path)
	base = strings.TrimPrefix(base, whPrefix)
	base = strings.ReplaceAll(base, "/", "_")
	if base == "" || base == "." {
		base = "unnamed"
	}
	return base
}
