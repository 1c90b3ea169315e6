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

// Package xattrsource claims any path whose "user.component" xattr is set,
// emitting "xattr/<value>". It runs at the highest priority so that
// explicit user intent always overrides package-derived claims.
package xattrsource

import (
	"github.com/chunkah/chunkah/pkg/pathmap"
)

// Priority is xattrsource's fixed priority: lower than every other bundled
// source, so user annotations always win.
const Priority = 10

// xattrName is the extended attribute this source consults.
const xattrName = "user.component"

// Source implements pathmap.ClaimSource for the user.component xattr.
type Source struct{}

// New returns an xattrsource Source. It has no state to initialize.
func New() *Source { return &Source{} }

// Name implements pathmap.ClaimSource.
func (s *Source) Name() string { return "xattr" }

// Priority implements pathmap.ClaimSource.
func (s *Source) Priority() int { return Priority }

// Claim implements pathmap.ClaimSource.
func (s *Source) Claim(_ string, entry *pathmap.Entry) (pathmap.ComponentId, bool) {
	value, ok := entry.Xattrs[xattrName]
	if !ok || len(value) == 0 {
		return "", false
	}
	return pathmap.ComponentId("xattr/" + string(value)), true
}
