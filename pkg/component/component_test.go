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

package component_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chunkah/chunkah/pkg/component"
	"github.com/chunkah/chunkah/pkg/pathmap"
)

type fixedSource struct {
	name     string
	priority int
	claims   map[string]pathmap.ComponentId
}

func (f fixedSource) Name() string  { return f.name }
func (f fixedSource) Priority() int { return f.priority }
func (f fixedSource) Claim(path string, _ *pathmap.Entry) (pathmap.ComponentId, bool) {
	id, ok := f.claims[path]
	return id, ok
}

func TestResolvePriorityOrder(t *testing.T) {
	pm := pathmap.New()
	pm.Add(&pathmap.Entry{Path: "/p", Kind: pathmap.Regular, Size: 10})

	a := fixedSource{name: "a", priority: 10, claims: map[string]pathmap.ComponentId{"/p": "rpm/a"}}
	b := fixedSource{name: "b", priority: 20, claims: map[string]pathmap.ComponentId{"/p": "rpm/b"}}

	cm := component.Resolve(pm, []pathmap.ClaimSource{b, a})
	require.Equal(t, []pathmap.ComponentId{"rpm/a"}, cm.IDs())

	// Removing a shifts the claim to b.
	cm2 := component.Resolve(pm, []pathmap.ClaimSource{b})
	require.Equal(t, []pathmap.ComponentId{"rpm/b"}, cm2.IDs())
}

func TestResolveUnclaimed(t *testing.T) {
	pm := pathmap.New()
	pm.Add(&pathmap.Entry{Path: "/p", Kind: pathmap.Regular, Size: 10})

	cm := component.Resolve(pm, nil)
	require.Equal(t, []pathmap.ComponentId{pathmap.Unclaimed}, cm.IDs())
	require.EqualValues(t, 10, cm.Get(pathmap.Unclaimed).ByteSize)
}

func TestResolveSizeAccounting(t *testing.T) {
	pm := pathmap.New()
	pm.Add(&pathmap.Entry{Path: "/a", Kind: pathmap.Directory})
	pm.Add(&pathmap.Entry{Path: "/a/f1", Kind: pathmap.Regular, Size: 100})
	pm.Add(&pathmap.Entry{Path: "/a/f2", Kind: pathmap.Regular, Size: 200})

	src := fixedSource{name: "rpm", priority: 10, claims: map[string]pathmap.ComponentId{
		"/a": "rpm/pkg", "/a/f1": "rpm/pkg", "/a/f2": "rpm/pkg",
	}}
	cm := component.Resolve(pm, []pathmap.ClaimSource{src})
	require.EqualValues(t, 300, cm.Get("rpm/pkg").ByteSize)
	require.Len(t, cm.Get("rpm/pkg").Paths(), 3)
}

func TestResolveHardlinkConflictFolding(t *testing.T) {
	pm := pathmap.New()
	pm.Add(&pathmap.Entry{Path: "/a", Kind: pathmap.Regular, Size: 50, Device: 1, Inode: 7})
	pm.Add(&pathmap.Entry{Path: "/b", Kind: pathmap.HardlinkMember, Size: 50, Device: 1, Inode: 7})

	src := fixedSource{name: "conflict", priority: 10, claims: map[string]pathmap.ComponentId{
		"/a": "rpm/a", "/b": "rpm/b",
	}}
	cm := component.Resolve(pm, []pathmap.ClaimSource{src})

	// Both members must be folded into the first member's component ("/a").
	require.Equal(t, []pathmap.ComponentId{"rpm/a"}, cm.IDs())
	require.EqualValues(t, 50, cm.Get("rpm/a").ByteSize)
	require.Len(t, cm.Get("rpm/a").Paths(), 2)
}
