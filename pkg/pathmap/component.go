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

package pathmap

import (
	"sort"
	"strings"
)

// ComponentId is a slash-separated label of the form "<source>/<name>".
type ComponentId string

// Unclaimed is the reserved component id for paths no claim source claims.
const Unclaimed ComponentId = "chunkah/unclaimed"

// ClaimSource is a capability that maps paths to component ids. Lower
// Priority values win: the registry iterates sources in ascending priority
// order and takes the first non-empty claim.
type ClaimSource interface {
	// Name identifies the source for logging, e.g. "rpm", "xattr", "bigfiles".
	Name() string

	// Priority orders sources; lower values are consulted first.
	Priority() int

	// Claim returns the component id this source assigns to path, and
	// whether it claims the path at all.
	Claim(path string, entry *Entry) (ComponentId, bool)
}

// Component is the registry's per-component bookkeeping: the ordered set of
// paths claimed by it and its cumulative regular-file byte size.
type Component struct {
	ID       ComponentId
	paths    map[string]struct{}
	sorted   []string
	dirty    bool
	ByteSize int64
}

func newComponent(id ComponentId) *Component {
	return &Component{ID: id, paths: map[string]struct{}{}}
}

// AddPath records path as a member of this component. It is idempotent.
func (c *Component) AddPath(path string) {
	if _, ok := c.paths[path]; ok {
		return
	}
	c.paths[path] = struct{}{}
	c.dirty = true
}

// Paths returns the component's member paths in lexicographic order.
func (c *Component) Paths() []string {
	if c.dirty {
		c.sorted = make([]string, 0, len(c.paths))
		for p := range c.paths {
			c.sorted = append(c.sorted, p)
		}
		sort.Strings(c.sorted)
		c.dirty = false
	}
	return c.sorted
}

// Len reports how many paths belong to this component.
func (c *Component) Len() int {
	return len(c.paths)
}

// ComponentMap maps ComponentId to Component, as resolved by the registry.
type ComponentMap struct {
	components map[ComponentId]*Component
}

// NewComponentMap returns an empty ComponentMap.
func NewComponentMap() *ComponentMap {
	return &ComponentMap{components: map[ComponentId]*Component{}}
}

// GetOrCreate returns the Component for id, creating it if absent.
func (m *ComponentMap) GetOrCreate(id ComponentId) *Component {
	c, ok := m.components[id]
	if !ok {
		c = newComponent(id)
		m.components[id] = c
	}
	return c
}

// Get returns the Component for id, or nil if it does not exist.
func (m *ComponentMap) Get(id ComponentId) *Component {
	return m.components[id]
}

// IDs returns every component id in lexicographic order.
func (m *ComponentMap) IDs() []ComponentId {
	ids := make([]ComponentId, 0, len(m.components))
	for id := range m.components {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of distinct components.
func (m *ComponentMap) Len() int {
	return len(m.components)
}

// Layer is an ordered list of component ids assigned to a single output tar
// blob, along with the derived byte size and annotation.
type Layer struct {
	ComponentIDs []ComponentId
}

// ByteSize returns the sum of each member component's byte size, as looked
// up from cm.
func (l *Layer) ByteSize(cm *ComponentMap) int64 {
	var total int64
	for _, id := range l.ComponentIDs {
		if c := cm.Get(id); c != nil {
			total += c.ByteSize
		}
	}
	return total
}

// Annotation returns the comma-joined, deterministically ordered
// "org.chunkah.component" annotation value for this layer.
func (l *Layer) Annotation() string {
	ids := make([]string, len(l.ComponentIDs))
	for i, id := range l.ComponentIDs {
		ids[i] = string(id)
	}
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

// LayerPlan is the ordered list of Layers a Packer produces. Layer order in
// the plan is the order layers appear in the final image manifest.
type LayerPlan struct {
	Layers []Layer
}
