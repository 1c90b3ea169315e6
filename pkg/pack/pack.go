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

// Package pack clusters a ComponentMap into a bounded LayerPlan using
// greedy, size-balanced (Longest-Processing-Time) bin packing.
package pack

import (
	"fmt"
	"sort"

	"github.com/apex/log"
	"github.com/docker/go-units"

	"github.com/chunkah/chunkah/pkg/pathmap"
)

// HardMaxLayers is the hard cap on max-layers, independent of configuration,
// chosen to stay within OCI practical layer-count limits with room for a
// few reserved slots.
const HardMaxLayers = 448

// DefaultMaxLayers is the max-layers value callers resolve an omitted
// setting to before calling Pack; Pack itself rejects a zero MaxLayers.
const DefaultMaxLayers = 64

// UnclaimedSoftLimit is the soft size bound on the reserved unclaimed
// layer; exceeding it only produces a warning, it is never split.
const UnclaimedSoftLimit = 100 * 1024 * 1024 // 100 MiB

// Options configures the packer. Callers are responsible for resolving a
// user-omitted max-layers to DefaultMaxLayers before calling Pack: an
// explicit zero here is a configuration error, not a request for the
// default, matching spec's "max_layers = 0 is rejected" requirement.
type Options struct {
	// MaxLayers is the hard cap on emitted layers. Values above
	// HardMaxLayers are silently clamped down; values below 1 are
	// rejected.
	MaxLayers int
}

// Pack maps cm into a LayerPlan bounded by opt.MaxLayers.
func Pack(cm *pathmap.ComponentMap, opt Options) (*pathmap.LayerPlan, error) {
	maxLayers := opt.MaxLayers
	if maxLayers < 1 {
		return nil, fmt.Errorf("packing: max-layers must be >= 1, got %d", maxLayers)
	}
	if maxLayers > HardMaxLayers {
		maxLayers = HardMaxLayers
	}

	ids := cm.IDs()
	if len(ids) == 0 {
		return &pathmap.LayerPlan{}, nil
	}

	if maxLayers == 1 {
		// Collapses everything, including the reserved unclaimed
		// component, into a single layer.
		all := make([]pathmap.Layer, 1)
		all[0].ComponentIDs = append([]pathmap.ComponentId{}, ids...)
		return &pathmap.LayerPlan{Layers: all}, nil
	}

	reserved := 0
	var unclaimed *pathmap.Component
	var rest []*pathmap.Component
	for _, id := range ids {
		c := cm.Get(id)
		if id == pathmap.Unclaimed {
			unclaimed = c
			continue
		}
		rest = append(rest, c)
	}
	if unclaimed != nil {
		reserved = 1
		if unclaimed.ByteSize > UnclaimedSoftLimit {
			log.Warnf("pack: unclaimed layer size %s exceeds soft limit %s, not splitting",
				units.HumanSize(float64(unclaimed.ByteSize)), units.HumanSize(float64(UnclaimedSoftLimit)))
		}
	}

	// Descending byte_size order, with a deterministic tie-break on id so
	// packing is reproducible across runs with equivalent input.
	sort.Slice(rest, func(i, j int) bool {
		if rest[i].ByteSize != rest[j].ByteSize {
			return rest[i].ByteSize > rest[j].ByteSize
		}
		return rest[i].ID < rest[j].ID
	})

	available := maxLayers - reserved
	var layers []pathmap.Layer

	if len(rest) <= available {
		// Every component gets its own layer.
		for _, c := range rest {
			layers = append(layers, pathmap.Layer{ComponentIDs: []pathmap.ComponentId{c.ID}})
		}
	} else {
		layers = lptPack(rest, available)
	}

	// Order layers by their primary (largest) component's id for a stable
	// manifest across runs with equivalent input.
	sort.Slice(layers, func(i, j int) bool {
		return primaryID(layers[i]) < primaryID(layers[j])
	})

	if unclaimed != nil {
		layers = append(layers, pathmap.Layer{ComponentIDs: []pathmap.ComponentId{unclaimed.ID}})
	}

	return &pathmap.LayerPlan{Layers: layers}, nil
}

// lptPack implements Longest-Processing-Time bin packing: components are
// already sorted by descending size; each is placed into the currently
// smallest bin (ties broken by lowest bin index).
func lptPack(components []*pathmap.Component, bins int) []pathmap.Layer {
	sizes := make([]int64, bins)
	layers := make([]pathmap.Layer, bins)

	for _, c := range components {
		idx := smallestBin(sizes)
		sizes[idx] += c.ByteSize
		layers[idx].ComponentIDs = append(layers[idx].ComponentIDs, c.ID)
	}

	out := layers[:0]
	for _, l := range layers {
		if len(l.ComponentIDs) > 0 {
			out = append(out, l)
		}
	}
	return out
}

func smallestBin(sizes []int64) int {
	best := 0
	for i, s := range sizes {
		if s < sizes[best] {
			best = i
		}
	}
	return best
}

// primaryID returns the id of the layer's largest-contribution component by
// id ordering; since every layer's ComponentIDs are appended in
// descending-size order by lptPack/the one-per-layer branch, the first
// entry is always the primary one.
func primaryID(l pathmap.Layer) pathmap.ComponentId {
	if len(l.ComponentIDs) == 0 {
		return ""
	}
	return l.ComponentIDs[0]
}
