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

package pack_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chunkah/chunkah/pkg/pack"
	"github.com/chunkah/chunkah/pkg/pathmap"
)

func componentMap(sizes map[string]int64) *pathmap.ComponentMap {
	cm := pathmap.NewComponentMap()
	for id, size := range sizes {
		c := cm.GetOrCreate(pathmap.ComponentId(id))
		c.ByteSize = size
	}
	return cm
}

func layerIDs(l pathmap.Layer) []string {
	out := make([]string, len(l.ComponentIDs))
	for i, id := range l.ComponentIDs {
		out[i] = string(id)
	}
	return out
}

func TestPackRejectsZeroMaxLayers(t *testing.T) {
	cm := componentMap(map[string]int64{"rpm/a": 10})
	_, err := pack.Pack(cm, pack.Options{MaxLayers: 0})
	require.Error(t, err)
}

func TestPackEmptyComponentMap(t *testing.T) {
	cm := pathmap.NewComponentMap()
	plan, err := pack.Pack(cm, pack.Options{MaxLayers: 64})
	require.NoError(t, err)
	require.Empty(t, plan.Layers)
}

func TestPackOneLayerPerComponentWhenUnderCap(t *testing.T) {
	cm := componentMap(map[string]int64{"rpm/a": 300, "rpm/b": 100, "rpm/c": 200})
	plan, err := pack.Pack(cm, pack.Options{MaxLayers: 64})
	require.NoError(t, err)
	require.Len(t, plan.Layers, 3)
	for _, l := range plan.Layers {
		require.Len(t, l.ComponentIDs, 1)
	}
}

func TestPackMaxLayersOneCollapses(t *testing.T) {
	cm := componentMap(map[string]int64{"rpm/a": 300, "rpm/b": 100, "chunkah/unclaimed": 50})
	plan, err := pack.Pack(cm, pack.Options{MaxLayers: 1})
	require.NoError(t, err)
	require.Len(t, plan.Layers, 1)
	require.Len(t, plan.Layers[0].ComponentIDs, 3)
}

func TestPackBinPackingBalancesSize(t *testing.T) {
	cm := pathmap.NewComponentMap()
	for i := 0; i < 6; i++ {
		cm.GetOrCreate(pathmap.ComponentId(fmt.Sprintf("rpm/c%d", i))).ByteSize = int64(100 - i)
	}
	plan, err := pack.Pack(cm, pack.Options{MaxLayers: 2})
	require.NoError(t, err)
	require.Len(t, plan.Layers, 2)

	var sizes []int64
	for _, l := range plan.Layers {
		var total int64
		for _, id := range l.ComponentIDs {
			total += cm.Get(id).ByteSize
		}
		sizes = append(sizes, total)
	}
	diff := sizes[0] - sizes[1]
	if diff < 0 {
		diff = -diff
	}
	require.LessOrEqual(t, diff, int64(100))
}

func TestPackUnclaimedReservedLast(t *testing.T) {
	cm := componentMap(map[string]int64{"rpm/a": 300, "chunkah/unclaimed": 10})
	plan, err := pack.Pack(cm, pack.Options{MaxLayers: 64})
	require.NoError(t, err)
	require.Len(t, plan.Layers, 2)
	last := plan.Layers[len(plan.Layers)-1]
	require.Equal(t, []string{"chunkah/unclaimed"}, layerIDs(last))
}

func TestPackMonotonicityLargestLayerNeverGrowsWithMoreLayers(t *testing.T) {
	cm := pathmap.NewComponentMap()
	for i := 0; i < 20; i++ {
		cm.GetOrCreate(pathmap.ComponentId(fmt.Sprintf("rpm/c%02d", i))).ByteSize = int64(20 - i)
	}

	largest := func(plan *pathmap.LayerPlan) int64 {
		var max int64
		for _, l := range plan.Layers {
			var total int64
			for _, id := range l.ComponentIDs {
				total += cm.Get(id).ByteSize
			}
			if total > max {
				max = total
			}
		}
		return max
	}

	planFew, err := pack.Pack(cm, pack.Options{MaxLayers: 4})
	require.NoError(t, err)
	planMore, err := pack.Pack(cm, pack.Options{MaxLayers: 10})
	require.NoError(t, err)

	require.LessOrEqual(t, largest(planMore), largest(planFew))
}
