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

package claim_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chunkah/chunkah/pkg/claim"
	"github.com/chunkah/chunkah/pkg/pathmap"
)

type stubSource struct {
	name     string
	priority int
}

func (s stubSource) Name() string     { return s.name }
func (s stubSource) Priority() int    { return s.priority }
func (s stubSource) Claim(string, *pathmap.Entry) (pathmap.ComponentId, bool) {
	return "", false
}

func TestRegistryOrdersByPriority(t *testing.T) {
	claim.Reset()
	t.Cleanup(claim.Reset)

	claim.Register(stubSource{name: "b", priority: 20})
	claim.Register(stubSource{name: "a", priority: 10})
	claim.Register(stubSource{name: "c", priority: 10})

	sources := claim.Sources()
	require.Len(t, sources, 3)
	require.Equal(t, "a", sources[0].Name())
	require.Equal(t, "c", sources[1].Name())
	require.Equal(t, "b", sources[2].Name())
}
