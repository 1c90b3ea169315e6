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

package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chunkah/chunkah/oci/config"
)

func TestLoadOCIImageConfig(t *testing.T) {
	raw := []byte(`{"architecture":"amd64","os":"linux","config":{"Cmd":["/bin/sh"]}}`)
	img, annotations, err := config.Load(raw)
	require.NoError(t, err)
	require.Equal(t, "amd64", img.Architecture)
	require.Equal(t, []string{"/bin/sh"}, img.Config.Cmd)
	require.Nil(t, annotations)
}

func TestLoadDockerInspectArray(t *testing.T) {
	raw := []byte(`[{"Config":{"Entrypoint":["/entry"],"Cmd":["-f"],"Env":["A=B"],"WorkingDir":"/app","Labels":{"l":"v"}},"Annotations":{"a":"b"}}]`)
	img, annotations, err := config.Load(raw)
	require.NoError(t, err)
	require.Equal(t, []string{"/entry"}, img.Config.Entrypoint)
	require.Equal(t, []string{"-f"}, img.Config.Cmd)
	require.Equal(t, "/app", img.Config.WorkingDir)
	require.Equal(t, map[string]string{"l": "v"}, img.Config.Labels)
	require.Equal(t, map[string]string{"a": "b"}, annotations)
}

func TestLoadDockerInspectEmptyArray(t *testing.T) {
	_, _, err := config.Load([]byte(`[]`))
	require.Error(t, err)
}

func TestLoadIgnoresLeadingWhitespace(t *testing.T) {
	raw := []byte("  \n [{\"Config\":{}}]")
	_, _, err := config.Load(raw)
	require.NoError(t, err)
}
