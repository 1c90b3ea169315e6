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

package chunkah

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chunkah/chunkah/oci/cas"
)

func TestArchiveLayoutIncludesFixedEntries(t *testing.T) {
	layoutDir := filepath.Join(t.TempDir(), "image")
	engine, err := cas.Create(layoutDir)
	require.NoError(t, err)
	require.NoError(t, engine.Close())

	var buf bytes.Buffer
	require.NoError(t, archiveLayout(layoutDir, &buf))

	names := map[string]bool{}
	tr := tar.NewReader(&buf)
	for {
		hdr, err := tr.Next()
		if err != nil {
			break
		}
		names[hdr.Name] = true
		require.Zero(t, hdr.Uid)
		require.Zero(t, hdr.Gid)
	}

	require.True(t, names["oci-layout"])
	require.True(t, names["index.json"])
	require.True(t, names["blobs/"])
}

func TestArchiveLayoutRejectsMissingDirectory(t *testing.T) {
	var buf bytes.Buffer
	err := archiveLayout(filepath.Join(t.TempDir(), "missing"), &buf)
	require.Error(t, err)
}

func TestArchiveLayoutPreservesBlobBytes(t *testing.T) {
	layoutDir := filepath.Join(t.TempDir(), "image")
	engine, err := cas.Create(layoutDir)
	require.NoError(t, err)

	dgst, _, err := engine.PutBlob(context.Background(), bytes.NewReader([]byte("content")))
	require.NoError(t, err)
	require.NoError(t, engine.Close())

	var buf bytes.Buffer
	require.NoError(t, archiveLayout(layoutDir, &buf))

	tr := tar.NewReader(&buf)
	found := false
	for {
		hdr, err := tr.Next()
		if err != nil {
			break
		}
		if hdr.Name == "blobs/sha256/"+dgst.Encoded() {
			found = true
			data, err := io.ReadAll(tr)
			require.NoError(t, err)
			require.Equal(t, "content", string(data))
		}
	}
	require.True(t, found)
}
