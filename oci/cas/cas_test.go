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

package cas

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	ispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/require"
)

func TestCreateAndPutBlob(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	image := filepath.Join(root, "image")
	engine, err := Create(image)
	require.NoError(t, err)
	defer engine.Close()

	_, err = os.Stat(filepath.Join(image, layoutFile))
	require.NoError(t, err, "oci-layout should exist after Create")

	data := []byte("meshuggah rocks")
	dgst, size, err := engine.PutBlob(ctx, bytes.NewReader(data))
	require.NoError(t, err)
	require.EqualValues(t, len(data), size)

	path, err := blobPath(dgst)
	require.NoError(t, err)
	got, err := os.ReadFile(filepath.Join(image, path))
	require.NoError(t, err)
	require.Equal(t, data, got)

	// Writing the same content again must be idempotent.
	dgst2, size2, err := engine.PutBlob(ctx, bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, dgst, dgst2)
	require.Equal(t, size, size2)
}

func TestPutBlobJSON(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	image := filepath.Join(root, "image")
	engine, err := Create(image)
	require.NoError(t, err)
	defer engine.Close()

	desc := ispec.Descriptor{MediaType: ispec.MediaTypeImageConfig, Size: 1}
	dgst, _, err := engine.PutBlobJSON(ctx, desc)
	require.NoError(t, err)
	require.NotEmpty(t, dgst)
}

func TestPutIndex(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	image := filepath.Join(root, "image")
	engine, err := Create(image)
	require.NoError(t, err)
	defer engine.Close()

	index := ispec.Index{
		Versioned: ispec.Index{}.Versioned,
		Manifests: []ispec.Descriptor{{MediaType: ispec.MediaTypeImageManifest}},
	}
	require.NoError(t, engine.PutIndex(ctx, index))

	_, err = os.Stat(filepath.Join(image, indexFile))
	require.NoError(t, err)
}

func TestBlobPathRejectsBadDigest(t *testing.T) {
	_, err := blobPath("not-a-digest")
	require.Error(t, err)
}
