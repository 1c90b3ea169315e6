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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	digest "github.com/opencontainers/go-digest"
	ispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/chunkah/chunkah/internal/funchelpers"
)

// dirEngine is the directory-backed implementation of Engine. It is the only
// backend chunkah needs: the builder always writes a fresh image layout to a
// local directory (which may then be archived into a tar stream by the
// caller).
type dirEngine struct {
	path string
	temp string
}

func newDirEngine(path string) (*dirEngine, error) {
	tempDir, err := os.MkdirTemp(path, "tmp-")
	if err != nil {
		return nil, fmt.Errorf("creating scratch dir: %w", err)
	}
	return &dirEngine{path: path, temp: tempDir}, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	return json.NewEncoder(w).Encode(v)
}

// PutBlob adds a new blob to the image layout. See Engine.PutBlob.
func (e *dirEngine) PutBlob(ctx context.Context, reader io.Reader) (_ digest.Digest, _ int64, Err error) {
	fh, err := os.CreateTemp(e.temp, "blob-")
	if err != nil {
		return "", -1, fmt.Errorf("create temporary blob: %w", err)
	}
	tempPath := fh.Name()
	defer os.Remove(tempPath)
	defer funchelpers.VerifyClose(&Err, fh)

	digester := BlobAlgorithm.Digester()
	writer := io.MultiWriter(fh, digester.Hash())

	size, err := io.Copy(writer, reader)
	if err != nil {
		return "", -1, fmt.Errorf("copy to temporary blob: %w", err)
	}

	dgst := digester.Digest()
	relPath, err := blobPath(dgst)
	if err != nil {
		return "", -1, fmt.Errorf("compute blob path: %w", err)
	}
	finalPath := filepath.Join(e.path, relPath)
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return "", -1, fmt.Errorf("create blob algorithm dir: %w", err)
	}
	// A blob with this digest may already exist (two components sharing
	// identical content, or a hardlink group's shared bytes); PutBlob is
	// idempotent, so an existing file at the target path is not an error.
	if _, err := os.Stat(finalPath); err == nil {
		return dgst, size, nil
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		return "", -1, fmt.Errorf("rename temporary blob: %w", err)
	}
	return dgst, size, nil
}

// PutBlobJSON adds a JSON-marshalled blob to the image layout.
func (e *dirEngine) PutBlobJSON(ctx context.Context, data interface{}) (digest.Digest, int64, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", -1, fmt.Errorf("encode json blob: %w", err)
	}
	return e.PutBlob(ctx, bytes.NewReader(raw))
}

// PutIndex writes the top-level index.json, replacing any previous one
// atomically.
func (e *dirEngine) PutIndex(ctx context.Context, index ispec.Index) (Err error) {
	fh, err := os.CreateTemp(e.temp, "index-")
	if err != nil {
		return fmt.Errorf("create temporary index: %w", err)
	}
	tempPath := fh.Name()
	defer funchelpers.VerifyClose(&Err, fh)

	if err := writeJSON(fh, index); err != nil {
		return fmt.Errorf("encode index: %w", err)
	}

	finalPath := filepath.Join(e.path, indexFile)
	if err := os.Rename(tempPath, finalPath); err != nil {
		return fmt.Errorf("rename temporary index: %w", err)
	}
	return nil
}

// Close removes the scratch directory used for atomic blob writes.
func (e *dirEngine) Close() error {
	return os.RemoveAll(e.temp)
}
