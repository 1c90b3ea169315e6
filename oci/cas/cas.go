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

// Package cas implements a minimal, write-only content-addressable blob
// store matching the OCI Image Layout ("blobs/sha256/<hex>" plus
// "oci-layout" and "index.json"). Unlike a general-purpose OCI CAS engine,
// this store has no notion of named references: chunkah ever writes exactly
// one image per invocation, identified by the index it produces.
package cas

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	digest "github.com/opencontainers/go-digest"
	ispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// BlobAlgorithm is the digest algorithm used for every blob chunkah writes.
const BlobAlgorithm = digest.SHA256

// ImageLayoutVersion is the value written into the "oci-layout" file.
const ImageLayoutVersion = "1.0.0"

// layoutFile and blobDirectory are the fixed filenames of the OCI Image
// Layout, as required by the OCI image-spec.
const (
	layoutFile    = "oci-layout"
	blobDirectory = "blobs"
	indexFile     = "index.json"
)

// Errors exposed by the blob store.
var (
	// ErrInvalid identifies an invalid image layout. The write-only engine
	// in this package never returns it.
	ErrInvalid = fmt.Errorf("invalid image layout detected")
)

// Engine is a write-only accessor for an OCI image layout being built on
// disk. PutBlob may be called concurrently: each call writes its own
// uniquely named temporary file in the engine's scratch directory and
// renames it into place.
type Engine interface {
	// PutBlob writes reader's contents as a new content-addressed blob and
	// returns its digest and size. Idempotent: writing the same bytes twice
	// returns the same digest without error.
	PutBlob(ctx context.Context, reader io.Reader) (digest.Digest, int64, error)

	// PutBlobJSON is PutBlob for a JSON-marshalled value.
	PutBlobJSON(ctx context.Context, data interface{}) (digest.Digest, int64, error)

	// PutIndex writes the top-level index.json for the image layout.
	PutIndex(ctx context.Context, index ispec.Index) error

	// Close releases any resources (temp directories) held by the engine.
	Close() error
}

// Create creates a new, empty OCI image layout at path (which must not
// already exist) and returns an Engine for writing blobs into it.
func Create(path string) (Engine, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating image layout parent: %w", err)
	}
	if err := os.Mkdir(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating image layout: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(path, blobDirectory, string(BlobAlgorithm)), 0o755); err != nil {
		return nil, fmt.Errorf("creating blob directory: %w", err)
	}

	fh, err := os.Create(filepath.Join(path, layoutFile))
	if err != nil {
		return nil, fmt.Errorf("creating oci-layout: %w", err)
	}
	defer fh.Close()
	if err := writeJSON(fh, ispec.ImageLayout{Version: ImageLayoutVersion}); err != nil {
		return nil, fmt.Errorf("writing oci-layout: %w", err)
	}

	return newDirEngine(path)
}

// blobPath returns the path (relative to the image layout root) of the blob
// identified by dgst.
func blobPath(dgst digest.Digest) (string, error) {
	if err := dgst.Validate(); err != nil {
		return "", fmt.Errorf("invalid digest %q: %w", dgst, err)
	}
	algo := dgst.Algorithm()
	if algo != BlobAlgorithm {
		return "", fmt.Errorf("unsupported digest algorithm: %q", algo)
	}
	return filepath.Join(blobDirectory, algo.String(), dgst.Encoded()), nil
}
