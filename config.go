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

// Package chunkah packs a scanned rootfs into an OCI Image Layout archive,
// grouping files into layers by package/content affinity rather than by a
// single flat filesystem diff. Config models the recognized-options table;
// Run drives the scan -> claim -> pack -> build pipeline; Plan runs the same
// pipeline without writing any blobs, for dry-run introspection.
package chunkah

import (
	"fmt"
	"time"

	"github.com/chunkah/chunkah/oci/builder/blobcompress"
	"github.com/chunkah/chunkah/pkg/pack"
)

// Config is the single plain-struct-of-options the pipeline consumes,
// mirroring the recognized-options table and the teacher's own
// options-struct idiom (MapOptions/RepackOptions in oci/layer/utils.go).
type Config struct {
	// Rootfs is the directory tree to pack. Required.
	Rootfs string

	// ConfigPath, if set, is a file containing either an OCI image-config
	// document or a docker/podman "inspect" array. Mutually exclusive with
	// ConfigStr.
	ConfigPath string

	// ConfigStr is an inline image-config document, for callers that would
	// rather not write one to disk. Mutually exclusive with ConfigPath.
	ConfigStr string

	// MaxLayers caps the number of emitted layers (1..pack.HardMaxLayers).
	// Zero means "use the default" (pack.DefaultMaxLayers); any other value
	// below 1 is a configuration error.
	MaxLayers int

	// SkipSpecialFiles drops fifos/sockets during tar emission.
	SkipSpecialFiles bool

	// Prune excludes paths (or, with a trailing '/', only their contents)
	// from the scan.
	Prune []string

	// Annotations are added to the image manifest.
	Annotations map[string]string

	// Labels are merged into the image config's Config.Labels.
	Labels map[string]string

	// Compression selects the layer compression algorithm: "gzip" (default)
	// or "zstd".
	Compression string

	// Epoch normalizes every entry's mtime and the image config's "created"
	// field to this instant. The zero value means "use the default", which
	// per SOURCE_DATE_EPOCH convention is the Unix epoch, not Go's zero
	// time.Time; see resolvedEpoch.
	Epoch time.Time

	// BigFileThreshold overrides bigfiles.DefaultThreshold. Zero means use
	// the default.
	BigFileThreshold int64

	// ScanWorkers bounds the scanner's content-hashing worker pool. Zero
	// means runtime.NumCPU().
	ScanWorkers int

	// BuildWorkers bounds how many layers the builder emits concurrently.
	// Zero means one worker per layer.
	BuildWorkers int
}

// resolvedMaxLayers applies the "0 means default" rule described on
// Config.MaxLayers. An explicit non-zero value is passed through unchanged
// so pack.Pack can apply its own "< 1 is an error" validation: only the
// omitted-value case is this package's responsibility to default.
func (c Config) resolvedMaxLayers() int {
	if c.MaxLayers == 0 {
		return pack.DefaultMaxLayers
	}
	return c.MaxLayers
}

// resolvedEpoch applies the SOURCE_DATE_EPOCH convention described on
// Config.Epoch: a caller who never sets it gets the Unix epoch
// (1970-01-01T00:00:00Z), not Go's zero time.Time, so mtimes/created always
// normalize to a well-defined instant rather than year 1.
func (c Config) resolvedEpoch() time.Time {
	if c.Epoch.IsZero() {
		return time.Unix(0, 0).UTC()
	}
	return c.Epoch
}

// compressionAlgorithm resolves Config.Compression to a blobcompress.Algorithm,
// defaulting to blobcompress.Default (gzip) when unset.
func (c Config) compressionAlgorithm() (blobcompress.Algorithm, error) {
	if c.Compression == "" {
		return blobcompress.Default, nil
	}
	algo := blobcompress.GetAlgorithm(c.Compression)
	if algo == nil {
		return nil, fmt.Errorf("unknown compression algorithm %q", c.Compression)
	}
	return algo, nil
}

// validate checks the parts of Config that must be rejected before any work
// begins, per spec's "config parse errors: fatal before any work begins".
func (c Config) validate() error {
	if c.Rootfs == "" {
		return fmt.Errorf("rootfs is required")
	}
	if c.ConfigPath != "" && c.ConfigStr != "" {
		return fmt.Errorf("config and config-str are mutually exclusive")
	}
	if c.MaxLayers < 0 {
		return fmt.Errorf("max-layers must be >= 0, got %d", c.MaxLayers)
	}
	if _, err := c.compressionAlgorithm(); err != nil {
		return err
	}
	return nil
}
