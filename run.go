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
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	ispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/chunkah/chunkah/oci/builder"
	"github.com/chunkah/chunkah/oci/cas"
	"github.com/chunkah/chunkah/oci/config"
	"github.com/chunkah/chunkah/pkg/component"
	"github.com/chunkah/chunkah/pkg/pack"
)

// Run drives the full scan -> claim -> pack -> build pipeline and writes the
// resulting OCI Image Layout as a tar stream to out. On any fatal error, the
// scratch layout directory is removed before Run returns, so no partial
// archive bytes ever reach out: per spec's "no archive is produced on any
// fatal error".
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	image, annotations, err := loadImageConfig(cfg)
	if err != nil {
		return fmt.Errorf("loading image config: %w", err)
	}
	annotations = mergeLabelsAndAnnotations(&image, annotations, cfg)

	pm, err := scanRootfs(ctx, cfg)
	if err != nil {
		return err
	}

	sources, err := buildClaimSources(cfg)
	if err != nil {
		return err
	}
	cm := component.Resolve(pm, sources)

	plan, err := pack.Pack(cm, pack.Options{MaxLayers: cfg.resolvedMaxLayers()})
	if err != nil {
		return fmt.Errorf("packing: %w", err)
	}

	compression, err := cfg.compressionAlgorithm()
	if err != nil {
		return fmt.Errorf("resolving compression: %w", err)
	}

	scratch, err := os.MkdirTemp("", "chunkah-layout-")
	if err != nil {
		return fmt.Errorf("creating scratch directory: %w", err)
	}
	defer os.RemoveAll(scratch)

	layoutDir := filepath.Join(scratch, "image")
	engine, err := cas.Create(layoutDir)
	if err != nil {
		return fmt.Errorf("creating image layout: %w", err)
	}
	defer engine.Close()

	b := builder.New(engine, builder.Options{
		Rootfs:              cfg.Rootfs,
		Epoch:               cfg.resolvedEpoch(),
		SkipSpecialFiles:    cfg.SkipSpecialFiles,
		Compression:         compression,
		Workers:             cfg.BuildWorkers,
		ManifestAnnotations: annotations,
	})

	if _, err := b.Build(ctx, pm, cm, plan, image); err != nil {
		return fmt.Errorf("building image: %w", err)
	}

	// Closing the engine removes its scratch directory from layoutDir, so
	// only the image layout itself is archived.
	if err := engine.Close(); err != nil {
		return fmt.Errorf("closing image layout: %w", err)
	}

	if err := archiveLayout(layoutDir, out); err != nil {
		return fmt.Errorf("archiving image layout: %w", err)
	}

	return nil
}

// loadImageConfig resolves Config's image-config source (file, inline
// string, or neither) via oci/config.Load, returning a zero-value
// ispec.Image with no annotations when the caller supplied nothing: an
// image config is not mandatory input, per spec's config/config-str being
// one optional recognized option among several.
func loadImageConfig(cfg Config) (ispec.Image, map[string]string, error) {
	var raw []byte
	switch {
	case cfg.ConfigPath != "":
		data, err := os.ReadFile(cfg.ConfigPath)
		if err != nil {
			return ispec.Image{}, nil, fmt.Errorf("reading config file: %w", err)
		}
		raw = data
	case cfg.ConfigStr != "":
		raw = []byte(cfg.ConfigStr)
	default:
		return ispec.Image{}, nil, nil
	}
	return config.Load(raw)
}

// mergeLabelsAndAnnotations applies cfg's "label K=V" and "annotation K=V"
// options on top of whatever the loaded image config/docker-inspect
// annotations already carried, with cfg's values taking precedence since
// they are the more specific, command-line-level override.
func mergeLabelsAndAnnotations(image *ispec.Image, annotations map[string]string, cfg Config) map[string]string {
	if len(cfg.Labels) > 0 {
		if image.Config.Labels == nil {
			image.Config.Labels = map[string]string{}
		}
		for k, v := range cfg.Labels {
			image.Config.Labels[k] = v
		}
	}
	if len(cfg.Annotations) > 0 {
		if annotations == nil {
			annotations = map[string]string{}
		}
		for k, v := range cfg.Annotations {
			annotations[k] = v
		}
	}
	return annotations
}
