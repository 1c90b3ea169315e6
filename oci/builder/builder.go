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

// Package builder assembles a LayerPlan and a PathMap into a complete OCI
// Image Layout: one compressed blob per layer, the image config with its
// diff-id list, the manifest, and the top-level index.
package builder

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	digest "github.com/opencontainers/go-digest"
	imeta "github.com/opencontainers/image-spec/specs-go"
	ispec "github.com/opencontainers/image-spec/specs-go/v1"
	"golang.org/x/sync/errgroup"

	"github.com/chunkah/chunkah/oci/builder/blobcompress"
	"github.com/chunkah/chunkah/oci/builder/mediatype"
	"github.com/chunkah/chunkah/oci/cas"
	"github.com/chunkah/chunkah/pkg/pathmap"
	"github.com/chunkah/chunkah/pkg/tarlayer"
)

// ComponentAnnotation is the layer-descriptor annotation naming the
// comma-joined set of component ids a layer contains.
const ComponentAnnotation = "org.chunkah.component"

// UnclaimedAnnotation marks the reserved unclaimed layer so downstream
// tooling can identify it without string-matching ComponentAnnotation.
const UnclaimedAnnotation = "org.chunkah.unclaimed"

// Options configures a Builder.
type Options struct {
	// Rootfs is the scanned directory; regular file content is read from
	// here when emitting layer tars.
	Rootfs string

	// Epoch is the mtime/created timestamp every entry and the image
	// config are normalized to.
	Epoch time.Time

	// SkipSpecialFiles drops fifos/sockets during tar emission.
	SkipSpecialFiles bool

	// Compression is the layer compression algorithm (blobcompress.Gzip by
	// default).
	Compression blobcompress.Algorithm

	// Workers bounds the number of layers emitted concurrently. Zero means
	// one worker per layer (layers are independent once the plan exists).
	Workers int

	// ManifestAnnotations are added to the image manifest.
	ManifestAnnotations map[string]string
}

// Builder assembles an OCI image layout from a LayerPlan.
type Builder struct {
	engine cas.Engine
	opt    Options
}

// New returns a Builder writing into engine.
func New(engine cas.Engine, opt Options) *Builder {
	if opt.Compression == nil {
		opt.Compression = blobcompress.Default
	}
	return &Builder{engine: engine, opt: opt}
}

type layerResult struct {
	descriptor ispec.Descriptor
	diffID     digest.Digest
}

// Build emits every layer in plan, the image config (seeded from baseImage)
// and the manifest, and writes the top-level index. It returns the
// manifest descriptor.
func (b *Builder) Build(ctx context.Context, pm *pathmap.PathMap, cm *pathmap.ComponentMap, plan *pathmap.LayerPlan, baseImage ispec.Image) (ispec.Descriptor, error) {
	results := make([]layerResult, len(plan.Layers))

	workers := b.opt.Workers
	if workers <= 0 {
		workers = len(plan.Layers)
	}
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, layer := range plan.Layers {
		i, layer := i, layer
		g.Go(func() error {
			res, err := b.emitLayer(gctx, pm, cm, layer)
			if err != nil {
				return fmt.Errorf("writing layer %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ispec.Descriptor{}, err
	}

	image := baseImage
	image.Created = timePtr(b.opt.Epoch)
	image.RootFS.Type = "layers"
	image.RootFS.DiffIDs = image.RootFS.DiffIDs[:0]
	for _, r := range results {
		image.RootFS.DiffIDs = append(image.RootFS.DiffIDs, r.diffID)
	}

	configDigest, configSize, err := b.engine.PutBlobJSON(ctx, image)
	if err != nil {
		return ispec.Descriptor{}, fmt.Errorf("committing image config: %w", err)
	}

	manifest := ispec.Manifest{
		Versioned:   imeta.Versioned{SchemaVersion: 2},
		MediaType:   ispec.MediaTypeImageManifest,
		Config:      ispec.Descriptor{MediaType: ispec.MediaTypeImageConfig, Digest: configDigest, Size: configSize},
		Annotations: b.opt.ManifestAnnotations,
	}
	for _, r := range results {
		manifest.Layers = append(manifest.Layers, r.descriptor)
	}

	manifestDigest, manifestSize, err := b.engine.PutBlobJSON(ctx, manifest)
	if err != nil {
		return ispec.Descriptor{}, fmt.Errorf("committing manifest: %w", err)
	}
	manifestDesc := ispec.Descriptor{
		MediaType: ispec.MediaTypeImageManifest,
		Digest:    manifestDigest,
		Size:      manifestSize,
	}

	index := ispec.Index{
		Versioned: imeta.Versioned{SchemaVersion: 2},
		Manifests: []ispec.Descriptor{manifestDesc},
	}
	if err := b.engine.PutIndex(ctx, index); err != nil {
		return ispec.Descriptor{}, fmt.Errorf("writing index: %w", err)
	}

	return manifestDesc, nil
}

func timePtr(t time.Time) *time.Time {
	return &t
}

// emitLayer streams one layer's tar+compress output into the CAS, computing
// the diff-id (uncompressed sha256) and the compressed digest concurrently,
// mirroring mutate.go's Mutator.add.
func (b *Builder) emitLayer(ctx context.Context, pm *pathmap.PathMap, cm *pathmap.ComponentMap, layer pathmap.Layer) (layerResult, error) {
	paths := layerPaths(pm, cm, layer)

	pipeReader, pipeWriter := io.Pipe()
	diffIDHash := sha256.New()

	go func() (retErr error) {
		defer func() {
			if retErr != nil {
				_ = pipeWriter.CloseWithError(retErr)
				return
			}
			_ = pipeWriter.Close()
		}()

		tw := tarlayer.New(io.MultiWriter(pipeWriter, diffIDHash), tarlayer.Options{
			Epoch:            b.opt.Epoch,
			SkipSpecialFiles: b.opt.SkipSpecialFiles,
		})
		for _, p := range paths {
			entry := pm.Get(p)
			var content io.ReadCloser
			if (entry.Kind == pathmap.Regular || entry.Kind == pathmap.HardlinkMember) && entry.Size > 0 {
				fh, err := os.Open(filepath.Join(b.opt.Rootfs, p))
				if err != nil {
					return fmt.Errorf("opening %q: %w", p, err)
				}
				content = fh
			}
			err := tw.Add(entry, content)
			if content != nil {
				_ = content.Close()
			}
			if err != nil {
				return fmt.Errorf("adding %q to layer: %w", p, err)
			}
		}
		return tw.Close()
	}()

	compressed, err := b.opt.Compression.Compress(pipeReader)
	if err != nil {
		return layerResult{}, fmt.Errorf("starting compressor: %w", err)
	}
	defer compressed.Close()

	layerDigest, layerSize, err := b.engine.PutBlob(ctx, compressed)
	if err != nil {
		return layerResult{}, fmt.Errorf("put layer blob: %w", err)
	}

	diffID := digest.NewDigestFromBytes(digest.SHA256, diffIDHash.Sum(nil))

	baseType, _ := mediatype.SplitMediaTypeSuffix(ispec.MediaTypeImageLayerGzip)
	mediaType := baseType + "+" + b.opt.Compression.MediaTypeSuffix()

	annotations := map[string]string{ComponentAnnotation: layer.Annotation()}
	if len(layer.ComponentIDs) == 1 && layer.ComponentIDs[0] == pathmap.Unclaimed {
		annotations[UnclaimedAnnotation] = "true"
	}

	return layerResult{
		descriptor: ispec.Descriptor{
			MediaType:   mediaType,
			Digest:      layerDigest,
			Size:        layerSize,
			Annotations: annotations,
		},
		diffID: diffID,
	}, nil
}

// layerPaths computes the ordered set of paths belonging to layer: the
// union of its components' member paths, plus the closure of ancestor
// directories needed by those paths, in lexicographic order.
func layerPaths(pm *pathmap.PathMap, cm *pathmap.ComponentMap, layer pathmap.Layer) []string {
	set := map[string]struct{}{}
	for _, id := range layer.ComponentIDs {
		c := cm.Get(id)
		if c == nil {
			continue
		}
		for _, p := range c.Paths() {
			set[p] = struct{}{}
			addAncestors(pm, set, p)
		}
	}

	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func addAncestors(pm *pathmap.PathMap, set map[string]struct{}, p string) {
	dir := filepath.Dir(p)
	for dir != "/" && dir != "." {
		if _, ok := set[dir]; ok {
			return
		}
		if pm.Get(dir) != nil {
			set[dir] = struct{}{}
		}
		dir = filepath.Dir(dir)
	}
}
