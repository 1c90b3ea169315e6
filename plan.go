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

	"github.com/chunkah/chunkah/pkg/claim"
	"github.com/chunkah/chunkah/pkg/claim/bigfiles"
	"github.com/chunkah/chunkah/pkg/claim/rpmsource"
	"github.com/chunkah/chunkah/pkg/claim/xattrsource"
	"github.com/chunkah/chunkah/pkg/component"
	"github.com/chunkah/chunkah/pkg/pack"
	"github.com/chunkah/chunkah/pkg/pathmap"
	"github.com/chunkah/chunkah/pkg/scan"
)

// PlanResult is the output of Plan: the computed layer plan alongside the
// scan and resolution state it was derived from, without anything having
// been written to disk.
type PlanResult struct {
	PathMap      *pathmap.PathMap
	ComponentMap *pathmap.ComponentMap
	Layers       *pathmap.LayerPlan
}

// Plan runs scan -> claim -> pack without writing any blobs, matching
// umoci's "stat" idiom of read-only introspection. It is the cheapest way
// to check the size/annotation/layer-count invariants a full Build would
// also satisfy.
func Plan(ctx context.Context, cfg Config) (*PlanResult, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	pm, err := scanRootfs(ctx, cfg)
	if err != nil {
		return nil, err
	}

	sources, err := buildClaimSources(cfg)
	if err != nil {
		return nil, err
	}
	cm := component.Resolve(pm, sources)

	plan, err := pack.Pack(cm, pack.Options{MaxLayers: cfg.resolvedMaxLayers()})
	if err != nil {
		return nil, fmt.Errorf("packing: %w", err)
	}

	return &PlanResult{PathMap: pm, ComponentMap: cm, Layers: plan}, nil
}

func scanRootfs(ctx context.Context, cfg Config) (*pathmap.PathMap, error) {
	pm, err := scan.Scan(ctx, cfg.Rootfs, scan.Options{
		Prune:   cfg.Prune,
		Workers: cfg.ScanWorkers,
	})
	if err != nil {
		return nil, fmt.Errorf("scanning rootfs: %w", err)
	}
	return pm, nil
}

// buildClaimSources resets the process-wide claim registry and registers
// chunkah's bundled sources against this run's rootfs. The registry is
// process-wide (pkg/claim is a singleton, grounded on umoci's
// blobcompress.RegisterAlgorithm pattern), so every Run/Plan call resets it
// first: chunkah only ever processes one rootfs per invocation, but nothing
// stops a long-lived host process from calling Run/Plan more than once.
func buildClaimSources(cfg Config) ([]pathmap.ClaimSource, error) {
	claim.Reset()
	claim.Register(xattrsource.New())
	claim.Register(bigfiles.New(cfg.BigFileThreshold))

	rpmSrc, err := rpmsource.New(cfg.Rootfs)
	if err != nil {
		return nil, fmt.Errorf("initializing rpm claim source: %w", err)
	}
	claim.Register(rpmSrc)

	return claim.Sources(), nil
}
