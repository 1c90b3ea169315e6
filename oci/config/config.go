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

// Package config auto-detects and loads an image configuration, accepting
// either a raw OCI image-config JSON document or the array-shaped output of
// "docker inspect"/"podman inspect".
package config

import (
	"encoding/json"
	"fmt"

	ispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// dockerInspectEntry mirrors the fields chunkah needs out of a single
// element of "docker inspect"/"podman inspect"'s JSON array output.
type dockerInspectEntry struct {
	Config struct {
		Entrypoint []string          `json:"Entrypoint"`
		Cmd        []string          `json:"Cmd"`
		Env        []string          `json:"Env"`
		WorkingDir string            `json:"WorkingDir"`
		Labels     map[string]string `json:"Labels"`
	} `json:"Config"`
	Annotations map[string]string `json:"Annotations"`
}

// Load parses raw into an ispec.Image, auto-detecting whether raw is a raw
// OCI image-config document or a docker/podman inspect array.
func Load(raw []byte) (ispec.Image, map[string]string, error) {
	trimmed := firstNonSpace(raw)
	if trimmed == '[' {
		return loadDockerInspect(raw)
	}
	return loadOCIConfig(raw)
}

func firstNonSpace(raw []byte) byte {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return b
		}
	}
	return 0
}

func loadOCIConfig(raw []byte) (ispec.Image, map[string]string, error) {
	var image ispec.Image
	if err := json.Unmarshal(raw, &image); err != nil {
		return ispec.Image{}, nil, fmt.Errorf("parsing oci image config: %w", err)
	}
	return image, nil, nil
}

func loadDockerInspect(raw []byte) (ispec.Image, map[string]string, error) {
	var entries []dockerInspectEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return ispec.Image{}, nil, fmt.Errorf("parsing docker/podman inspect array: %w", err)
	}
	if len(entries) == 0 {
		return ispec.Image{}, nil, fmt.Errorf("docker/podman inspect array is empty")
	}
	entry := entries[0]

	var image ispec.Image
	image.Config.Entrypoint = entry.Config.Entrypoint
	image.Config.Cmd = entry.Config.Cmd
	image.Config.Env = entry.Config.Env
	image.Config.WorkingDir = entry.Config.WorkingDir
	image.Config.Labels = entry.Config.Labels

	return image, entry.Annotations, nil
}
