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

package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/apex/log"
	logcli "github.com/apex/log/handlers/cli"
	"github.com/urfave/cli"

	"github.com/chunkah/chunkah"
)

// version is populated on build by make, mirroring the teacher's own
// version/gitCommit linker-flag convention.
var version = ""

const usage = "packs a rootfs into a content-affinity OCI Image Layout archive"

func main() {
	log.SetHandler(logcli.Default)

	app := cli.NewApp()
	app.Name = "chunkah"
	app.Usage = usage
	app.Version = versionString()

	app.Flags = []cli.Flag{
		cli.BoolFlag{Name: "debug", Usage: "set log level to debug"},
		cli.StringFlag{Name: "rootfs", Usage: "rootfs directory to pack (required)"},
		cli.StringFlag{Name: "output", Usage: "path to write the image layout archive (default: stdout)"},
		cli.StringFlag{Name: "config", Usage: "path to an OCI image-config or docker-inspect document"},
		cli.StringFlag{Name: "config-str", Usage: "inline image-config document"},
		cli.IntFlag{Name: "max-layers", Usage: "cap on emitted layers (0 = default)"},
		cli.BoolFlag{Name: "skip-special-files", Usage: "drop fifos/sockets from emitted layers"},
		cli.StringSliceFlag{Name: "prune", Usage: "exclude a path (trailing '/' excludes only its contents)"},
		cli.StringSliceFlag{Name: "annotation", Usage: "add a manifest annotation, as KEY=VALUE"},
		cli.StringSliceFlag{Name: "label", Usage: "add an image config label, as KEY=VALUE"},
		cli.StringFlag{Name: "compression", Usage: "layer compression algorithm: gzip (default) or zstd"},
		cli.StringFlag{Name: "epoch", Usage: "RFC3339 timestamp to normalize mtimes/created to (default: unix epoch)"},
		cli.Int64Flag{Name: "big-file-threshold", Usage: "bytes above which an unclaimed file becomes its own layer (0 = default)"},
		cli.IntFlag{Name: "scan-workers", Usage: "bound the scanner's content-hashing worker pool (0 = NumCPU)"},
		cli.IntFlag{Name: "build-workers", Usage: "bound concurrent layer emission (0 = one per layer)"},
	}

	app.Before = func(ctx *cli.Context) error {
		if ctx.Bool("debug") {
			log.SetLevel(log.DebugLevel)
		}
		return nil
	}

	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Error("chunkah failed")
		os.Exit(1)
	}
}

func versionString() string {
	if version != "" {
		return version
	}
	return "unknown"
}

func run(ctx *cli.Context) error {
	cfg, err := configFromFlags(ctx)
	if err != nil {
		return err
	}

	out := os.Stdout
	outputPath := ctx.String("output")
	if outputPath != "" {
		fh, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer fh.Close()
		return chunkah.Run(context.Background(), cfg, fh)
	}

	return chunkah.Run(context.Background(), cfg, out)
}

func configFromFlags(ctx *cli.Context) (chunkah.Config, error) {
	rootfs := ctx.String("rootfs")
	if rootfs == "" {
		return chunkah.Config{}, fmt.Errorf("--rootfs is required")
	}

	annotations, err := parseKeyValues(ctx.StringSlice("annotation"))
	if err != nil {
		return chunkah.Config{}, fmt.Errorf("parsing --annotation: %w", err)
	}
	labels, err := parseKeyValues(ctx.StringSlice("label"))
	if err != nil {
		return chunkah.Config{}, fmt.Errorf("parsing --label: %w", err)
	}

	// Leaving epoch as the zero time.Time when --epoch is unset is fine:
	// chunkah.Config's own default resolves it to the Unix epoch.
	var epoch time.Time
	if raw := ctx.String("epoch"); raw != "" {
		epoch, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return chunkah.Config{}, fmt.Errorf("parsing --epoch: %w", err)
		}
	}

	return chunkah.Config{
		Rootfs:           rootfs,
		ConfigPath:       ctx.String("config"),
		ConfigStr:        ctx.String("config-str"),
		MaxLayers:        ctx.Int("max-layers"),
		SkipSpecialFiles: ctx.Bool("skip-special-files"),
		Prune:            ctx.StringSlice("prune"),
		Annotations:      annotations,
		Labels:           labels,
		Compression:      ctx.String("compression"),
		Epoch:            epoch,
		BigFileThreshold: ctx.Int64("big-file-threshold"),
		ScanWorkers:      ctx.Int("scan-workers"),
		BuildWorkers:     ctx.Int("build-workers"),
	}, nil
}

func parseKeyValues(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("expected KEY=VALUE, got %q", pair)
		}
		out[k] = v
	}
	return out, nil
}
