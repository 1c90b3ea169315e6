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
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// archiveLayout walks an already-built OCI Image Layout directory and writes
// its contents as a tar stream to out: oci-layout, index.json and
// blobs/sha256/<hex>, exactly as required of chunkah's output. This is plain
// directory-to-tar bundling with no digest or media-type logic of its own
// (that already happened while the layout was built), so it walks the
// finished tree rather than threading archival through the builder.
func archiveLayout(layoutDir string, out io.Writer) error {
	tw := tar.NewWriter(out)

	var paths []string
	err := filepath.WalkDir(layoutDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == layoutDir {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return fmt.Errorf("walking image layout: %w", err)
	}
	sort.Strings(paths)

	for _, path := range paths {
		if err := addToArchive(tw, layoutDir, path); err != nil {
			return err
		}
	}

	return tw.Close()
}

func addToArchive(tw *tar.Writer, layoutDir, path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return fmt.Errorf("stat %q: %w", path, err)
	}

	rel, err := filepath.Rel(layoutDir, path)
	if err != nil {
		return fmt.Errorf("relativize %q: %w", path, err)
	}
	rel = filepath.ToSlash(rel)

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("header for %q: %w", rel, err)
	}
	hdr.Name = rel
	if info.IsDir() {
		hdr.Name += "/"
	}
	// Blobs and index.json are content-addressed or fully regenerated on
	// every run; normalizing the owner keeps the archive reproducible
	// across machines with different build-user uid/gid.
	hdr.Uid, hdr.Gid = 0, 0
	hdr.Uname, hdr.Gname = "", ""

	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write header for %q: %w", rel, err)
	}
	if info.IsDir() {
		return nil
	}

	fh, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %q: %w", rel, err)
	}
	defer fh.Close()

	if _, err := io.Copy(tw, fh); err != nil {
		return fmt.Errorf("write %q: %w", rel, err)
	}
	return nil
}
