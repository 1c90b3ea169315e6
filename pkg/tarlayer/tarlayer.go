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

// Package tarlayer writes deterministic POSIX/pax tar streams for a single
// OCI layer: entries in lexicographic path order, a single fixed mtime
// epoch, numeric ownership, pax xattr records and hardlink folding.
package tarlayer

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apex/log"

	"github.com/chunkah/chunkah/pkg/pathmap"
)

// Options configures a Writer.
type Options struct {
	// Epoch is the mtime recorded for every entry (SOURCE_DATE_EPOCH-style),
	// truncated to whole seconds. The zero value means the Unix epoch
	// (1970-01-01T00:00:00Z).
	Epoch time.Time

	// SkipSpecialFiles drops fifos and sockets (logging the omission).
	// Device nodes are never dropped.
	SkipSpecialFiles bool
}

// Writer emits a single deterministic tar stream. It is not safe for
// concurrent use; callers add entries in the order returned by the caller's
// path iteration (which must already be lexicographic).
type Writer struct {
	tw   *tar.Writer
	opt  Options
	seen map[string]string // hardlink group id -> first member's tar name
}

// New returns a Writer that streams tar output to w.
func New(w io.Writer, opt Options) *Writer {
	if opt.Epoch.IsZero() {
		opt.Epoch = time.Unix(0, 0).UTC()
	}
	return &Writer{
		tw:   tar.NewWriter(w),
		opt:  opt,
		seen: map[string]string{},
	}
}

// normalise strips the leading '/' (tar paths are archive-relative) and
// rejects anything that would escape the archive root.
func normalise(rawPath string, isDir bool) (string, error) {
	path := filepath.Clean(rawPath)
	if path == "." || path == "/" {
		return ".", nil
	}
	path = strings.TrimPrefix(path, "/")
	if "/"+path != filepath.Join("/", path) {
		return "", fmt.Errorf("escape warning: generated path is outside tar root: %s", rawPath)
	}
	if isDir {
		path += "/"
	}
	return path, nil
}

// mtime returns the modification time recorded for every entry: the
// writer's configured epoch, truncated to whole seconds.
func (w *Writer) mtime() time.Time {
	return w.opt.Epoch.Truncate(time.Second)
}

// Add writes a single filesystem entry to the archive. content must be
// non-nil (and will be fully drained) for a Regular or HardlinkMember entry
// with a non-zero size whose hardlink group has no prior member written to
// this archive; it is ignored otherwise.
func (w *Writer) Add(entry *pathmap.Entry, content io.Reader) (retErr error) {
	isDir := entry.Kind == pathmap.Directory
	name, err := normalise(entry.Path, isDir)
	if err != nil {
		return fmt.Errorf("normalise path: %w", err)
	}

	if (entry.Kind == pathmap.Fifo || entry.Kind == pathmap.Socket) && w.opt.SkipSpecialFiles {
		log.Warnf("tarlayer: skipping special file %q (skip-special-files enabled)", entry.Path)
		return nil
	}

	hdr := &tar.Header{
		Name:    name,
		Mode:    int64(entry.Mode),
		Uid:     int(entry.UID),
		Gid:     int(entry.GID),
		ModTime: w.mtime(),
	}

	switch entry.Kind {
	case pathmap.Directory:
		hdr.Typeflag = tar.TypeDir
	case pathmap.Symlink:
		hdr.Typeflag = tar.TypeSymlink
		hdr.Linkname = entry.LinkTarget
	case pathmap.Fifo:
		hdr.Typeflag = tar.TypeFifo
	case pathmap.Socket:
		// archive/tar has no socket type; sockets are not representable in
		// a standard tar stream and are always skipped with a warning.
		log.Warnf("tarlayer: dropping unrepresentable socket %q", entry.Path)
		return nil
	case pathmap.CharDevice, pathmap.BlockDevice:
		if entry.Kind == pathmap.CharDevice {
			hdr.Typeflag = tar.TypeChar
		} else {
			hdr.Typeflag = tar.TypeBlock
		}
		hdr.Devmajor = int64(major(entry.Rdev))
		hdr.Devminor = int64(minor(entry.Rdev))
	case pathmap.Regular, pathmap.HardlinkMember:
		hdr.Typeflag = tar.TypeReg
		hdr.Size = entry.Size

		if gid, ok := entry.HardlinkGroupID(); ok {
			if first, ok := w.seen[gid]; ok {
				hdr.Typeflag = tar.TypeLink
				hdr.Linkname = first
				hdr.Size = 0
			} else {
				w.seen[gid] = name
			}
		}
	default:
		return fmt.Errorf("unknown entry kind %d for %q", entry.Kind, entry.Path)
	}

	if len(entry.Xattrs) > 0 {
		hdr.Xattrs = make(map[string]string, len(entry.Xattrs)) //nolint:staticcheck // SA1019: PAXRecords requires the full "SCHILY.xattr." prefix management ourselves; Xattrs already round-trips it
		for name, value := range entry.Xattrs {
			if len(value) == 0 {
				log.Warnf("xattr{%s} ignoring empty-valued xattr %q: disallowed by PAX standard", hdr.Name, name)
				continue
			}
			hdr.Xattrs[name] = string(value)
		}
	}

	if err := w.tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write header %q: %w", entry.Path, err)
	}

	if hdr.Typeflag == tar.TypeReg && hdr.Size > 0 {
		if content == nil {
			return fmt.Errorf("no content stream for regular file %q", entry.Path)
		}
		n, err := io.Copy(w.tw, content)
		if err != nil {
			return fmt.Errorf("copy content %q: %w", entry.Path, err)
		}
		if n != hdr.Size {
			return fmt.Errorf("copy content %q: %w", entry.Path, io.ErrShortWrite)
		}
	}

	return nil
}

// Close flushes the tar trailer. It does not close the underlying writer.
func (w *Writer) Close() error {
	return w.tw.Close()
}

// major and minor mirror new_decode_dev() from <linux/kdev_t.h>, matching
// the encoding unix.Stat_t.Rdev uses.
func major(dev uint64) uint64 {
	return (dev & 0xfff00) >> 8
}

func minor(dev uint64) uint64 {
	return (dev & 0xff) | ((dev >> 12) & 0xfff00)
}

// OpenContent is a convenience for callers that want to stream a regular
// file's bytes straight from disk rather than plumbing their own reader.
func OpenContent(path string) (io.ReadCloser, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return fh, nil
}
