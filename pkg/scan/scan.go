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

// Package scan walks a rootfs directory tree into a pathmap.PathMap: one
// Entry per filesystem object, hardlink groups resolved by (device, inode),
// xattrs read eagerly, content hashed lazily by a bounded worker pool.
//
// The walk is openat-style: every directory is opened once, and every child
// entry's stat/readlink/descend operation is performed relative to that
// directory's file descriptor (unix.Fstatat/Readlinkat/Openat with
// AT_SYMLINK_NOFOLLOW/O_NOFOLLOW), never by re-resolving a host path string
// from the traversal root. No path is ever constructed with a ".." segment,
// and a directory whose device differs from the rootfs root's device is
// recorded but not descended into, so the scan never crosses a mount point.
package scan

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/apex/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/chunkah/chunkah/internal/system"
	"github.com/chunkah/chunkah/pkg/pathmap"
)

// Options configures a scan.
type Options struct {
	// Prune is a set of rootfs-relative paths to exclude. A path ending in
	// "/" excludes only its contents; the directory entry itself is kept.
	Prune []string

	// HashContent causes regular-file content hashes to be computed. The
	// core pipeline never consults the hash; enable this only when a
	// caller (debug logging, a future dedup pass) needs it.
	HashContent bool

	// Workers bounds the content-hashing worker pool. Zero means
	// runtime.NumCPU().
	Workers int
}

// pruneRule is a single compiled entry from Options.Prune.
type pruneRule struct {
	path         string
	contentsOnly bool
}

func compilePruneRules(rules []string) []pruneRule {
	out := make([]pruneRule, 0, len(rules))
	for _, r := range rules {
		contentsOnly := strings.HasSuffix(r, "/")
		clean := "/" + strings.Trim(filepath.Clean("/"+r), "/")
		out = append(out, pruneRule{path: clean, contentsOnly: contentsOnly})
	}
	return out
}

// matchPrune reports whether rel should be excluded entirely (excludeSelf),
// and separately whether - for a directory whose contents are excluded but
// which itself must be kept - the walker should skip descending into it
// without dropping the directory entry already recorded for rel.
func matchPrune(rules []pruneRule, rel string, isDir bool) (excludeSelf, skipChildren bool) {
	for _, rule := range rules {
		if rel == rule.path {
			if rule.contentsOnly {
				// The directory itself is kept; only its contents are
				// pruned.
				return false, isDir
			}
			return true, true
		}
		if strings.HasPrefix(rel, rule.path+"/") {
			return true, false
		}
	}
	return false, false
}

// hashTask pairs an entry awaiting content hashing with its on-disk path.
type hashTask struct {
	entry *pathmap.Entry
	full  string
}

// walker carries the mutable state threaded through the recursive,
// fd-relative directory walk.
type walker struct {
	root      string // host path of the traversal root, for hashTask.full only
	rootDev   uint64
	prune     []pruneRule
	pm        *pathmap.PathMap
	hardlinks map[string]string
	toHash    []hashTask
	hash      bool
}

// Scan walks root and returns the resulting PathMap. root must be an
// existing directory, not a symlink to one; symlinks inside root are
// recorded but never followed.
func Scan(ctx context.Context, root string, opt Options) (*pathmap.PathMap, error) {
	root = filepath.Clean(root)

	rootFd, err := unix.Open(root, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("opening rootfs %q: %w", root, err)
	}
	rootDir := os.NewFile(uintptr(rootFd), root)
	defer rootDir.Close()

	var rootStat unix.Stat_t
	if err := unix.Fstat(rootFd, &rootStat); err != nil {
		return nil, fmt.Errorf("stat rootfs %q: %w", root, err)
	}

	w := &walker{
		root:      root,
		rootDev:   uint64(rootStat.Dev),
		prune:     compilePruneRules(opt.Prune),
		pm:        pathmap.New(),
		hardlinks: map[string]string{},
		hash:      opt.HashContent,
	}

	rootEntry, err := buildEntry("/", rootFd, ".", &rootStat)
	if err != nil {
		return nil, fmt.Errorf("reading metadata for rootfs: %w", err)
	}
	w.pm.Add(rootEntry)

	if err := w.walkDir(rootDir, "/"); err != nil {
		return nil, err
	}

	if err := ensureAncestorDirs(w.pm); err != nil {
		return nil, err
	}

	if w.hash && len(w.toHash) > 0 {
		if err := hashContent(ctx, w.toHash, opt.Workers); err != nil {
			return nil, err
		}
	}

	return w.pm, nil
}

// childPath joins a single trusted path component (a name returned by
// Readdirnames on dir) onto dir's own "/"-rooted path.
func childPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}

// walkDir lists dh's children and visits each one relative to dh's file
// descriptor: no child is ever looked up by recombining a host path string.
func (w *walker) walkDir(dh *os.File, rel string) error {
	names, err := dh.Readdirnames(-1)
	if err != nil {
		return fmt.Errorf("reading directory %q: %w", rel, err)
	}
	sort.Strings(names)

	dirFd := int(dh.Fd())
	for _, name := range names {
		if err := w.visit(dirFd, rel, name); err != nil {
			return err
		}
	}
	return nil
}

// visit stats a single child of the directory identified by dirFd, applies
// prune rules, records it, and - for directories that don't cross a mount
// boundary - recurses.
func (w *walker) visit(dirFd int, rel, name string) error {
	childRel := childPath(rel, name)

	var stat unix.Stat_t
	if err := unix.Fstatat(dirFd, name, &stat, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return fmt.Errorf("stat %q: %w", childRel, err)
	}
	isDir := stat.Mode&unix.S_IFMT == unix.S_IFDIR

	excludeSelf, skipChildren := matchPrune(w.prune, childRel, isDir)
	if excludeSelf {
		return nil
	}

	entry, err := buildEntry(childRel, dirFd, name, &stat)
	if err != nil {
		return fmt.Errorf("reading metadata for %q: %w", childRel, err)
	}

	if !isDir {
		if gid, ok := entry.HardlinkGroupID(); ok {
			if _, seen := w.hardlinks[gid]; seen {
				entry.Kind = pathmap.HardlinkMember
			} else {
				w.hardlinks[gid] = childRel
			}
		}
		w.pm.Add(entry)
		if w.hash && entry.Kind == pathmap.Regular {
			w.toHash = append(w.toHash, hashTask{entry: entry, full: filepath.Join(w.root, childRel)})
		}
		return nil
	}

	w.pm.Add(entry)
	if skipChildren {
		// Directory itself is kept but its contents are pruned.
		return nil
	}
	if uint64(stat.Dev) != w.rootDev {
		// Crossing a mount boundary: the mountpoint directory is recorded
		// empty, its contents belong to a different filesystem.
		return nil
	}

	childFd, err := unix.Openat(dirFd, name, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("opening directory %q: %w", childRel, err)
	}
	childDh := os.NewFile(uintptr(childFd), childRel)
	defer childDh.Close()

	return w.walkDir(childDh, childRel)
}

// buildEntry constructs an Entry for the child named name inside the
// directory identified by dirFd, from a stat already taken with
// AT_SYMLINK_NOFOLLOW. Symlink targets and xattrs are read relative to the
// same dirFd, never via a reconstructed host path.
func buildEntry(relPath string, dirFd int, name string, stat *unix.Stat_t) (*pathmap.Entry, error) {
	entry := &pathmap.Entry{
		Path: relPath,
	}
	// Mask to the permission bits plus setuid/setgid/sticky; os.FileMode's
	// Perm() drops the latter three, which spec requires we preserve.
	entry.Mode = stat.Mode & 0o7777
	entry.UID = stat.Uid
	entry.GID = stat.Gid
	entry.Device = uint64(stat.Dev)
	entry.Inode = stat.Ino

	switch stat.Mode & unix.S_IFMT {
	case unix.S_IFLNK:
		entry.Kind = pathmap.Symlink
		target, err := readlinkat(dirFd, name)
		if err != nil {
			return nil, fmt.Errorf("readlink: %w", err)
		}
		entry.LinkTarget = target
	case unix.S_IFDIR:
		entry.Kind = pathmap.Directory
	case unix.S_IFIFO:
		entry.Kind = pathmap.Fifo
	case unix.S_IFSOCK:
		entry.Kind = pathmap.Socket
	case unix.S_IFCHR:
		entry.Kind = pathmap.CharDevice
		entry.Rdev = uint64(stat.Rdev)
	case unix.S_IFBLK:
		entry.Kind = pathmap.BlockDevice
		entry.Rdev = uint64(stat.Rdev)
	default:
		entry.Kind = pathmap.Regular
		entry.Size = stat.Size
	}

	xattrs, err := readXattrsAt(dirFd, name)
	if err != nil {
		return nil, fmt.Errorf("reading xattrs: %w", err)
	}
	entry.Xattrs = xattrs

	return entry, nil
}

// readlinkat reads a symlink target relative to dirFd, growing the buffer
// until the link fits; unix.Readlinkat never tells us the true length up
// front the way unix.Llistxattr does.
func readlinkat(dirFd int, name string) (string, error) {
	for size := 128; ; size *= 2 {
		buf := make([]byte, size)
		n, err := unix.Readlinkat(dirFd, name, buf)
		if err != nil {
			return "", err
		}
		if n < size {
			return string(buf[:n]), nil
		}
	}
}

// procPathForFd returns an absolute path in /proc which refers to the file
// descriptor: used to reach xattr syscalls that have no *at variant, while
// keeping the lookup pinned to an already-open, race-proof fd rather than a
// re-resolved host path.
func procPathForFd(fd int) string {
	return fmt.Sprintf("/proc/self/fd/%d", fd)
}

func readXattrsAt(dirFd int, name string) (map[string][]byte, error) {
	path := procPathForFd(dirFd) + "/" + name
	return system.ReadXattrs(path, func(xattr string, err error) {
		log.Debugf("scan: skipping unreadable xattr %q on %q: %v", xattr, path, err)
	})
}

// ensureAncestorDirs checks the scan invariant that every ancestor of every
// non-directory entry is itself present. True by construction for a plain
// directory walk; guarded here because prune rules touch directory-skip
// behavior and a bug there should fail loudly rather than silently emit an
// incomplete layer downstream.
func ensureAncestorDirs(pm *pathmap.PathMap) error {
	for _, p := range pm.Paths() {
		dir := filepath.Dir(p)
		for dir != "/" && dir != "." {
			if pm.Get(dir) == nil {
				return fmt.Errorf("missing ancestor directory %q for %q", dir, p)
			}
			dir = filepath.Dir(dir)
		}
	}
	return nil
}

func hashContent(ctx context.Context, items []hashTask, workers int) error {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, item := range items {
		item := item
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			fh, err := os.Open(item.full)
			if err != nil {
				return fmt.Errorf("opening %q for hashing: %w", item.entry.Path, err)
			}
			defer fh.Close()

			h := sha256.New()
			if _, err := io.Copy(h, fh); err != nil {
				return fmt.Errorf("hashing %q: %w", item.entry.Path, err)
			}
			var sum [32]byte
			copy(sum[:], h.Sum(nil))
			item.entry.SetContentHash(sum)
			return nil
		})
	}
	return g.Wait()
}
