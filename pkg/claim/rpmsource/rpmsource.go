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

// Package rpmsource claims paths owned by installed RPM packages, grouping
// them by source package (SRPM) name. Only the SQLite rpmdb backend
// (/usr/lib/sysimage/rpm/rpmdb.sqlite) is supported; the legacy BerkeleyDB
// format is not, matching spec's "implementers may support only the SQLite
// form" allowance.
package rpmsource

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/apex/log"
	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" database/sql driver

	"github.com/chunkah/chunkah/pkg/pathmap"
)

// Priority is the RPM source's fixed priority: below xattr overrides, above
// the bigfiles fallback.
const Priority = 20

// dbRelPath is the well-known location of the SQLite rpmdb inside a rootfs.
const dbRelPath = "usr/lib/sysimage/rpm/rpmdb.sqlite"

// Source claims paths owned by an installed RPM package, grouped by SRPM.
type Source struct {
	// claims maps a rootfs-absolute path to its resolved component id.
	claims map[string]pathmap.ComponentId
}

// New opens the rootfs's RPM database (if present) and indexes every
// package's owned paths by source-package name. If the database file is
// absent, New returns a Source that claims nothing, and no error, per
// spec's "not an error" requirement. A present-but-malformed database
// (corrupt file, wrong schema, truncated rpmdb) is likewise not fatal: per
// spec's "claim source errors are source-local", New logs a warning and
// returns a Source that claims nothing rather than aborting the pipeline.
func New(rootfs string) (*Source, error) {
	dbPath := filepath.Join(rootfs, dbRelPath)
	if _, err := os.Stat(dbPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Source{claims: map[string]pathmap.ComponentId{}}, nil
		}
		return nil, fmt.Errorf("stat rpmdb: %w", err)
	}

	claims, err := readClaims(dbPath)
	if err != nil {
		log.Warnf("rpm claim source: skipping malformed rpmdb %q: %v", dbPath, err)
		return &Source{claims: map[string]pathmap.ComponentId{}}, nil
	}

	return &Source{claims: claims}, nil
}

// readClaims opens dbPath and indexes every package row's owned paths. Any
// failure here (open, query, row scan, row iteration) means the database
// itself is malformed; the caller treats that as a source-local warning, not
// a fatal error.
func readClaims(dbPath string) (map[string]pathmap.ComponentId, error) {
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?mode=ro&immutable=1")
	if err != nil {
		return nil, fmt.Errorf("open rpmdb: %w", err)
	}
	defer db.Close()

	rows, err := db.Query(`SELECT blob FROM Packages`)
	if err != nil {
		return nil, fmt.Errorf("query rpmdb packages: %w", err)
	}
	defer rows.Close()

	claims := map[string]pathmap.ComponentId{}
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("scan rpmdb row: %w", err)
		}
		h, err := parseHeader(blob)
		if err != nil {
			// A single malformed header is a source-local problem, not a
			// fatal error for the whole source; skip and keep going.
			continue
		}
		group := srpmGroup(h)
		id := pathmap.ComponentId("rpm/" + group)
		for _, p := range h.paths {
			claims["/"+strings.TrimPrefix(p, "/")] = id
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rpmdb rows: %w", err)
	}

	return claims, nil
}

// srpmPattern strips the trailing "-<version>-<release>.src.rpm" from a
// SOURCERPM value, leaving the source package name. RPM names may contain
// dashes, so this is a heuristic (documented as such): it assumes the
// version and release fields themselves contain no dashes, which holds for
// the overwhelming majority of real-world SRPMs.
var srpmPattern = regexp.MustCompile(`^(.+)-[^-]+-[^-]+\.src\.rpm$`)

func srpmGroup(h *header) string {
	if h.sourceRPM != "" {
		if m := srpmPattern.FindStringSubmatch(h.sourceRPM); m != nil {
			return m[1]
		}
		return strings.TrimSuffix(h.sourceRPM, ".src.rpm")
	}
	if h.name != "" {
		return h.name
	}
	return "unknown"
}

// Name implements pathmap.ClaimSource.
func (s *Source) Name() string { return "rpm" }

// Priority implements pathmap.ClaimSource.
func (s *Source) Priority() int { return Priority }

// Claim implements pathmap.ClaimSource.
func (s *Source) Claim(path string, _ *pathmap.Entry) (pathmap.ComponentId, bool) {
	id, ok := s.claims[path]
	return id, ok
}
