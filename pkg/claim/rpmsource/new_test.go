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

package rpmsource_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chunkah/chunkah/pkg/claim/rpmsource"
	"github.com/chunkah/chunkah/pkg/pathmap"
)

func TestNewMissingDatabaseIsNotAnError(t *testing.T) {
	src, err := rpmsource.New(t.TempDir())
	require.NoError(t, err)

	_, ok := src.Claim("/usr/bin/jq", &pathmap.Entry{})
	require.False(t, ok)
	require.Equal(t, "rpm", src.Name())
	require.Equal(t, rpmsource.Priority, src.Priority())
}

func TestNewMalformedDatabaseIsNotAnError(t *testing.T) {
	root := t.TempDir()
	dbPath := filepath.Join(root, "usr", "lib", "sysimage", "rpm", "rpmdb.sqlite")
	require.NoError(t, os.MkdirAll(filepath.Dir(dbPath), 0o755))
	require.NoError(t, os.WriteFile(dbPath, []byte("not a sqlite database"), 0o644))

	src, err := rpmsource.New(root)
	require.NoError(t, err)

	_, ok := src.Claim("/usr/bin/jq", &pathmap.Entry{})
	require.False(t, ok)
}
