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

package rpmsource

import (
	"encoding/binary"
	"fmt"
)

// RPM header tag numbers this package needs. See rpm's lib/rpmtag.h; we only
// decode the handful of tags required to group paths by source package.
const (
	tagName       = 1000
	tagSourceRPM  = 1044
	tagDirIndexes = 1116
	tagBaseNames  = 1117
	tagDirNames   = 1118
)

// RPM header value types we decode. See rpm's rpmtypes.h / header.h.
const (
	typeInt32       = 4
	typeString      = 6
	typeStringArray = 8
)

type indexEntry struct {
	tag, typ, offset, count int32
}

// header is a minimally-parsed RPM package header: just the tags this
// source needs, keyed by tag number.
type header struct {
	name      string
	sourceRPM string
	paths     []string
}

// headerMagic is the 8-byte prefix librpm writes at the start of every
// on-disk header blob (4-byte magic + 4 reserved bytes). rpmdb.sqlite stores
// the blob with this prefix intact.
var headerMagic = []byte{0x8e, 0xad, 0xe8, 0x01, 0x00, 0x00, 0x00, 0x00}

// parseHeader decodes the minimal set of fields this package needs out of a
// raw RPM header blob as stored in rpmdb.sqlite's Packages.blob column.
func parseHeader(blob []byte) (*header, error) {
	if len(blob) >= len(headerMagic) && bytesEqual(blob[:len(headerMagic)], headerMagic) {
		blob = blob[len(headerMagic):]
	}
	if len(blob) < 8 {
		return nil, fmt.Errorf("rpm header too short: %d bytes", len(blob))
	}

	il := int32(binary.BigEndian.Uint32(blob[0:4]))
	dl := int32(binary.BigEndian.Uint32(blob[4:8]))
	if il < 0 || dl < 0 {
		return nil, fmt.Errorf("rpm header has negative il/dl")
	}

	indexStart := 8
	indexEnd := indexStart + int(il)*16
	if indexEnd > len(blob) {
		return nil, fmt.Errorf("rpm header index truncated")
	}
	dataStart := indexEnd
	dataEnd := dataStart + int(dl)
	if dataEnd > len(blob) {
		return nil, fmt.Errorf("rpm header data truncated")
	}
	data := blob[dataStart:dataEnd]

	entries := make([]indexEntry, 0, il)
	for i := 0; i < int(il); i++ {
		off := indexStart + i*16
		entries = append(entries, indexEntry{
			tag:    int32(binary.BigEndian.Uint32(blob[off : off+4])),
			typ:    int32(binary.BigEndian.Uint32(blob[off+4 : off+8])),
			offset: int32(binary.BigEndian.Uint32(blob[off+8 : off+12])),
			count:  int32(binary.BigEndian.Uint32(blob[off+12 : off+16])),
		})
	}

	h := &header{}
	var baseNames, dirNames []string
	var dirIndexes []int32

	for _, e := range entries {
		if e.offset < 0 || int(e.offset) > len(data) {
			continue
		}
		switch e.tag {
		case tagName:
			if e.typ == typeString {
				h.name = readCString(data[e.offset:])
			}
		case tagSourceRPM:
			if e.typ == typeString {
				h.sourceRPM = readCString(data[e.offset:])
			}
		case tagBaseNames:
			if e.typ == typeStringArray {
				baseNames = readStringArray(data[e.offset:], int(e.count))
			}
		case tagDirNames:
			if e.typ == typeStringArray {
				dirNames = readStringArray(data[e.offset:], int(e.count))
			}
		case tagDirIndexes:
			if e.typ == typeInt32 {
				dirIndexes = readInt32Array(data[e.offset:], int(e.count))
			}
		}
	}

	if len(baseNames) == len(dirIndexes) && len(dirNames) > 0 {
		for i, base := range baseNames {
			di := int(dirIndexes[i])
			if di < 0 || di >= len(dirNames) {
				continue
			}
			h.paths = append(h.paths, dirNames[di]+base)
		}
	}

	return h, nil
}

func readCString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func readStringArray(b []byte, count int) []string {
	out := make([]string, 0, count)
	for i := 0; i < count && len(b) > 0; i++ {
		s := readCString(b)
		out = append(out, s)
		if len(s)+1 > len(b) {
			break
		}
		b = b[len(s)+1:]
	}
	return out
}

func readInt32Array(b []byte, count int) []int32 {
	out := make([]int32, 0, count)
	for i := 0; i < count; i++ {
		off := i * 4
		if off+4 > len(b) {
			break
		}
		out = append(out, int32(binary.BigEndian.Uint32(b[off:off+4])))
	}
	return out
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
