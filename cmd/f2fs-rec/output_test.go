// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs/f2fsmkfs"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fsinspect"
)

func TestOutputFormatFlag(t *testing.T) {
	t.Parallel()
	format := formatText
	assert.NoError(t, format.Set("JSON"))
	assert.Equal(t, formatJSON, format)
	assert.Equal(t, "json", format.String())
	assert.Error(t, format.Set("xml"))
	assert.Equal(t, formatJSON, format)
}

func TestEmitText(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	emit, err := newEmitter(formatText, &buf)
	require.NoError(t, err)
	require.NoError(t, emit(f2fsinspect.ScanSummary{
		Inconsistencies: 2,
		ByCategory:      map[string]int{"ssa-owner": 1, "bad-nid": 1},
	}))
	assert.Equal(t, "scan: 2 inconsistencies\n\tbad-nid: 1\n\tssa-owner: 1\n", buf.String())
}

func TestEmitYAML(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	emit, err := newEmitter(formatYAML, &buf)
	require.NoError(t, err)
	require.NoError(t, emit(f2fsinspect.NATRecord{NID: 3, Entry: f2fs.NATEntry{Ino: 3, BlockAddr: 0x1100}}))
	require.NoError(t, emit(f2fsinspect.NATRecord{NID: 4}))

	dec := yaml.NewDecoder(strings.NewReader(buf.String()))
	var docs []map[string]any
	for {
		var doc map[string]any
		if err := dec.Decode(&doc); err != nil {
			break
		}
		docs = append(docs, doc)
	}
	require.Len(t, docs, 2)
	assert.Equal(t, "nat", docs[0]["type"])
	assert.Equal(t, "nat", docs[1]["type"])
}

func TestEmitJSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	emit, err := newEmitter(formatJSON, &buf)
	require.NoError(t, err)
	require.NoError(t, emit(f2fsinspect.ScanSummary{Inconsistencies: 0}))
	assert.Contains(t, buf.String(), `"scan-summary"`)
	assert.Contains(t, buf.String(), `"Inconsistencies"`)
	assert.NotContains(t, buf.String(), `"ByCategory"`)
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
}

func TestEmitTextNode(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	emit, err := newEmitter(formatText, &buf)
	require.NoError(t, err)
	node := f2fsmkfs.NewInode(3, "hello.txt")
	require.NoError(t, emit(f2fsinspect.NodeRecord{Depth: 0, NID: 3, Addr: 0x1000, Node: node}))
	assert.Contains(t, buf.String(), `name: "hello.txt"`)
	assert.Contains(t, buf.String(), "mode: -rw-r--r--")
}
