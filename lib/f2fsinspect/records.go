// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package f2fsinspect implements the dump and diagnosis operations of
// the f2fs-rec tool on top of lib/f2fs and lib/f2fsutil.  Operations
// produce a stream of Records; formatting them is up to the caller.
package f2fsinspect

import (
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs/f2fsprim"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fsutil"
)

type Record interface {
	// RecordType is a short tag naming the kind of record, for
	// formats that need to label them.
	RecordType() string
}

// Emitter receives the records an operation produces.  An error from
// the Emitter aborts the operation and is returned from it.
type Emitter func(Record) error

type NATRecord struct {
	NID   f2fsprim.NID
	Entry f2fs.NATEntry
}

type SITRecord struct {
	SegNo       f2fsprim.SegNo
	Type        f2fs.SegType
	ValidBlocks uint16
	Entry       f2fs.SITEntry
}

type SSARecord struct {
	SegNo   f2fsprim.SegNo
	Type    f2fs.SummaryType
	Summary *f2fs.SummaryBlock
}

// NodeRecord is a node block.  Depth is the number of node levels
// below the inode it was reached at, or -1 if it was read directly.
type NodeRecord struct {
	Depth int
	NID   f2fsprim.NID
	Addr  f2fsprim.BlockAddr
	Node  *f2fs.Node
}

type DataRecord struct {
	Depth     int
	Owner     f2fsprim.NID
	OfsInNode int
	FileBlock uint64
	Addr      f2fsprim.BlockAddr
}

type InconsistencyRecord struct {
	f2fsutil.Inconsistency `yaml:",inline"`
}

// ScanSummary closes the output of a full-disk scan.
type ScanSummary struct {
	Inconsistencies int
	ByCategory      map[string]int `json:",omitempty" yaml:",omitempty"`
}

func (NATRecord) RecordType() string           { return "nat" }
func (SITRecord) RecordType() string           { return "sit" }
func (SSARecord) RecordType() string           { return "ssa" }
func (NodeRecord) RecordType() string          { return "node" }
func (DataRecord) RecordType() string          { return "data" }
func (InconsistencyRecord) RecordType() string { return "inconsistency" }
func (ScanSummary) RecordType() string         { return "scan-summary" }
func (BlockInfo) RecordType() string           { return "block-info" }
func (CheckpointState) RecordType() string     { return "checkpoint" }
func (InodeCopy) RecordType() string           { return "inode-copy" }
