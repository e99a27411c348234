// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package f2fsinspect

import (
	"context"
	"fmt"

	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs/f2fsprim"
)

// Op is one of RangeDump, NodeDump, FullScan, Classify, FindInode or
// CheckpointInfo.
type Op interface {
	isOp()
}

type RangeDump struct {
	Table Table
	Start int64
	End   int64
}

type NodeDump struct {
	NID       f2fsprim.NID
	Recursive bool
}

type FullScan struct{}

type Classify struct {
	Addr f2fsprim.BlockAddr
}

type FindInodeOp struct {
	Ino f2fsprim.NID
}

type CheckpointInfo struct{}

func (RangeDump) isOp()      {}
func (NodeDump) isOp()       {}
func (FullScan) isOp()       {}
func (Classify) isOp()       {}
func (FindInodeOp) isOp()    {}
func (CheckpointInfo) isOp() {}

// Run performs op, sending its output to emit.
func Run(ctx context.Context, fs *f2fs.FS, op Op, emit Emitter) error {
	switch op := op.(type) {
	case RangeDump:
		return DumpRange(ctx, fs, op, emit)
	case NodeDump:
		return DumpNode(ctx, fs, op, emit)
	case FullScan:
		_, err := ScanFullDisk(ctx, fs, emit)
		return err
	case Classify:
		info, err := ClassifyBlock(ctx, fs, op.Addr)
		if err != nil {
			return err
		}
		return emit(info)
	case FindInodeOp:
		_, err := FindInode(ctx, fs, op.Ino, emit)
		return err
	case CheckpointInfo:
		return emit(CheckpointSummary(fs))
	default:
		return fmt.Errorf("f2fsinspect.Run: unknown operation %T", op)
	}
}
