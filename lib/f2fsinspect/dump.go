// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package f2fsinspect

import (
	"context"
	"fmt"

	"github.com/datawire/dlib/dlog"

	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs/f2fsprim"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fsutil"
)

type Table uint8

const (
	TableNAT Table = iota
	TableSIT
	TableSSA
)

func (t Table) String() string {
	switch t {
	case TableNAT:
		return "NAT"
	case TableSIT:
		return "SIT"
	case TableSSA:
		return "SSA"
	default:
		return fmt.Sprintf("Table(%d)", uint8(t))
	}
}

func (t Table) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// DumpRange emits the entries of a table with ids in [op.Start,
// op.End).  An End of -1 means the table's natural bound: MaxNID for
// the NAT, the number of main-area segments for the SIT and SSA.
func DumpRange(ctx context.Context, fs *f2fs.FS, op RangeDump, emit Emitter) error {
	ctx = dlog.WithField(ctx, "f2fsinspect.dump.table", op.Table)
	switch op.Table {
	case TableNAT:
		return fs.NATRange(ctx, op.Start, op.End, func(nid f2fsprim.NID, ent f2fs.NATEntry) error {
			return emit(NATRecord{NID: nid, Entry: ent})
		})
	case TableSIT:
		return fs.SITRange(ctx, op.Start, op.End, func(segno f2fsprim.SegNo, ent f2fs.SITEntry) error {
			return emit(SITRecord{
				SegNo:       segno,
				Type:        ent.Type(),
				ValidBlocks: ent.ValidBlocks(),
				Entry:       ent,
			})
		})
	case TableSSA:
		return fs.SSARange(ctx, op.Start, op.End, func(segno f2fsprim.SegNo, sum *f2fs.SummaryBlock) error {
			return emit(SSARecord{
				SegNo:   segno,
				Type:    sum.Footer.EntryType,
				Summary: sum,
			})
		})
	default:
		return fmt.Errorf("f2fsinspect.DumpRange: unknown table %v", op.Table)
	}
}

// DumpNode emits the node op.NID.  With op.Recursive, it walks the
// node as an inode, emitting every node and data block under it and
// any inconsistencies found on the way.
//
// A nid outside [0, MaxNID) is a *f2fs.RangeError.  Footer
// disagreements on a non-recursive dump are logged, not returned.
func DumpNode(ctx context.Context, fs *f2fs.FS, op NodeDump, emit Emitter) error {
	ctx = dlog.WithField(ctx, "f2fsinspect.dump.nid", op.NID)
	if !op.Recursive {
		node, ent, err := fs.ReadNode(op.NID, f2fs.NodeExpectations{})
		if node == nil {
			return err
		}
		if err != nil {
			dlog.Warnf(ctx, "%v", err)
		}
		return emit(NodeRecord{
			Depth: -1,
			NID:   op.NID,
			Addr:  ent.BlockAddr,
			Node:  node,
		})
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var emitErr error
	send := func(rec Record) {
		if emitErr != nil {
			return
		}
		if err := emit(rec); err != nil {
			emitErr = err
			cancel()
		}
	}

	checker := f2fsutil.NewChecker(fs)
	checker.Report.OnRecord = func(inc f2fsutil.Inconsistency) {
		send(InconsistencyRecord{inc})
	}
	err := f2fsutil.Walk(ctx, fs, op.NID, f2fsutil.MaxDepth, checker, f2fsutil.WalkHandler{
		Inode: func(nid f2fsprim.NID, addr f2fsprim.BlockAddr, node *f2fs.Node) {
			send(NodeRecord{NID: nid, Addr: addr, Node: node})
		},
		Node: func(depth int, nid f2fsprim.NID, addr f2fsprim.BlockAddr, node *f2fs.Node) {
			send(NodeRecord{Depth: depth, NID: nid, Addr: addr, Node: node})
		},
		Data: func(depth int, owner f2fsprim.NID, ofs int, fileBlock uint64, addr f2fsprim.BlockAddr) {
			send(DataRecord{
				Depth:     depth,
				Owner:     owner,
				OfsInNode: ofs,
				FileBlock: fileBlock,
				Addr:      addr,
			})
		},
	})
	if emitErr != nil {
		return emitErr
	}
	return err
}
