// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package f2fsutil

import (
	"context"
	"errors"
	"fmt"

	"github.com/datawire/dlib/dlog"

	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs/f2fsprim"
)

// MaxDepth is the number of node levels below an inode: a
// double-indirect node, the indirect nodes under it, and the direct
// nodes under those.
const MaxDepth = 3

// WalkHandler holds the callbacks for Walk; any of them may be nil.
//
// Depth counts node levels below the inode, which is depth 0.  Data
// callbacks get the depth of the node holding the pointer, the slot
// within that node, and the block's index within the file.
type WalkHandler struct {
	Inode func(nid f2fsprim.NID, addr f2fsprim.BlockAddr, node *f2fs.Node)
	Node  func(depth int, nid f2fsprim.NID, addr f2fsprim.BlockAddr, node *f2fs.Node)
	Data  func(depth int, owner f2fsprim.NID, ofsInNode int, fileBlock uint64, addr f2fsprim.BlockAddr)
}

type walker struct {
	ctx      context.Context //nolint:containedctx // lives only as long as one Walk call
	fs       *f2fs.FS
	check    *Checker
	handler  WalkHandler
	maxDepth int
	ino      f2fsprim.NID
}

// Walk visits the node tree of the inode root, down to maxDepth node
// levels below the inode (clamped to [0, MaxDepth]).
//
// Every node is matched against what its parent's slot calls for,
// using only the node's own footer.  A node of the wrong kind is
// recorded in checker's Report and not followed, so a corrupt tree
// can never make the walk go deeper than MaxDepth.  Bad child nids
// are recorded and skipped.
//
// An out-of-range root is a *f2fs.RangeError; an unallocated root is
// a *f2fs.NodeError wrapping f2fs.ErrUnallocated.  Failures to read
// the image abort the walk.
func Walk(ctx context.Context, fs *f2fs.FS, root f2fsprim.NID, maxDepth int, checker *Checker, handler WalkHandler) error {
	switch {
	case maxDepth < 0:
		maxDepth = 0
	case maxDepth > MaxDepth:
		maxDepth = MaxDepth
	}
	if checker == nil {
		checker = NewChecker(fs)
	}
	ent, err := fs.ResolveNID(root)
	if err != nil {
		return err
	}
	if !ent.IsAllocated() {
		return &f2fs.NodeError{Op: "f2fsutil.Walk", NID: root, Err: f2fs.ErrUnallocated}
	}
	w := &walker{
		ctx:      dlog.WithField(ctx, "f2fsutil.walk.ino", root),
		fs:       fs,
		check:    checker,
		handler:  handler,
		maxDepth: maxDepth,
		ino:      root,
	}
	return w.walkInode(root)
}

func (w *walker) data(depth int, owner f2fsprim.NID, ofsInNode int, fileBlock uint64, addr f2fsprim.BlockAddr) error {
	if addr == f2fsprim.NullAddr {
		return nil
	}
	if err := w.check.CheckDataBlock(w.ctx, owner, ofsInNode, addr); err != nil {
		return err
	}
	if w.handler.Data != nil {
		w.handler.Data(depth, owner, ofsInNode, fileBlock, addr)
	}
	return nil
}

// readNode reads the child nid of parent and checks it against the
// kind and node offset that parent's slot calls for.  A nil node
// with a nil error means the child was recorded as inconsistent and
// must not be followed.
func (w *walker) readNode(depth int, parent, nid f2fsprim.NID, wantKind f2fs.NodeKind, wantOfs uint32) (*f2fs.Node, error) {
	if err := w.ctx.Err(); err != nil {
		return nil, err
	}
	ent, err := w.fs.ResolveNID(nid)
	if err != nil {
		if isFatal(err) {
			return nil, err
		}
		w.check.record(w.ctx, Inconsistency{
			Category: CategoryBadNID,
			NID:      nid,
			Detail:   fmt.Sprintf("referenced by node %v: %v", parent, err),
		})
		return nil, nil
	}
	if !ent.IsAllocated() || !ent.BlockAddr.IsReal() {
		w.check.record(w.ctx, Inconsistency{
			Category: CategoryBadNID,
			NID:      nid,
			Addr:     ent.BlockAddr,
			Detail:   fmt.Sprintf("referenced by node %v: no block", parent),
		})
		return nil, nil
	}
	addr := ent.BlockAddr

	ok, err := w.check.CheckNodeBlock(w.ctx, nid, addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	node, err := w.fs.ReadNodeAt(addr)
	if err != nil {
		var ioErr *f2fs.IOError
		if errors.As(err, &ioErr) {
			return nil, err
		}
		w.check.record(w.ctx, Inconsistency{
			Category: CategoryNodeKind,
			NID:      nid,
			Addr:     addr,
			Detail:   err.Error(),
		})
		return nil, nil
	}

	if node.Footer.NID != nid {
		w.check.record(w.ctx, Inconsistency{
			Category: CategoryFooterNID,
			NID:      nid,
			Addr:     addr,
			Expected: nid,
			Observed: node.Footer.NID,
		})
	}
	if node.Footer.Ino != w.ino {
		w.check.record(w.ctx, Inconsistency{
			Category: CategoryFooterIno,
			NID:      nid,
			Addr:     addr,
			Expected: w.ino,
			Observed: node.Footer.Ino,
		})
	}

	if node.Kind != wantKind {
		cat := CategoryNodeKind
		if wantKind.Height() >= 0 && node.Kind.Height() > wantKind.Height() {
			cat = CategoryDepth
		}
		w.check.record(w.ctx, Inconsistency{
			Category: cat,
			NID:      nid,
			Addr:     addr,
			Expected: wantKind,
			Observed: node.Kind,
			Detail:   fmt.Sprintf("referenced by node %v at depth %v; not followed", parent, depth),
		})
		return nil, nil
	}
	if wantKind.Height() >= 0 && node.Footer.Offset() != wantOfs {
		w.check.record(w.ctx, Inconsistency{
			Category: CategoryNodeOffset,
			NID:      nid,
			Addr:     addr,
			Expected: wantOfs,
			Observed: node.Footer.Offset(),
		})
	}

	if wantKind == f2fs.NodeInode {
		if w.handler.Inode != nil {
			w.handler.Inode(nid, addr, node)
		}
	} else if w.handler.Node != nil {
		w.handler.Node(depth, nid, addr, node)
	}
	return node, nil
}

func (w *walker) walkInode(ino f2fsprim.NID) error {
	node, err := w.readNode(0, ino, ino, f2fs.NodeInode, 0)
	if node == nil || err != nil {
		return err
	}
	addrs, err := node.Inode.DataAddrs(w.fs.Superblock.Superblock.Features)
	if err != nil {
		w.check.record(w.ctx, Inconsistency{
			Category: CategoryNodeKind,
			NID:      ino,
			Detail:   err.Error(),
		})
	}
	for i, addr := range addrs {
		if err := w.data(0, ino, i, uint64(i), addr); err != nil {
			return err
		}
	}
	if w.maxDepth < 1 {
		return nil
	}

	if xnid := node.Inode.XattrNID; xnid != 0 {
		if _, err := w.readNode(1, ino, xnid, f2fs.NodeXattr, 0); err != nil {
			return err
		}
	}

	const n = f2fs.SlotsPerNode
	base := uint64(len(addrs))
	for slot, child := range node.Inode.NIDs {
		if child == 0 {
			continue
		}
		ofs := f2fs.InodeChildOffset(slot)
		switch slot {
		case f2fs.InodeDirect1, f2fs.InodeDirect2:
			err = w.walkDirect(1, ino, child, ofs,
				base+uint64(slot-f2fs.InodeDirect1)*n)
		case f2fs.InodeIndirect1, f2fs.InodeIndirect2:
			err = w.walkIndirect(1, ino, child, ofs,
				base+2*n+uint64(slot-f2fs.InodeIndirect1)*n*n)
		case f2fs.InodeDoubleIndirect:
			err = w.walkDoubleIndirect(1, ino, child, ofs,
				base+2*n+2*n*n)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) walkDirect(depth int, parent, nid f2fsprim.NID, ofs uint32, fileBase uint64) error {
	node, err := w.readNode(depth, parent, nid, f2fs.NodeDirect, ofs)
	if node == nil || err != nil {
		return err
	}
	for i, addr := range node.Direct.Addrs {
		if err := w.data(depth, nid, i, fileBase+uint64(i), addr); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) walkIndirect(depth int, parent, nid f2fsprim.NID, ofs uint32, fileBase uint64) error {
	node, err := w.readNode(depth, parent, nid, f2fs.NodeIndirect, ofs)
	if node == nil || err != nil {
		return err
	}
	if depth >= w.maxDepth {
		return nil
	}
	for i, child := range node.Indirect.NIDs {
		if child == 0 {
			continue
		}
		childOfs := f2fs.ChildOffset(f2fs.NodeIndirect, ofs, i)
		if err := w.walkDirect(depth+1, nid, child, childOfs, fileBase+uint64(i)*f2fs.SlotsPerNode); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) walkDoubleIndirect(depth int, parent, nid f2fsprim.NID, ofs uint32, fileBase uint64) error {
	node, err := w.readNode(depth, parent, nid, f2fs.NodeDoubleIndirect, ofs)
	if node == nil || err != nil {
		return err
	}
	if depth >= w.maxDepth {
		return nil
	}
	const n = f2fs.SlotsPerNode
	for i, child := range node.Indirect.NIDs {
		if child == 0 {
			continue
		}
		childOfs := f2fs.ChildOffset(f2fs.NodeDoubleIndirect, ofs, i)
		if err := w.walkIndirect(depth+1, nid, child, childOfs, fileBase+uint64(i)*n*n); err != nil {
			return err
		}
	}
	return nil
}
