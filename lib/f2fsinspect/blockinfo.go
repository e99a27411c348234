// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package f2fsinspect

import (
	"context"
	"errors"

	"github.com/datawire/dlib/dlog"

	"git.lukeshu.com/f2fs-progs-ng/lib/containers"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs/f2fsprim"
)

// BlockInfo says what is at a raw block address.
type BlockInfo struct {
	Addr   f2fsprim.BlockAddr
	Region f2fs.Region
	// Main is set only for blocks in the main area.
	Main *MainBlockInfo `json:",omitempty" yaml:",omitempty"`
}

type MainBlockInfo struct {
	SegNo   f2fsprim.SegNo
	Offset  uint32
	SegType f2fs.SegType
	Valid   bool
	// Owner is the SSA entry for the block: the node itself for a
	// node block, the node pointing at it for a data block.
	Owner    f2fs.Summary
	OwnerNAT containers.Optional[f2fs.NATEntry]
	// NATAgrees is whether the forward mapping leads back here: for
	// a node block, the NAT maps the owner to this block; for a
	// data block, the owner's slot points at this block.
	NATAgrees bool
	Ino       containers.Optional[f2fsprim.NID]
	FileName  string `json:",omitempty" yaml:",omitempty"`
}

// ClassifyBlock reports the region addr lies in and, for main-area
// blocks, its segment, validity and owner.  An address past the end
// of the main area is a *f2fs.RangeError.  Owners that cannot be
// resolved leave the owner fields unset rather than failing.
func ClassifyBlock(ctx context.Context, fs *f2fs.FS, addr f2fsprim.BlockAddr) (BlockInfo, error) {
	region, err := fs.Geometry.Classify(addr)
	if err != nil {
		return BlockInfo{}, err
	}
	info := BlockInfo{
		Addr:   addr,
		Region: region,
	}
	if region != f2fs.RegionMain {
		return info, nil
	}

	segno, off, err := fs.Geometry.SegOf(addr)
	if err != nil {
		return info, err
	}
	seg, err := fs.SegmentInfo(segno)
	if err != nil {
		return info, err
	}
	owner, err := fs.OwnerOf(addr)
	if err != nil {
		return info, err
	}
	main := &MainBlockInfo{
		SegNo:   segno,
		Offset:  off,
		SegType: seg.Type(),
		Valid:   seg.ValidMap.Test(off),
		Owner:   owner,
	}
	info.Main = main

	ent, err := fs.ResolveNID(owner.NID)
	if err != nil {
		var rangeErr *f2fs.RangeError
		if errors.As(err, &rangeErr) {
			dlog.Infof(ctx, "block %v: owner %v", addr, err)
			return info, nil
		}
		return info, err
	}
	if !ent.IsAllocated() {
		return info, nil
	}
	main.OwnerNAT = containers.Some(ent)
	main.Ino = containers.Some(ent.Ino)

	if seg.Type().IsNode() {
		main.NATAgrees = ent.BlockAddr == addr
	} else {
		agrees, err := ownerPointsAt(fs, ent.BlockAddr, int(owner.OfsInNode), addr)
		if err != nil {
			return info, err
		}
		main.NATAgrees = agrees
	}

	if inode, _, err := fs.ReadNode(ent.Ino, f2fs.NodeExpectations{
		Kind: containers.Some(f2fs.NodeInode),
	}); inode != nil && inode.Inode != nil {
		main.FileName = inode.Inode.FileName()
	} else if err != nil {
		var ioErr *f2fs.IOError
		if errors.As(err, &ioErr) {
			return info, err
		}
		dlog.Infof(ctx, "block %v: inode: %v", addr, err)
	}
	return info, nil
}

// ownerPointsAt returns whether data slot ofs of the node at nodeAddr
// holds addr.
func ownerPointsAt(fs *f2fs.FS, nodeAddr f2fsprim.BlockAddr, ofs int, addr f2fsprim.BlockAddr) (bool, error) {
	if !nodeAddr.IsReal() {
		return false, nil
	}
	if region, err := fs.Geometry.Classify(nodeAddr); err != nil || region != f2fs.RegionMain {
		return false, nil
	}
	node, err := fs.ReadNodeAt(nodeAddr)
	if err != nil {
		var ioErr *f2fs.IOError
		if errors.As(err, &ioErr) {
			return false, err
		}
		return false, nil
	}
	var addrs []f2fsprim.BlockAddr
	switch node.Kind {
	case f2fs.NodeInode:
		addrs, _ = node.Inode.DataAddrs(fs.Superblock.Superblock.Features)
	case f2fs.NodeDirect:
		addrs = node.Direct.Addrs[:]
	}
	return ofs < len(addrs) && addrs[ofs] == addr, nil
}
