// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package f2fsmkfs

import (
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs/f2fsprim"
)

// NewInode returns a regular-file inode with no blocks.
func NewInode(ino f2fsprim.NID, name string) *f2fs.Node {
	inode := &f2fs.Inode{
		Mode:    0o100644,
		Links:   1,
		NameLen: uint32(len(name)),
	}
	copy(inode.Name[:], name)
	return &f2fs.Node{
		Kind:   f2fs.NodeInode,
		Footer: f2fs.NodeFooter{NID: ino, Ino: ino},
		Inode:  inode,
	}
}

// NewDirect returns an empty direct node at node offset ofs.
func NewDirect(nid, ino f2fsprim.NID, ofs uint32) *f2fs.Node {
	node := &f2fs.Node{
		Footer: f2fs.NodeFooter{NID: nid, Ino: ino},
		Direct: new(f2fs.DirectNode),
	}
	node.Footer.SetOffset(ofs)
	node.Kind = node.Footer.Kind()
	return node
}

// NewIndirect returns an empty indirect node at node offset ofs; the
// offset decides whether it is a single or double indirect node.
func NewIndirect(nid, ino f2fsprim.NID, ofs uint32) *f2fs.Node {
	node := &f2fs.Node{
		Footer:   f2fs.NodeFooter{NID: nid, Ino: ino},
		Indirect: new(f2fs.IndirectNode),
	}
	node.Footer.SetOffset(ofs)
	node.Kind = node.Footer.Kind()
	return node
}
