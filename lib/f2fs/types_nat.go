// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package f2fs

import (
	"git.lukeshu.com/f2fs-progs-ng/lib/binstruct"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs/f2fsprim"
)

// NATEntriesPerBlock is how many NATEntry fit in one NAT block.
const NATEntriesPerBlock = f2fsprim.BlockSize / natEntrySize

const natEntrySize = 9

// NATEntry maps a node id to the block holding it.
type NATEntry struct {
	Version       uint8              `bin:"off=0x0, siz=0x1"`
	Ino           f2fsprim.NID       `bin:"off=0x1, siz=0x4"`
	BlockAddr     f2fsprim.BlockAddr `bin:"off=0x5, siz=0x4"`
	binstruct.End `bin:"off=0x9"`
}

// IsAllocated returns whether the node id is in use.
func (e NATEntry) IsAllocated() bool {
	return e.BlockAddr != f2fsprim.NullAddr
}

// NATBlock is one block of the NAT.
type NATBlock struct {
	Entries       [NATEntriesPerBlock]NATEntry `bin:"off=0x0,   siz=0xfff"`
	Padding       [1]byte                      `bin:"off=0xfff, siz=0x1"`
	binstruct.End `bin:"off=0x1000"`
}
