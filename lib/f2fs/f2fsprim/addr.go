// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package f2fsprim

import (
	"fmt"

	"git.lukeshu.com/f2fs-progs-ng/lib/fmtutil"
)

// BlockSize is the only block size F2FS supports.
const BlockSize = 4096

// PhysicalAddr is a byte offset into the image.
type PhysicalAddr int64

func (a PhysicalAddr) Format(f fmt.State, verb rune) {
	fmtutil.FormatHexAddr(int64(a), 12, f, verb)
}

// BlockAddr is a block number within the image.
type BlockAddr uint32

const (
	// NullAddr marks an unallocated slot.
	NullAddr BlockAddr = 0
	// NewAddr marks a slot that has been reserved but not yet
	// written.
	NewAddr BlockAddr = 0xFFFFFFFF
	// CompressAddr marks a slot inside a compressed cluster.
	CompressAddr BlockAddr = 0xFFFFFFFE
)

func (a BlockAddr) Format(f fmt.State, verb rune) {
	fmtutil.FormatHexAddr(int64(a), 8, f, verb)
}

// IsReal returns whether the address refers to a block on disk, as
// opposed to being one of the special marker values.
func (a BlockAddr) IsReal() bool {
	return a != NullAddr && a != NewAddr && a != CompressAddr
}

func (a BlockAddr) Physical() PhysicalAddr {
	return PhysicalAddr(a) * BlockSize
}

// NID is a node id, the index into the NAT.
type NID uint32

// SegNo is a segment number, counting from the start of the main
// area.
type SegNo uint32
