// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package f2fs

import (
	"fmt"

	"git.lukeshu.com/f2fs-progs-ng/lib/binstruct"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs/f2fsprim"
	"git.lukeshu.com/f2fs-progs-ng/lib/fmtutil"
)

const (
	// NumCursegTypes is the number of current segments of each kind
	// (hot, warm, cold) for data and for nodes.
	NumCursegTypes = 3
	maxActiveLogs  = 8

	// checkpointHeadSize is the offset of the version bitmaps.
	checkpointHeadSize = 0xc0
	// CheckpointCRCOffset is the usual checksum_offset.
	CheckpointCRCOffset = f2fsprim.BlockSize - 4
)

// Checkpoint is the fixed head of the first (and last) block of a
// checkpoint pack.  The version bitmaps follow it in the same block.
type Checkpoint struct {
	Version              uint64            `bin:"off=0x0,  siz=0x8"`
	UserBlockCount       uint64            `bin:"off=0x8,  siz=0x8"`
	ValidBlockCount      uint64            `bin:"off=0x10, siz=0x8"`
	ReservedSegmentCount uint32            `bin:"off=0x18, siz=0x4"`
	OverprovSegmentCount uint32            `bin:"off=0x1c, siz=0x4"`
	FreeSegmentCount     uint32            `bin:"off=0x20, siz=0x4"`
	CurNodeSegNo         [8]f2fsprim.SegNo `bin:"off=0x24, siz=0x20"`
	CurNodeBlkOff        [8]uint16         `bin:"off=0x44, siz=0x10"`
	CurDataSegNo         [8]f2fsprim.SegNo `bin:"off=0x54, siz=0x20"`
	CurDataBlkOff        [8]uint16         `bin:"off=0x74, siz=0x10"`
	Flags                CheckpointFlags   `bin:"off=0x84, siz=0x4"`
	PackTotalBlockCount  uint32            `bin:"off=0x88, siz=0x4"`
	PackStartSum         uint32            `bin:"off=0x8c, siz=0x4"`
	ValidNodeCount       uint32            `bin:"off=0x90, siz=0x4"`
	ValidInodeCount      uint32            `bin:"off=0x94, siz=0x4"`
	NextFreeNID          f2fsprim.NID      `bin:"off=0x98, siz=0x4"`
	SITVerBitmapBytes    uint32            `bin:"off=0x9c, siz=0x4"`
	NATVerBitmapBytes    uint32            `bin:"off=0xa0, siz=0x4"`
	ChecksumOffset       uint32            `bin:"off=0xa4, siz=0x4"`
	ElapsedTime          uint64            `bin:"off=0xa8, siz=0x8"`
	AllocType            [16]uint8         `bin:"off=0xb0, siz=0x10"`
	binstruct.End        `bin:"off=0xc0"`
}

type CheckpointFlags uint32

const (
	CheckpointUmount = CheckpointFlags(1 << iota)
	CheckpointOrphanPresent
	CheckpointCompactSum
	CheckpointError
	CheckpointFsck
	CheckpointFastboot
	CheckpointCRCRecovery
	CheckpointNATBits
	CheckpointTrimmed
	CheckpointNoCRCRecovery
	CheckpointLargeNATBitmap
	CheckpointQuotaNeedFsck
	CheckpointDisabled
	CheckpointDisabledQuick
	CheckpointResizeFS
)

var checkpointFlagNames = []string{
	"unmount",
	"orphan_inodes",
	"compacted_summary",
	"error",
	"fsck",
	"fastboot",
	"crc_recovery_flag",
	"nat_bits",
	"trimmed",
	"nocrc_recovery_flag",
	"large_nat_bitmap",
	"quota_need_fsck",
	"disabled",
	"disabled_quick",
	"resizefs",
}

func (f CheckpointFlags) Has(req CheckpointFlags) bool { return f&req == req }
func (f CheckpointFlags) String() string {
	return fmtutil.BitfieldString(f, checkpointFlagNames, fmtutil.HexLower)
}

// ParseCheckpointBlock decodes the head or tail block of a
// checkpoint pack and verifies its CRC.
func ParseCheckpointBlock(block []byte) (Checkpoint, error) {
	var cp Checkpoint
	if _, err := binstruct.Unmarshal(block, &cp); err != nil {
		return cp, err
	}
	if cp.ChecksumOffset < checkpointHeadSize || cp.ChecksumOffset > CheckpointCRCOffset {
		return cp, fmt.Errorf("checksum_offset=%#x out of range", cp.ChecksumOffset)
	}
	if err := verifyBlockCRC(block, cp.ChecksumOffset); err != nil {
		return cp, err
	}
	return cp, nil
}

// MarshalCheckpointBlock encodes cp into a full block, with body
// (the version bitmaps, in whichever layout the caller uses) after the
// fixed head, and seals it with a CRC at cp.ChecksumOffset.  The four
// bytes of body at the checksum offset are overwritten.
func MarshalCheckpointBlock(cp Checkpoint, body []byte) ([]byte, error) {
	if cp.ChecksumOffset < checkpointHeadSize || cp.ChecksumOffset > CheckpointCRCOffset {
		return nil, fmt.Errorf("checksum_offset=%#x out of range", cp.ChecksumOffset)
	}
	if checkpointHeadSize+len(body) > f2fsprim.BlockSize {
		return nil, fmt.Errorf("%v bytes of bitmap do not fit in a block", len(body))
	}
	head, err := binstruct.Marshal(cp)
	if err != nil {
		return nil, err
	}
	block := make([]byte, f2fsprim.BlockSize)
	copy(block, head)
	copy(block[checkpointHeadSize:], body)
	sealBlockCRC(block, cp.ChecksumOffset)
	return block, nil
}
