// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package f2fs

import (
	"encoding/hex"
	"fmt"

	"git.lukeshu.com/f2fs-progs-ng/lib/binstruct"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs/f2fsprim"
)

// SITEntriesPerBlock is how many SITEntry fit in one SIT block.
const SITEntriesPerBlock = f2fsprim.BlockSize / sitEntrySize

const (
	sitEntrySize    = 74
	sitVBlocksShift = 10
	sitVBlocksMask  = (1 << sitVBlocksShift) - 1
)

// SITEntry describes one main-area segment.
type SITEntry struct {
	VBlocks       uint16   `bin:"off=0x0,  siz=0x2"`
	ValidMap      ValidMap `bin:"off=0x2,  siz=0x40"`
	Mtime         uint64   `bin:"off=0x42, siz=0x8"`
	binstruct.End `bin:"off=0x4a"`
}

// ValidBlocks is the count of valid blocks in the segment.
func (e SITEntry) ValidBlocks() uint16 { return e.VBlocks & sitVBlocksMask }

// Type is the temperature/kind the segment was allocated for.
func (e SITEntry) Type() SegType { return SegType(e.VBlocks >> sitVBlocksShift) }

// SetVBlocks packs a segment type and valid-block count.
func (e *SITEntry) SetVBlocks(typ SegType, count uint16) {
	e.VBlocks = uint16(typ)<<sitVBlocksShift | count&sitVBlocksMask
}

// SITBlock is one block of the SIT.
type SITBlock struct {
	Entries       [SITEntriesPerBlock]SITEntry `bin:"off=0x0,   siz=0xfe6"`
	Padding       [26]byte                     `bin:"off=0xfe6, siz=0x1a"`
	binstruct.End `bin:"off=0x1000"`
}

// ValidMap has one bit per block of a segment.
type ValidMap [64]byte

// Len is the number of blocks the map covers.
func (m ValidMap) Len() int { return len(m) * 8 }

func (m ValidMap) Test(off uint32) bool { return f2fsprim.TestBit(m[:], off) }

func (m *ValidMap) Set(off uint32, val bool) { f2fsprim.SetBit(m[:], off, val) }

// Count returns the number of set bits.
func (m ValidMap) Count() int {
	n := 0
	for i := 0; i < m.Len(); i++ {
		if m.Test(uint32(i)) {
			n++
		}
	}
	return n
}

func (m ValidMap) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(m[:])), nil
}

func (m *ValidMap) UnmarshalText(text []byte) error {
	if hex.DecodedLen(len(text)) != len(m) {
		return fmt.Errorf("valid map: expected %v hex digits, got %v", 2*len(m), len(text))
	}
	_, err := hex.Decode(m[:], text)
	return err
}

// SegType is the kind of blocks a segment holds.
type SegType uint8

const (
	SegHotData SegType = iota
	SegWarmData
	SegColdData
	SegHotNode
	SegWarmNode
	SegColdNode
)

func (t SegType) IsNode() bool { return t >= SegHotNode && t <= SegColdNode }
func (t SegType) IsData() bool { return t <= SegColdData }

func (t SegType) String() string {
	names := map[SegType]string{
		SegHotData:  "hot-data",
		SegWarmData: "warm-data",
		SegColdData: "cold-data",
		SegHotNode:  "hot-node",
		SegWarmNode: "warm-node",
		SegColdNode: "cold-node",
	}
	if name, ok := names[t]; ok {
		return name
	}
	return fmt.Sprintf("SegType(%d)", uint8(t))
}

func (t SegType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }
