// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package f2fs

import (
	"fmt"

	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs/f2fsprim"
)

// Region is an area of the image, as laid out by the superblock.
type Region uint8

const (
	RegionUnknown Region = iota
	RegionSuperblock
	RegionCheckpoint
	RegionSIT
	RegionNAT
	RegionSSA
	RegionMain
)

func (r Region) String() string {
	names := map[Region]string{
		RegionUnknown:    "unknown",
		RegionSuperblock: "superblock",
		RegionCheckpoint: "checkpoint",
		RegionSIT:        "SIT",
		RegionNAT:        "NAT",
		RegionSSA:        "SSA",
		RegionMain:       "main",
	}
	if name, ok := names[r]; ok {
		return name
	}
	return fmt.Sprintf("Region(%d)", uint8(r))
}

func (r Region) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// Geometry is the region layout of an image, derived from the
// superblock.  It does no I/O.
type Geometry struct {
	BlocksPerSeg uint32

	Segment0BlkAddr f2fsprim.BlockAddr
	CPBlkAddr       f2fsprim.BlockAddr
	SITBlkAddr      f2fsprim.BlockAddr
	NATBlkAddr      f2fsprim.BlockAddr
	SSABlkAddr      f2fsprim.BlockAddr
	MainBlkAddr     f2fsprim.BlockAddr
	MainEndBlkAddr  f2fsprim.BlockAddr

	MainSegments uint32
	// SITBlocks and NATBlocks are the size of one of the two copies
	// of each table.
	SITBlocks uint32
	NATBlocks uint32
	MaxNID    f2fsprim.NID
}

// NewGeometry derives the layout from a superblock that has passed
// SanityCheck.
func NewGeometry(sb Superblock) Geometry {
	g := Geometry{
		BlocksPerSeg: 1 << sb.LogBlocksPerSeg,

		Segment0BlkAddr: sb.Segment0BlkAddr,
		CPBlkAddr:       sb.CPBlkAddr,
		SITBlkAddr:      sb.SITBlkAddr,
		NATBlkAddr:      sb.NATBlkAddr,
		SSABlkAddr:      sb.SSABlkAddr,
		MainBlkAddr:     sb.MainBlkAddr,

		MainSegments: sb.SegmentCountMain,
		SITBlocks:    (sb.SegmentCountSIT / 2) << sb.LogBlocksPerSeg,
		NATBlocks:    (sb.SegmentCountNAT / 2) << sb.LogBlocksPerSeg,
	}
	g.MainEndBlkAddr = g.MainBlkAddr + f2fsprim.BlockAddr(g.MainSegments*g.BlocksPerSeg)
	g.MaxNID = f2fsprim.NID(NATEntriesPerBlock * g.NATBlocks)
	return g
}

// Classify returns the region that addr falls in, by comparing
// against the region boundaries only.  Addresses past the end of the
// main area are a *RangeError.
func (g Geometry) Classify(addr f2fsprim.BlockAddr) (Region, error) {
	switch {
	case addr >= g.MainEndBlkAddr:
		return RegionUnknown, &RangeError{What: "block address", Val: int64(addr), Limit: int64(g.MainEndBlkAddr)}
	case addr >= g.MainBlkAddr:
		return RegionMain, nil
	case addr >= g.SSABlkAddr:
		return RegionSSA, nil
	case addr >= g.NATBlkAddr:
		return RegionNAT, nil
	case addr >= g.SITBlkAddr:
		return RegionSIT, nil
	case addr >= g.CPBlkAddr:
		return RegionCheckpoint, nil
	default:
		return RegionSuperblock, nil
	}
}

// SegOf splits a main-area address into a segment number and an
// offset within that segment.  Other addresses are a *DomainError (or
// a *RangeError if they are past the end of the image).
func (g Geometry) SegOf(addr f2fsprim.BlockAddr) (f2fsprim.SegNo, uint32, error) {
	region, err := g.Classify(addr)
	if err != nil {
		return 0, 0, err
	}
	if region != RegionMain {
		return 0, 0, &DomainError{Addr: addr, Region: region, Want: RegionMain}
	}
	rel := uint32(addr - g.MainBlkAddr)
	return f2fsprim.SegNo(rel / g.BlocksPerSeg), rel % g.BlocksPerSeg, nil
}

// SegStart returns the first block of a main-area segment.
func (g Geometry) SegStart(segno f2fsprim.SegNo) f2fsprim.BlockAddr {
	return g.MainBlkAddr + f2fsprim.BlockAddr(uint32(segno)*g.BlocksPerSeg)
}

func (g Geometry) checkNID(nid f2fsprim.NID) error {
	if nid >= g.MaxNID {
		return &RangeError{What: "node id", Val: int64(nid), Limit: int64(g.MaxNID)}
	}
	return nil
}

func (g Geometry) checkSegNo(segno f2fsprim.SegNo) error {
	if uint32(segno) >= g.MainSegments {
		return &RangeError{What: "segment number", Val: int64(segno), Limit: int64(g.MainSegments)}
	}
	return nil
}

// NATBlockAddr returns the address of the live copy of the NAT block
// holding nid.  NAT segments come in pairs; a set bit in the
// checkpoint's NAT version bitmap selects the second of the pair.
func (g Geometry) NATBlockAddr(nid f2fsprim.NID, natBitmap []byte) f2fsprim.BlockAddr {
	blockOff := uint32(nid) / NATEntriesPerBlock
	segOff := blockOff / g.BlocksPerSeg
	addr := g.NATBlkAddr + f2fsprim.BlockAddr(segOff*g.BlocksPerSeg*2+blockOff%g.BlocksPerSeg)
	if testVersionBit(natBitmap, blockOff) {
		addr += f2fsprim.BlockAddr(g.BlocksPerSeg)
	}
	return addr
}

// SITBlockAddr returns the address of the live copy of the SIT block
// holding segno.  The two copies of the SIT are each SITBlocks long;
// a set bit in the checkpoint's SIT version bitmap selects the second.
func (g Geometry) SITBlockAddr(segno f2fsprim.SegNo, sitBitmap []byte) f2fsprim.BlockAddr {
	blockOff := uint32(segno) / SITEntriesPerBlock
	addr := g.SITBlkAddr + f2fsprim.BlockAddr(blockOff)
	if testVersionBit(sitBitmap, blockOff) {
		addr += f2fsprim.BlockAddr(g.SITBlocks)
	}
	return addr
}

// SSABlockAddr returns the address of the on-disk summary block for
// segno.
func (g Geometry) SSABlockAddr(segno f2fsprim.SegNo) f2fsprim.BlockAddr {
	return g.SSABlkAddr + f2fsprim.BlockAddr(segno)
}

// testVersionBit treats bits past the end of a short bitmap as
// clear.
func testVersionBit(bitmap []byte, nr uint32) bool {
	if int(nr/8) >= len(bitmap) {
		return false
	}
	return f2fsprim.TestBit(bitmap, nr)
}
