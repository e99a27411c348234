// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package f2fsmkfs builds small F2FS images in memory, with direct
// control over every table, for use as test fixtures.
package f2fsmkfs

import (
	"fmt"

	"github.com/google/uuid"

	"git.lukeshu.com/f2fs-progs-ng/lib/binstruct"
	"git.lukeshu.com/f2fs-progs-ng/lib/diskio"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs/f2fsprim"
)

const (
	logBlocksPerSeg = 9
	blocksPerSeg    = 1 << logBlocksPerSeg

	// Segment0BlkAddr is where the checkpoint area starts; blocks
	// before it hold the superblocks.
	Segment0BlkAddr = f2fsprim.BlockAddr(blocksPerSeg)

	RootIno = f2fsprim.NID(3)
	NodeIno = f2fsprim.NID(1)
	MetaIno = f2fsprim.NID(2)
)

// Builder accumulates the contents of an image.  The exported tables
// may be edited directly between calls to produce damaged images.
type Builder struct {
	mainSegments   uint32
	label          string
	compact        bool
	unclean        bool
	largeNATBitmap bool
	payload        uint32
	versions       [2]uint64

	Superblock f2fs.Superblock
	Geometry   f2fs.Geometry

	NAT        map[f2fsprim.NID]f2fs.NATEntry
	NATJournal []f2fs.NATJournalEntry
	SIT        []f2fs.SITEntry
	SITJournal []f2fs.SITJournalEntry
	SSA        []f2fs.SummaryBlock
	NATBitmap  []byte
	SITBitmap  []byte

	blocks  map[f2fsprim.BlockAddr][]byte
	cursors [f2fs.NumCursegTypes * 2]uint32
}

// New returns a Builder for an empty image.  The first six main
// segments are the current segments: hot, warm and cold node logs,
// then hot, warm and cold data logs.
func New(opts ...Option) *Builder {
	b := &Builder{
		mainSegments: 8,
		label:        "f2fs-fixture",
		versions:     [2]uint64{2, 1},
		NAT:          make(map[f2fsprim.NID]f2fs.NATEntry),
		blocks:       make(map[f2fsprim.BlockAddr][]byte),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.mainSegments < f2fs.NumCursegTypes*2 {
		b.mainSegments = f2fs.NumCursegTypes * 2
	}
	b.initSuperblock()
	b.Geometry = f2fs.NewGeometry(b.Superblock)

	b.SIT = make([]f2fs.SITEntry, b.mainSegments)
	b.SSA = make([]f2fs.SummaryBlock, b.mainSegments)
	for t := f2fs.SegHotData; t <= f2fs.SegColdNode; t++ {
		segno := logSegment(t)
		b.SIT[segno].SetVBlocks(t, 0)
		if t.IsNode() {
			b.SSA[segno].Footer.EntryType = f2fs.SummaryNode
		}
	}
	b.NATBitmap = make([]byte, (b.Geometry.NATBlocks+7)/8)
	b.SITBitmap = make([]byte, (b.Geometry.SITBlocks+7)/8)
	return b
}

func (b *Builder) initSuperblock() {
	ssaSegs := (b.mainSegments + blocksPerSeg - 1) / blocksPerSeg
	sb := f2fs.Superblock{
		Magic:              f2fs.SuperblockMagic,
		MajorVer:           1,
		MinorVer:           16,
		LogSectorSize:      9,
		LogSectorsPerBlock: 3,
		LogBlockSize:       12,
		LogBlocksPerSeg:    logBlocksPerSeg,
		SegsPerSec:         1,
		SecsPerZone:        1,
		ChecksumOffset:     0xbfc,

		SectionCount:     b.mainSegments,
		SegmentCountCkpt: 2,
		SegmentCountSIT:  2,
		SegmentCountNAT:  2,
		SegmentCountSSA:  ssaSegs,
		SegmentCountMain: b.mainSegments,

		Segment0BlkAddr: Segment0BlkAddr,
		CPBlkAddr:       Segment0BlkAddr,

		RootIno: RootIno,
		NodeIno: NodeIno,
		MetaIno: MetaIno,

		UUID:      f2fsprim.UUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(b.label))),
		CPPayload: b.payload,
		Features:  f2fs.FeatureSBChecksum,
	}
	sb.SegmentCount = sb.SegmentCountCkpt + sb.SegmentCountSIT + sb.SegmentCountNAT + sb.SegmentCountSSA + sb.SegmentCountMain
	sb.SITBlkAddr = sb.CPBlkAddr + f2fsprim.BlockAddr(sb.SegmentCountCkpt*blocksPerSeg)
	sb.NATBlkAddr = sb.SITBlkAddr + f2fsprim.BlockAddr(sb.SegmentCountSIT*blocksPerSeg)
	sb.SSABlkAddr = sb.NATBlkAddr + f2fsprim.BlockAddr(sb.SegmentCountNAT*blocksPerSeg)
	sb.MainBlkAddr = sb.SSABlkAddr + f2fsprim.BlockAddr(sb.SegmentCountSSA*blocksPerSeg)
	sb.BlockCount = uint64(sb.MainBlkAddr) + uint64(sb.SegmentCountMain)*blocksPerSeg
	copy(sb.Version[:], "f2fs-progs-ng")
	copy(sb.InitVersion[:], "f2fs-progs-ng")
	if err := sb.SetName(b.label); err != nil {
		panic(err)
	}
	b.Superblock = sb
}

// logSegment is the main-area segment used for the log of type t.
func logSegment(t f2fs.SegType) f2fsprim.SegNo {
	if t.IsNode() {
		return f2fsprim.SegNo(t - f2fs.SegHotNode)
	}
	return f2fsprim.SegNo(t + f2fs.NumCursegTypes)
}

// Alloc returns the next unused block of the log for type t.
func (b *Builder) Alloc(t f2fs.SegType) (f2fsprim.BlockAddr, error) {
	segno := logSegment(t)
	for ; b.cursors[segno] < blocksPerSeg; b.cursors[segno]++ {
		addr := b.Geometry.SegStart(segno) + f2fsprim.BlockAddr(b.cursors[segno])
		if _, used := b.blocks[addr]; !used {
			b.cursors[segno]++
			return addr, nil
		}
	}
	return 0, fmt.Errorf("%v log segment %v is full", t, segno)
}

// WriteBlock stores raw block content without touching any table.
func (b *Builder) WriteBlock(addr f2fsprim.BlockAddr, dat []byte) {
	block := make([]byte, f2fsprim.BlockSize)
	copy(block, dat)
	b.blocks[addr] = block
}

// SetValid sets or clears the SIT bit for a main-area block.
func (b *Builder) SetValid(addr f2fsprim.BlockAddr, valid bool) error {
	segno, off, err := b.Geometry.SegOf(addr)
	if err != nil {
		return err
	}
	ent := &b.SIT[segno]
	if ent.ValidMap.Test(off) != valid {
		ent.ValidMap.Set(off, valid)
		ent.SetVBlocks(ent.Type(), uint16(ent.ValidMap.Count()))
	}
	return nil
}

// SetSegmentType changes the type recorded in the SIT for segno.
func (b *Builder) SetSegmentType(segno f2fsprim.SegNo, t f2fs.SegType) {
	ent := &b.SIT[segno]
	ent.SetVBlocks(t, ent.ValidBlocks())
}

// SetSummary sets the SSA entry for a main-area block.
func (b *Builder) SetSummary(addr f2fsprim.BlockAddr, sum f2fs.Summary) error {
	segno, off, err := b.Geometry.SegOf(addr)
	if err != nil {
		return err
	}
	b.SSA[segno].Entries[off] = sum
	return nil
}

func (b *Builder) claim(addr f2fsprim.BlockAddr, dat []byte, sum f2fs.Summary) error {
	if err := b.SetValid(addr, true); err != nil {
		return err
	}
	if err := b.SetSummary(addr, sum); err != nil {
		return err
	}
	b.WriteBlock(addr, dat)
	return nil
}

// AddNodeAt writes node at addr, and points the NAT, SIT and SSA at
// it.  The nid and ino are taken from the node's footer.
func (b *Builder) AddNodeAt(addr f2fsprim.BlockAddr, node *f2fs.Node) error {
	dat, err := node.MarshalBinary()
	if err != nil {
		return err
	}
	nid := node.Footer.NID
	if err := b.claim(addr, dat, f2fs.Summary{NID: nid}); err != nil {
		return fmt.Errorf("node %v: %w", nid, err)
	}
	b.NAT[nid] = f2fs.NATEntry{Ino: node.Footer.Ino, BlockAddr: addr}
	return nil
}

// AddNode allocates a block for node in the log suited to its kind.
func (b *Builder) AddNode(node *f2fs.Node) (f2fsprim.BlockAddr, error) {
	t := f2fs.SegWarmNode
	switch node.Kind {
	case f2fs.NodeIndirect, f2fs.NodeDoubleIndirect, f2fs.NodeXattr:
		t = f2fs.SegColdNode
	}
	addr, err := b.Alloc(t)
	if err != nil {
		return 0, err
	}
	return addr, b.AddNodeAt(addr, node)
}

// AddData allocates a data block owned by slot ofsInNode of node
// owner.
func (b *Builder) AddData(owner f2fsprim.NID, ofsInNode uint16, dat []byte) (f2fsprim.BlockAddr, error) {
	addr, err := b.Alloc(f2fs.SegWarmData)
	if err != nil {
		return 0, err
	}
	return addr, b.claim(addr, dat, f2fs.Summary{NID: owner, OfsInNode: ofsInNode})
}

// Build lays everything out into an image.
func (b *Builder) Build() (*diskio.MemFile[f2fsprim.PhysicalAddr], error) {
	img := diskio.NewMemFile[f2fsprim.PhysicalAddr]("f2fs-fixture.img",
		f2fsprim.PhysicalAddr(b.Superblock.BlockCount)*f2fsprim.BlockSize)
	write := func(addr f2fsprim.BlockAddr, dat []byte) error {
		_, err := img.WriteAt(dat, addr.Physical())
		return err
	}

	sb := b.Superblock
	crc, err := sb.CalculateChecksum()
	if err != nil {
		return nil, err
	}
	sb.CRC = crc
	sbDat, err := binstruct.Marshal(sb)
	if err != nil {
		return nil, err
	}
	for _, copyAddr := range []f2fsprim.BlockAddr{0, 1} {
		if _, err := img.WriteAt(sbDat, copyAddr.Physical()+f2fs.SuperblockOffset); err != nil {
			return nil, err
		}
	}

	natBlocks := make(map[uint32]*f2fs.NATBlock)
	for nid, ent := range b.NAT {
		idx := uint32(nid) / f2fs.NATEntriesPerBlock
		if natBlocks[idx] == nil {
			natBlocks[idx] = new(f2fs.NATBlock)
		}
		natBlocks[idx].Entries[uint32(nid)%f2fs.NATEntriesPerBlock] = ent
	}
	for idx, block := range natBlocks {
		dat, err := binstruct.Marshal(*block)
		if err != nil {
			return nil, err
		}
		nid := f2fsprim.NID(idx * f2fs.NATEntriesPerBlock)
		if err := write(b.Geometry.NATBlockAddr(nid, b.NATBitmap), dat); err != nil {
			return nil, err
		}
	}

	for first := 0; first < len(b.SIT); first += f2fs.SITEntriesPerBlock {
		var block f2fs.SITBlock
		copy(block.Entries[:], b.SIT[first:])
		dat, err := binstruct.Marshal(block)
		if err != nil {
			return nil, err
		}
		if err := write(b.Geometry.SITBlockAddr(f2fsprim.SegNo(first), b.SITBitmap), dat); err != nil {
			return nil, err
		}
	}

	for segno := range b.SSA {
		dat, err := binstruct.Marshal(b.SSA[segno])
		if err != nil {
			return nil, err
		}
		if err := write(b.Geometry.SSABlockAddr(f2fsprim.SegNo(segno)), dat); err != nil {
			return nil, err
		}
	}

	for addr, dat := range b.blocks {
		if err := write(addr, dat); err != nil {
			return nil, err
		}
	}

	for slot := range b.versions {
		pack, err := b.checkpointPack(b.versions[slot])
		if err != nil {
			return nil, err
		}
		start := b.Geometry.CPBlkAddr + f2fsprim.BlockAddr(slot*blocksPerSeg)
		for i, dat := range pack {
			if err := write(start+f2fsprim.BlockAddr(i), dat); err != nil {
				return nil, err
			}
		}
	}
	return img, nil
}
