// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package f2fs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/datawire/dlib/dlog"

	"git.lukeshu.com/f2fs-progs-ng/lib/binstruct"
	"git.lukeshu.com/f2fs-progs-ng/lib/containers"
	"git.lukeshu.com/f2fs-progs-ng/lib/diskio"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs/f2fsprim"
)

// FS is an opened image: the device, the selected superblock and
// checkpoint, and the tables the checkpoint carries.  It is not
// modified after Open returns, so every query may be repeated.
type FS struct {
	File       diskio.File[f2fsprim.PhysicalAddr]
	Superblock SuperblockSelection
	Checkpoint CheckpointSelection
	Geometry   Geometry

	packAddr   f2fsprim.BlockAddr
	natBitmap  []byte
	sitBitmap  []byte
	natJournal []NATJournalEntry
	sitJournal []SITJournalEntry
	cursegs    [2 * NumCursegTypes]Curseg

	blockPool containers.SlicePool[byte]
}

// Curseg is a segment that was open for writing when the checkpoint
// was taken.  Sum is the copy of its summary block carried in the
// checkpoint pack, or nil if the on-disk SSA copy is current.
type Curseg struct {
	Type  SegType
	SegNo f2fsprim.SegNo
	Sum   *SummaryBlock
}

// Open reads the superblock and checkpoint of the image in file.  Only
// IOError and FormatError are returned.
func Open(ctx context.Context, file diskio.File[f2fsprim.PhysicalAddr]) (*FS, error) {
	fs := &FS{
		File:      file,
		blockPool: containers.SlicePool[byte]{Size: f2fsprim.BlockSize},
	}
	imageBlocks := uint64(file.Size()) / f2fsprim.BlockSize

	var sbBlocks [2][]byte
	for i := range sbBlocks {
		block, err := fs.ReadBlock(f2fsprim.BlockAddr(i))
		if err != nil {
			return nil, err
		}
		sbBlocks[i] = block
	}
	sbSel, err := SelectSuperblock(sbBlocks, imageBlocks)
	if err != nil {
		return nil, err
	}
	if sbSel.Copy != 0 {
		dlog.Warnf(ctx, "superblock copy 0 is invalid, using copy %d: %v", sbSel.Copy, sbSel.CopyErrs[0])
	}
	fs.Superblock = sbSel
	fs.Geometry = NewGeometry(sbSel.Superblock)
	dlog.Debugf(ctx, "geometry: cp=%v sit=%v nat=%v ssa=%v main=%v main_segments=%v max_nid=%v",
		fs.Geometry.CPBlkAddr, fs.Geometry.SITBlkAddr, fs.Geometry.NATBlkAddr, fs.Geometry.SSABlkAddr,
		fs.Geometry.MainBlkAddr, fs.Geometry.MainSegments, fs.Geometry.MaxNID)

	var slots [2]CheckpointSlot
	for i := range slots {
		slots[i], err = fs.readCheckpointSlot(i)
		if err != nil {
			return nil, err
		}
	}
	cpSel, err := SelectCheckpoint(slots, fs.Geometry.BlocksPerSeg)
	if err != nil {
		return nil, err
	}
	for i, slotErr := range cpSel.SlotErrs {
		if slotErr != nil {
			dlog.Warnf(ctx, "checkpoint pack %d is invalid: %v", i, slotErr)
		}
	}
	if cpSel.Anomalous {
		dlog.Warnf(ctx, "both checkpoint packs have version %v; using pack 0", cpSel.Checkpoint.Version)
	}
	dlog.Debugf(ctx, "using checkpoint pack %d, version %v, flags %v",
		cpSel.Slot, cpSel.Checkpoint.Version, cpSel.Checkpoint.Flags)
	fs.Checkpoint = cpSel
	fs.packAddr = fs.Geometry.checkpointPackAddr(cpSel.Slot)

	if err := fs.loadVersionBitmaps(slots[cpSel.Slot].Head); err != nil {
		return nil, err
	}
	if err := fs.loadCursegs(); err != nil {
		return nil, err
	}
	dlog.Debugf(ctx, "checkpoint journals: %d NAT entries, %d SIT entries",
		len(fs.natJournal), len(fs.sitJournal))
	return fs, nil
}

func (fs *FS) Close() error {
	return fs.File.Close()
}

// ReadBlock returns a copy of the block at addr.
func (fs *FS) ReadBlock(addr f2fsprim.BlockAddr) ([]byte, error) {
	block := make([]byte, f2fsprim.BlockSize)
	if err := fs.readBlockInto(block, "read block", addr); err != nil {
		return nil, err
	}
	return block, nil
}

func (fs *FS) readBlockInto(buf []byte, op string, addr f2fsprim.BlockAddr) error {
	n, err := fs.File.ReadAt(buf, addr.Physical())
	if err == nil && n < len(buf) {
		err = io.ErrUnexpectedEOF
	}
	if errors.Is(err, io.EOF) && n == len(buf) {
		err = nil
	}
	if err != nil {
		return &IOError{Op: op, Addr: addr, Err: err}
	}
	return nil
}

// withBlock reads the block at addr into a pooled buffer and hands it
// to fn; the buffer must not be retained after fn returns.
func (fs *FS) withBlock(op string, addr f2fsprim.BlockAddr, fn func([]byte) error) error {
	buf := fs.blockPool.Get()
	defer fs.blockPool.Put(buf)
	if err := fs.readBlockInto(buf, op, addr); err != nil {
		return err
	}
	return fn(buf)
}

// readCheckpointSlot reads the head of a checkpoint pack and, if the
// head says where it is, the tail.
func (fs *FS) readCheckpointSlot(slot int) (CheckpointSlot, error) {
	var ret CheckpointSlot
	addr := fs.Geometry.checkpointPackAddr(slot)
	head, err := fs.ReadBlock(addr)
	if err != nil {
		return ret, err
	}
	ret.Head = head
	var cp Checkpoint
	if _, err := binstruct.Unmarshal(head, &cp); err != nil {
		return ret, nil //nolint:nilerr // The selector reports the bad head.
	}
	if cp.PackTotalBlockCount < 2 || cp.PackTotalBlockCount > fs.Geometry.BlocksPerSeg {
		return ret, nil
	}
	tail, err := fs.ReadBlock(addr + f2fsprim.BlockAddr(cp.PackTotalBlockCount-1))
	if err != nil {
		return ret, err
	}
	ret.Tail = tail
	return ret, nil
}

// loadVersionBitmaps locates the NAT and SIT version bitmaps.  They
// follow the checkpoint head, and may spill into the payload blocks
// after it, in one of three layouts.
func (fs *FS) loadVersionBitmaps(head []byte) error {
	cp := fs.Checkpoint.Checkpoint
	payload := fs.Superblock.Superblock.CPPayload

	area := append([]byte(nil), head...)
	for i := uint32(0); i < payload; i++ {
		block, err := fs.ReadBlock(fs.packAddr + f2fsprim.BlockAddr(1+i))
		if err != nil {
			return err
		}
		area = append(area, block...)
	}

	sitSize := int(cp.SITVerBitmapBytes)
	natSize := int(cp.NATVerBitmapBytes)
	var sitOff, natOff int
	switch {
	case cp.Flags.Has(CheckpointLargeNATBitmap):
		natOff = checkpointHeadSize + 4
		sitOff = natOff + natSize
	case payload > 0:
		natOff = checkpointHeadSize
		sitOff = f2fsprim.BlockSize
	default:
		sitOff = checkpointHeadSize
		natOff = sitOff + sitSize
	}
	if sitOff+sitSize > len(area) || natOff+natSize > len(area) {
		return &FormatError{
			What: "checkpoint",
			Err: fmt.Errorf("version bitmaps (SIT %v bytes at %#x, NAT %v bytes at %#x) overflow the %v-byte checkpoint area",
				sitSize, sitOff, natSize, natOff, len(area)),
		}
	}
	if need := int(fs.Geometry.NATBlocks+7) / 8; natSize < need {
		return &FormatError{What: "checkpoint", Err: fmt.Errorf("NAT version bitmap is %v bytes, need %v", natSize, need)}
	}
	if need := int(fs.Geometry.SITBlocks+7) / 8; sitSize < need {
		return &FormatError{What: "checkpoint", Err: fmt.Errorf("SIT version bitmap is %v bytes, need %v", sitSize, need)}
	}
	fs.sitBitmap = area[sitOff : sitOff+sitSize]
	fs.natBitmap = area[natOff : natOff+natSize]
	return nil
}

// Cursegs returns the segments that were open when the checkpoint was
// taken: the three data logs followed by the three node logs.
func (fs *FS) Cursegs() []Curseg {
	return fs.cursegs[:]
}

// summaryAddr is the block of the checkpoint pack that carries the
// summary of a current segment when summaries are stored one per
// block.  The node summaries are only present after a clean unmount.
func (fs *FS) summaryAddr(typ SegType) (f2fsprim.BlockAddr, bool) {
	cp := fs.Checkpoint.Checkpoint
	end := fs.packAddr + f2fsprim.BlockAddr(cp.PackTotalBlockCount)
	umount := cp.Flags.Has(CheckpointUmount)
	switch {
	case typ.IsData() && umount:
		return end - 2*NumCursegTypes - 1 + f2fsprim.BlockAddr(typ), true
	case typ.IsData():
		return end - NumCursegTypes - 1 + f2fsprim.BlockAddr(typ), true
	case umount:
		return end - NumCursegTypes - 1 + f2fsprim.BlockAddr(typ-SegHotNode), true
	default:
		return 0, false
	}
}

func (fs *FS) loadCursegs() error {
	cp := fs.Checkpoint.Checkpoint
	for i := 0; i < NumCursegTypes; i++ {
		fs.cursegs[i] = Curseg{Type: SegHotData + SegType(i), SegNo: cp.CurDataSegNo[i]}
		fs.cursegs[NumCursegTypes+i] = Curseg{Type: SegHotNode + SegType(i), SegNo: cp.CurNodeSegNo[i]}
	}

	first := 0
	if cp.Flags.Has(CheckpointCompactSum) {
		if err := fs.loadCompactSummaries(); err != nil {
			return err
		}
		first = NumCursegTypes
	}
	for i := first; i < len(fs.cursegs); i++ {
		addr, ok := fs.summaryAddr(fs.cursegs[i].Type)
		if !ok {
			sum, err := fs.restoreNodeSummary(fs.cursegs[i].SegNo, cp.CurNodeBlkOff[i-NumCursegTypes])
			if err != nil {
				return err
			}
			fs.cursegs[i].Sum = sum
			continue
		}
		sum := new(SummaryBlock)
		err := fs.withBlock("read checkpoint summary", addr, func(block []byte) error {
			_, err := binstruct.Unmarshal(block, sum)
			return err
		})
		if err != nil {
			return wrapCheckpointErr(err)
		}
		fs.cursegs[i].Sum = sum
	}

	var err error
	fs.natJournal, err = fs.cursegs[SegHotData].Sum.Journal.NATEntries()
	if err != nil {
		return &FormatError{What: "checkpoint NAT journal", Err: err}
	}
	fs.sitJournal, err = fs.cursegs[SegColdData].Sum.Journal.SITEntries()
	if err != nil {
		return &FormatError{What: "checkpoint SIT journal", Err: err}
	}
	for _, ent := range fs.sitJournal {
		if err := fs.Geometry.checkSegNo(ent.SegNo); err != nil {
			return &FormatError{What: "checkpoint SIT journal", Err: err}
		}
	}
	return nil
}

// restoreNodeSummary rebuilds the summary of an open node log from the
// footers of the blocks written to it so far.  Without a clean unmount
// the checkpoint carries no node summaries, and the SSA block of an
// open segment is not written until the segment is closed.  A segment
// number outside the main area gives nil.
func (fs *FS) restoreNodeSummary(segno f2fsprim.SegNo, blkoff uint16) (*SummaryBlock, error) {
	if fs.Geometry.checkSegNo(segno) != nil {
		return nil, nil
	}
	n := uint32(blkoff)
	if n > fs.Geometry.BlocksPerSeg {
		n = fs.Geometry.BlocksPerSeg
	}
	if n > SummaryEntriesPerBlock {
		n = SummaryEntriesPerBlock
	}
	sum := new(SummaryBlock)
	sum.Footer.EntryType = SummaryNode
	start := fs.Geometry.SegStart(segno)
	for off := uint32(0); off < n; off++ {
		var footer NodeFooter
		err := fs.withBlock("restore node summary", start+f2fsprim.BlockAddr(off), func(block []byte) error {
			_, err := binstruct.Unmarshal(block[nodeBodySize:], &footer)
			return err
		})
		if err != nil {
			return nil, err
		}
		sum.Entries[off].NID = footer.NID
	}
	return sum, nil
}

// loadCompactSummaries decodes the packed form of the data summaries:
// both journals back to back, then the used entries of each data log,
// flowing across as many blocks as needed.
func (fs *FS) loadCompactSummaries() error {
	cp := fs.Checkpoint.Checkpoint
	addr := fs.packAddr + f2fsprim.BlockAddr(cp.PackStartSum)
	block, err := fs.ReadBlock(addr)
	if err != nil {
		return err
	}

	var sums [NumCursegTypes]*SummaryBlock
	for i := range sums {
		sums[i] = &SummaryBlock{Footer: SummaryFooter{EntryType: SummaryData}}
	}
	if _, err := binstruct.Unmarshal(block[:summaryJournalSize], &sums[SegHotData].Journal); err != nil {
		return wrapCheckpointErr(err)
	}
	if _, err := binstruct.Unmarshal(block[summaryJournalSize:], &sums[SegColdData].Journal); err != nil {
		return wrapCheckpointErr(err)
	}

	off := 2 * summaryJournalSize
	for i := range sums {
		n := int(cp.CurDataBlkOff[i])
		if cp.AllocType[i] == allocSSR {
			n = SummaryEntriesPerBlock
		}
		if n > SummaryEntriesPerBlock {
			return &FormatError{
				What: "checkpoint",
				Err:  fmt.Errorf("data log %d: block offset %v past end of segment", i, n),
			}
		}
		for j := 0; j < n; j++ {
			if _, err := binstruct.Unmarshal(block[off:], &sums[i].Entries[j]); err != nil {
				return wrapCheckpointErr(err)
			}
			off += summaryEntrySize
			if off+summaryEntrySize <= f2fsprim.BlockSize-summaryFooterSize {
				continue
			}
			addr++
			if block, err = fs.ReadBlock(addr); err != nil {
				return err
			}
			off = 0
		}
	}
	for i, sum := range sums {
		fs.cursegs[i].Sum = sum
	}
	return nil
}

// allocSSR is the allocation mode of a log that fills holes in old
// segments; such a log's compact summary always has a full segment of
// entries.
const allocSSR = 1

func wrapCheckpointErr(err error) error {
	var ioErr *IOError
	if errors.As(err, &ioErr) {
		return err
	}
	return &FormatError{What: "checkpoint summary", Err: err}
}
