// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package f2fsmkfs

import (
	"git.lukeshu.com/f2fs-progs-ng/lib/binstruct"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs/f2fsprim"
)

const (
	checkpointHeadSize = 0xc0
	summaryJournalSize = 0x1fb
	summaryEntrySize   = 7
	summaryFooterSize  = 5
)

// checkpointPack returns the blocks of one checkpoint pack: head,
// payload, data summaries, node summaries (after a clean unmount),
// tail.
func (b *Builder) checkpointPack(version uint64) ([][]byte, error) {
	var cp f2fs.Checkpoint
	cp.Version = version
	cp.ChecksumOffset = f2fs.CheckpointCRCOffset
	if !b.unclean {
		cp.Flags |= f2fs.CheckpointUmount
	}
	if b.compact {
		cp.Flags |= f2fs.CheckpointCompactSum
	}
	if b.largeNATBitmap {
		cp.Flags |= f2fs.CheckpointLargeNATBitmap
		cp.ChecksumOffset = checkpointHeadSize
	}

	var dataSums, nodeSums [f2fs.NumCursegTypes]f2fs.SummaryBlock
	for i := 0; i < f2fs.NumCursegTypes; i++ {
		nodeSeg := logSegment(f2fs.SegHotNode + f2fs.SegType(i))
		dataSeg := logSegment(f2fs.SegHotData + f2fs.SegType(i))
		cp.CurNodeSegNo[i] = nodeSeg
		cp.CurNodeBlkOff[i] = uint16(b.cursors[nodeSeg])
		cp.CurDataSegNo[i] = dataSeg
		cp.CurDataBlkOff[i] = uint16(b.cursors[dataSeg])
		nodeSums[i] = b.SSA[nodeSeg]
		dataSums[i] = b.SSA[dataSeg]
	}
	if err := dataSums[f2fs.SegHotData].Journal.SetNATEntries(b.NATJournal); err != nil {
		return nil, err
	}
	if err := dataSums[f2fs.SegColdData].Journal.SetSITEntries(b.SITJournal); err != nil {
		return nil, err
	}

	var sumBlocks [][]byte
	if b.compact {
		blocks, err := compactSummaries(dataSums, cp.CurDataBlkOff)
		if err != nil {
			return nil, err
		}
		sumBlocks = append(sumBlocks, blocks...)
	} else {
		for i := range dataSums {
			dat, err := binstruct.Marshal(dataSums[i])
			if err != nil {
				return nil, err
			}
			sumBlocks = append(sumBlocks, dat)
		}
	}
	if !b.unclean {
		for i := range nodeSums {
			dat, err := binstruct.Marshal(nodeSums[i])
			if err != nil {
				return nil, err
			}
			sumBlocks = append(sumBlocks, dat)
		}
	}

	cp.PackStartSum = 1 + b.payload
	cp.PackTotalBlockCount = 1 + b.payload + uint32(len(sumBlocks)) + 1
	cp.SITVerBitmapBytes = uint32(len(b.SITBitmap))
	cp.NATVerBitmapBytes = uint32(len(b.NATBitmap))
	cp.UserBlockCount = uint64(b.mainSegments) * blocksPerSeg
	cp.FreeSegmentCount = b.mainSegments
	for _, ent := range b.SIT {
		cp.ValidBlockCount += uint64(ent.ValidBlocks())
		if ent.ValidBlocks() > 0 {
			cp.FreeSegmentCount--
		}
	}
	for nid, ent := range b.NAT {
		if !ent.IsAllocated() {
			continue
		}
		cp.ValidNodeCount++
		if nid == ent.Ino {
			cp.ValidInodeCount++
		}
		if nid >= cp.NextFreeNID {
			cp.NextFreeNID = nid + 1
		}
	}

	payload := make([]byte, int(b.payload)*f2fsprim.BlockSize)
	var body []byte
	switch {
	case b.largeNATBitmap:
		body = append(make([]byte, 4), b.NATBitmap...)
		body = append(body, b.SITBitmap...)
	case b.payload > 0:
		body = b.NATBitmap
		copy(payload, b.SITBitmap)
	default:
		body = append(append([]byte(nil), b.SITBitmap...), b.NATBitmap...)
	}
	head, err := f2fs.MarshalCheckpointBlock(cp, body)
	if err != nil {
		return nil, err
	}

	pack := [][]byte{head}
	for i := 0; i < int(b.payload); i++ {
		pack = append(pack, payload[i*f2fsprim.BlockSize:(i+1)*f2fsprim.BlockSize])
	}
	pack = append(pack, sumBlocks...)
	pack = append(pack, head)
	return pack, nil
}

// compactSummaries packs both journals and the used summary entries
// of the data logs into as few blocks as possible.
func compactSummaries(sums [f2fs.NumCursegTypes]f2fs.SummaryBlock, blkoff [8]uint16) ([][]byte, error) {
	block := make([]byte, f2fsprim.BlockSize)
	blocks := [][]byte{block}

	hot, err := binstruct.Marshal(sums[f2fs.SegHotData].Journal)
	if err != nil {
		return nil, err
	}
	cold, err := binstruct.Marshal(sums[f2fs.SegColdData].Journal)
	if err != nil {
		return nil, err
	}
	copy(block, hot)
	copy(block[summaryJournalSize:], cold)

	off := 2 * summaryJournalSize
	for i := range sums {
		for j := 0; j < int(blkoff[i]); j++ {
			dat, err := binstruct.Marshal(sums[i].Entries[j])
			if err != nil {
				return nil, err
			}
			copy(block[off:], dat)
			off += summaryEntrySize
			if off+summaryEntrySize <= f2fsprim.BlockSize-summaryFooterSize {
				continue
			}
			block = make([]byte, f2fsprim.BlockSize)
			blocks = append(blocks, block)
			off = 0
		}
	}
	return blocks, nil
}
