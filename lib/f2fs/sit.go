// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package f2fs

import (
	"context"

	"git.lukeshu.com/f2fs-progs-ng/lib/binstruct"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs/f2fsprim"
)

// SITJournal returns the SIT updates carried in the checkpoint.
func (fs *FS) SITJournal() []SITJournalEntry {
	return fs.sitJournal
}

func (fs *FS) sitJournalLookup(segno f2fsprim.SegNo) (SITEntry, bool) {
	var ret SITEntry
	var ok bool
	for _, ent := range fs.sitJournal {
		if ent.SegNo == segno {
			ret, ok = ent.Entry, true
		}
	}
	return ret, ok
}

// SegmentInfo returns the SIT entry for a main-area segment, giving
// the checkpoint's journal precedence over the on-disk table.
func (fs *FS) SegmentInfo(segno f2fsprim.SegNo) (SITEntry, error) {
	if err := fs.Geometry.checkSegNo(segno); err != nil {
		return SITEntry{}, err
	}
	if ent, ok := fs.sitJournalLookup(segno); ok {
		return ent, nil
	}
	var ent SITEntry
	addr := fs.Geometry.SITBlockAddr(segno, fs.sitBitmap)
	err := fs.withBlock("read SIT block", addr, func(block []byte) error {
		off := int(uint32(segno)%SITEntriesPerBlock) * sitEntrySize
		_, err := binstruct.Unmarshal(block[off:], &ent)
		return err
	})
	return ent, err
}

// SITRange calls fn for each segment in [start, end) in increasing
// order.  An end of -1 means the number of main-area segments.
func (fs *FS) SITRange(ctx context.Context, start, end int64, fn func(f2fsprim.SegNo, SITEntry) error) error {
	start, end, err := checkRange("segment number", start, end, int64(fs.Geometry.MainSegments))
	if err != nil {
		return err
	}
	journal := make(map[f2fsprim.SegNo]SITEntry, len(fs.sitJournal))
	for _, ent := range fs.sitJournal {
		journal[ent.SegNo] = ent.Entry
	}

	var block SITBlock
	blockIdx := int64(-1)
	for segno := start; segno < end; segno++ {
		if idx := segno / SITEntriesPerBlock; idx != blockIdx {
			if err := ctx.Err(); err != nil {
				return err
			}
			addr := fs.Geometry.SITBlockAddr(f2fsprim.SegNo(segno), fs.sitBitmap)
			err := fs.withBlock("read SIT block", addr, func(dat []byte) error {
				_, err := binstruct.Unmarshal(dat, &block)
				return err
			})
			if err != nil {
				return err
			}
			blockIdx = idx
		}
		ent, ok := journal[f2fsprim.SegNo(segno)]
		if !ok {
			ent = block.Entries[segno%SITEntriesPerBlock]
		}
		if err := fn(f2fsprim.SegNo(segno), ent); err != nil {
			return err
		}
	}
	return nil
}

// IsBlockValid returns whether the SIT marks a main-area block as in
// use.
func (fs *FS) IsBlockValid(addr f2fsprim.BlockAddr) (bool, error) {
	segno, off, err := fs.Geometry.SegOf(addr)
	if err != nil {
		return false, err
	}
	ent, err := fs.SegmentInfo(segno)
	if err != nil {
		return false, err
	}
	return ent.ValidMap.Test(off), nil
}
