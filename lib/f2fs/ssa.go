// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package f2fs

import (
	"context"

	"git.lukeshu.com/f2fs-progs-ng/lib/binstruct"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs/f2fsprim"
)

// cursegSummary returns the checkpoint's copy of the summary for
// segno, if segno is a current segment whose summary the checkpoint
// carries.
func (fs *FS) cursegSummary(segno f2fsprim.SegNo) (*SummaryBlock, bool) {
	// Node logs are checked before data logs.
	for i := len(fs.cursegs) - 1; i >= 0; i-- {
		if curseg := fs.cursegs[i]; curseg.SegNo == segno && curseg.Sum != nil {
			return curseg.Sum, true
		}
	}
	return nil, false
}

// SegmentSummary returns the summary block for a main-area segment.
// The returned block must not be modified.
func (fs *FS) SegmentSummary(segno f2fsprim.SegNo) (*SummaryBlock, error) {
	if err := fs.Geometry.checkSegNo(segno); err != nil {
		return nil, err
	}
	if sum, ok := fs.cursegSummary(segno); ok {
		return sum, nil
	}
	sum := new(SummaryBlock)
	err := fs.withBlock("read SSA block", fs.Geometry.SSABlockAddr(segno), func(block []byte) error {
		_, err := binstruct.Unmarshal(block, sum)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sum, nil
}

// OwnerOf returns the summary entry that claims a main-area block.
// Blocks outside the main area are a *DomainError.
func (fs *FS) OwnerOf(addr f2fsprim.BlockAddr) (Summary, error) {
	segno, off, err := fs.Geometry.SegOf(addr)
	if err != nil {
		return Summary{}, err
	}
	sum, err := fs.SegmentSummary(segno)
	if err != nil {
		return Summary{}, err
	}
	return sum.Entries[off], nil
}

// SSARange calls fn for each segment's summary block in [start, end).
// An end of -1 means the number of main-area segments.
func (fs *FS) SSARange(ctx context.Context, start, end int64, fn func(f2fsprim.SegNo, *SummaryBlock) error) error {
	start, end, err := checkRange("segment number", start, end, int64(fs.Geometry.MainSegments))
	if err != nil {
		return err
	}
	for segno := start; segno < end; segno++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		sum, err := fs.SegmentSummary(f2fsprim.SegNo(segno))
		if err != nil {
			return err
		}
		if err := fn(f2fsprim.SegNo(segno), sum); err != nil {
			return err
		}
	}
	return nil
}
