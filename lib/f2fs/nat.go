// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package f2fs

import (
	"context"

	"git.lukeshu.com/f2fs-progs-ng/lib/binstruct"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs/f2fsprim"
)

// NATJournal returns the NAT updates carried in the checkpoint.
func (fs *FS) NATJournal() []NATJournalEntry {
	return fs.natJournal
}

// natJournalLookup returns the last journal entry for nid; a later
// entry for the same nid supersedes an earlier one.
func (fs *FS) natJournalLookup(nid f2fsprim.NID) (NATEntry, bool) {
	var ret NATEntry
	var ok bool
	for _, ent := range fs.natJournal {
		if ent.NID == nid {
			ret, ok = ent.Entry, true
		}
	}
	return ret, ok
}

// ResolveNID returns the NAT entry for nid.  An unallocated nid is
// not an error; check NATEntry.IsAllocated.
func (fs *FS) ResolveNID(nid f2fsprim.NID) (NATEntry, error) {
	if err := fs.Geometry.checkNID(nid); err != nil {
		return NATEntry{}, err
	}
	if ent, ok := fs.natJournalLookup(nid); ok {
		return ent, nil
	}
	var ent NATEntry
	addr := fs.Geometry.NATBlockAddr(nid, fs.natBitmap)
	err := fs.withBlock("read NAT block", addr, func(block []byte) error {
		off := int(uint32(nid)%NATEntriesPerBlock) * natEntrySize
		_, err := binstruct.Unmarshal(block[off:], &ent)
		return err
	})
	return ent, err
}

// NATRange calls fn for each nid in [start, end) in increasing order,
// reading each NAT block once.  An end of -1 means MaxNID.
func (fs *FS) NATRange(ctx context.Context, start, end int64, fn func(f2fsprim.NID, NATEntry) error) error {
	start, end, err := checkRange("node id", start, end, int64(fs.Geometry.MaxNID))
	if err != nil {
		return err
	}
	journal := make(map[f2fsprim.NID]NATEntry, len(fs.natJournal))
	for _, ent := range fs.natJournal {
		journal[ent.NID] = ent.Entry
	}

	var block NATBlock
	blockIdx := int64(-1)
	for nid := start; nid < end; nid++ {
		if idx := nid / NATEntriesPerBlock; idx != blockIdx {
			if err := ctx.Err(); err != nil {
				return err
			}
			addr := fs.Geometry.NATBlockAddr(f2fsprim.NID(nid), fs.natBitmap)
			err := fs.withBlock("read NAT block", addr, func(dat []byte) error {
				_, err := binstruct.Unmarshal(dat, &block)
				return err
			})
			if err != nil {
				return err
			}
			blockIdx = idx
		}
		ent, ok := journal[f2fsprim.NID(nid)]
		if !ok {
			ent = block.Entries[nid%NATEntriesPerBlock]
		}
		if err := fn(f2fsprim.NID(nid), ent); err != nil {
			return err
		}
	}
	return nil
}

// checkRange validates a half-open range against [0, limit), filling
// in an end of -1 as limit.
func checkRange(what string, start, end, limit int64) (int64, int64, error) {
	if end == -1 {
		end = limit
	}
	if start < 0 || start > limit {
		return 0, 0, &RangeError{What: what, Val: start, Limit: limit}
	}
	if end < start || end > limit {
		return 0, 0, &RangeError{What: what, Val: end, Limit: limit}
	}
	return start, end, nil
}
