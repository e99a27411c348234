// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package f2fs

import (
	"fmt"

	"git.lukeshu.com/f2fs-progs-ng/lib/binstruct"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs/f2fsprim"
)

const (
	// SummaryEntriesPerBlock is one entry per block of a segment.
	SummaryEntriesPerBlock = 512
	summaryEntrySize       = 7
	summaryJournalSize     = 0x1fb
	summaryFooterSize      = 5
	summaryFooterOffset    = f2fsprim.BlockSize - summaryFooterSize

	// NATJournalEntries is the capacity of a NAT journal.
	NATJournalEntries   = (summaryJournalSize - 2) / natJournalEntrySize
	natJournalEntrySize = 4 + natEntrySize
	// SITJournalEntries is the capacity of a SIT journal.
	SITJournalEntries   = (summaryJournalSize - 2) / sitJournalEntrySize
	sitJournalEntrySize = 4 + sitEntrySize
)

// Summary records which node owns a main-area block: for a node
// block, the node itself; for a data block, the node holding the
// pointer, and the pointer's index within it.
type Summary struct {
	NID           f2fsprim.NID `bin:"off=0x0, siz=0x4"`
	Version       uint8        `bin:"off=0x4, siz=0x1"`
	OfsInNode     uint16       `bin:"off=0x5, siz=0x2"`
	binstruct.End `bin:"off=0x7"`
}

type SummaryType uint8

const (
	SummaryData SummaryType = 0
	SummaryNode SummaryType = 1
)

func (t SummaryType) String() string {
	switch t {
	case SummaryData:
		return "data"
	case SummaryNode:
		return "node"
	default:
		return fmt.Sprintf("SummaryType(%d)", uint8(t))
	}
}

func (t SummaryType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

type SummaryFooter struct {
	EntryType     SummaryType `bin:"off=0x0, siz=0x1"`
	CheckSum      uint32      `bin:"off=0x1, siz=0x4"`
	binstruct.End `bin:"off=0x5"`
}

// Journal is the area of a summary block that the checkpoint uses to
// carry recent NAT or SIT updates without rewriting the tables.
// Count is n_nats or n_sits depending on which summary it is in.
type Journal struct {
	Count         uint16      `bin:"off=0x0, siz=0x2"`
	Body          [0x1f9]byte `bin:"off=0x2, siz=0x1f9"`
	binstruct.End `bin:"off=0x1fb"`
}

type NATJournalEntry struct {
	NID           f2fsprim.NID `bin:"off=0x0, siz=0x4"`
	Entry         NATEntry     `bin:"off=0x4, siz=0x9"`
	binstruct.End `bin:"off=0xd"`
}

type SITJournalEntry struct {
	SegNo         f2fsprim.SegNo `bin:"off=0x0, siz=0x4"`
	Entry         SITEntry       `bin:"off=0x4, siz=0x4a"`
	binstruct.End `bin:"off=0x4e"`
}

// NATEntries decodes the journal as a NAT journal.
func (j Journal) NATEntries() ([]NATJournalEntry, error) {
	if j.Count > NATJournalEntries {
		return nil, fmt.Errorf("NAT journal claims %v entries, capacity is %v", j.Count, NATJournalEntries)
	}
	ret := make([]NATJournalEntry, j.Count)
	for i := range ret {
		if _, err := binstruct.Unmarshal(j.Body[i*natJournalEntrySize:], &ret[i]); err != nil {
			return nil, err
		}
	}
	return ret, nil
}

// SITEntries decodes the journal as a SIT journal.
func (j Journal) SITEntries() ([]SITJournalEntry, error) {
	if j.Count > SITJournalEntries {
		return nil, fmt.Errorf("SIT journal claims %v entries, capacity is %v", j.Count, SITJournalEntries)
	}
	ret := make([]SITJournalEntry, j.Count)
	for i := range ret {
		if _, err := binstruct.Unmarshal(j.Body[i*sitJournalEntrySize:], &ret[i]); err != nil {
			return nil, err
		}
	}
	return ret, nil
}

// SetNATEntries encodes entries as a NAT journal.
func (j *Journal) SetNATEntries(entries []NATJournalEntry) error {
	return j.setEntries(len(entries), NATJournalEntries, func(i int) any { return entries[i] })
}

// SetSITEntries encodes entries as a SIT journal.
func (j *Journal) SetSITEntries(entries []SITJournalEntry) error {
	return j.setEntries(len(entries), SITJournalEntries, func(i int) any { return entries[i] })
}

func (j *Journal) setEntries(n, capacity int, entry func(int) any) error {
	if n > capacity {
		return fmt.Errorf("%v journal entries do not fit in %v slots", n, capacity)
	}
	body := make([]byte, 0, len(j.Body))
	for i := 0; i < n; i++ {
		dat, err := binstruct.Marshal(entry(i))
		if err != nil {
			return err
		}
		body = append(body, dat...)
	}
	j.Count = uint16(n)
	j.Body = [0x1f9]byte{}
	copy(j.Body[:], body)
	return nil
}

// SummaryBlock is the SSA block for one segment.
type SummaryBlock struct {
	Entries       [SummaryEntriesPerBlock]Summary `bin:"off=0x0,   siz=0xe00"`
	Journal       Journal                         `bin:"off=0xe00, siz=0x1fb"`
	Footer        SummaryFooter                   `bin:"off=0xffb, siz=0x5"`
	binstruct.End `bin:"off=0x1000"`
}
