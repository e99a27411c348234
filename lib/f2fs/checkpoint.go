// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package f2fs

import (
	"errors"
	"fmt"

	"git.lukeshu.com/f2fs-progs-ng/lib/binstruct"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs/f2fsprim"
)

// CheckpointSlot is the raw first and last block of one checkpoint
// pack.  Tail may be nil if the head was too damaged to locate it.
type CheckpointSlot struct {
	Head []byte
	Tail []byte
}

// CheckpointSelection is the outcome of choosing between the two
// checkpoint packs.
type CheckpointSelection struct {
	Slot       int
	Checkpoint Checkpoint
	// Anomalous is set when both packs are valid and carry the same
	// version, which a correct writer never produces.
	Anomalous bool
	// SlotErrs holds why each pack was rejected, or nil.
	SlotErrs [2]error
}

// ParseCheckpointSlot validates one checkpoint pack: both blocks must
// pass their CRC, agree on the version, and describe a pack that fits
// in one segment.
func ParseCheckpointSlot(slot CheckpointSlot, blocksPerSeg uint32) (Checkpoint, error) {
	head, err := ParseCheckpointBlock(slot.Head)
	if err != nil {
		return head, fmt.Errorf("head: %w", err)
	}
	if head.PackTotalBlockCount < 2 || head.PackTotalBlockCount > blocksPerSeg {
		return head, fmt.Errorf("pack block count %v out of range [2, %v]", head.PackTotalBlockCount, blocksPerSeg)
	}
	if slot.Tail == nil {
		return head, errors.New("tail: missing")
	}
	tail, err := ParseCheckpointBlock(slot.Tail)
	if err != nil {
		return head, fmt.Errorf("tail: %w", err)
	}
	if tail.Version != head.Version {
		return head, fmt.Errorf("head version %v does not match tail version %v", head.Version, tail.Version)
	}
	return head, nil
}

// versionAfter compares checkpoint versions allowing for wraparound.
func versionAfter(a, b uint64) bool {
	return int64(a-b) > 0
}

// SelectCheckpoint picks the authoritative checkpoint from the two
// packs.  It is a pure function of its input.
func SelectCheckpoint(slots [2]CheckpointSlot, blocksPerSeg uint32) (CheckpointSelection, error) {
	var ret CheckpointSelection
	var cps [2]Checkpoint
	for i := range slots {
		cps[i], ret.SlotErrs[i] = ParseCheckpointSlot(slots[i], blocksPerSeg)
	}
	switch {
	case ret.SlotErrs[0] == nil && ret.SlotErrs[1] == nil:
		switch {
		case versionAfter(cps[1].Version, cps[0].Version):
			ret.Slot = 1
		case cps[1].Version == cps[0].Version:
			ret.Slot = 0
			ret.Anomalous = true
		default:
			ret.Slot = 0
		}
	case ret.SlotErrs[0] == nil:
		ret.Slot = 0
	case ret.SlotErrs[1] == nil:
		ret.Slot = 1
	default:
		return ret, &FormatError{
			What: "checkpoint",
			Err:  fmt.Errorf("no valid pack: pack 0: %v; pack 1: %v", ret.SlotErrs[0], ret.SlotErrs[1]),
		}
	}
	ret.Checkpoint = cps[ret.Slot]
	return ret, nil
}

// SuperblockSelection is the outcome of choosing between the two
// superblock copies.
type SuperblockSelection struct {
	Copy       int
	Superblock Superblock
	CopyErrs   [2]error
}

// SelectSuperblock decodes the superblock from each of the first two
// blocks of the image and returns the first sane one.
func SelectSuperblock(blocks [2][]byte, imageBlocks uint64) (SuperblockSelection, error) {
	var ret SuperblockSelection
	var sbs [2]Superblock
	for i, block := range blocks {
		if len(block) < SuperblockOffset {
			ret.CopyErrs[i] = fmt.Errorf("short block: %v bytes", len(block))
			continue
		}
		if _, err := binstruct.Unmarshal(block[SuperblockOffset:], &sbs[i]); err != nil {
			ret.CopyErrs[i] = err
			continue
		}
		ret.CopyErrs[i] = sbs[i].SanityCheck(imageBlocks)
	}
	for i := range sbs {
		if ret.CopyErrs[i] == nil {
			ret.Copy = i
			ret.Superblock = sbs[i]
			return ret, nil
		}
	}
	return ret, &FormatError{
		What: "superblock",
		Err:  fmt.Errorf("no valid copy: copy 0: %v; copy 1: %v", ret.CopyErrs[0], ret.CopyErrs[1]),
	}
}

// checkpointPackAddr returns the first block of checkpoint pack slot.
func (g Geometry) checkpointPackAddr(slot int) f2fsprim.BlockAddr {
	return g.CPBlkAddr + f2fsprim.BlockAddr(uint32(slot)*g.BlocksPerSeg)
}
