// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package f2fs_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs"
)

func makeSlot(t *testing.T, headVer, tailVer uint64) f2fs.CheckpointSlot {
	t.Helper()
	mk := func(ver uint64) []byte {
		block, err := f2fs.MarshalCheckpointBlock(f2fs.Checkpoint{
			Version:             ver,
			PackTotalBlockCount: 2,
			ChecksumOffset:      f2fs.CheckpointCRCOffset,
		}, make([]byte, 128))
		require.NoError(t, err)
		return block
	}
	return f2fs.CheckpointSlot{Head: mk(headVer), Tail: mk(tailVer)}
}

func corrupt(slot f2fs.CheckpointSlot) f2fs.CheckpointSlot {
	head := append([]byte(nil), slot.Head...)
	head[0] ^= 0xff
	return f2fs.CheckpointSlot{Head: head, Tail: slot.Tail}
}

func TestSelectCheckpoint(t *testing.T) {
	t.Parallel()
	type TestCase struct {
		Slots     func(t *testing.T) [2]f2fs.CheckpointSlot
		Slot      int
		Version   uint64
		Anomalous bool
		Err       bool
	}
	testcases := map[string]TestCase{
		"second-newer": {
			Slots: func(t *testing.T) [2]f2fs.CheckpointSlot {
				return [2]f2fs.CheckpointSlot{makeSlot(t, 5, 5), makeSlot(t, 7, 7)}
			},
			Slot: 1, Version: 7,
		},
		"first-newer": {
			Slots: func(t *testing.T) [2]f2fs.CheckpointSlot {
				return [2]f2fs.CheckpointSlot{makeSlot(t, 7, 7), makeSlot(t, 5, 5)}
			},
			Slot: 0, Version: 7,
		},
		"tie": {
			Slots: func(t *testing.T) [2]f2fs.CheckpointSlot {
				return [2]f2fs.CheckpointSlot{makeSlot(t, 6, 6), makeSlot(t, 6, 6)}
			},
			Slot: 0, Version: 6, Anomalous: true,
		},
		"wraparound": {
			Slots: func(t *testing.T) [2]f2fs.CheckpointSlot {
				return [2]f2fs.CheckpointSlot{makeSlot(t, math.MaxUint64, math.MaxUint64), makeSlot(t, 1, 1)}
			},
			Slot: 1, Version: 1,
		},
		"newer-corrupt": {
			Slots: func(t *testing.T) [2]f2fs.CheckpointSlot {
				return [2]f2fs.CheckpointSlot{makeSlot(t, 5, 5), corrupt(makeSlot(t, 7, 7))}
			},
			Slot: 0, Version: 5,
		},
		"torn-pack": {
			Slots: func(t *testing.T) [2]f2fs.CheckpointSlot {
				return [2]f2fs.CheckpointSlot{makeSlot(t, 8, 7), makeSlot(t, 5, 5)}
			},
			Slot: 1, Version: 5,
		},
		"missing-tail": {
			Slots: func(t *testing.T) [2]f2fs.CheckpointSlot {
				slot := makeSlot(t, 9, 9)
				slot.Tail = nil
				return [2]f2fs.CheckpointSlot{slot, makeSlot(t, 5, 5)}
			},
			Slot: 1, Version: 5,
		},
		"none": {
			Slots: func(t *testing.T) [2]f2fs.CheckpointSlot {
				return [2]f2fs.CheckpointSlot{corrupt(makeSlot(t, 5, 5)), corrupt(makeSlot(t, 7, 7))}
			},
			Err: true,
		},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			sel, err := f2fs.SelectCheckpoint(tc.Slots(t), 512)
			if tc.Err {
				var fmtErr *f2fs.FormatError
				assert.ErrorAs(t, err, &fmtErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.Slot, sel.Slot)
			assert.Equal(t, tc.Version, sel.Checkpoint.Version)
			assert.Equal(t, tc.Anomalous, sel.Anomalous)
		})
	}
}

func TestSelectCheckpointDeterministic(t *testing.T) {
	t.Parallel()
	slots := [2]f2fs.CheckpointSlot{makeSlot(t, 5, 5), makeSlot(t, 7, 7)}
	for i := 0; i < 3; i++ {
		sel, err := f2fs.SelectCheckpoint(slots, 512)
		require.NoError(t, err)
		assert.Equal(t, 1, sel.Slot)
		assert.Equal(t, uint64(7), sel.Checkpoint.Version)
	}
}

func TestParseCheckpointSlotPackSize(t *testing.T) {
	t.Parallel()
	block, err := f2fs.MarshalCheckpointBlock(f2fs.Checkpoint{
		Version:             3,
		PackTotalBlockCount: 600,
		ChecksumOffset:      f2fs.CheckpointCRCOffset,
	}, nil)
	require.NoError(t, err)
	_, err = f2fs.ParseCheckpointSlot(f2fs.CheckpointSlot{Head: block, Tail: block}, 512)
	assert.ErrorContains(t, err, "pack block count")
}

func TestParseCheckpointBlockBadOffset(t *testing.T) {
	t.Parallel()
	_, err := f2fs.MarshalCheckpointBlock(f2fs.Checkpoint{ChecksumOffset: 4}, nil)
	assert.Error(t, err)
	_, err = f2fs.ParseCheckpointBlock(make([]byte, 4096))
	assert.ErrorContains(t, err, "checksum_offset")
}
