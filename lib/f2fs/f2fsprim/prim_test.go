// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package f2fsprim_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs/f2fsprim"
)

func TestAddrFormat(t *testing.T) {
	t.Parallel()
	type TestCase struct {
		Input    any
		InputFmt string
		Output   string
	}
	testcases := map[string]TestCase{
		"blk-v":  {Input: f2fsprim.BlockAddr(0x1100), InputFmt: "%v", Output: "0x00001100"},
		"blk-d":  {Input: f2fsprim.BlockAddr(0x1100), InputFmt: "%d", Output: "4352"},
		"blk-x":  {Input: f2fsprim.BlockAddr(0x1100), InputFmt: "%x", Output: "1100"},
		"blk-q":  {Input: f2fsprim.NewAddr, InputFmt: "%q", Output: `"0xffffffff"`},
		"phys-v": {Input: f2fsprim.BlockAddr(0x1100).Physical(), InputFmt: "%v", Output: "0x000001100000"},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.Output, fmt.Sprintf(tc.InputFmt, tc.Input))
		})
	}
}

func TestIsReal(t *testing.T) {
	t.Parallel()
	assert.False(t, f2fsprim.NullAddr.IsReal())
	assert.False(t, f2fsprim.NewAddr.IsReal())
	assert.False(t, f2fsprim.CompressAddr.IsReal())
	assert.True(t, f2fsprim.BlockAddr(4096).IsReal())
}

func TestBitmapMSBFirst(t *testing.T) {
	t.Parallel()
	bitmap := make([]byte, 2)
	f2fsprim.SetBit(bitmap, 0, true)
	f2fsprim.SetBit(bitmap, 9, true)
	assert.Equal(t, []byte{0x80, 0x40}, bitmap)
	assert.True(t, f2fsprim.TestBit(bitmap, 0))
	assert.False(t, f2fsprim.TestBit(bitmap, 7))
	assert.True(t, f2fsprim.TestBit(bitmap, 9))
	f2fsprim.SetBit(bitmap, 0, false)
	assert.Equal(t, []byte{0x00, 0x40}, bitmap)
}

func TestUUID(t *testing.T) {
	t.Parallel()
	var u f2fsprim.UUID
	require.NoError(t, u.UnmarshalText([]byte("a0dd94ed-e60c-42e8-8632-64e8d4765a43")))
	assert.Equal(t, "a0dd94ed-e60c-42e8-8632-64e8d4765a43", u.String())
	assert.Equal(t, "a0dd94ed-e60c-42e8-8632-64e8d4765a43", fmt.Sprintf("%v", u))
	assert.Equal(t, byte(0xa0), u[0])
}
