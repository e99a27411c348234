// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs/f2fsprim"
)

func TestParseRange(t *testing.T) {
	t.Parallel()
	type TestCase struct {
		Args  []string
		Start int64
		End   int64
		Err   bool
	}
	testcases := map[string]TestCase{
		"default":    {Args: nil, Start: 0, End: -1},
		"both":       {Args: []string{"3~10"}, Start: 3, End: 10},
		"hex":        {Args: []string{"0x10~0x20"}, Start: 16, End: 32},
		"open-end":   {Args: []string{"5~"}, Start: 5, End: -1},
		"open-start": {Args: []string{"~7"}, Start: 0, End: 7},
		"no-tilde":   {Args: []string{"5"}, Err: true},
		"garbage":    {Args: []string{"a~b"}, Err: true},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			start, end, err := parseRange(tc.Args)
			if tc.Err {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.Start, start)
			assert.Equal(t, tc.End, end)
		})
	}
}

func TestParseNID(t *testing.T) {
	t.Parallel()
	nid, err := parseNID("0x3")
	assert.NoError(t, err)
	assert.Equal(t, f2fsprim.NID(3), nid)

	nid, err = parseNID("17")
	assert.NoError(t, err)
	assert.Equal(t, f2fsprim.NID(17), nid)

	_, err = parseNID("0x100000000")
	assert.Error(t, err)

	addr, err := parseBlockAddr("0x1100")
	assert.NoError(t, err)
	assert.Equal(t, f2fsprim.BlockAddr(0x1100), addr)
}
