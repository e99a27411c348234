// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package f2fsprim

// TestBit reports bit nr of an on-disk bitmap.  F2FS numbers bits
// from the most significant end of each byte.
func TestBit(bitmap []byte, nr uint32) bool {
	return bitmap[nr/8]&(0x80>>(nr%8)) != 0
}

// SetBit sets or clears bit nr of an on-disk bitmap.
func SetBit(bitmap []byte, nr uint32, val bool) {
	mask := byte(0x80 >> (nr % 8))
	if val {
		bitmap[nr/8] |= mask
	} else {
		bitmap[nr/8] &^= mask
	}
}
