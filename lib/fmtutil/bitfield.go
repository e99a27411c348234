// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package fmtutil

import (
	"fmt"
	"strings"
)

type BitfieldFormat uint8

const (
	HexNone = BitfieldFormat(iota)
	HexLower
	HexUpper
)

// BitfieldString renders a flag word as "name1|name2|(1<<n)", where
// bitnames[i] names bit i and unnamed bits are shown by position.
func BitfieldString[T ~uint8 | ~uint16 | ~uint32 | ~uint64](bitfield T, bitnames []string, cfg BitfieldFormat) string {
	var out strings.Builder
	switch cfg {
	case HexLower:
		fmt.Fprintf(&out, "0x%0x(", uint64(bitfield))
	case HexUpper:
		fmt.Fprintf(&out, "0x%0X(", uint64(bitfield))
	}
	if bitfield == 0 {
		out.WriteString("none")
	}
	sep := ""
	for i := 0; i < 64; i++ {
		if uint64(bitfield)&(1<<i) == 0 {
			continue
		}
		out.WriteString(sep)
		sep = "|"
		if i < len(bitnames) && bitnames[i] != "" {
			out.WriteString(bitnames[i])
		} else {
			fmt.Fprintf(&out, "(1<<%v)", i)
		}
	}
	if cfg != HexNone {
		out.WriteRune(')')
	}
	return out.String()
}
