// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package fmtutil holds helpers for implementing fmt.Formatter.
package fmtutil

import (
	"fmt"
	"strings"
)

// FmtStateString returns the fmt.Printf string that produced a given
// fmt.State and verb.
func FmtStateString(st fmt.State, verb rune) string {
	width, hasWidth := st.Width()
	return fmtStateString(st, verb, width, hasWidth)
}

// FmtStateStringWidth is like FmtStateString, but with the width
// replaced.
func FmtStateStringWidth(st fmt.State, verb rune, width int) string {
	return fmtStateString(st, verb, width, true)
}

func fmtStateString(st fmt.State, verb rune, width int, hasWidth bool) string {
	var ret strings.Builder
	ret.WriteByte('%')
	for _, flag := range []int{'-', '+', '#', ' ', '0'} {
		if st.Flag(flag) {
			ret.WriteByte(byte(flag))
		}
	}
	if hasWidth {
		fmt.Fprintf(&ret, "%v", width)
	}
	if prec, ok := st.Precision(); ok {
		if prec == 0 {
			ret.WriteByte('.')
		} else {
			fmt.Fprintf(&ret, ".%v", prec)
		}
	}
	ret.WriteRune(verb)
	return ret.String()
}

// FormatHexAddr implements fmt.Formatter for address types: %v, %s
// and %q print "0x" and the given number of zero-padded hex digits,
// every other verb formats the plain integer.
func FormatHexAddr(addr int64, digits int, f fmt.State, verb rune) {
	switch verb {
	case 'v', 's', 'q':
		str := fmt.Sprintf("%#0*x", digits, addr)
		fmt.Fprintf(f, FmtStateString(f, verb), str)
	default:
		fmt.Fprintf(f, FmtStateString(f, verb), addr)
	}
}
