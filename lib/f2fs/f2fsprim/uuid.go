// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package f2fsprim

import (
	"fmt"

	"github.com/google/uuid"

	"git.lukeshu.com/f2fs-progs-ng/lib/fmtutil"
)

// UUID is a volume UUID as stored in the superblock.  It is a
// distinct type from uuid.UUID only so that the binary codec sees a
// plain byte array.
type UUID [16]byte

func (u UUID) String() string {
	return uuid.UUID(u).String()
}

func (u UUID) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

func (u *UUID) UnmarshalText(text []byte) error {
	parsed, err := uuid.ParseBytes(text)
	if err != nil {
		return err
	}
	*u = UUID(parsed)
	return nil
}

func (u UUID) Format(f fmt.State, verb rune) {
	switch verb {
	case 'v', 's', 'q':
		if verb == 'v' && f.Flag('#') {
			fmt.Fprintf(f, "f2fsprim.UUID(%q)", u.String())
			return
		}
		fmt.Fprintf(f, fmtutil.FmtStateString(f, verb), u.String())
	default:
		fmt.Fprintf(f, fmtutil.FmtStateString(f, verb), u[:])
	}
}
