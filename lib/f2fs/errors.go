// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package f2fs

import (
	"errors"
	"fmt"

	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs/f2fsprim"
)

// IOError is a failure to read the image.  It aborts the operation
// that hit it.
type IOError struct {
	Op   string
	Addr f2fsprim.BlockAddr
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("i/o error: %s: block %v: %v", e.Op, e.Addr, e.Err)
}
func (e *IOError) Unwrap() error { return e.Err }

// FormatError is a superblock or checkpoint that cannot be decoded
// or is not sane.  It is fatal for opening the image.
type FormatError struct {
	What string
	Err  error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.What, e.Err)
}
func (e *FormatError) Unwrap() error { return e.Err }

// RangeError is an id outside of [0, Limit).  It fails only the call
// that was handed the id.
type RangeError struct {
	What  string
	Val   int64
	Limit int64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s %v out of range [0, %v)", e.What, e.Val, e.Limit)
}

// DomainError is a block address that is valid for the image but
// not for the query, such as a segment lookup on a metadata block.
type DomainError struct {
	Addr   f2fsprim.BlockAddr
	Region Region
	Want   Region
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("block %v is in the %v area, not the %v area", e.Addr, e.Region, e.Want)
}

// ErrUnallocated is returned when a node id has no block.
var ErrUnallocated = errors.New("node id is not allocated")
