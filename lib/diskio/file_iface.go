// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package diskio provides read access to disk images addressed by a
// typed byte offset.
package diskio

import (
	"io"
)

// File is a read-only image, addressed in the address space A.
type File[A ~int64] interface {
	Name() string
	Size() A
	Close() error
	ReadAt(p []byte, off A) (n int, err error)
}

type assertAddr int64

var _ io.ReaderAt = File[int64](nil)
