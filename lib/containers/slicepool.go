// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package containers

import (
	"git.lukeshu.com/go/typedsync"
)

// SlicePool is a pool of fixed-length slices; every slice handed out
// by Get has length Size.
type SlicePool[T any] struct {
	Size int

	inner typedsync.Pool[[]T]
}

// Get returns a slice of length p.Size.  Its contents are
// unspecified.
func (p *SlicePool[T]) Get() []T {
	if ret, ok := p.inner.Get(); ok && cap(ret) >= p.Size {
		return ret[:p.Size]
	}
	return make([]T, p.Size)
}

func (p *SlicePool[T]) Put(slice []T) {
	if cap(slice) < p.Size {
		return
	}
	p.inner.Put(slice)
}
