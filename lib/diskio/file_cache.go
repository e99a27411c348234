// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package diskio

import (
	"errors"
	"io"

	"git.lukeshu.com/f2fs-progs-ng/lib/containers"
)

type cachedBlock struct {
	Dat []byte
	// EOF is set when the block is the short final block of the
	// file.
	EOF bool
}

// CachedFile keeps recently read blocks of an underlying File in
// memory.  Read errors are returned to the caller and never cached.
type CachedFile[A ~int64] struct {
	inner     File[A]
	blockSize A
	cache     *containers.ARCache[A, cachedBlock]
}

var _ File[assertAddr] = (*CachedFile[assertAddr])(nil)

func NewCachedFile[A ~int64](file File[A], blockSize A, cacheBlocks int) *CachedFile[A] {
	return &CachedFile[A]{
		inner:     file,
		blockSize: blockSize,
		cache:     containers.NewARCache[A, cachedBlock](cacheBlocks),
	}
}

func (cf *CachedFile[A]) Name() string { return cf.inner.Name() }
func (cf *CachedFile[A]) Size() A      { return cf.inner.Size() }
func (cf *CachedFile[A]) Close() error { return cf.inner.Close() }

func (cf *CachedFile[A]) ReadAt(dat []byte, off A) (int, error) {
	done := 0
	for done < len(dat) {
		n, err := cf.maybeShortReadAt(dat[done:], off+A(done))
		done += n
		if err != nil {
			return done, err
		}
	}
	return done, nil
}

func (cf *CachedFile[A]) maybeShortReadAt(dat []byte, off A) (int, error) {
	offsetWithinBlock := off % cf.blockSize
	blockOffset := off - offsetWithinBlock

	block, err := cf.cache.GetOrLoad(blockOffset, func() (cachedBlock, error) {
		buf := make([]byte, cf.blockSize)
		n, err := cf.inner.ReadAt(buf, blockOffset)
		switch {
		case err == nil:
			return cachedBlock{Dat: buf}, nil
		case errors.Is(err, io.EOF):
			return cachedBlock{Dat: buf[:n], EOF: true}, nil
		default:
			return cachedBlock{}, err
		}
	})
	if err != nil {
		return 0, err
	}
	if int(offsetWithinBlock) >= len(block.Dat) {
		return 0, io.EOF
	}
	n := copy(dat, block.Dat[offsetWithinBlock:])
	if n < len(dat) && block.EOF {
		return n, io.EOF
	}
	return n, nil
}
