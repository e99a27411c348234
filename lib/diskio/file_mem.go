// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package diskio

import (
	"fmt"
	"io"
	"sync"
)

const memPageSize = 4096

// MemFile is a sparse in-memory image.  Pages that have never been
// written read back as zeros.  It is writable, which lets image
// builders lay out an image before handing it to a reader.
type MemFile[A ~int64] struct {
	name string
	size A

	mu    sync.RWMutex
	pages map[A][]byte
}

var (
	_ File[assertAddr] = (*MemFile[assertAddr])(nil)
	_ io.WriterAt      = (*MemFile[int64])(nil)
)

func NewMemFile[A ~int64](name string, size A) *MemFile[A] {
	return &MemFile[A]{
		name:  name,
		size:  size,
		pages: make(map[A][]byte),
	}
}

func (f *MemFile[A]) Name() string { return f.name }
func (f *MemFile[A]) Size() A      { return f.size }
func (f *MemFile[A]) Close() error { return nil }

func (f *MemFile[A]) ReadAt(dat []byte, off A) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("%s: negative offset %v", f.name, off)
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	done := 0
	for done < len(dat) {
		pos := off + A(done)
		if pos >= f.size {
			return done, io.EOF
		}
		pageOff := pos % memPageSize
		chunk := dat[done:]
		if room := int(memPageSize - pageOff); len(chunk) > room {
			chunk = chunk[:room]
		}
		if rest := int(f.size - pos); len(chunk) > rest {
			chunk = chunk[:rest]
		}
		if page, ok := f.pages[pos-pageOff]; ok {
			copy(chunk, page[pageOff:])
		} else {
			for i := range chunk {
				chunk[i] = 0
			}
		}
		done += len(chunk)
	}
	return done, nil
}

// WriteAt implements io.WriterAt; writes past the end of the file
// grow it.
func (f *MemFile[A]) WriteAt(dat []byte, off A) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("%s: negative offset %v", f.name, off)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	done := 0
	for done < len(dat) {
		pos := off + A(done)
		pageOff := pos % memPageSize
		page, ok := f.pages[pos-pageOff]
		if !ok {
			page = make([]byte, memPageSize)
			f.pages[pos-pageOff] = page
		}
		done += copy(page[pageOff:], dat[done:])
	}
	if end := off + A(len(dat)); end > f.size {
		f.size = end
	}
	return done, nil
}
