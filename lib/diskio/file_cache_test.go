// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package diskio_test

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/f2fs-progs-ng/lib/diskio"
)

type byteReaderWithName struct {
	*bytes.Reader
	name string
}

func (r byteReaderWithName) Name() string { return r.name }
func (byteReaderWithName) Close() error   { return nil }

func FuzzCachedReader(f *testing.F) {
	f.Add([]byte("hello, world"))
	f.Fuzz(func(t *testing.T, content []byte) {
		t.Logf("content=%q", content)
		var file diskio.File[int64] = byteReaderWithName{
			Reader: bytes.NewReader(content),
			name:   t.Name(),
		}
		file = diskio.NewCachedFile[int64](file, 4, 2)
		reader := io.NewSectionReader(file, 0, int64(len(content)))
		if err := iotest.TestReader(reader, content); err != nil {
			t.Error(err)
		}
	})
}

type flakyFile struct {
	diskio.File[int64]
	fail bool
}

var errFlaky = errors.New("flaky read")

func (f *flakyFile) ReadAt(dat []byte, off int64) (int, error) {
	if f.fail {
		return 0, errFlaky
	}
	return f.File.ReadAt(dat, off)
}

func TestCachedFileDoesNotCacheErrors(t *testing.T) {
	t.Parallel()
	inner := &flakyFile{
		File: byteReaderWithName{Reader: bytes.NewReader([]byte("abcdefgh")), name: t.Name()},
		fail: true,
	}
	file := diskio.NewCachedFile[int64](inner, 4, 8)

	buf := make([]byte, 4)
	_, err := file.ReadAt(buf, 0)
	assert.ErrorIs(t, err, errFlaky)

	inner.fail = false
	n, err := file.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "abcd", string(buf))
}

func TestMemFileSparse(t *testing.T) {
	t.Parallel()
	file := diskio.NewMemFile[int64](t.Name(), 3*4096)
	_, err := file.WriteAt([]byte("xy"), 4095)
	require.NoError(t, err)

	buf := make([]byte, 4)
	n, err := file.ReadAt(buf, 4094)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{0, 'x', 'y', 0}, buf)

	n, err = file.ReadAt(buf, 3*4096-2)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 2, n)
	assert.Equal(t, int64(3*4096), file.Size())

	_, err = file.WriteAt([]byte{1}, 3*4096)
	require.NoError(t, err)
	assert.Equal(t, int64(3*4096+1), file.Size())
}
