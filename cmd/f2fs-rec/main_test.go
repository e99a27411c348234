// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/f2fs-progs-ng/lib/diskio"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs/f2fsmkfs"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs/f2fsprim"
)

func TestOpenImageCacheBlocks(t *testing.T) {
	t.Parallel()
	img, err := f2fsmkfs.New().Build()
	require.NoError(t, err)
	buf := make([]byte, img.Size())
	_, err = img.ReadAt(buf, 0)
	require.NoError(t, err)
	filename := filepath.Join(t.TempDir(), "image.img")
	require.NoError(t, os.WriteFile(filename, buf, 0o666))

	for _, cacheBlocks := range []int{0, 16} {
		fs, err := openImage(dlog.NewTestContext(t, false), filename, cacheBlocks)
		require.NoError(t, err, "cache-blocks=%v", cacheBlocks)
		_, cached := fs.File.(*diskio.CachedFile[f2fsprim.PhysicalAddr])
		assert.Equal(t, cacheBlocks > 0, cached, "cache-blocks=%v", cacheBlocks)
		assert.NoError(t, fs.Close())
	}
}
