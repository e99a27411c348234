// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package containers_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/f2fs-progs-ng/lib/containers"
)

func TestARCacheGetOrLoad(t *testing.T) {
	t.Parallel()
	cache := containers.NewARCache[int, string](4)

	loads := 0
	load := func() (string, error) {
		loads++
		return "one", nil
	}
	val, err := cache.GetOrLoad(1, load)
	require.NoError(t, err)
	assert.Equal(t, "one", val)
	val, err = cache.GetOrLoad(1, load)
	require.NoError(t, err)
	assert.Equal(t, "one", val)
	assert.Equal(t, 1, loads)

	errBoom := errors.New("boom")
	_, err = cache.GetOrLoad(2, func() (string, error) { return "", errBoom })
	assert.ErrorIs(t, err, errBoom)
	_, ok := cache.Get(2)
	assert.False(t, ok)
	assert.Equal(t, 1, cache.Len())
}

func TestARCacheBounded(t *testing.T) {
	t.Parallel()
	cache := containers.NewARCache[int, int](3)
	for i := 0; i < 10; i++ {
		cache.Add(i, i*i)
	}
	assert.LessOrEqual(t, cache.Len(), 3)
	val, ok := cache.Get(9)
	assert.True(t, ok)
	assert.Equal(t, 81, val)
}

func TestSlicePool(t *testing.T) {
	t.Parallel()
	pool := containers.SlicePool[byte]{Size: 16}
	buf := pool.Get()
	assert.Len(t, buf, 16)
	pool.Put(buf)
	pool.Put(make([]byte, 4))
	assert.Len(t, pool.Get(), 16)
}
