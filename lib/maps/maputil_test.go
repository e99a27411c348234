// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package maps_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"git.lukeshu.com/f2fs-progs-ng/lib/maps"
)

func TestSortedKeys(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"a", "b", "c"}, maps.SortedKeys(map[string]int{"c": 3, "a": 1, "b": 2}))
	assert.Empty(t, maps.SortedKeys(map[int]int(nil)))
}
