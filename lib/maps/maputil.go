// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package maps has helpers for iterating over Go maps in a stable
// order, for output that is the same from run to run.
package maps

import (
	"golang.org/x/exp/constraints"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

func SortedKeys[K constraints.Ordered, V any](m map[K]V) []K {
	ret := maps.Keys(m)
	slices.Sort(ret)
	return ret
}
