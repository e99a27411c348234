// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package containers

import (
	"io"

	"git.lukeshu.com/go/lowmemjson"
	"golang.org/x/exp/constraints"

	"git.lukeshu.com/f2fs-progs-ng/lib/maps"
)

// Set is an unordered set; it encodes to JSON as a sorted array.
type Set[T constraints.Ordered] map[T]struct{}

var _ lowmemjson.Encodable = Set[int]{}

func (o Set[T]) EncodeJSON(w io.Writer) error {
	return lowmemjson.NewEncoder(w).Encode(maps.SortedKeys(o))
}

func (o Set[T]) Insert(v T) {
	o[v] = struct{}{}
}

func (o Set[T]) Has(v T) bool {
	_, has := o[v]
	return has
}

func (o Set[T]) Len() int {
	return len(o)
}
