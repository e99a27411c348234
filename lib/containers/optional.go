// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package containers

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Optional is a value that may be absent.  It encodes as null (JSON)
// or ~ (YAML) when absent.
type Optional[T any] struct {
	OK  bool
	Val T
}

func Some[T any](val T) Optional[T] {
	return Optional[T]{OK: true, Val: val}
}

var (
	_ json.Marshaler   = Optional[bool]{}
	_ json.Unmarshaler = (*Optional[bool])(nil)
	_ yaml.Marshaler   = Optional[bool]{}
	_ fmt.Stringer     = Optional[bool]{}
)

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.OK {
		return []byte("null"), nil
	}
	return json.Marshal(o.Val)
}

func (o *Optional[T]) UnmarshalJSON(dat []byte) error {
	if string(dat) == "null" {
		*o = Optional[T]{}
		return nil
	}
	o.OK = true
	return json.Unmarshal(dat, &o.Val)
}

func (o Optional[T]) MarshalYAML() (any, error) {
	if !o.OK {
		return nil, nil
	}
	return o.Val, nil
}

func (o Optional[T]) String() string {
	if !o.OK {
		return "none"
	}
	return fmt.Sprint(o.Val)
}
