// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package binstruct

import (
	"fmt"
	"reflect"
)

// InvalidTypeError is panicked (not returned) when a type cannot be
// described as a fixed binary layout; it indicates a programming
// error.
type InvalidTypeError struct {
	Type reflect.Type
	Err  error
}

func (e *InvalidTypeError) Error() string {
	return fmt.Sprintf("binstruct: invalid type %v: %v", e.Type, e.Err)
}
func (e *InvalidTypeError) Unwrap() error { return e.Err }

type UnmarshalError struct {
	Type   reflect.Type
	Method string
	Err    error
}

func (e *UnmarshalError) Error() string {
	return codecErrorString(e.Type, e.Method, e.Err)
}
func (e *UnmarshalError) Unwrap() error { return e.Err }

type MarshalError struct {
	Type   reflect.Type
	Method string
	Err    error
}

func (e *MarshalError) Error() string {
	return codecErrorString(e.Type, e.Method, e.Err)
}
func (e *MarshalError) Unwrap() error { return e.Err }

func codecErrorString(typ reflect.Type, method string, err error) string {
	if method == "" {
		return fmt.Sprintf("%v: %v", typ, err)
	}
	return fmt.Sprintf("(%v).%v: %v", typ, method, err)
}
