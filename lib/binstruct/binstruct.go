// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package binstruct decodes and encodes fixed-layout little-endian
// on-disk structures.
//
// A struct describes its own layout with `bin:"off=0x..,siz=0x.."`
// tags on every field, and a final binstruct.End field marking the
// total size.  Every offset is checked against the running sum of
// field sizes the first time a type is used, so a typo in a tag is
// a panic at first use rather than silent misparsing.
package binstruct

import (
	"encoding"
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"

	"git.lukeshu.com/f2fs-progs-ng/lib/binstruct/binint"
	"git.lukeshu.com/f2fs-progs-ng/lib/binstruct/binutil"
)

type (
	U8    = binint.U8
	U16le = binint.U16le
	U32le = binint.U32le
	U64le = binint.U64le
)

type StaticSizer interface {
	BinaryStaticSize() int
}

type Marshaler = encoding.BinaryMarshaler

type Unmarshaler interface {
	UnmarshalBinary([]byte) (int, error)
}

var (
	staticSizerType = reflect.TypeOf((*StaticSizer)(nil)).Elem()
	marshalerType   = reflect.TypeOf((*Marshaler)(nil)).Elem()
	unmarshalerType = reflect.TypeOf((*Unmarshaler)(nil)).Elem()
)

// StaticSize returns the encoded size of obj's type.  It panics if
// the type is not statically sized.
func StaticSize(obj any) int {
	sz, err := staticSize(reflect.TypeOf(obj))
	if err != nil {
		panic(err)
	}
	return sz
}

func staticSize(typ reflect.Type) (int, error) {
	if typ.Implements(staticSizerType) {
		return reflect.New(typ).Elem().Interface().(StaticSizer).BinaryStaticSize(), nil //nolint:forcetypeassert // checked by .Implements
	}
	if typ.Implements(marshalerType) || typ.Implements(unmarshalerType) {
		return 0, &InvalidTypeError{
			Type: typ,
			Err:  errors.New("implements binstruct.Marshaler or binstruct.Unmarshaler without binstruct.StaticSizer"),
		}
	}
	switch typ.Kind() {
	case reflect.Uint8, reflect.Int8, reflect.Bool:
		return 1, nil
	case reflect.Uint16, reflect.Int16:
		return 2, nil
	case reflect.Uint32, reflect.Int32:
		return 4, nil
	case reflect.Uint64, reflect.Int64:
		return 8, nil
	case reflect.Ptr:
		return staticSize(typ.Elem())
	case reflect.Array:
		elemSize, err := staticSize(typ.Elem())
		if err != nil {
			return 0, err
		}
		return elemSize * typ.Len(), nil
	case reflect.Struct:
		return getStructHandler(typ).Size, nil
	default:
		return 0, &InvalidTypeError{
			Type: typ,
			Err:  fmt.Errorf("kind=%v is not a statically-sized kind", typ.Kind()),
		}
	}
}

// Unmarshal decodes dat into the value pointed at by dstPtr, and
// returns the number of bytes consumed.
func Unmarshal(dat []byte, dstPtr any) (int, error) {
	if unmar, ok := dstPtr.(Unmarshaler); ok {
		n, err := unmar.UnmarshalBinary(dat)
		if err != nil {
			err = &UnmarshalError{
				Type:   reflect.TypeOf(dstPtr),
				Method: "UnmarshalBinary",
				Err:    err,
			}
		}
		return n, err
	}
	ptr := reflect.ValueOf(dstPtr)
	if ptr.Kind() != reflect.Ptr {
		panic(&InvalidTypeError{
			Type: ptr.Type(),
			Err:  errors.New("not a pointer"),
		})
	}
	return unmarshalValue(dat, ptr.Elem())
}

func unmarshalValue(dat []byte, dst reflect.Value) (int, error) {
	if dst.CanAddr() {
		if unmar, ok := dst.Addr().Interface().(Unmarshaler); ok {
			n, err := unmar.UnmarshalBinary(dat)
			if err != nil {
				err = &UnmarshalError{
					Type:   dst.Addr().Type(),
					Method: "UnmarshalBinary",
					Err:    err,
				}
			}
			return n, err
		}
	}
	switch dst.Kind() {
	case reflect.Uint8, reflect.Int8, reflect.Bool:
		if err := binutil.NeedNBytes(dat, 1); err != nil {
			return 0, &UnmarshalError{Type: dst.Type(), Err: err}
		}
		setInt(dst, uint64(dat[0]))
		return 1, nil
	case reflect.Uint16, reflect.Int16:
		if err := binutil.NeedNBytes(dat, 2); err != nil {
			return 0, &UnmarshalError{Type: dst.Type(), Err: err}
		}
		setInt(dst, uint64(binary.LittleEndian.Uint16(dat)))
		return 2, nil
	case reflect.Uint32, reflect.Int32:
		if err := binutil.NeedNBytes(dat, 4); err != nil {
			return 0, &UnmarshalError{Type: dst.Type(), Err: err}
		}
		setInt(dst, uint64(binary.LittleEndian.Uint32(dat)))
		return 4, nil
	case reflect.Uint64, reflect.Int64:
		if err := binutil.NeedNBytes(dat, 8); err != nil {
			return 0, &UnmarshalError{Type: dst.Type(), Err: err}
		}
		setInt(dst, binary.LittleEndian.Uint64(dat))
		return 8, nil
	case reflect.Ptr:
		elem := reflect.New(dst.Type().Elem())
		n, err := unmarshalValue(dat, elem.Elem())
		dst.Set(elem)
		return n, err
	case reflect.Array:
		if dst.Type().Elem().Kind() == reflect.Uint8 && !dst.Type().Elem().Implements(unmarshalerType) {
			// Byte arrays (UUIDs, names, bitmaps) are copied in
			// one go.
			if err := binutil.NeedNBytes(dat, dst.Len()); err != nil {
				return 0, &UnmarshalError{Type: dst.Type(), Err: err}
			}
			return reflect.Copy(dst, reflect.ValueOf(dat[:dst.Len()])), nil
		}
		var n int
		for i := 0; i < dst.Len(); i++ {
			_n, err := unmarshalValue(dat[n:], dst.Index(i))
			n += _n
			if err != nil {
				return n, err
			}
		}
		return n, nil
	case reflect.Struct:
		return getStructHandler(dst.Type()).Unmarshal(dat, dst)
	default:
		panic(&InvalidTypeError{
			Type: dst.Type(),
			Err:  fmt.Errorf("kind=%v is not a statically-sized kind", dst.Kind()),
		})
	}
}

func setInt(dst reflect.Value, v uint64) {
	switch dst.Kind() {
	case reflect.Bool:
		dst.SetBool(v != 0)
	case reflect.Int8:
		dst.SetInt(int64(int8(v)))
	case reflect.Int16:
		dst.SetInt(int64(int16(v)))
	case reflect.Int32:
		dst.SetInt(int64(int32(v)))
	case reflect.Int64:
		dst.SetInt(int64(v))
	default:
		dst.SetUint(v)
	}
}

// Marshal encodes obj.
func Marshal(obj any) ([]byte, error) {
	return appendValue(nil, reflect.ValueOf(obj))
}

func appendValue(buf []byte, val reflect.Value) ([]byte, error) {
	if mar, ok := val.Interface().(Marshaler); ok {
		dat, err := mar.MarshalBinary()
		if err != nil {
			err = &MarshalError{
				Type:   val.Type(),
				Method: "MarshalBinary",
				Err:    err,
			}
		}
		return append(buf, dat...), err
	}
	switch val.Kind() {
	case reflect.Bool:
		if val.Bool() {
			return append(buf, 1), nil
		}
		return append(buf, 0), nil
	case reflect.Uint8:
		return append(buf, byte(val.Uint())), nil
	case reflect.Int8:
		return append(buf, byte(val.Int())), nil
	case reflect.Uint16:
		return binary.LittleEndian.AppendUint16(buf, uint16(val.Uint())), nil
	case reflect.Int16:
		return binary.LittleEndian.AppendUint16(buf, uint16(val.Int())), nil
	case reflect.Uint32:
		return binary.LittleEndian.AppendUint32(buf, uint32(val.Uint())), nil
	case reflect.Int32:
		return binary.LittleEndian.AppendUint32(buf, uint32(val.Int())), nil
	case reflect.Uint64:
		return binary.LittleEndian.AppendUint64(buf, val.Uint()), nil
	case reflect.Int64:
		return binary.LittleEndian.AppendUint64(buf, uint64(val.Int())), nil
	case reflect.Ptr:
		return appendValue(buf, val.Elem())
	case reflect.Array:
		var err error
		for i := 0; i < val.Len() && err == nil; i++ {
			buf, err = appendValue(buf, val.Index(i))
		}
		return buf, err
	case reflect.Struct:
		return getStructHandler(val.Type()).Marshal(buf, val)
	default:
		panic(&InvalidTypeError{
			Type: val.Type(),
			Err:  fmt.Errorf("kind=%v is not a statically-sized kind", val.Kind()),
		})
	}
}
