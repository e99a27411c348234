// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package binstruct

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"git.lukeshu.com/go/typedsync"

	"git.lukeshu.com/f2fs-progs-ng/lib/binstruct/binutil"
)

// End marks the end of a struct's on-disk layout; its tag offset is
// the struct's total size.
type End struct{}

var endType = reflect.TypeOf(End{})

type tag struct {
	skip bool

	off int
	siz int
}

func parseStructTag(str string) (tag, error) {
	var ret tag
	for _, part := range strings.Split(str, ",") {
		part = strings.TrimSpace(part)
		switch {
		case part == "":
			continue
		case part == "-":
			return tag{skip: true}, nil
		}
		key, val, ok := strings.Cut(part, "=")
		if !ok {
			return tag{}, fmt.Errorf("option is not a key=value pair: %q", part)
		}
		vint, err := strconv.ParseInt(val, 0, 0)
		if err != nil {
			return tag{}, fmt.Errorf("option %q: %w", key, err)
		}
		switch key {
		case "off":
			ret.off = int(vint)
		case "siz":
			ret.siz = int(vint)
		default:
			return tag{}, fmt.Errorf("unrecognized option %q", key)
		}
	}
	return ret, nil
}

type structField struct {
	name  string
	index int
	tag
}

type structHandler struct {
	name   string
	Size   int
	fields []structField
}

func (sh *structHandler) Unmarshal(dat []byte, dst reflect.Value) (int, error) {
	if err := binutil.NeedNBytes(dat, sh.Size); err != nil {
		return 0, &UnmarshalError{Type: dst.Type(), Err: err}
	}
	for _, field := range sh.fields {
		n, err := unmarshalValue(dat[field.off:field.off+field.siz], dst.Field(field.index))
		if err == nil && n != field.siz {
			err = fmt.Errorf("consumed %v bytes but should have consumed %v bytes", n, field.siz)
		}
		if err != nil {
			return field.off, fmt.Errorf("struct %q field %q: %w", sh.name, field.name, err)
		}
	}
	return sh.Size, nil
}

func (sh *structHandler) Marshal(buf []byte, val reflect.Value) ([]byte, error) {
	start := len(buf)
	for _, field := range sh.fields {
		var err error
		buf, err = appendValue(buf, val.Field(field.index))
		if err == nil && len(buf)-start != field.off+field.siz {
			err = fmt.Errorf("produced %v bytes but should have produced %v bytes",
				len(buf)-start-field.off, field.siz)
		}
		if err != nil {
			return buf, fmt.Errorf("struct %q field %q: %w", sh.name, field.name, err)
		}
	}
	return buf, nil
}

func genStructHandler(typ reflect.Type) (*structHandler, error) {
	ret := &structHandler{
		name: typ.String(),
	}

	var curOffset int
	endOffset := -1
	for i := 0; i < typ.NumField(); i++ {
		fieldInfo := typ.Field(i)
		fail := func(err error) (*structHandler, error) {
			return nil, fmt.Errorf("struct %q field %v %q: %w", ret.name, i, fieldInfo.Name, err)
		}

		if fieldInfo.Anonymous && fieldInfo.Type != endType {
			return fail(fmt.Errorf("embedded fields are not supported"))
		}
		fieldTag, err := parseStructTag(fieldInfo.Tag.Get("bin"))
		if err != nil {
			return fail(err)
		}
		if fieldTag.skip {
			continue
		}
		if fieldTag.off != curOffset {
			return fail(fmt.Errorf("tag says off=%#x but curOffset=%#x", fieldTag.off, curOffset))
		}
		if fieldInfo.Type == endType {
			endOffset = curOffset
			continue
		}
		fieldSize, err := staticSize(fieldInfo.Type)
		if err != nil {
			return fail(err)
		}
		if fieldTag.siz != fieldSize {
			return fail(fmt.Errorf("tag says siz=%#x but StaticSize(typ)=%#x", fieldTag.siz, fieldSize))
		}
		curOffset += fieldTag.siz

		ret.fields = append(ret.fields, structField{
			name:  fieldInfo.Name,
			index: i,
			tag:   fieldTag,
		})
	}
	ret.Size = curOffset

	if typ != endType && ret.Size != endOffset {
		return nil, fmt.Errorf("struct %q: .Size=%v but endOffset=%v", ret.name, ret.Size, endOffset)
	}

	return ret, nil
}

var structCache typedsync.Map[reflect.Type, *structHandler]

func getStructHandler(typ reflect.Type) *structHandler {
	if h, ok := structCache.Load(typ); ok {
		return h
	}
	h, err := genStructHandler(typ)
	if err != nil {
		panic(&InvalidTypeError{
			Type: typ,
			Err:  err,
		})
	}
	h, _ = structCache.LoadOrStore(typ, h)
	return h
}
