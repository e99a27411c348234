// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package binutil provides utilities for implementing the interfaces
// consumed by binstruct.
package binutil

import (
	"fmt"
)

// A ShortDataError is returned when a decoder is handed fewer bytes
// than its fixed on-disk size.
type ShortDataError struct {
	Need, Have int
}

func (e *ShortDataError) Error() string {
	return fmt.Sprintf("need at least %v bytes, only have %v", e.Need, e.Have)
}

func NeedNBytes(dat []byte, n int) error {
	if len(dat) < n {
		return &ShortDataError{Need: n, Have: len(dat)}
	}
	return nil
}
