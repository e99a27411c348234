// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"strconv"
	"strings"

	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs/f2fsprim"
)

// parseRange parses "START~END" (either side may be omitted); an END
// of -1 means "through the last entry".
func parseRange(args []string) (start, end int64, err error) {
	start, end = 0, -1
	if len(args) == 0 {
		return start, end, nil
	}
	startStr, endStr, ok := strings.Cut(args[0], "~")
	if !ok {
		return 0, 0, fmt.Errorf("invalid range %q: expected START~END", args[0])
	}
	if startStr != "" {
		if start, err = strconv.ParseInt(startStr, 0, 64); err != nil {
			return 0, 0, fmt.Errorf("invalid range %q: %w", args[0], err)
		}
	}
	if endStr != "" {
		if end, err = strconv.ParseInt(endStr, 0, 64); err != nil {
			return 0, 0, fmt.Errorf("invalid range %q: %w", args[0], err)
		}
	}
	return start, end, nil
}

func parseNID(str string) (f2fsprim.NID, error) {
	n, err := strconv.ParseUint(str, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid node id %q: %w", str, err)
	}
	return f2fsprim.NID(n), nil
}

func parseBlockAddr(str string) (f2fsprim.BlockAddr, error) {
	n, err := strconv.ParseUint(str, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid block address %q: %w", str, err)
	}
	return f2fsprim.BlockAddr(n), nil
}
