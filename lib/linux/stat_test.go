// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package linux_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"git.lukeshu.com/f2fs-progs-ng/lib/linux"
)

func TestStatModeString(t *testing.T) {
	t.Parallel()
	testcases := map[string]struct {
		Mode linux.StatMode
		Str  string
	}{
		"file":    {0o100644, "-rw-r--r--"},
		"dir":     {0o40755, "drwxr-xr-x"},
		"symlink": {0o120777, "lrwxrwxrwx"},
		"setuid":  {0o104755, "-rwsr-xr-x"},
		"setgid":  {0o102644, "-rw-r-Sr--"},
		"sticky":  {0o41777, "drwxrwxrwt"},
		"fifo":    {0o10600, "prw-------"},
		"unknown": {0o000000, "?---------"},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.Str, tc.Mode.String())
		})
	}
	assert.True(t, linux.StatMode(0o40755).IsDir())
	assert.True(t, linux.StatMode(0o100644).IsRegular())
	assert.False(t, linux.StatMode(0o100644).IsSymlink())
}
