// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package linux has the parts of the Linux stat(2) ABI that on-disk
// inodes store verbatim.
package linux

// StatMode is the st_mode of an inode: 4 bits of file type, then 12
// bits of permissions.
type StatMode uint16

const (
	ModeFmt = StatMode(0o17_0000)

	ModeFmtNamedPipe   = StatMode(0o01_0000)
	ModeFmtCharDevice  = StatMode(0o02_0000)
	ModeFmtDir         = StatMode(0o04_0000)
	ModeFmtBlockDevice = StatMode(0o06_0000)
	ModeFmtRegular     = StatMode(0o10_0000)
	ModeFmtSymlink     = StatMode(0o12_0000)
	ModeFmtSocket      = StatMode(0o14_0000)

	ModePerm = StatMode(0o00_7777)
)

func (mode StatMode) Fmt() StatMode   { return mode & ModeFmt }
func (mode StatMode) IsDir() bool     { return mode.Fmt() == ModeFmtDir }
func (mode StatMode) IsRegular() bool { return mode.Fmt() == ModeFmtRegular }
func (mode StatMode) IsSymlink() bool { return mode.Fmt() == ModeFmtSymlink }

// String formats the mode the way `ls -l` does, using 's' for
// sockets as GNU ls does.
func (mode StatMode) String() string {
	const (
		types = "?pc?d?b?-?l?s???"
		rwx   = "rwxrwxrwx"
	)
	var buf [10]byte
	buf[0] = types[mode>>12]
	for i := 0; i < 9; i++ {
		if mode&(1<<(8-i)) != 0 {
			buf[1+i] = rwx[i]
		} else {
			buf[1+i] = '-'
		}
	}
	// setuid, setgid and sticky replace the execute bits.
	for i, special := range []struct {
		bit        StatMode
		withX, noX byte
	}{
		{0o4000, 's', 'S'},
		{0o2000, 's', 'S'},
		{0o1000, 't', 'T'},
	} {
		if mode&special.bit == 0 {
			continue
		}
		pos := 3 * (i + 1)
		if buf[pos] == 'x' {
			buf[pos] = special.withX
		} else {
			buf[pos] = special.noX
		}
	}
	return string(buf[:])
}

func (mode StatMode) MarshalText() ([]byte, error) { return []byte(mode.String()), nil }
