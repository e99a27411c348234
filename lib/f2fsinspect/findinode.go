// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package f2fsinspect

import (
	"context"
	"errors"
	"time"

	"github.com/datawire/dlib/dlog"

	"git.lukeshu.com/f2fs-progs-ng/lib/containers"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs/f2fsprim"
	"git.lukeshu.com/f2fs-progs-ng/lib/textui"
)

// InodeCopy is a block in a node segment whose footer claims to be
// the inode being searched for.  Only one copy can be Live; the
// others are older versions that have not been overwritten yet.
type InodeCopy struct {
	Addr     f2fsprim.BlockAddr
	CPVer    uint64
	Valid    bool
	Live     bool
	FileName string
	Size     uint64
}

type findStats struct {
	portion textui.Portion[f2fsprim.SegNo]
	found   int
}

func (s findStats) String() string {
	return textui.Sprintf("searched %v segments (found %v copies)", s.portion, s.found)
}

// FindInode reads every block of every node segment and emits each
// one whose footer names ino as both its nid and its inode.  Node
// segments are the ones the SIT types as node segments, plus the
// current node segments of the checkpoint.
func FindInode(ctx context.Context, fs *f2fs.FS, ino f2fsprim.NID, emit Emitter) (int, error) {
	ctx = dlog.WithField(ctx, "f2fsinspect.find.ino", ino)
	live, err := fs.ResolveNID(ino)
	if err != nil {
		return 0, err
	}

	cursegs := make(containers.Set[f2fsprim.SegNo])
	for _, curseg := range fs.Cursegs() {
		if curseg.Type.IsNode() {
			cursegs.Insert(curseg.SegNo)
		}
	}

	progress := textui.NewProgress[findStats](ctx, dlog.LogLevelInfo, textui.Tunable(1*time.Second))
	var stats findStats
	stats.portion.D = f2fsprim.SegNo(fs.Geometry.MainSegments)

	err = fs.SITRange(ctx, 0, -1, func(segno f2fsprim.SegNo, seg f2fs.SITEntry) error {
		stats.portion.N = segno
		progress.Set(stats)
		if _, isCur := cursegs[segno]; !isCur && !seg.Type().IsNode() {
			return nil
		}
		start := fs.Geometry.SegStart(segno)
		for off := uint32(0); off < fs.Geometry.BlocksPerSeg; off++ {
			addr := start + f2fsprim.BlockAddr(off)
			node, err := fs.ReadNodeAt(addr)
			if err != nil {
				var ioErr *f2fs.IOError
				if errors.As(err, &ioErr) {
					return err
				}
				continue
			}
			if node.Kind != f2fs.NodeInode || node.Footer.NID != ino {
				continue
			}
			stats.found++
			if err := emit(InodeCopy{
				Addr:     addr,
				CPVer:    node.Footer.CPVer,
				Valid:    seg.ValidMap.Test(off),
				Live:     live.IsAllocated() && live.BlockAddr == addr,
				FileName: node.Inode.FileName(),
				Size:     node.Inode.Size,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	stats.portion.N = stats.portion.D
	progress.Set(stats)
	progress.Done()
	return stats.found, err
}
