// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package f2fsinspect

import (
	"context"

	"github.com/datawire/dlib/dlog"

	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs"
)

// CheckpointState is what a repair driver needs to know about the
// active checkpoint.
type CheckpointState struct {
	Slot      int
	Version   uint64
	Anomalous bool
	Flags     f2fs.CheckpointFlags
	FlagNames string

	CleanUnmount   bool
	OrphansPresent bool
	NeedsFsck      bool
}

func CheckpointSummary(fs *f2fs.FS) CheckpointState {
	cp := fs.Checkpoint.Checkpoint
	return CheckpointState{
		Slot:      fs.Checkpoint.Slot,
		Version:   cp.Version,
		Anomalous: fs.Checkpoint.Anomalous,
		Flags:     cp.Flags,
		FlagNames: cp.Flags.String(),

		CleanUnmount:   cp.Flags.Has(f2fs.CheckpointUmount),
		OrphansPresent: cp.Flags.Has(f2fs.CheckpointOrphanPresent),
		NeedsFsck: cp.Flags.Has(f2fs.CheckpointFsck) ||
			cp.Flags.Has(f2fs.CheckpointError) ||
			cp.Flags.Has(f2fs.CheckpointQuotaNeedFsck),
	}
}

// LogCheckpointState logs the checkpoint state the way it is reported
// after every dump.
func LogCheckpointState(ctx context.Context, state CheckpointState) {
	unmount := "unclean unmount"
	if state.CleanUnmount {
		unmount = "clean unmount"
	}
	dlog.Infof(ctx, "checkpoint %v (slot %v): %v; flags %v",
		state.Version, state.Slot, unmount, state.FlagNames)
	if state.OrphansPresent {
		dlog.Warn(ctx, "checkpoint has orphan inodes")
	}
	if state.NeedsFsck {
		dlog.Warn(ctx, "checkpoint requests fsck")
	}
	if state.Anomalous {
		dlog.Warn(ctx, "both checkpoint slots carry the same version")
	}
}
