// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package f2fsinspect

import (
	"context"

	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fsutil"
)

// ScanFullDisk cross-checks every allocated node and the data blocks
// it points at, emits each inconsistency as it is found followed by a
// ScanSummary, and returns the number of inconsistencies.
func ScanFullDisk(ctx context.Context, fs *f2fs.FS, emit Emitter) (int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var emitErr error

	checker := f2fsutil.NewChecker(fs)
	checker.Report.OnRecord = func(inc f2fsutil.Inconsistency) {
		if emitErr != nil {
			return
		}
		if err := emit(InconsistencyRecord{inc}); err != nil {
			emitErr = err
			cancel()
		}
	}
	checker.CheckCheckpoint(ctx)
	err := f2fsutil.ScanNodes(ctx, fs, checker, f2fsutil.ScanHandler{})
	if emitErr != nil {
		return checker.Report.Len(), emitErr
	}
	if err != nil {
		return checker.Report.Len(), err
	}
	checker.Report.LogSummary(ctx)

	summary := ScanSummary{Inconsistencies: checker.Report.Len()}
	for _, inc := range checker.Report.Inconsistencies() {
		if summary.ByCategory == nil {
			summary.ByCategory = make(map[string]int)
		}
		summary.ByCategory[inc.Category.String()]++
	}
	return summary.Inconsistencies, emit(summary)
}
