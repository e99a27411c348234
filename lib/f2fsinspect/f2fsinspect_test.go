// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package f2fsinspect_test

import (
	"context"
	"errors"
	"testing"

	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs/f2fsmkfs"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs/f2fsprim"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fsinspect"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fsutil"
)

type fixture struct {
	inodeAddr  f2fsprim.BlockAddr
	directAddr f2fsprim.BlockAddr
	data0      f2fsprim.BlockAddr
	data1      f2fsprim.BlockAddr
}

// newFixture builds an image with one file: inode 3 with a data
// block in its first slot, and direct node 4 with a data block in
// its third slot.
func newFixture(t *testing.T, opts ...f2fsmkfs.Option) (*f2fsmkfs.Builder, fixture) {
	t.Helper()
	var fx fixture
	var err error
	b := f2fsmkfs.New(opts...)
	fx.data0, err = b.AddData(3, 0, []byte("first"))
	require.NoError(t, err)
	fx.data1, err = b.AddData(4, 2, []byte("second"))
	require.NoError(t, err)

	inode := f2fsmkfs.NewInode(3, "hello.txt")
	inode.Inode.Size = 2 * f2fsprim.BlockSize
	inode.Inode.Addrs[0] = fx.data0
	inode.Inode.NIDs[f2fs.InodeDirect1] = 4
	fx.inodeAddr, err = b.AddNode(inode)
	require.NoError(t, err)

	direct := f2fsmkfs.NewDirect(4, 3, f2fs.InodeChildOffset(f2fs.InodeDirect1))
	direct.Direct.Addrs[2] = fx.data1
	fx.directAddr, err = b.AddNode(direct)
	require.NoError(t, err)
	return b, fx
}

func open(t *testing.T, b *f2fsmkfs.Builder) (context.Context, *f2fs.FS) {
	t.Helper()
	img, err := b.Build()
	require.NoError(t, err)
	ctx := dlog.NewTestContext(t, false)
	fs, err := f2fs.Open(ctx, img)
	require.NoError(t, err)
	return ctx, fs
}

func collect(recs *[]f2fsinspect.Record) f2fsinspect.Emitter {
	return func(rec f2fsinspect.Record) error {
		*recs = append(*recs, rec)
		return nil
	}
}

func TestDumpRangeNAT(t *testing.T) {
	t.Parallel()
	b, fx := newFixture(t)
	ctx, fs := open(t, b)

	var recs []f2fsinspect.Record
	require.NoError(t, f2fsinspect.DumpRange(ctx, fs, f2fsinspect.RangeDump{
		Table: f2fsinspect.TableNAT,
		Start: 0,
		End:   -1,
	}, collect(&recs)))
	require.Len(t, recs, int(fs.Geometry.MaxNID))
	for i, rec := range recs {
		natRec, ok := rec.(f2fsinspect.NATRecord)
		require.True(t, ok)
		require.Equal(t, f2fsprim.NID(i), natRec.NID)
	}
	assert.Equal(t, fx.inodeAddr, recs[3].(f2fsinspect.NATRecord).Entry.BlockAddr)
	assert.Equal(t, fx.directAddr, recs[4].(f2fsinspect.NATRecord).Entry.BlockAddr)
}

func TestDumpRangeTables(t *testing.T) {
	t.Parallel()
	b, fx := newFixture(t)
	ctx, fs := open(t, b)

	var recs []f2fsinspect.Record
	require.NoError(t, f2fsinspect.DumpRange(ctx, fs, f2fsinspect.RangeDump{
		Table: f2fsinspect.TableSIT,
		Start: 0,
		End:   -1,
	}, collect(&recs)))
	require.Len(t, recs, int(fs.Geometry.MainSegments))
	for _, rec := range recs {
		sitRec := rec.(f2fsinspect.SITRecord)
		assert.Equal(t, int(fs.Geometry.BlocksPerSeg), sitRec.Entry.ValidMap.Len())
		assert.Equal(t, sitRec.Entry.ValidMap.Count(), int(sitRec.ValidBlocks))
	}

	segno, off, err := fs.Geometry.SegOf(fx.data0)
	require.NoError(t, err)
	recs = nil
	require.NoError(t, f2fsinspect.DumpRange(ctx, fs, f2fsinspect.RangeDump{
		Table: f2fsinspect.TableSSA,
		Start: int64(segno),
		End:   int64(segno) + 1,
	}, collect(&recs)))
	require.Len(t, recs, 1)
	ssaRec := recs[0].(f2fsinspect.SSARecord)
	assert.Equal(t, segno, ssaRec.SegNo)
	assert.Equal(t, f2fs.SummaryData, ssaRec.Type)
	assert.Equal(t, f2fs.Summary{NID: 3}, ssaRec.Summary.Entries[off])

	var rangeErr *f2fs.RangeError
	err = f2fsinspect.DumpRange(ctx, fs, f2fsinspect.RangeDump{
		Table: f2fsinspect.TableSIT,
		Start: 0,
		End:   int64(fs.Geometry.MainSegments) + 1,
	}, collect(&recs))
	assert.ErrorAs(t, err, &rangeErr)
}

func TestDumpRangeEmitError(t *testing.T) {
	t.Parallel()
	b, _ := newFixture(t)
	ctx, fs := open(t, b)

	errStop := errors.New("stop")
	n := 0
	err := f2fsinspect.DumpRange(ctx, fs, f2fsinspect.RangeDump{Table: f2fsinspect.TableNAT, End: -1},
		func(f2fsinspect.Record) error {
			n++
			if n == 10 {
				return errStop
			}
			return nil
		})
	assert.ErrorIs(t, err, errStop)
	assert.Equal(t, 10, n)
}

func TestDumpNode(t *testing.T) {
	t.Parallel()
	b, fx := newFixture(t)
	ctx, fs := open(t, b)

	var recs []f2fsinspect.Record
	require.NoError(t, f2fsinspect.DumpNode(ctx, fs, f2fsinspect.NodeDump{NID: 4}, collect(&recs)))
	require.Len(t, recs, 1)
	nodeRec := recs[0].(f2fsinspect.NodeRecord)
	assert.Equal(t, -1, nodeRec.Depth)
	assert.Equal(t, fx.directAddr, nodeRec.Addr)
	assert.Equal(t, f2fs.NodeDirect, nodeRec.Node.Kind)

	recs = nil
	require.NoError(t, f2fsinspect.DumpNode(ctx, fs, f2fsinspect.NodeDump{NID: 3, Recursive: true}, collect(&recs)))
	var types []string
	for _, rec := range recs {
		types = append(types, rec.RecordType())
	}
	assert.Equal(t, []string{"node", "data", "node", "data"}, types)
	assert.Equal(t, f2fsinspect.DataRecord{
		Depth:     1,
		Owner:     4,
		OfsInNode: 2,
		FileBlock: f2fs.AddrsPerInode + 2,
		Addr:      fx.data1,
	}, recs[3])

	var rangeErr *f2fs.RangeError
	err := f2fsinspect.DumpNode(ctx, fs, f2fsinspect.NodeDump{NID: fs.Geometry.MaxNID}, collect(&recs))
	assert.ErrorAs(t, err, &rangeErr)
	err = f2fsinspect.DumpNode(ctx, fs, f2fsinspect.NodeDump{NID: 77}, collect(&recs))
	assert.ErrorIs(t, err, f2fs.ErrUnallocated)
}

func TestScanFullDisk(t *testing.T) {
	t.Parallel()

	t.Run("healthy", func(t *testing.T) {
		t.Parallel()
		b, _ := newFixture(t)
		ctx, fs := open(t, b)
		var recs []f2fsinspect.Record
		n, err := f2fsinspect.ScanFullDisk(ctx, fs, collect(&recs))
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		assert.Equal(t, []f2fsinspect.Record{f2fsinspect.ScanSummary{}}, recs)
	})

	t.Run("misowned", func(t *testing.T) {
		t.Parallel()
		b, fx := newFixture(t)
		require.NoError(t, b.SetSummary(fx.data1, f2fs.Summary{NID: 99, OfsInNode: 2}))
		ctx, fs := open(t, b)
		var recs []f2fsinspect.Record
		n, err := f2fsinspect.ScanFullDisk(ctx, fs, collect(&recs))
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		require.Len(t, recs, 2)
		assert.Equal(t, f2fsinspect.InconsistencyRecord{Inconsistency: f2fsutil.Inconsistency{
			Category: f2fsutil.CategorySSAOwner,
			NID:      4,
			Addr:     fx.data1,
			Expected: f2fsprim.NID(4),
			Observed: f2fsprim.NID(99),
		}}, recs[0])
		assert.Equal(t, f2fsinspect.ScanSummary{
			Inconsistencies: 1,
			ByCategory:      map[string]int{"ssa-owner": 1},
		}, recs[1])
	})
}

func TestClassifyBlock(t *testing.T) {
	t.Parallel()
	b, fx := newFixture(t)
	ctx, fs := open(t, b)

	type TestCase struct {
		Addr   f2fsprim.BlockAddr
		Region f2fs.Region
	}
	testcases := map[string]TestCase{
		"superblock": {Addr: 0, Region: f2fs.RegionSuperblock},
		"checkpoint": {Addr: fs.Geometry.CPBlkAddr, Region: f2fs.RegionCheckpoint},
		"sit":        {Addr: fs.Geometry.SITBlkAddr + 1, Region: f2fs.RegionSIT},
		"nat":        {Addr: fs.Geometry.NATBlkAddr, Region: f2fs.RegionNAT},
		"ssa":        {Addr: fs.Geometry.SSABlkAddr, Region: f2fs.RegionSSA},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			info, err := f2fsinspect.ClassifyBlock(ctx, fs, tc.Addr)
			require.NoError(t, err)
			assert.Equal(t, tc.Region, info.Region)
			assert.Nil(t, info.Main)
		})
	}

	t.Run("node", func(t *testing.T) {
		t.Parallel()
		info, err := f2fsinspect.ClassifyBlock(ctx, fs, fx.directAddr)
		require.NoError(t, err)
		require.NotNil(t, info.Main)
		assert.Equal(t, f2fs.SegWarmNode, info.Main.SegType)
		assert.True(t, info.Main.Valid)
		assert.Equal(t, f2fsprim.NID(4), info.Main.Owner.NID)
		assert.True(t, info.Main.NATAgrees)
		assert.Equal(t, "hello.txt", info.Main.FileName)
	})

	t.Run("data", func(t *testing.T) {
		t.Parallel()
		info, err := f2fsinspect.ClassifyBlock(ctx, fs, fx.data1)
		require.NoError(t, err)
		require.NotNil(t, info.Main)
		assert.Equal(t, f2fs.SegWarmData, info.Main.SegType)
		assert.True(t, info.Main.Valid)
		assert.Equal(t, f2fs.Summary{NID: 4, OfsInNode: 2}, info.Main.Owner)
		assert.True(t, info.Main.NATAgrees)
		assert.True(t, info.Main.Ino.OK)
		assert.Equal(t, f2fsprim.NID(3), info.Main.Ino.Val)
	})

	t.Run("unused", func(t *testing.T) {
		t.Parallel()
		info, err := f2fsinspect.ClassifyBlock(ctx, fs, fs.Geometry.MainEndBlkAddr-1)
		require.NoError(t, err)
		require.NotNil(t, info.Main)
		assert.False(t, info.Main.Valid)
		assert.False(t, info.Main.OwnerNAT.OK)
	})

	t.Run("past-end", func(t *testing.T) {
		t.Parallel()
		_, err := f2fsinspect.ClassifyBlock(ctx, fs, fs.Geometry.MainEndBlkAddr)
		var rangeErr *f2fs.RangeError
		assert.ErrorAs(t, err, &rangeErr)
	})
}

func TestCheckpointSummary(t *testing.T) {
	t.Parallel()
	type TestCase struct {
		Opts  []f2fsmkfs.Option
		Clean bool
		Slot  int
	}
	testcases := map[string]TestCase{
		"clean":   {Clean: true, Slot: 0},
		"unclean": {Opts: []f2fsmkfs.Option{f2fsmkfs.WithUncleanUnmount()}, Clean: false, Slot: 0},
		"second":  {Opts: []f2fsmkfs.Option{f2fsmkfs.WithVersions(5, 7)}, Clean: true, Slot: 1},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			ctx, fs := open(t, f2fsmkfs.New(tc.Opts...))
			var recs []f2fsinspect.Record
			require.NoError(t, f2fsinspect.Run(ctx, fs, f2fsinspect.CheckpointInfo{}, collect(&recs)))
			require.Len(t, recs, 1)
			state := recs[0].(f2fsinspect.CheckpointState)
			assert.Equal(t, tc.Clean, state.CleanUnmount)
			assert.Equal(t, tc.Slot, state.Slot)
			assert.False(t, state.OrphansPresent)
			assert.False(t, state.Anomalous)
			assert.Equal(t, state, f2fsinspect.CheckpointSummary(fs))
		})
	}
}

func TestFindInode(t *testing.T) {
	t.Parallel()
	b, fx := newFixture(t)
	stale, err := b.Alloc(f2fs.SegWarmNode)
	require.NoError(t, err)
	old := f2fsmkfs.NewInode(3, "old-name")
	old.Footer.CPVer = 1
	dat, err := old.MarshalBinary()
	require.NoError(t, err)
	b.WriteBlock(stale, dat)
	ctx, fs := open(t, b)

	var recs []f2fsinspect.Record
	require.NoError(t, f2fsinspect.Run(ctx, fs, f2fsinspect.FindInodeOp{Ino: 3}, collect(&recs)))
	assert.Equal(t, []f2fsinspect.Record{
		f2fsinspect.InodeCopy{
			Addr:     fx.inodeAddr,
			Valid:    true,
			Live:     true,
			FileName: "hello.txt",
			Size:     2 * f2fsprim.BlockSize,
		},
		f2fsinspect.InodeCopy{
			Addr:     stale,
			CPVer:    1,
			Valid:    false,
			Live:     false,
			FileName: "old-name",
		},
	}, recs)
}
