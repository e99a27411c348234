// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package f2fsutil_test

import (
	"context"
	"errors"
	"testing"

	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/f2fs-progs-ng/lib/diskio"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs/f2fsmkfs"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs/f2fsprim"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fsutil"
)

func open(t *testing.T, b *f2fsmkfs.Builder) (context.Context, *f2fs.FS) {
	t.Helper()
	img, err := b.Build()
	require.NoError(t, err)
	ctx := dlog.NewTestContext(t, false)
	fs, err := f2fs.Open(ctx, img)
	require.NoError(t, err)
	return ctx, fs
}

// rootAt places the root inode at block 256 of the first main
// segment, and lets the caller edit the tables before the image is
// built.
func rootAt(t *testing.T, edit func(b *f2fsmkfs.Builder, addr f2fsprim.BlockAddr)) (context.Context, *f2fs.FS, f2fsprim.BlockAddr) {
	t.Helper()
	b := f2fsmkfs.New()
	addr := b.Geometry.MainBlkAddr + 256
	require.NoError(t, b.AddNodeAt(addr, f2fsmkfs.NewInode(f2fsmkfs.RootIno, "root")))
	if edit != nil {
		edit(b, addr)
	}
	ctx, fs := open(t, b)
	return ctx, fs, addr
}

func TestScanCrossCheck(t *testing.T) {
	t.Parallel()

	t.Run("healthy", func(t *testing.T) {
		t.Parallel()
		ctx, fs, addr := rootAt(t, nil)

		segno, off, err := fs.Geometry.SegOf(addr)
		require.NoError(t, err)
		assert.Equal(t, f2fsprim.SegNo(0), segno)
		assert.Equal(t, uint32(256), off)

		var visited []f2fsprim.NID
		checker := f2fsutil.NewChecker(fs)
		require.NoError(t, f2fsutil.ScanNodes(ctx, fs, checker, f2fsutil.ScanHandler{
			Node: func(nid f2fsprim.NID, nodeAddr f2fsprim.BlockAddr, node *f2fs.Node) {
				visited = append(visited, nid)
				assert.Equal(t, addr, nodeAddr)
				assert.Equal(t, f2fs.NodeInode, node.Kind)
			},
		}))
		assert.Equal(t, []f2fsprim.NID{3}, visited)
		assert.Equal(t, 0, checker.Report.Len())
	})

	t.Run("ssa-mismatch", func(t *testing.T) {
		t.Parallel()
		ctx, fs, addr := rootAt(t, func(b *f2fsmkfs.Builder, addr f2fsprim.BlockAddr) {
			require.NoError(t, b.SetSummary(addr, f2fs.Summary{NID: 99}))
		})

		checker := f2fsutil.NewChecker(fs)
		require.NoError(t, f2fsutil.ScanNodes(ctx, fs, checker, f2fsutil.ScanHandler{}))
		assert.Equal(t, []f2fsutil.Inconsistency{{
			Category: f2fsutil.CategorySSAOwner,
			NID:      3,
			Addr:     addr,
			Expected: f2fsprim.NID(3),
			Observed: f2fsprim.NID(99),
		}}, checker.Report.Inconsistencies())
		assert.Equal(t, 1, checker.Report.Count(f2fsutil.CategorySSAOwner))
	})

	t.Run("not-valid", func(t *testing.T) {
		t.Parallel()
		ctx, fs, addr := rootAt(t, func(b *f2fsmkfs.Builder, addr f2fsprim.BlockAddr) {
			require.NoError(t, b.SetValid(addr, false))
		})

		checker := f2fsutil.NewChecker(fs)
		require.NoError(t, f2fsutil.ScanNodes(ctx, fs, checker, f2fsutil.ScanHandler{}))
		require.Equal(t, 1, checker.Report.Len())
		inc := checker.Report.Inconsistencies()[0]
		assert.Equal(t, f2fsutil.CategoryNotValidInSIT, inc.Category)
		assert.Equal(t, addr, inc.Addr)
	})

	t.Run("data-segment", func(t *testing.T) {
		t.Parallel()
		ctx, fs, _ := rootAt(t, func(b *f2fsmkfs.Builder, _ f2fsprim.BlockAddr) {
			b.SetSegmentType(0, f2fs.SegHotData)
		})

		checker := f2fsutil.NewChecker(fs)
		require.NoError(t, f2fsutil.ScanNodes(ctx, fs, checker, f2fsutil.ScanHandler{}))
		assert.Equal(t, 1, checker.Report.Count(f2fsutil.CategorySegmentType))
	})
}

func TestScanIdempotent(t *testing.T) {
	t.Parallel()
	ctx, fs, _ := rootAt(t, func(b *f2fsmkfs.Builder, addr f2fsprim.BlockAddr) {
		require.NoError(t, b.SetSummary(addr, f2fs.Summary{NID: 99}))
	})
	var reports [2][]f2fsutil.Inconsistency
	for i := range reports {
		checker := f2fsutil.NewChecker(fs)
		require.NoError(t, f2fsutil.ScanNodes(ctx, fs, checker, f2fsutil.ScanHandler{}))
		reports[i] = checker.Report.Inconsistencies()
	}
	assert.Len(t, reports[0], 1)
	assert.Equal(t, reports[0], reports[1])
}

func TestScanDuplicateBlock(t *testing.T) {
	t.Parallel()
	b := f2fsmkfs.New()
	dat, err := b.AddData(3, 0, []byte("shared"))
	require.NoError(t, err)
	for _, ino := range []f2fsprim.NID{3, 4} {
		inode := f2fsmkfs.NewInode(ino, "file")
		inode.Inode.Addrs[0] = dat
		_, err := b.AddNode(inode)
		require.NoError(t, err)
	}
	ctx, fs := open(t, b)

	var data []f2fsprim.NID
	checker := f2fsutil.NewChecker(fs)
	require.NoError(t, f2fsutil.ScanNodes(ctx, fs, checker, f2fsutil.ScanHandler{
		Data: func(owner f2fsprim.NID, ofsInNode int, addr f2fsprim.BlockAddr) {
			assert.Equal(t, 0, ofsInNode)
			assert.Equal(t, dat, addr)
			data = append(data, owner)
		},
	}))
	assert.Equal(t, []f2fsprim.NID{3, 4}, data)
	assert.Equal(t, 1, checker.Report.Count(f2fsutil.CategoryDuplicateBlock))
	assert.Equal(t, 1, checker.Report.Count(f2fsutil.CategorySSAOwner))
	assert.Equal(t, 2, checker.Report.Len())
}

type visit struct {
	Depth     int
	NID       f2fsprim.NID
	Ofs       int
	FileBlock uint64
	Addr      f2fsprim.BlockAddr
}

func TestWalkData(t *testing.T) {
	t.Parallel()
	b := f2fsmkfs.New()
	d0, err := b.AddData(3, 0, []byte("first"))
	require.NoError(t, err)
	d1, err := b.AddData(4, 5, []byte("second"))
	require.NoError(t, err)

	inode := f2fsmkfs.NewInode(3, "file")
	inode.Inode.Addrs[0] = d0
	inode.Inode.NIDs[f2fs.InodeDirect1] = 4
	_, err = b.AddNode(inode)
	require.NoError(t, err)
	direct := f2fsmkfs.NewDirect(4, 3, f2fs.InodeChildOffset(f2fs.InodeDirect1))
	direct.Direct.Addrs[5] = d1
	_, err = b.AddNode(direct)
	require.NoError(t, err)

	ctx, fs := open(t, b)

	var inodes, nodes []f2fsprim.NID
	var data []visit
	checker := f2fsutil.NewChecker(fs)
	require.NoError(t, f2fsutil.Walk(ctx, fs, 3, f2fsutil.MaxDepth, checker, f2fsutil.WalkHandler{
		Inode: func(nid f2fsprim.NID, _ f2fsprim.BlockAddr, node *f2fs.Node) {
			inodes = append(inodes, nid)
			assert.Equal(t, "file", node.Inode.FileName())
		},
		Node: func(depth int, nid f2fsprim.NID, _ f2fsprim.BlockAddr, _ *f2fs.Node) {
			assert.Equal(t, 1, depth)
			nodes = append(nodes, nid)
		},
		Data: func(depth int, owner f2fsprim.NID, ofs int, fileBlock uint64, addr f2fsprim.BlockAddr) {
			data = append(data, visit{depth, owner, ofs, fileBlock, addr})
		},
	}))
	assert.Equal(t, []f2fsprim.NID{3}, inodes)
	assert.Equal(t, []f2fsprim.NID{4}, nodes)
	assert.Equal(t, []visit{
		{0, 3, 0, 0, d0},
		{1, 4, 5, f2fs.AddrsPerInode + 5, d1},
	}, data)
	assert.Equal(t, 0, checker.Report.Len())

	// With no node levels allowed, only the inode's own slots are
	// visited.
	data = nil
	nodes = nil
	checker = f2fsutil.NewChecker(fs)
	require.NoError(t, f2fsutil.Walk(ctx, fs, 3, -1, checker, f2fsutil.WalkHandler{
		Node: func(_ int, nid f2fsprim.NID, _ f2fsprim.BlockAddr, _ *f2fs.Node) {
			nodes = append(nodes, nid)
		},
		Data: func(depth int, owner f2fsprim.NID, ofs int, fileBlock uint64, addr f2fsprim.BlockAddr) {
			data = append(data, visit{depth, owner, ofs, fileBlock, addr})
		},
	}))
	assert.Empty(t, nodes)
	assert.Equal(t, []visit{{0, 3, 0, 0, d0}}, data)
}

func TestWalkDepthBound(t *testing.T) {
	t.Parallel()
	b := f2fsmkfs.New()
	inode := f2fsmkfs.NewInode(3, "big")
	inode.Inode.NIDs[f2fs.InodeDoubleIndirect] = 10
	_, err := b.AddNode(inode)
	require.NoError(t, err)

	dindOfs := f2fs.InodeChildOffset(f2fs.InodeDoubleIndirect)
	dind := f2fsmkfs.NewIndirect(10, 3, dindOfs)
	require.Equal(t, f2fs.NodeDoubleIndirect, dind.Kind)
	dind.Indirect.NIDs[0] = 11
	_, err = b.AddNode(dind)
	require.NoError(t, err)

	// Where an indirect node belongs, another double-indirect node,
	// whose child would be a fourth level.
	fourth := f2fsmkfs.NewIndirect(11, 3, dindOfs)
	fourth.Indirect.NIDs[0] = 12
	_, err = b.AddNode(fourth)
	require.NoError(t, err)
	_, err = b.AddNode(f2fsmkfs.NewDirect(12, 3, f2fs.ChildOffset(f2fs.NodeDoubleIndirect, dindOfs, 0)+1))
	require.NoError(t, err)

	ctx, fs := open(t, b)

	for _, maxDepth := range []int{f2fsutil.MaxDepth, 100} {
		var nodes []f2fsprim.NID
		checker := f2fsutil.NewChecker(fs)
		require.NoError(t, f2fsutil.Walk(ctx, fs, 3, maxDepth, checker, f2fsutil.WalkHandler{
			Node: func(_ int, nid f2fsprim.NID, _ f2fsprim.BlockAddr, _ *f2fs.Node) {
				nodes = append(nodes, nid)
			},
		}))
		assert.Equal(t, []f2fsprim.NID{10}, nodes)
		require.Equal(t, 1, checker.Report.Len())
		inc := checker.Report.Inconsistencies()[0]
		assert.Equal(t, f2fsutil.CategoryDepth, inc.Category)
		assert.Equal(t, f2fsprim.NID(11), inc.NID)
		assert.Equal(t, f2fs.NodeIndirect, inc.Expected)
		assert.Equal(t, f2fs.NodeDoubleIndirect, inc.Observed)
	}
}

func TestWalkBadChildren(t *testing.T) {
	t.Parallel()
	b := f2fsmkfs.New()
	inode := f2fsmkfs.NewInode(3, "file")
	inode.Inode.NIDs[f2fs.InodeDirect1] = 50
	inode.Inode.NIDs[f2fs.InodeDirect2] = 0xffffff00
	inode.Inode.NIDs[f2fs.InodeIndirect1] = 5
	_, err := b.AddNode(inode)
	require.NoError(t, err)
	// A direct node where an indirect one belongs.
	_, err = b.AddNode(f2fsmkfs.NewDirect(5, 3, 1))
	require.NoError(t, err)
	ctx, fs := open(t, b)

	checker := f2fsutil.NewChecker(fs)
	require.NoError(t, f2fsutil.Walk(ctx, fs, 3, f2fsutil.MaxDepth, checker, f2fsutil.WalkHandler{}))
	assert.Equal(t, 2, checker.Report.Count(f2fsutil.CategoryBadNID))
	assert.Equal(t, 1, checker.Report.Count(f2fsutil.CategoryNodeKind))
	assert.Equal(t, 3, checker.Report.Len())
}

func TestWalkSSAOffset(t *testing.T) {
	t.Parallel()
	b := f2fsmkfs.New()
	dat, err := b.AddData(3, 7, []byte("misfiled"))
	require.NoError(t, err)
	inode := f2fsmkfs.NewInode(3, "file")
	inode.Inode.Addrs[0] = dat
	_, err = b.AddNode(inode)
	require.NoError(t, err)
	ctx, fs := open(t, b)

	checker := f2fsutil.NewChecker(fs)
	require.NoError(t, f2fsutil.Walk(ctx, fs, 3, 0, checker, f2fsutil.WalkHandler{}))
	assert.Equal(t, []f2fsutil.Inconsistency{{
		Category: f2fsutil.CategorySSAOffset,
		NID:      3,
		Addr:     dat,
		Expected: 0,
		Observed: 7,
	}}, checker.Report.Inconsistencies())
}

func TestWalkRoot(t *testing.T) {
	t.Parallel()
	ctx, fs, _ := rootAt(t, nil)

	err := f2fsutil.Walk(ctx, fs, 40, f2fsutil.MaxDepth, nil, f2fsutil.WalkHandler{})
	assert.ErrorIs(t, err, f2fs.ErrUnallocated)

	err = f2fsutil.Walk(ctx, fs, fs.Geometry.MaxNID, f2fsutil.MaxDepth, nil, f2fsutil.WalkHandler{})
	var rangeErr *f2fs.RangeError
	assert.ErrorAs(t, err, &rangeErr)
}

func TestCheckCheckpoint(t *testing.T) {
	t.Parallel()
	ctx, fs := open(t, f2fsmkfs.New(f2fsmkfs.WithVersions(5, 5)))
	checker := f2fsutil.NewChecker(fs)
	checker.CheckCheckpoint(ctx)
	assert.Equal(t, 1, checker.Report.Count(f2fsutil.CategoryCheckpointVersion))
}

func TestInconsistencyString(t *testing.T) {
	t.Parallel()
	inc := f2fsutil.Inconsistency{
		Category: f2fsutil.CategorySSAOwner,
		NID:      3,
		Addr:     0x1100,
		Expected: f2fsprim.NID(3),
		Observed: f2fsprim.NID(99),
	}
	assert.Equal(t, "ssa-owner: nid=3 addr=0x00001100: expected 3, observed 99", inc.String())
}

func TestScanUncleanOpenNodeLog(t *testing.T) {
	t.Parallel()
	b := f2fsmkfs.New(f2fsmkfs.WithUncleanUnmount())
	addr, err := b.AddNode(f2fsmkfs.NewInode(f2fsmkfs.RootIno, "root"))
	require.NoError(t, err)
	segno, _, err := b.Geometry.SegOf(addr)
	require.NoError(t, err)
	b.SSA[segno] = f2fs.SummaryBlock{}
	ctx, fs := open(t, b)

	checker := f2fsutil.NewChecker(fs)
	require.NoError(t, f2fsutil.ScanNodes(ctx, fs, checker, f2fsutil.ScanHandler{}))
	assert.Empty(t, checker.Report.Inconsistencies())
}

// natReadFailure fails every read of the NAT area.
type natReadFailure struct {
	diskio.File[f2fsprim.PhysicalAddr]
	geom f2fs.Geometry
}

func (f natReadFailure) ReadAt(p []byte, off f2fsprim.PhysicalAddr) (int, error) {
	lo, hi := f.geom.NATBlkAddr.Physical(), f.geom.SSABlkAddr.Physical()
	if off < hi && off+f2fsprim.PhysicalAddr(len(p)) > lo {
		return 0, errors.New("injected read failure")
	}
	return f.File.ReadAt(p, off)
}

func TestReadFailureAborts(t *testing.T) {
	t.Parallel()
	b := f2fsmkfs.New()
	_, err := b.AddNode(f2fsmkfs.NewInode(f2fsmkfs.RootIno, "root"))
	require.NoError(t, err)
	img, err := b.Build()
	require.NoError(t, err)
	ctx := dlog.NewTestContext(t, false)
	fs, err := f2fs.Open(ctx, natReadFailure{File: img, geom: b.Geometry})
	require.NoError(t, err)

	var ioErr *f2fs.IOError

	checker := f2fsutil.NewChecker(fs)
	err = f2fsutil.ScanNodes(ctx, fs, checker, f2fsutil.ScanHandler{})
	assert.ErrorAs(t, err, &ioErr)
	assert.Equal(t, 0, checker.Report.Len())

	err = f2fsutil.Walk(ctx, fs, f2fsmkfs.RootIno, f2fsutil.MaxDepth, nil, f2fsutil.WalkHandler{})
	assert.ErrorAs(t, err, &ioErr)
}
