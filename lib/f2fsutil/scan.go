// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package f2fsutil

import (
	"context"
	"errors"
	"time"

	"github.com/datawire/dlib/dlog"

	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs/f2fsprim"
	"git.lukeshu.com/f2fs-progs-ng/lib/textui"
)

// ScanHandler holds the callbacks for ScanNodes; any of them may be
// nil.
type ScanHandler struct {
	Node func(nid f2fsprim.NID, addr f2fsprim.BlockAddr, node *f2fs.Node)
	Data func(owner f2fsprim.NID, ofsInNode int, addr f2fsprim.BlockAddr)
}

type scanStats struct {
	portion         textui.Portion[f2fsprim.NID]
	nodes           int
	inconsistencies int
}

func (s scanStats) String() string {
	return textui.Sprintf("scanned %v nids (%v nodes, %v inconsistencies)",
		s.portion, s.nodes, s.inconsistencies)
}

// ScanNodes reads every allocated nid in the NAT on its own, without
// regard to which inode (if any) reaches it, and classifies each one
// by its own footer.  Each node block and the data blocks its own
// slots point at are cross-checked by checker.  This finds nodes that
// no tree walk can reach.
//
// The node and meta inode numbers are skipped; they name the NAT and
// the metadata area, not node blocks.
func ScanNodes(ctx context.Context, fs *f2fs.FS, checker *Checker, handler ScanHandler) error {
	if checker == nil {
		checker = NewChecker(fs)
	}
	sb := fs.Superblock.Superblock
	features := sb.Features

	progress := textui.NewProgress[scanStats](ctx, dlog.LogLevelInfo, textui.Tunable(1*time.Second))
	var stats scanStats
	stats.portion.D = fs.Geometry.MaxNID

	err := fs.NATRange(ctx, 0, -1, func(nid f2fsprim.NID, ent f2fs.NATEntry) error {
		stats.portion.N = nid
		stats.inconsistencies = checker.Report.Len()
		progress.Set(stats)

		if nid == sb.NodeIno || nid == sb.MetaIno || !ent.IsAllocated() {
			return nil
		}
		stats.nodes++
		ctx := dlog.WithField(ctx, "f2fsutil.scan.nid", nid)
		return scanNode(ctx, fs, features, checker, handler, nid, ent)
	})

	stats.portion.N = fs.Geometry.MaxNID
	stats.inconsistencies = checker.Report.Len()
	progress.Set(stats)
	progress.Done()
	return err
}

func scanNode(ctx context.Context, fs *f2fs.FS, features f2fs.FeatureFlags, checker *Checker, handler ScanHandler, nid f2fsprim.NID, ent f2fs.NATEntry) error {
	addr := ent.BlockAddr
	if !addr.IsReal() {
		checker.record(ctx, Inconsistency{
			Category: CategoryBadNID,
			NID:      nid,
			Addr:     addr,
			Detail:   "NAT entry has no block",
		})
		return nil
	}
	ok, err := checker.CheckNodeBlock(ctx, nid, addr)
	if err != nil || !ok {
		return err
	}
	node, err := fs.ReadNodeAt(addr)
	if err != nil {
		var ioErr *f2fs.IOError
		if errors.As(err, &ioErr) {
			return err
		}
		checker.record(ctx, Inconsistency{
			Category: CategoryNodeKind,
			NID:      nid,
			Addr:     addr,
			Detail:   err.Error(),
		})
		return nil
	}

	if node.Footer.NID != nid {
		checker.record(ctx, Inconsistency{
			Category: CategoryFooterNID,
			NID:      nid,
			Addr:     addr,
			Expected: nid,
			Observed: node.Footer.NID,
		})
	}
	if node.Footer.Ino != ent.Ino {
		checker.record(ctx, Inconsistency{
			Category: CategoryFooterIno,
			NID:      nid,
			Addr:     addr,
			Expected: ent.Ino,
			Observed: node.Footer.Ino,
		})
	}
	if handler.Node != nil {
		handler.Node(nid, addr, node)
	}

	var addrs []f2fsprim.BlockAddr
	switch node.Kind {
	case f2fs.NodeInode:
		addrs, err = node.Inode.DataAddrs(features)
		if err != nil {
			checker.record(ctx, Inconsistency{
				Category: CategoryNodeKind,
				NID:      nid,
				Addr:     addr,
				Detail:   err.Error(),
			})
		}
	case f2fs.NodeDirect:
		addrs = node.Direct.Addrs[:]
	case f2fs.NodeUnknown:
		checker.record(ctx, Inconsistency{
			Category: CategoryNodeKind,
			NID:      nid,
			Addr:     addr,
			Observed: node.Kind,
			Detail:   "footer does not describe any kind of node",
		})
	}
	for i, dataAddr := range addrs {
		if dataAddr == f2fsprim.NullAddr {
			continue
		}
		if err := checker.CheckDataBlock(ctx, nid, i, dataAddr); err != nil {
			return err
		}
		if handler.Data != nil && dataAddr.IsReal() {
			handler.Data(nid, i, dataAddr)
		}
	}
	return nil
}
