// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package f2fsutil walks and scans the node blocks of an F2FS image,
// cross-checking every block it visits against the NAT, SIT and SSA.
package f2fsutil

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/datawire/dlib/dlog"

	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs/f2fsprim"
	"git.lukeshu.com/f2fs-progs-ng/lib/maps"
	"git.lukeshu.com/f2fs-progs-ng/lib/textui"
)

type Category uint8

const (
	CategoryUnknown Category = iota
	// The SIT does not mark a referenced block as valid.
	CategoryNotValidInSIT
	// The SSA names a different owner for a block than the NAT or
	// the parent node does.
	CategorySSAOwner
	// The SSA records a different slot for a data block than the
	// one that points at it.
	CategorySSAOffset
	// A node block sits in a data segment, or the reverse.
	CategorySegmentType
	// A pointer refers to a block outside the main area.
	CategoryAddrOutOfMain
	// A child node would add a level to the tree.
	CategoryDepth
	// A child node is not the kind its parent's slot calls for.
	CategoryNodeKind
	CategoryNodeOffset
	CategoryFooterNID
	CategoryFooterIno
	// A node id is out of range, unallocated, or has no real
	// address.
	CategoryBadNID
	// Two pointers claim the same block.
	CategoryDuplicateBlock
	CategoryCheckpointVersion
)

var categoryNames = map[Category]string{
	CategoryUnknown:           "unknown",
	CategoryNotValidInSIT:     "not-valid-in-sit",
	CategorySSAOwner:          "ssa-owner",
	CategorySSAOffset:         "ssa-offset",
	CategorySegmentType:       "segment-type",
	CategoryAddrOutOfMain:     "addr-out-of-main",
	CategoryDepth:             "depth",
	CategoryNodeKind:          "node-kind",
	CategoryNodeOffset:        "node-offset",
	CategoryFooterNID:         "footer-nid",
	CategoryFooterIno:         "footer-ino",
	CategoryBadNID:            "bad-nid",
	CategoryDuplicateBlock:    "duplicate-block",
	CategoryCheckpointVersion: "checkpoint-version",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Category(%d)", uint8(c))
}

func (c Category) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// An Inconsistency is one structural violation found in the image.
// Expected and Observed are nil when a comparison does not apply.
type Inconsistency struct {
	Category Category
	NID      f2fsprim.NID
	Addr     f2fsprim.BlockAddr
	Expected any    `json:",omitempty" yaml:",omitempty"`
	Observed any    `json:",omitempty" yaml:",omitempty"`
	Detail   string `json:",omitempty" yaml:",omitempty"`
}

func (inc Inconsistency) String() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "%v: nid=%v addr=%v", inc.Category, inc.NID, inc.Addr)
	if inc.Expected != nil || inc.Observed != nil {
		fmt.Fprintf(&buf, ": expected %v, observed %v", inc.Expected, inc.Observed)
	}
	if inc.Detail != "" {
		fmt.Fprintf(&buf, " (%s)", inc.Detail)
	}
	return buf.String()
}

// A Report accumulates inconsistencies.  Recorded entries are never
// modified.
type Report struct {
	// OnRecord, if set, is called for each inconsistency as it is
	// recorded.
	OnRecord func(Inconsistency)

	inconsistencies []Inconsistency
	counts          map[Category]int
}

func (r *Report) Record(ctx context.Context, inc Inconsistency) {
	dlog.Warnf(ctx, "inconsistency: %v", inc)
	r.inconsistencies = append(r.inconsistencies, inc)
	if r.counts == nil {
		r.counts = make(map[Category]int)
	}
	r.counts[inc.Category]++
	if r.OnRecord != nil {
		r.OnRecord(inc)
	}
}

func (r *Report) Len() int { return len(r.inconsistencies) }

func (r *Report) Count(cat Category) int { return r.counts[cat] }

// Inconsistencies returns the recorded inconsistencies in the order
// they were found.
func (r *Report) Inconsistencies() []Inconsistency {
	return r.inconsistencies
}

// LogSummary logs the per-category totals.
func (r *Report) LogSummary(ctx context.Context) {
	if r.Len() == 0 {
		dlog.Info(ctx, "no inconsistencies found")
		return
	}
	for _, cat := range maps.SortedKeys(r.counts) {
		dlog.Infof(ctx, "%v: %v", cat, textui.Humanized(r.counts[cat]))
	}
	dlog.Infof(ctx, "total: %v inconsistencies", textui.Humanized(r.Len()))
}

type claim struct {
	NID       f2fsprim.NID
	OfsInNode int
}

func (c claim) String() string {
	if c.OfsInNode < 0 {
		return fmt.Sprintf("node %v", c.NID)
	}
	return fmt.Sprintf("node %v slot %v", c.NID, c.OfsInNode)
}

// A Checker cross-checks visited blocks against the SIT and SSA and
// records what disagrees in its Report.  Checks never stop a scan;
// the error returns are only for failures to read the tables
// themselves.
type Checker struct {
	Report Report

	fs     *f2fs.FS
	claims map[f2fsprim.BlockAddr]claim
}

func NewChecker(fs *f2fs.FS) *Checker {
	return &Checker{
		fs:     fs,
		claims: make(map[f2fsprim.BlockAddr]claim),
	}
}

func (c *Checker) record(ctx context.Context, inc Inconsistency) {
	c.Report.Record(ctx, inc)
}

// CheckCheckpoint records a checkpoint whose two slots carry the
// same version.
func (c *Checker) CheckCheckpoint(ctx context.Context) {
	if c.fs.Checkpoint.Anomalous {
		c.record(ctx, Inconsistency{
			Category: CategoryCheckpointVersion,
			Addr:     c.fs.Geometry.CPBlkAddr,
			Observed: c.fs.Checkpoint.Checkpoint.Version,
			Detail:   "both checkpoint slots carry the same version",
		})
	}
}

// CheckNodeBlock checks the block that the NAT maps nid to.  It
// returns false if the block is not in the main area and so should
// not be read as a node.
func (c *Checker) CheckNodeBlock(ctx context.Context, nid f2fsprim.NID, addr f2fsprim.BlockAddr) (bool, error) {
	if !c.checkMain(ctx, nid, addr) {
		return false, nil
	}
	c.checkClaim(ctx, addr, claim{NID: nid, OfsInNode: -1})
	if err := c.checkSegment(ctx, nid, addr, true); err != nil {
		return true, err
	}
	sum, err := c.fs.OwnerOf(addr)
	if err != nil {
		return true, err
	}
	if sum.NID != nid {
		c.record(ctx, Inconsistency{
			Category: CategorySSAOwner,
			NID:      nid,
			Addr:     addr,
			Expected: nid,
			Observed: sum.NID,
		})
	}
	return true, nil
}

// CheckDataBlock checks a data block that slot ofsInNode of node
// owner points at.  Marker addresses are not checked.
func (c *Checker) CheckDataBlock(ctx context.Context, owner f2fsprim.NID, ofsInNode int, addr f2fsprim.BlockAddr) error {
	if !addr.IsReal() {
		return nil
	}
	if !c.checkMain(ctx, owner, addr) {
		return nil
	}
	c.checkClaim(ctx, addr, claim{NID: owner, OfsInNode: ofsInNode})
	if err := c.checkSegment(ctx, owner, addr, false); err != nil {
		return err
	}
	sum, err := c.fs.OwnerOf(addr)
	if err != nil {
		return err
	}
	if sum.NID != owner {
		c.record(ctx, Inconsistency{
			Category: CategorySSAOwner,
			NID:      owner,
			Addr:     addr,
			Expected: owner,
			Observed: sum.NID,
		})
	} else if int(sum.OfsInNode) != ofsInNode {
		c.record(ctx, Inconsistency{
			Category: CategorySSAOffset,
			NID:      owner,
			Addr:     addr,
			Expected: ofsInNode,
			Observed: int(sum.OfsInNode),
		})
	}
	return nil
}

func (c *Checker) checkMain(ctx context.Context, nid f2fsprim.NID, addr f2fsprim.BlockAddr) bool {
	region, err := c.fs.Geometry.Classify(addr)
	switch {
	case err != nil:
		c.record(ctx, Inconsistency{
			Category: CategoryAddrOutOfMain,
			NID:      nid,
			Addr:     addr,
			Detail:   err.Error(),
		})
		return false
	case region != f2fs.RegionMain:
		c.record(ctx, Inconsistency{
			Category: CategoryAddrOutOfMain,
			NID:      nid,
			Addr:     addr,
			Expected: f2fs.RegionMain,
			Observed: region,
		})
		return false
	default:
		return true
	}
}

func (c *Checker) checkClaim(ctx context.Context, addr f2fsprim.BlockAddr, cur claim) {
	prev, ok := c.claims[addr]
	if !ok {
		c.claims[addr] = cur
		return
	}
	if prev != cur {
		c.record(ctx, Inconsistency{
			Category: CategoryDuplicateBlock,
			NID:      cur.NID,
			Addr:     addr,
			Expected: prev.String(),
			Observed: cur.String(),
		})
	}
}

func (c *Checker) checkSegment(ctx context.Context, nid f2fsprim.NID, addr f2fsprim.BlockAddr, isNode bool) error {
	segno, _, err := c.fs.Geometry.SegOf(addr)
	if err != nil {
		return err
	}
	seg, err := c.fs.SegmentInfo(segno)
	if err != nil {
		return err
	}
	valid, err := c.fs.IsBlockValid(addr)
	if err != nil {
		return err
	}
	if !valid {
		c.record(ctx, Inconsistency{
			Category: CategoryNotValidInSIT,
			NID:      nid,
			Addr:     addr,
			Expected: true,
			Observed: false,
		})
	}
	if seg.Type().IsNode() != isNode {
		want := "data"
		if isNode {
			want = "node"
		}
		c.record(ctx, Inconsistency{
			Category: CategorySegmentType,
			NID:      nid,
			Addr:     addr,
			Expected: want,
			Observed: seg.Type(),
		})
	}
	return nil
}

// isFatal returns whether err should abort a walk or scan, as opposed
// to being recorded against the nid that caused it.
func isFatal(err error) bool {
	var rangeErr *f2fs.RangeError
	var domainErr *f2fs.DomainError
	return !errors.As(err, &rangeErr) && !errors.As(err, &domainErr)
}
