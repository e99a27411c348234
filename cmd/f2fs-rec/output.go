// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"io"
	"strings"

	"git.lukeshu.com/go/lowmemjson"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fsinspect"
	"git.lukeshu.com/f2fs-progs-ng/lib/linux"
	"git.lukeshu.com/f2fs-progs-ng/lib/maps"
	"git.lukeshu.com/f2fs-progs-ng/lib/textui"
)

type outputFormat string

const (
	formatText outputFormat = "text"
	formatJSON outputFormat = "json"
	formatYAML outputFormat = "yaml"
)

var _ pflag.Value = (*outputFormat)(nil)

// Type implements pflag.Value.
func (*outputFormat) Type() string { return "format" }

// String implements pflag.Value.
func (f *outputFormat) String() string { return string(*f) }

// Set implements pflag.Value.
func (f *outputFormat) Set(str string) error {
	switch format := outputFormat(strings.ToLower(str)); format {
	case formatText, formatJSON, formatYAML:
		*f = format
		return nil
	}
	return fmt.Errorf("invalid output format: %q", str)
}

// taggedRecord is how a record appears in the structured formats.
type taggedRecord struct {
	Type   string             `json:"type"   yaml:"type"`
	Record f2fsinspect.Record `json:"record" yaml:"record"`
}

func newEmitter(format outputFormat, w io.Writer) (f2fsinspect.Emitter, error) {
	switch format {
	case formatText:
		return func(rec f2fsinspect.Record) error {
			return writeText(w, rec)
		}, nil
	case formatJSON:
		enc := lowmemjson.NewEncoder(lowmemjson.NewReEncoder(w, lowmemjson.ReEncoderConfig{
			Indent:                "\t",
			ForceTrailingNewlines: true,
		}))
		return func(rec f2fsinspect.Record) error {
			return enc.Encode(taggedRecord{Type: rec.RecordType(), Record: rec})
		}, nil
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		return func(rec f2fsinspect.Record) error {
			return enc.Encode(taggedRecord{Type: rec.RecordType(), Record: rec})
		}, nil
	default:
		return nil, fmt.Errorf("invalid output format: %q", format)
	}
}

// writeText writes rec in the line-oriented layout of the classic
// dump tool.
func writeText(w io.Writer, rec f2fsinspect.Record) error {
	var err error
	printf := func(format string, args ...any) {
		if err == nil {
			_, err = textui.Fprintf(w, format, args...)
		}
	}
	switch rec := rec.(type) {
	case f2fsinspect.NATRecord:
		printf("nid: %-8v ino: %-8v blkaddr: %v version: %v\n",
			rec.NID, rec.Entry.Ino, rec.Entry.BlockAddr, rec.Entry.Version)
	case f2fsinspect.SITRecord:
		printf("segno: %-8v type: %-10v vblocks: %-4v mtime: %v bitmap: %s\n",
			rec.SegNo, rec.Type, rec.ValidBlocks, rec.Entry.Mtime, fmt.Sprintf("%x", rec.Entry.ValidMap[:]))
	case f2fsinspect.SSARecord:
		printf("segno: %v summary: %v\n", rec.SegNo, rec.Type)
		for i, ent := range rec.Summary.Entries {
			if ent == (f2fs.Summary{}) {
				continue
			}
			printf("\t[%3d] nid: %-8v ofs_in_node: %-4v version: %v\n", i, ent.NID, ent.OfsInNode, ent.Version)
		}
	case f2fsinspect.NodeRecord:
		writeTextNode(printf, rec)
	case f2fsinspect.DataRecord:
		printf("%sdata: owner %v [%v] file block %v => %v\n",
			strings.Repeat("\t", rec.Depth+1), rec.Owner, rec.OfsInNode, rec.FileBlock, rec.Addr)
	case f2fsinspect.InconsistencyRecord:
		printf("inconsistency: %v\n", rec.Inconsistency)
	case f2fsinspect.ScanSummary:
		printf("scan: %v inconsistencies\n", rec.Inconsistencies)
		for _, name := range maps.SortedKeys(rec.ByCategory) {
			printf("\t%v: %v\n", name, rec.ByCategory[name])
		}
	case f2fsinspect.BlockInfo:
		printf("block %v: %v\n", rec.Addr, rec.Region)
		if m := rec.Main; m != nil {
			printf("\tsegment %v+%v (%v), valid=%v\n", m.SegNo, m.Offset, m.SegType, m.Valid)
			printf("\tSSA owner: nid %v ofs_in_node %v version %v\n", m.Owner.NID, m.Owner.OfsInNode, m.Owner.Version)
			if m.OwnerNAT.OK {
				printf("\tNAT: ino %v blkaddr %v (agrees=%v)\n", m.OwnerNAT.Val.Ino, m.OwnerNAT.Val.BlockAddr, m.NATAgrees)
			}
			if m.FileName != "" {
				printf("\tfile: %q\n", m.FileName)
			}
		}
	case f2fsinspect.CheckpointState:
		printf("checkpoint: version %v (pack %v)\n", rec.Version, rec.Slot)
		printf("\tflags: %v\n", rec.FlagNames)
		printf("\tclean unmount: %v\n", rec.CleanUnmount)
		printf("\torphans present: %v\n", rec.OrphansPresent)
		printf("\tneeds fsck: %v\n", rec.NeedsFsck)
	case f2fsinspect.InodeCopy:
		printf("inode copy at %v: cp_ver %v valid=%v live=%v size=%v name=%q\n",
			rec.Addr, rec.CPVer, rec.Valid, rec.Live, rec.Size, rec.FileName)
	default:
		printf("%s: %+v\n", rec.RecordType(), rec)
	}
	return err
}

func writeTextNode(printf func(string, ...any), rec f2fsinspect.NodeRecord) {
	indent := ""
	if rec.Depth > 0 {
		indent = strings.Repeat("\t", rec.Depth)
	}
	node := rec.Node
	printf("%snode %v@%v: %v ino=%v ofs=%v cp_ver=%v next=%v\n",
		indent, rec.NID, rec.Addr, node.Kind, node.Footer.Ino, node.Footer.Offset(),
		node.Footer.CPVer, node.Footer.NextBlkAddr)
	switch {
	case node.Inode != nil:
		in := node.Inode
		printf("%s\tname: %q\n", indent, in.FileName())
		printf("%s\tmode: %v links: %v size: %v blocks: %v\n", indent, linux.StatMode(in.Mode), in.Links, in.Size, in.Blocks)
		printf("%s\tuid: %v gid: %v parent: %v generation: %v\n", indent, in.UID, in.GID, in.ParentIno, in.Generation)
		printf("%s\tinline: %v flags: %#x xattr_nid: %v\n", indent, in.Inline, in.Flags, in.XattrNID)
		printf("%s\tnids: %v\n", indent, in.NIDs)
	case node.Direct != nil:
		printf("%s\tdata pointers: %v\n", indent, countNonZero(node.Direct.Addrs[:]))
	case node.Indirect != nil:
		printf("%s\tchild nodes: %v\n", indent, countNonZero(node.Indirect.NIDs[:]))
	}
}

func countNonZero[T comparable](xs []T) int {
	var zero T
	n := 0
	for _, x := range xs {
		if x != zero {
			n++
		}
	}
	return n
}
