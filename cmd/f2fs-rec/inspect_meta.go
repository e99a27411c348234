// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"os"

	"github.com/datawire/dlib/dlog"
	"github.com/datawire/ocibuild/pkg/cliutil"
	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs/f2fsprim"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fsinspect"
)

// superblockRecord is the selected superblock, with the fields that
// need decoding already decoded.
type superblockRecord struct {
	Copy          int
	Name          string
	UUID          f2fsprim.UUID
	KernelVersion string
	Features      string
	Geometry      f2fs.Geometry
	RootIno       f2fsprim.NID
	NodeIno       f2fsprim.NID
	MetaIno       f2fsprim.NID
}

func (superblockRecord) RecordType() string { return "superblock" }

func init() {
	inspectors = append(inspectors, subcommand{
		Command: cobra.Command{
			Use:   "checkpoint",
			Short: "Show which checkpoint pack is in use, and its flags",
			Args:  cliutil.WrapPositionalArgs(cobra.NoArgs),
		},
		RunE: func(fs *f2fs.FS, emit f2fsinspect.Emitter, cmd *cobra.Command, _ []string) error {
			return f2fsinspect.Run(cmd.Context(), fs, f2fsinspect.CheckpointInfo{}, emit)
		},
	})

	inspectors = append(inspectors, subcommand{
		Command: cobra.Command{
			Use:   "superblock",
			Short: "Show the superblock and the layout derived from it",
			Args:  cliutil.WrapPositionalArgs(cobra.NoArgs),
		},
		RunE: func(fs *f2fs.FS, emit f2fsinspect.Emitter, _ *cobra.Command, _ []string) error {
			sb := fs.Superblock.Superblock
			return emit(superblockRecord{
				Copy:          fs.Superblock.Copy,
				Name:          sb.Name(),
				UUID:          sb.UUID,
				KernelVersion: sb.KernelVersion(),
				Features:      sb.Features.String(),
				Geometry:      fs.Geometry,
				RootIno:       sb.RootIno,
				NodeIno:       sb.NodeIno,
				MetaIno:       sb.MetaIno,
			})
		},
	})

	inspectors = append(inspectors, subcommand{
		Command: cobra.Command{
			Use:   "spew {superblock|checkpoint|node NID}",
			Short: "Spew a structure exactly as parsed",
			Args:  cliutil.WrapPositionalArgs(cobra.RangeArgs(1, 2)),
		},
		RunE: func(fs *f2fs.FS, _ f2fsinspect.Emitter, cmd *cobra.Command, args []string) error {
			spew := spew.NewDefaultConfig()
			spew.DisablePointerAddresses = true

			var obj any
			switch {
			case args[0] == "superblock" && len(args) == 1:
				obj = fs.Superblock
			case args[0] == "checkpoint" && len(args) == 1:
				obj = fs.Checkpoint
			case args[0] == "node" && len(args) == 2:
				nid, err := parseNID(args[1])
				if err != nil {
					return err
				}
				node, _, err := fs.ReadNode(nid, f2fs.NodeExpectations{})
				if node == nil {
					return err
				}
				if err != nil {
					dlog.Warn(cmd.Context(), err)
				}
				obj = node
			default:
				return cliutil.FlagErrorFunc(cmd, fmt.Errorf("unknown structure: %q", args))
			}
			spew.Fdump(os.Stdout, obj)
			return nil
		},
	})
}
