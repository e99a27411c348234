// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"strings"

	"github.com/datawire/ocibuild/pkg/cliutil"
	"github.com/spf13/cobra"

	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fsinspect"
)

func init() {
	for _, table := range []f2fsinspect.Table{
		f2fsinspect.TableNAT,
		f2fsinspect.TableSIT,
		f2fsinspect.TableSSA,
	} {
		table := table
		inspectors = append(inspectors, subcommand{
			Command: cobra.Command{
				Use:   "dump-" + strings.ToLower(table.String()) + " [START~END]",
				Short: "Dump the " + table.String() + " entries in a range of indexes",
				Long: "" +
					"Dump the entries with indexes from START to END inclusive.  " +
					"Either bound may be omitted; an END of -1 (the default) " +
					"means the last entry.  Indexes may be given in hex with a 0x prefix.",
				Args: cliutil.WrapPositionalArgs(cobra.MaximumNArgs(1)),
			},
			RunE: func(fs *f2fs.FS, emit f2fsinspect.Emitter, cmd *cobra.Command, args []string) error {
				start, end, err := parseRange(args)
				if err != nil {
					return err
				}
				return f2fsinspect.Run(cmd.Context(), fs, f2fsinspect.RangeDump{
					Table: table,
					Start: start,
					End:   end,
				}, emit)
			},
		})
	}

	var recursive bool
	dumpNode := subcommand{
		Command: cobra.Command{
			Use:   "dump-node NID",
			Short: "Dump a node, and with --recursive everything below it",
			Args:  cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),
		},
		RunE: func(fs *f2fs.FS, emit f2fsinspect.Emitter, cmd *cobra.Command, args []string) error {
			nid, err := parseNID(args[0])
			if err != nil {
				return err
			}
			return f2fsinspect.Run(cmd.Context(), fs, f2fsinspect.NodeDump{
				NID:       nid,
				Recursive: recursive,
			}, emit)
		},
	}
	dumpNode.Command.Flags().BoolVar(&recursive, "recursive", false, "walk the node tree of the inode")
	inspectors = append(inspectors, dumpNode)

	inspectors = append(inspectors, subcommand{
		Command: cobra.Command{
			Use:   "dump-root",
			Short: "Recursively dump the root directory inode",
			Args:  cliutil.WrapPositionalArgs(cobra.NoArgs),
		},
		RunE: func(fs *f2fs.FS, emit f2fsinspect.Emitter, cmd *cobra.Command, _ []string) error {
			return f2fsinspect.Run(cmd.Context(), fs, f2fsinspect.NodeDump{
				NID:       fs.Superblock.Superblock.RootIno,
				Recursive: true,
			}, emit)
		},
	})
}
