// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"

	"github.com/datawire/ocibuild/pkg/cliutil"
	"github.com/spf13/cobra"

	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fsinspect"
)

func init() {
	inspectors = append(inspectors, subcommand{
		Command: cobra.Command{
			Use:   "scan-nodes",
			Short: "Cross-check every allocated node against the NAT, SIT and SSA",
			Long: "" +
				"Visit every allocated node id, and check that its block is in " +
				"the main area, marked valid in a node segment, and owned by it " +
				"in the SSA.  The data blocks of inodes and direct nodes are " +
				"checked against the SSA too.  Exits non-zero if any " +
				"inconsistency is found.",
			Args: cliutil.WrapPositionalArgs(cobra.NoArgs),
		},
		RunE: func(fs *f2fs.FS, emit f2fsinspect.Emitter, cmd *cobra.Command, _ []string) error {
			n, err := f2fsinspect.ScanFullDisk(cmd.Context(), fs, emit)
			if err != nil {
				return err
			}
			if n > 0 {
				return fmt.Errorf("found %v inconsistencies", n)
			}
			return nil
		},
	})

	inspectors = append(inspectors, subcommand{
		Command: cobra.Command{
			Use:   "find-inode INO",
			Short: "Find every copy of an inode in the node segments",
			Args:  cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),
		},
		RunE: func(fs *f2fs.FS, emit f2fsinspect.Emitter, cmd *cobra.Command, args []string) error {
			ino, err := parseNID(args[0])
			if err != nil {
				return err
			}
			return f2fsinspect.Run(cmd.Context(), fs, f2fsinspect.FindInodeOp{Ino: ino}, emit)
		},
	})

	inspectors = append(inspectors, subcommand{
		Command: cobra.Command{
			Use:   "block-info ADDR",
			Short: "Say what is at a block address",
			Args:  cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),
		},
		RunE: func(fs *f2fs.FS, emit f2fsinspect.Emitter, cmd *cobra.Command, args []string) error {
			addr, err := parseBlockAddr(args[0])
			if err != nil {
				return err
			}
			return f2fsinspect.Run(cmd.Context(), fs, f2fsinspect.Classify{Addr: addr}, emit)
		},
	})
}
