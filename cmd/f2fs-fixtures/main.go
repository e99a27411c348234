// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Command f2fs-fixtures writes small synthetic F2FS images, some of
// them deliberately damaged, for trying out f2fs-rec.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/datawire/dlib/dlog"
	"github.com/datawire/ocibuild/pkg/cliutil"
	"github.com/spf13/cobra"

	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs/f2fsmkfs"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs/f2fsprim"
	"git.lukeshu.com/f2fs-progs-ng/lib/maps"
	"git.lukeshu.com/f2fs-progs-ng/lib/textui"
)

type fixture func() (*f2fsmkfs.Builder, error)

var fixtures = map[string]fixture{
	"healthy": func() (*f2fsmkfs.Builder, error) {
		return withFile(f2fsmkfs.New(f2fsmkfs.WithLabel("healthy")))
	},
	"compact": func() (*f2fsmkfs.Builder, error) {
		return withFile(f2fsmkfs.New(f2fsmkfs.WithCompactSummaries()))
	},
	"unclean": func() (*f2fsmkfs.Builder, error) {
		return withFile(f2fsmkfs.New(f2fsmkfs.WithUncleanUnmount(), f2fsmkfs.WithVersions(7, 8)))
	},
	"misowned": func() (*f2fsmkfs.Builder, error) {
		b, err := withFile(f2fsmkfs.New())
		if err != nil {
			return nil, err
		}
		ent := b.NAT[fileIno]
		return b, b.SetSummary(ent.BlockAddr, f2fs.Summary{NID: 99})
	},
	"invalid-node": func() (*f2fsmkfs.Builder, error) {
		b, err := withFile(f2fsmkfs.New())
		if err != nil {
			return nil, err
		}
		return b, b.SetValid(b.NAT[fileIno].BlockAddr, false)
	},
}

const (
	fileIno    f2fsprim.NID = 4
	fileDirect f2fsprim.NID = 5
)

// withFile adds the root directory to b, and a two-block regular
// file: one block addressed from the inode and one from a direct node.
func withFile(b *f2fsmkfs.Builder) (*f2fsmkfs.Builder, error) {
	root := f2fsmkfs.NewInode(b.Superblock.RootIno, "/")
	root.Inode.Mode = 0o40755
	root.Inode.Links = 2
	root.Inode.NameLen = 0
	if _, err := b.AddNode(root); err != nil {
		return nil, err
	}

	data0, err := b.AddData(fileIno, 0, []byte("hello, "))
	if err != nil {
		return nil, err
	}
	data1, err := b.AddData(fileDirect, 0, []byte("world\n"))
	if err != nil {
		return nil, err
	}

	inode := f2fsmkfs.NewInode(fileIno, "hello.txt")
	inode.Inode.Size = uint64(f2fs.AddrsPerInode+1) * f2fsprim.BlockSize
	inode.Inode.Addrs[0] = data0
	inode.Inode.NIDs[f2fs.InodeDirect1] = fileDirect
	if _, err := b.AddNode(inode); err != nil {
		return nil, err
	}

	direct := f2fsmkfs.NewDirect(fileDirect, fileIno, f2fs.InodeChildOffset(int(f2fs.InodeDirect1)))
	direct.Direct.Addrs[0] = data1
	if _, err := b.AddNode(direct); err != nil {
		return nil, err
	}
	return b, nil
}

func writeImage(ctx context.Context, filename string, fix fixture) error {
	b, err := fix()
	if err != nil {
		return err
	}
	img, err := b.Build()
	if err != nil {
		return err
	}
	buf := make([]byte, img.Size())
	if _, err := img.ReadAt(buf, 0); err != nil {
		return err
	}
	if err := os.WriteFile(filename, buf, 0o666); err != nil {
		return err
	}
	dlog.Infof(ctx, "wrote %v (%v)", filename, textui.IEC(uint64(len(buf)), "B"))
	return nil
}

func main() {
	logLevelFlag := textui.LogLevelFlag{
		Level: dlog.LogLevelInfo,
	}
	argparser := &cobra.Command{
		Use:   "f2fs-fixtures [flags] OUTDIR [NAME...]",
		Short: "Write synthetic F2FS images",
		Long: "" +
			"Write each named fixture image (or all of them) to " +
			"OUTDIR/NAME.img.  The fixtures are: " + strings.Join(maps.SortedKeys(fixtures), ", "),

		Args: cliutil.WrapPositionalArgs(cobra.MinimumNArgs(1)),

		SilenceErrors: true, // main() will handle this after .ExecuteContext() returns
		SilenceUsage:  true, // our FlagErrorFunc will handle it

		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := dlog.WithLogger(cmd.Context(), textui.NewLogger(os.Stderr, logLevelFlag.Level))
			outdir, names := args[0], args[1:]
			if len(names) == 0 {
				names = maps.SortedKeys(fixtures)
			}
			for _, name := range names {
				fix, ok := fixtures[name]
				if !ok {
					return cliutil.FlagErrorFunc(cmd, fmt.Errorf("unknown fixture: %q", name))
				}
				if err := writeImage(ctx, filepath.Join(outdir, name+".img"), fix); err != nil {
					return fmt.Errorf("%v: %w", name, err)
				}
			}
			return nil
		},
	}
	argparser.SetFlagErrorFunc(cliutil.FlagErrorFunc)
	argparser.SetHelpTemplate(cliutil.HelpTemplate)
	argparser.Flags().Var(&logLevelFlag, "verbosity", "set the verbosity")

	if err := argparser.ExecuteContext(context.Background()); err != nil {
		textui.Fprintf(os.Stderr, "%v: error: %v\n", argparser.CommandPath(), err)
		os.Exit(1)
	}
}
