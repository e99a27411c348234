// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"bufio"
	"context"
	"os"

	"github.com/datawire/dlib/derror"
	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"
	"github.com/datawire/ocibuild/pkg/cliutil"
	"github.com/spf13/cobra"

	"git.lukeshu.com/f2fs-progs-ng/lib/diskio"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fs/f2fsprim"
	"git.lukeshu.com/f2fs-progs-ng/lib/f2fsinspect"
	"git.lukeshu.com/f2fs-progs-ng/lib/profile"
	"git.lukeshu.com/f2fs-progs-ng/lib/textui"
)

type subcommand struct {
	cobra.Command
	RunE func(*f2fs.FS, f2fsinspect.Emitter, *cobra.Command, []string) error
}

var inspectors []subcommand

func main() {
	logLevelFlag := textui.LogLevelFlag{
		Level: dlog.LogLevelInfo,
	}
	formatFlag := formatText
	var imageFlag string
	cacheBlocksFlag := textui.Tunable(1024)

	argparser := &cobra.Command{
		Use:   "f2fs-rec {[flags]|SUBCOMMAND}",
		Short: "Inspect a broken F2FS filesystem",

		Args: cliutil.WrapPositionalArgs(cliutil.OnlySubcommands),
		RunE: cliutil.RunSubcommands,

		SilenceErrors: true, // main() will handle this after .ExecuteContext() returns
		SilenceUsage:  true, // our FlagErrorFunc will handle it

		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	argparser.SetFlagErrorFunc(cliutil.FlagErrorFunc)
	argparser.SetHelpTemplate(cliutil.HelpTemplate)
	argparser.PersistentFlags().Var(&logLevelFlag, "verbosity", "set the verbosity")
	argparser.PersistentFlags().Var(&formatFlag, "format", "write records as `text|json|yaml`")
	argparser.PersistentFlags().IntVar(&cacheBlocksFlag, "cache-blocks", cacheBlocksFlag, "keep up to `n` recently read blocks in memory (0 disables the cache)")
	argparser.PersistentFlags().StringVar(&imageFlag, "image", "", "open the file `image` as the filesystem")
	if err := argparser.MarkPersistentFlagFilename("image"); err != nil {
		panic(err)
	}
	if err := argparser.MarkPersistentFlagRequired("image"); err != nil {
		panic(err)
	}
	stopProfiling := profile.AddFlags(argparser.PersistentFlags(), "profile.")

	argparserInspect := &cobra.Command{
		Use:   "inspect {[flags]|SUBCOMMAND}",
		Short: "Inspect (but don't modify) a broken F2FS filesystem",

		Args: cliutil.WrapPositionalArgs(cliutil.OnlySubcommands),
		RunE: cliutil.RunSubcommands,
	}
	argparser.AddCommand(argparserInspect)

	for _, child := range inspectors {
		cmd := child.Command
		runE := child.RunE
		cmd.RunE = func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := textui.NewLogger(os.Stderr, logLevelFlag.Level)
			ctx = dlog.WithLogger(ctx, logger)
			dlog.SetFallbackLogger(logger.WithField("f2fs-progs.THIS_IS_A_BUG", true))

			grp := dgroup.NewGroup(ctx, dgroup.GroupConfig{
				EnableSignalHandling: true,
			})
			grp.Go("main", func(ctx context.Context) (err error) {
				maybeSetErr := func(_err error) {
					if _err != nil && err == nil {
						err = _err
					}
				}
				defer func() {
					if _err := derror.PanicToError(recover()); _err != nil {
						maybeSetErr(_err)
					}
				}()
				fs, err := openImage(ctx, imageFlag, cacheBlocksFlag)
				if err != nil {
					return err
				}
				defer func() {
					maybeSetErr(fs.Close())
				}()

				out := bufio.NewWriter(os.Stdout)
				defer func() {
					maybeSetErr(out.Flush())
				}()
				emit, err := newEmitter(formatFlag, out)
				if err != nil {
					return err
				}

				cmd.SetContext(ctx)
				err = runE(fs, emit, cmd, args)
				f2fsinspect.LogCheckpointState(ctx, f2fsinspect.CheckpointSummary(fs))
				return err
			})
			return grp.Wait()
		}
		argparserInspect.AddCommand(&cmd)
	}

	err := argparser.ExecuteContext(context.Background())
	if _err := stopProfiling(); _err != nil && err == nil {
		err = _err
	}
	if err != nil {
		textui.Fprintf(os.Stderr, "%v: error: %v\n", argparser.CommandPath(), err)
		os.Exit(1)
	}
}

func openImage(ctx context.Context, filename string, cacheBlocks int) (*f2fs.FS, error) {
	ctx = dlog.WithField(ctx, "f2fs.image", filename)
	fh, err := diskio.OpenFile[f2fsprim.PhysicalAddr](filename)
	if err != nil {
		return nil, err
	}
	var file diskio.File[f2fsprim.PhysicalAddr] = fh
	if cacheBlocks > 0 {
		file = diskio.NewCachedFile[f2fsprim.PhysicalAddr](fh, f2fsprim.BlockSize, cacheBlocks)
	}
	fs, err := f2fs.Open(ctx, file)
	if err != nil {
		_ = fh.Close()
		return nil, err
	}
	return fs, nil
}
