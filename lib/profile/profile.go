// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package profile adds flags for writing Go runtime profiles of a
// long scan to files.
package profile

import (
	"io"
	"os"
	"runtime/pprof"
	"runtime/trace"

	"github.com/datawire/dlib/derror"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type StopFunc = func() error

type startFunc = func(io.Writer) (StopFunc, error)

func startCPU(w io.Writer) (StopFunc, error) {
	if err := pprof.StartCPUProfile(w); err != nil {
		return nil, err
	}
	return func() error {
		pprof.StopCPUProfile()
		return nil
	}, nil
}

func startTrace(w io.Writer) (StopFunc, error) {
	if err := trace.Start(w); err != nil {
		return nil, err
	}
	return func() error {
		trace.Stop()
		return nil
	}, nil
}

// startNamed writes the named runtime profile at shutdown, since
// named profiles are snapshots rather than streams.
func startNamed(name string) startFunc {
	return func(w io.Writer) (StopFunc, error) {
		return func() error {
			if prof := pprof.Lookup(name); prof != nil {
				return prof.WriteTo(w, 0)
			}
			return nil
		}, nil
	}
}

type stopper struct {
	stops []StopFunc
}

func (s *stopper) Stop() error {
	var errs derror.MultiError
	for _, fn := range s.stops {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

type fileFlag struct {
	parent   *stopper
	start    startFunc
	filename string
}

var _ pflag.Value = (*fileFlag)(nil)

// Type implements pflag.Value.
func (*fileFlag) Type() string { return "filename" }

// String implements pflag.Value.
func (f *fileFlag) String() string { return f.filename }

// Set implements pflag.Value.
func (f *fileFlag) Set(filename string) error {
	if filename == "" {
		return nil
	}
	fh, err := os.Create(filename)
	if err != nil {
		return err
	}
	stop, err := f.start(fh)
	if err != nil {
		_ = fh.Close()
		return err
	}
	f.filename = filename
	f.parent.stops = append(f.parent.stops, func() error {
		if err := stop(); err != nil {
			_ = fh.Close()
			return err
		}
		return fh.Close()
	})
	return nil
}

// AddFlags adds --{prefix}cpu, --{prefix}trace, --{prefix}heap and
// --{prefix}allocs flags to flags, and returns the function that
// finishes writing whichever profiles were requested.
func AddFlags(flags *pflag.FlagSet, prefix string) StopFunc {
	var root stopper
	for _, p := range []struct {
		name  string
		start startFunc
		usage string
	}{
		{"cpu", startCPU, "write a CPU profile to the file `cpu.pprof`"},
		{"trace", startTrace, "write a runtime trace to the file `trace.out`"},
		{"heap", startNamed("heap"), "write a heap profile to the file `heap.pprof`"},
		{"allocs", startNamed("allocs"), "write an allocs profile to the file `allocs.pprof`"},
	} {
		flags.Var(&fileFlag{parent: &root, start: p.start}, prefix+p.name, p.usage)
		_ = cobra.MarkFlagFilename(flags, prefix+p.name)
	}
	return root.Stop
}
