// Copyright (C) 2019-2022  Ambassador Labs
// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: Apache-2.0
//
// Contains code based on:
// https://github.com/datawire/dlib/blob/b09ab2e017e16d261f05fff5b3b860d645e774d4/dlog/logger_logrus.go
// https://github.com/datawire/dlib/blob/b09ab2e017e16d261f05fff5b3b860d645e774d4/dlog/logger_testing.go
// https://github.com/telepresenceio/telepresence/blob/ece94a40b00a90722af36b12e40f91cbecc0550c/pkg/log/formatter.go

package textui

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"git.lukeshu.com/go/typedsync"
	"github.com/datawire/dlib/dlog"
	"github.com/spf13/pflag"
)

type LogLevelFlag struct {
	Level dlog.LogLevel
}

var _ pflag.Value = (*LogLevelFlag)(nil)

var logLevelNames = []struct {
	Name  string
	Level dlog.LogLevel
}{
	{"error", dlog.LogLevelError},
	{"warn", dlog.LogLevelWarn},
	{"info", dlog.LogLevelInfo},
	{"debug", dlog.LogLevelDebug},
	{"trace", dlog.LogLevelTrace},
}

// Type implements pflag.Value.
func (lvl *LogLevelFlag) Type() string { return "loglevel" }

// Set implements pflag.Value.
func (lvl *LogLevelFlag) Set(str string) error {
	str = strings.ToLower(str)
	if str == "warning" {
		str = "warn"
	}
	for _, ent := range logLevelNames {
		if ent.Name == str {
			lvl.Level = ent.Level
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %q", str)
}

// String implements pflag.Value.
func (lvl *LogLevelFlag) String() string {
	for _, ent := range logLevelNames {
		if ent.Level == lvl.Level {
			return ent.Name
		}
	}
	panic(fmt.Errorf("invalid log level: %#v", lvl.Level))
}

type logger struct {
	parent *logger
	out    io.Writer
	lvl    dlog.LogLevel

	// only valid if parent is non-nil
	fieldKey string
	fieldVal any
}

var _ dlog.OptimizedLogger = (*logger)(nil)

// NewLogger returns a dlog.Logger that writes one line per message
// to out, dropping messages less severe than lvl.
func NewLogger(out io.Writer, lvl dlog.LogLevel) dlog.Logger {
	return &logger{
		out: out,
		lvl: lvl,
	}
}

// Helper implements dlog.Logger.
func (l *logger) Helper() {}

// WithField implements dlog.Logger.
func (l *logger) WithField(key string, value any) dlog.Logger {
	return &logger{
		parent: l,
		out:    l.out,
		lvl:    l.lvl,

		fieldKey: key,
		fieldVal: value,
	}
}

type logWriter struct {
	log *logger
	lvl dlog.LogLevel
}

// Write implements io.Writer.
func (lw logWriter) Write(data []byte) (int, error) {
	lw.log.log(lw.lvl, func(w io.Writer) {
		_, _ = w.Write(bytes.TrimSuffix(data, []byte("\n")))
	})
	return len(data), nil
}

// StdLogger implements dlog.Logger.
func (l *logger) StdLogger(lvl dlog.LogLevel) *log.Logger {
	return log.New(logWriter{log: l, lvl: lvl}, "", 0)
}

// Log implements dlog.Logger.
func (l *logger) Log(lvl dlog.LogLevel, msg string) {
	panic("should not happen: optimized log methods should be used instead")
}

// UnformattedLog implements dlog.OptimizedLogger.
func (l *logger) UnformattedLog(lvl dlog.LogLevel, args ...any) {
	l.log(lvl, func(w io.Writer) {
		_, _ = printer.Fprint(w, args...)
	})
}

// UnformattedLogln implements dlog.OptimizedLogger.
func (l *logger) UnformattedLogln(lvl dlog.LogLevel, args ...any) {
	l.log(lvl, func(w io.Writer) {
		_, _ = printer.Fprintln(w, args...)
	})
}

// UnformattedLogf implements dlog.OptimizedLogger.
func (l *logger) UnformattedLogf(lvl dlog.LogLevel, format string, args ...any) {
	l.log(lvl, func(w io.Writer) {
		_, _ = printer.Fprintf(w, format, args...)
	})
}

var (
	logBufPool = typedsync.Pool[*bytes.Buffer]{
		New: func() *bytes.Buffer {
			return new(bytes.Buffer)
		},
	}
	logMu      sync.Mutex
	thisModDir string
)

func init() {
	//nolint:dogsled // I can't change the signature of the stdlib.
	_, file, _, _ := runtime.Caller(0)
	thisModDir = filepath.Dir(filepath.Dir(filepath.Dir(file)))
}

var levelTags = map[dlog.LogLevel]string{
	dlog.LogLevelError: " ERR",
	dlog.LogLevelWarn:  " WRN",
	dlog.LogLevelInfo:  " INF",
	dlog.LogLevelDebug: " DBG",
	dlog.LogLevelTrace: " TRC",
}

func (l *logger) log(lvl dlog.LogLevel, writeMsg func(io.Writer)) {
	if lvl > l.lvl {
		return
	}
	logBuf, _ := logBufPool.Get()
	defer logBufPool.Put(logBuf)
	defer logBuf.Reset()

	// time
	const timeFmt = "2006-01-02 15:04:05.0000"
	logBuf.Write(time.Now().AppendFormat(nil, timeFmt))

	// level
	logBuf.WriteString(levelTags[lvl])

	// fields that go before the message
	fields := make(map[string]any)
	var fieldKeys []string
	for f := l; f.parent != nil; f = f.parent {
		if _, exists := fields[f.fieldKey]; exists {
			continue
		}
		fields[f.fieldKey] = f.fieldVal
		fieldKeys = append(fieldKeys, f.fieldKey)
	}
	sort.Slice(fieldKeys, func(i, j int) bool {
		iOrd := fieldOrd(fieldKeys[i])
		jOrd := fieldOrd(fieldKeys[j])
		if iOrd != jOrd {
			return iOrd < jOrd
		}
		return fieldKeys[i] < fieldKeys[j]
	})
	nextField := len(fieldKeys)
	for i, fieldKey := range fieldKeys {
		if fieldOrd(fieldKey) >= 0 {
			nextField = i
			break
		}
		writeField(logBuf, fieldKey, fields[fieldKey])
	}

	// message
	logBuf.WriteString(" : ")
	writeMsg(logBuf)

	// fields that go after the message
	if nextField < len(fieldKeys) {
		logBuf.WriteString(" :")
	}
	for _, fieldKey := range fieldKeys[nextField:] {
		writeField(logBuf, fieldKey, fields[fieldKey])
	}

	// caller
	if file, line, ok := logCaller(); ok {
		if nextField == len(fieldKeys) {
			logBuf.WriteString(" :")
		}
		fmt.Fprintf(logBuf, " (from %s:%d)", file, line)
	}

	logBuf.WriteByte('\n')

	logMu.Lock()
	_, _ = l.out.Write(logBuf.Bytes())
	logMu.Unlock()
}

// logCaller returns the first stack frame that belongs to this module
// but not to this package.
func logCaller() (file string, line int, ok bool) {
	const (
		thisModule             = "git.lukeshu.com/f2fs-progs-ng"
		thisPackage            = "git.lukeshu.com/f2fs-progs-ng/lib/textui"
		maximumCallerDepth int = 25
		minimumCallerDepth int = 4 // runtime.Callers + logCaller + .log + .Log
	)
	var pcs [maximumCallerDepth]uintptr
	depth := runtime.Callers(minimumCallerDepth, pcs[:])
	frames := runtime.CallersFrames(pcs[:depth])
	for f, again := frames.Next(); again; f, again = frames.Next() {
		if !strings.HasPrefix(f.Function, thisModule+"/") {
			continue
		}
		if strings.HasPrefix(f.Function, thisPackage+".") {
			continue
		}
		file := f.File[strings.LastIndex(f.File, thisModDir+"/")+len(thisModDir+"/"):]
		return file, f.Line, true
	}
	return "", 0, false
}

// fieldOrd returns the sort-position for a given log-field-key.  Lower return
// values should be positioned on the left when logging, and higher values
// should be positioned on the right; values <0 should be on the left of the log
// message, while values ≥0 should be on the right of the log message.
func fieldOrd(key string) int {
	switch key {
	// dlib
	case "THREAD": // dgroup
		return -99

	// f2fs-rec
	case "f2fs.image":
		return -50

	// f2fsinspect
	case "f2fsinspect.dump.table":
		return -30
	case "f2fsinspect.dump.nid":
		return -29
	case "f2fsinspect.find.ino":
		return -28

	// f2fsutil
	case "f2fsutil.walk.ino":
		return -10
	case "f2fsutil.scan.nid":
		return -9

	default:
		return 1
	}
}

var fieldPrefixes = []string{
	"f2fsinspect.",
	"f2fsutil.",
	"f2fs.",
}

func writeField(w io.Writer, key string, val any) {
	valBuf, _ := logBufPool.Get()
	defer func() {
		// The wrapper `func()` is important to defer
		// evaluating `valBuf`, since we might re-assign it
		// below.
		valBuf.Reset()
		logBufPool.Put(valBuf)
	}()
	_, _ = printer.Fprint(valBuf, val)
	needsQuote := bytes.HasPrefix(valBuf.Bytes(), []byte(`"`))
	for _, r := range valBuf.Bytes() {
		if !(unicode.IsPrint(rune(r)) && r != ' ') {
			needsQuote = true
			break
		}
	}
	if needsQuote {
		valBuf2, _ := logBufPool.Get()
		fmt.Fprintf(valBuf2, "%q", valBuf.Bytes())
		valBuf.Reset()
		logBufPool.Put(valBuf)
		valBuf = valBuf2
	}

	valStr := valBuf.Bytes()
	name := key

	if name == "THREAD" {
		switch {
		case len(valStr) == 0 || bytes.Equal(valStr, []byte("/main")):
			return
		case bytes.HasPrefix(valStr, []byte("/main/")):
			valStr = valStr[len("/main/"):]
		case bytes.HasPrefix(valStr, []byte("/")):
			valStr = valStr[len("/"):]
		}
		name = "thread"
	}
	for _, prefix := range fieldPrefixes {
		if strings.HasPrefix(name, prefix) {
			name = strings.TrimPrefix(name, prefix)
			break
		}
	}

	fmt.Fprintf(w, " %s=%s", name, valStr)
}
