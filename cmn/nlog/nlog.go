// Package nlog - staging logger: timestamping, severity, verbosity, writing, and rotating
/*
 * Copyright (c) 2023-2025, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const nlogLineSize = 4 * 1024

type severity int

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

var (
	host = "unknown"
	pid  int
	arg0 string

	mu      sync.Mutex // protects all of the below
	out     io.Writer = os.Stderr
	file    *os.File
	size    int64
	logDir  string
	title   string
	linebuf = fixed{buf: make([]byte, nlogLineSize)}

	verbosity    atomic.Int32
	alsoToStderr atomic.Bool

	// assorted filenames that we don't want to show up
	redactFnames = map[string]struct{}{
		"err": {},
	}
)

func init() {
	pid = os.Getpid()
	arg0 = filepath.Base(os.Args[0])
	if h, err := os.Hostname(); err == nil {
		host = _shortHost(h)
	}
}

// main function
func log(sev severity, depth int, format string, args ...any) {
	mu.Lock()
	linebuf.reset()
	formatHdr(sev, depth+1, &linebuf, time.Now())
	if format == "" {
		fmt.Fprintln(&linebuf, args...)
	} else {
		fmt.Fprintf(&linebuf, format, args...)
	}
	linebuf.eol()

	line := linebuf.bytes()
	n, err := out.Write(line)
	if err != nil {
		os.Stderr.WriteString("Error: [nlog] " + err.Error() + "\n")
	}
	if file != nil {
		if sev >= sevErr || alsoToStderr.Load() {
			os.Stderr.Write(line)
		}
		if size += int64(n); size >= MaxSize {
			if err := rotate(false); err != nil {
				os.Stderr.WriteString("Error: [nlog] rotate: " + err.Error() + "\n")
			}
		}
	}
	mu.Unlock()
}

func formatHdr(s severity, depth int, fb *fixed, now time.Time) {
	const char = "IWE"
	_, fn, ln, ok := runtime.Caller(2 + depth)
	fb.writeByte(char[s])
	fb.writeByte(' ')
	fb.writeStamp(now)
	fb.writeByte(' ')
	if !ok {
		return
	}
	if idx := strings.LastIndexByte(fn, filepath.Separator); idx > 0 {
		fn = fn[idx+1:]
	}
	if l := len(fn); l > 3 {
		fn = fn[:l-3]
	}
	if _, redact := redactFnames[fn]; redact {
		return
	}
	fb.writeString(fn)
	fb.writeByte(':')
	fb.writeString(strconv.Itoa(ln))
	fb.writeByte(' ')
}

// under lock
func rotate(startup bool) (err error) {
	now := time.Now()
	if logDir == "" {
		closeFile()
		out = os.Stderr
		return nil
	}
	if err = os.MkdirAll(logDir, 0o750); err != nil {
		return err
	}
	name := logfname(now)
	fname := filepath.Join(logDir, name)
	f, err := os.OpenFile(fname, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}
	closeFile()
	file, out, size = f, f, 0

	// re-symlink
	symlink := LogName()
	os.Remove(symlink)
	os.Symlink(name, symlink)

	var (
		s    = fmt.Sprintf("host %s, %s for %s/%s\n", host, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		snow = now.Format("2006/01/02 15:04:05")
	)
	if startup {
		_, err = f.WriteString("Started up at " + snow + ", " + s)
	} else {
		_, err = f.WriteString("Rotated at " + snow + ", " + s)
	}
	if title != "" && err == nil {
		_, err = f.WriteString(title + "\n")
	}
	return err
}

func closeFile() {
	if file != nil {
		file.Close()
		file = nil
	}
}

func sname() string { return arg0 }

func logfname(t time.Time) string {
	return fmt.Sprintf("%s.%s.log.%02d%02d-%02d%02d%02d.%d",
		sname(), host, t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), pid)
}

func _shortHost(hostname string) string {
	if before, _, ok := strings.Cut(hostname, "."); ok {
		return before
	}
	return hostname
}
