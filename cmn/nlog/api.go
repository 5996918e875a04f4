// Package nlog - staging logger: timestamping, severity, verbosity, writing, and rotating
/*
 * Copyright (c) 2023-2025, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"io"
	"os"
	"path/filepath"
)

// verbosity levels (compare with ARC log levels)
const (
	LevelInfo    = 0
	LevelVerbose = 1
	LevelDebug   = 2
)

var MaxSize int64 = 4 * 1024 * 1024

func InfoDepth(depth int, args ...any)    { log(sevInfo, depth, "", args...) }
func Infoln(args ...any)                  { log(sevInfo, 0, "", args...) }
func Infof(format string, args ...any)    { log(sevInfo, 0, format, args...) }
func Warningln(args ...any)               { log(sevWarn, 0, "", args...) }
func Warningf(format string, args ...any) { log(sevWarn, 0, format, args...) }
func ErrorDepth(depth int, args ...any)   { log(sevErr, depth, "", args...) }
func Errorln(args ...any)                 { log(sevErr, 0, "", args...) }
func Errorf(format string, args ...any)   { log(sevErr, 0, format, args...) }

// V returns true if the configured verbosity is at least `level`
// usage: `if nlog.V(nlog.LevelDebug) { nlog.Infoln(...) }`
func V(level int) bool { return int(verbosity.Load()) >= level }

func SetVerbosity(level int) { verbosity.Store(int32(level)) }

func SetTitle(s string) { title = s }

// SetLogDir switches logging from stderr to rotated files under `dir`
func SetLogDir(dir, name string) error {
	mu.Lock()
	defer mu.Unlock()
	logDir = dir
	if name != "" {
		arg0 = name
	}
	return rotate(true)
}

// SetOutput redirects all logging (tests)
func SetOutput(w io.Writer) {
	mu.Lock()
	closeFile()
	out, logDir = w, ""
	mu.Unlock()
}

func AlsoToStderr(v bool) { alsoToStderr.Store(v) }

func LogName() string { return filepath.Join(logDir, sname()+".log") }

func Flush() {
	mu.Lock()
	if file != nil {
		file.Sync()
	}
	mu.Unlock()
}

func Close() {
	mu.Lock()
	closeFile()
	out = os.Stderr
	mu.Unlock()
}
