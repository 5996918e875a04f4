//go:build debug

// Package debug provides build-tag enabled assertions
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package debug

import (
	"bytes"
	"fmt"
	"os"
	"runtime"
	"strings"
)

func ON() bool { return true }

func _panic(a ...any) {
	var (
		buffer bytes.Buffer
		msg    = "DEBUG PANIC"
	)
	if len(a) > 0 {
		msg += ": " + fmt.Sprint(a...)
	}
	buffer.WriteString(msg + "\n")
	for i := 2; i < 9; i++ {
		_, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		if !strings.Contains(file, "arc-sub001") {
			break
		}
		fmt.Fprintf(&buffer, "\t%s:%d\n", file, line)
	}
	os.Stderr.Write(buffer.Bytes())
	panic(msg)
}

func Assert(cond bool, a ...any) {
	if !cond {
		_panic(a...)
	}
}

func Assertf(cond bool, f string, a ...any) {
	if !cond {
		_panic(fmt.Sprintf(f, a...))
	}
}

func AssertNoErr(err error) {
	if err != nil {
		_panic(err)
	}
}

func Func(f func()) { f() }
