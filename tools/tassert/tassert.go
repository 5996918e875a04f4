// Package tassert provides common asserts for tests
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package tassert

import (
	"bytes"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"
)

const modName = "arc-sub001"

var (
	fatalities = make(map[string]struct{})
	mu         sync.Mutex
)

func CheckFatal(tb testing.TB, err error) {
	if err == nil {
		return
	}
	mu.Lock()
	if _, ok := fatalities[tb.Name()]; ok {
		mu.Unlock()
		fmt.Fprintf(os.Stdout, "%s --- %s: duplicate CheckFatal: %v\n", now(), tb.Name(), err)
		runtime.Goexit()
	} else {
		fatalities[tb.Name()] = struct{}{}
		mu.Unlock()
		printStack()
		tb.Fatal(now(), err)
	}
}

func CheckError(tb testing.TB, err error) {
	if err != nil {
		printStack()
		tb.Error(now(), err)
	}
}

func Fatal(tb testing.TB, cond bool, msg string) {
	if !cond {
		printStack()
		tb.Fatal(msg)
	}
}

func Fatalf(tb testing.TB, cond bool, format string, args ...any) {
	if !cond {
		printStack()
		tb.Fatalf(format, args...)
	}
}

func Error(tb testing.TB, cond bool, msg string) {
	if !cond {
		printStack()
		tb.Error(msg)
	}
}

func Errorf(tb testing.TB, cond bool, format string, args ...any) {
	if !cond {
		printStack()
		tb.Errorf(format, args...)
	}
}

// SelectErr drains at most one error from the (buffered) channel
func SelectErr(tb testing.TB, errCh chan error, verb string, errIsFatal bool) {
	if num := len(errCh); num > 0 {
		err := <-errCh
		f := tb.Errorf
		if errIsFatal {
			f = tb.Fatalf
		}
		if num > 1 {
			f("Failed to %s %d files, e.g. error:\n%v", verb, num, err)
		} else {
			f("Failed to %s file: %v", verb, err)
		}
	}
}

func now() string { return "[" + time.Now().Format("15:04:05.000000") + "]" }

func printStack() {
	var buffer bytes.Buffer
	fmt.Fprintln(os.Stderr, "    tassert.printStack:")
	for i := 1; i < 9; i++ {
		_, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		i := strings.Index(file, modName)
		if i < 0 {
			break
		}
		if strings.Contains(file, "tassert") {
			continue
		}
		fmt.Fprintf(&buffer, "\t%s:%d\n", file[i+len(modName)+1:], line)
	}
	os.Stderr.Write(buffer.Bytes())
}
