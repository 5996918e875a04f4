// Package main is the dstage command: stage data between grid storage
// endpoints through a local file cache
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/IATkachenko/arc-sub001/cmn/nlog"
	"github.com/IATkachenko/arc-sub001/dstatus"
	"github.com/IATkachenko/arc-sub001/hk"

	// data point protocols
	_ "github.com/IATkachenko/arc-sub001/dpoint/file"
	_ "github.com/IATkachenko/arc-sub001/dpoint/idx"
	_ "github.com/IATkachenko/arc-sub001/dpoint/s3"
	_ "github.com/IATkachenko/arc-sub001/dpoint/web"
)

// exit codes
const (
	exitOK        = 0
	exitFailed    = 1
	exitRetryable = 75 // EX_TEMPFAIL
)

func main() {
	err := rootCmd.Execute()
	app.close()
	nlog.Flush()
	if err == nil {
		os.Exit(exitOK)
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	var sig *hk.ErrSignal
	if errors.As(err, &sig) {
		os.Exit(sig.ExitCode())
	}
	var e *dstatus.Err
	if errors.As(err, &e) && e.Retryable() {
		os.Exit(exitRetryable)
	}
	os.Exit(exitFailed)
}
