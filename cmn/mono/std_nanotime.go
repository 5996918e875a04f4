//go:build !mono

// Package mono provides low-level monotonic time
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package mono

import "time"

var start = time.Now()

// monotonic (time.Since uses the monotonic reading of `start`)
func NanoTime() int64 { return int64(time.Since(start)) }
