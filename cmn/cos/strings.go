// Package cos provides common low-level types and utilities for all staging packages
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import "strconv"

const maxl = 16

func SHead(s string) string {
	if len(s) > maxl {
		return s[:maxl] + "..."
	}
	return s
}

// return non-empty
func Either(lhs, rhs string) string {
	if lhs != "" {
		return lhs
	}
	return rhs
}

func Plural(num int) (s string) {
	if num != 1 {
		s = "s"
	}
	return
}

// e.g. "3 files", "1 file"
func Qty(num int, what string) string { return strconv.Itoa(num) + " " + what + Plural(num) }
