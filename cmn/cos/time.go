// Package cos provides common low-level types and utilities for all staging packages
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"fmt"
	"time"
)

const (
	// compact UTC timestamp used in cache metadata ("20250115143000Z")
	StampMeta = "20060102150405Z"
)

func FormatMetaTime(t time.Time) string { return t.UTC().Format(StampMeta) }

func ParseMetaTime(s string) (time.Time, error) {
	if len(s) != len(StampMeta) {
		return time.Time{}, fmt.Errorf("invalid metadata timestamp %q", s)
	}
	return time.ParseInLocation(StampMeta, s, time.UTC)
}

// MinDuration returns the smaller of the two, treating zero as "unset"
func MinDuration(a, b time.Duration) time.Duration {
	switch {
	case a == 0:
		return b
	case b == 0, a < b:
		return a
	default:
		return b
	}
}
