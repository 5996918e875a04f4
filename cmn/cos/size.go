// Package cos provides common low-level types and utilities for all staging packages
/*
 * Copyright (c) 2022-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"fmt"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// IEC (binary) units
const (
	KiB = 1024
	MiB = 1024 * KiB
	GiB = 1024 * MiB
	TiB = 1024 * GiB
)

// is used in cmn/config (compare w/ duration.go)
type SizeIEC int64

func (siz SizeIEC) MarshalJSON() ([]byte, error) { return jsoniter.Marshal(siz.String()) }
func (siz SizeIEC) String() string               { return ToSizeIEC(int64(siz), 0) }

func (siz *SizeIEC) UnmarshalJSON(b []byte) (err error) {
	var (
		n   int64
		val string
	)
	if err = jsoniter.Unmarshal(b, &val); err != nil {
		// plain number
		if err = jsoniter.Unmarshal(b, &n); err != nil {
			return
		}
		*siz = SizeIEC(n)
		return
	}
	n, err = ParseSize(val)
	*siz = SizeIEC(n)
	return
}

func (siz *SizeIEC) UnmarshalText(b []byte) (err error) {
	var n int64
	n, err = ParseSize(string(b))
	*siz = SizeIEC(n)
	return
}

// ParseSize converts "64KiB", "4MiB", "1G", "512" into bytes
func ParseSize(s string) (int64, error) {
	var (
		mult   int64 = 1
		suffix string
		v      = strings.ToUpper(strings.TrimSpace(s))
	)
	switch {
	case strings.HasSuffix(v, "TIB"), strings.HasSuffix(v, "TB"), strings.HasSuffix(v, "T"):
		mult = TiB
	case strings.HasSuffix(v, "GIB"), strings.HasSuffix(v, "GB"), strings.HasSuffix(v, "G"):
		mult = GiB
	case strings.HasSuffix(v, "MIB"), strings.HasSuffix(v, "MB"), strings.HasSuffix(v, "M"):
		mult = MiB
	case strings.HasSuffix(v, "KIB"), strings.HasSuffix(v, "KB"), strings.HasSuffix(v, "K"):
		mult = KiB
	}
	suffix = strings.TrimRight(v, "TGMKIB")
	if suffix == "" {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	n, err := strconv.ParseFloat(suffix, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return int64(n * float64(mult)), nil
}

func ToSizeIEC(b int64, digits int) string {
	switch {
	case b >= TiB:
		return fmt.Sprintf("%.*fTiB", digits, float64(b)/TiB)
	case b >= GiB:
		return fmt.Sprintf("%.*fGiB", digits, float64(b)/GiB)
	case b >= MiB:
		return fmt.Sprintf("%.*fMiB", digits, float64(b)/MiB)
	case b >= KiB:
		return fmt.Sprintf("%.*fKiB", digits, float64(b)/KiB)
	default:
		return fmt.Sprintf("%dB", b)
	}
}
