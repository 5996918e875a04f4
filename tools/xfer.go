// Package tools provides common tools and utilities for all unit and integration tests
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package tools

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"

	"github.com/IATkachenko/arc-sub001/cmn/cos"
	"github.com/IATkachenko/arc-sub001/dbuf"
	"github.com/IATkachenko/arc-sub001/dpoint"
	"github.com/IATkachenko/arc-sub001/tools/tassert"
)

// Transfer moves bytes from src to dst through a fresh buffer, without
// resolution, caching, or registration
func Transfer(ctx context.Context, src, dst dpoint.Endpoint, opts ...dbuf.Option) (*dbuf.Buffer, error) {
	opts = append([]dbuf.Option{dbuf.WithSeekable(dst.Seekable())}, opts...)
	buf, err := dbuf.New(max(src.BufSize(), 4*cos.KiB), max(src.BufNum(), 2), opts...)
	if err != nil {
		return nil, err
	}
	defer buf.Release()
	if err := dst.StartWriting(ctx, buf); err != nil {
		return nil, err
	}
	if err := src.StartReading(ctx, buf); err != nil {
		buf.Abort()
		dst.StopWriting()
		return nil, err
	}
	errw := buf.Wait(ctx)
	errs := src.StopReading()
	errd := dst.StopWriting()
	return buf, errors.Join(errw, errs, errd)
}

func CheckFileContent(t *testing.T, fqn string, expected []byte) {
	b, err := os.ReadFile(fqn)
	tassert.CheckFatal(t, err)
	tassert.Fatalf(t, bytes.Equal(b, expected), "%s: content mismatch (%d vs %d bytes)", fqn, len(b), len(expected))
}
