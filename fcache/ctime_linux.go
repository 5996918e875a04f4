//go:build linux

// Package fcache implements an on-disk content-addressed cache of staged files
// shared between cooperating processes
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package fcache

import (
	"time"

	"github.com/IATkachenko/arc-sub001/cmn/cos"

	"golang.org/x/sys/unix"
)

func ctime(path string) (time.Time, error) {
	var (
		stx   unix.Statx_t
		flags = unix.AT_STATX_DONT_SYNC | unix.AT_SYMLINK_NOFOLLOW
	)
	if err := unix.Statx(unix.AT_FDCWD, path, flags, unix.STATX_CTIME, &stx); err != nil {
		return time.Time{}, err
	}
	return time.Unix(stx.Ctime.Sec, int64(stx.Ctime.Nsec)).UTC(), nil
}

func pidAlive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || !cos.IsErrNoProcess(err)
}
