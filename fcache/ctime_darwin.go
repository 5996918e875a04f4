//go:build darwin

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
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return time.Time{}, err
	}
	return time.Unix(st.Ctimespec.Sec, st.Ctimespec.Nsec).UTC(), nil
}

func pidAlive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || !cos.IsErrNoProcess(err)
}
