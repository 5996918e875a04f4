// Package cos provides common low-level types and utilities for all staging packages
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/IATkachenko/arc-sub001/cmn/debug"
	"github.com/IATkachenko/arc-sub001/cmn/nlog"
)

// POSIX permissions
const (
	PermRWR   os.FileMode = 0o640
	PermRWRR  os.FileMode = 0o644
	PermRWXRX os.FileMode = 0o750
	PermRWX   os.FileMode = 0o700
	PermRX    os.FileMode = 0o755

	configDirMode = PermRWXRX | os.ModeDir
)

const ContentLengthUnknown = -1

// including "unexpecting EOF" to accommodate unsized streaming and
// early termination of the other side (prior to sending the first byte)
func IsEOF(err error) bool {
	return err == io.EOF || err == io.ErrUnexpectedEOF ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}

func CreateDir(dir string) error {
	return os.MkdirAll(dir, configDirMode)
}

// CreateFile creates a new write-only (O_WRONLY) file with default cos.PermRWR permissions.
// NOTE: if the file pathname doesn't exist it'll be created.
// NOTE: if the file already exists it'll be also silently truncated.
func CreateFile(fqn string) (*os.File, error) {
	if err := CreateDir(filepath.Dir(fqn)); err != nil {
		return nil, err
	}
	return os.OpenFile(fqn, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, PermRWR)
}

// (creates destination directory if doesn't exist)
func Rename(src, dst string) (err error) {
	err = os.Rename(src, dst)
	if err == nil || !os.IsNotExist(err) {
		return
	}
	// create and retry (slow path)
	err = CreateDir(filepath.Dir(dst))
	if err == nil {
		err = os.Rename(src, dst)
	}
	return
}

// RemoveFile removes path; returns nil upon success or if the path does not exist.
func RemoveFile(path string) (err error) {
	err = os.Remove(path)
	if os.IsNotExist(err) {
		err = nil
	}
	return
}

// CopyFile copies src to dst with the given permissions and computes checksum if requested
func CopyFile(src, dst string, perm os.FileMode, cksumType string) (written int64, cksum *CksumHash, err error) {
	var srcFile, dstFile *os.File
	if srcFile, err = os.Open(src); err != nil {
		return
	}
	defer Close(srcFile)
	if err = CreateDir(filepath.Dir(dst)); err != nil {
		return
	}
	if dstFile, err = os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm); err != nil {
		nlog.Errorln("Failed to create", dst+":", err)
		return
	}
	written, cksum, err = CopyAndChecksum(dstFile, srcFile, cksumType)
	if err != nil {
		nlog.Errorln("Failed to copy", src, "=>", dst+":", err)
		dstFile.Close()
		if nestedErr := RemoveFile(dst); nestedErr != nil {
			nlog.Errorf("Nested (%v): failed to remove %s, err: %v", err, dst, nestedErr)
		}
		return
	}
	err = dstFile.Close()
	return
}

// CopyAndChecksum reads from `r` and writes to `w`; returns num bytes copied and checksum, or error
func CopyAndChecksum(w io.Writer, r io.Reader, cksumType string) (n int64, cksum *CksumHash, err error) {
	if cksumType == ChecksumNone || cksumType == "" {
		n, err = io.Copy(w, r)
		return
	}
	cksum = NewCksumHash(cksumType)
	n, err = io.Copy(io.MultiWriter(w, cksum.H), r)
	if err == nil {
		cksum.Finalize()
	}
	return
}

func Close(closer io.Closer) {
	err := closer.Close()
	debug.AssertNoErr(err)
}
