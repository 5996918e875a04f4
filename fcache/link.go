// Package fcache implements an on-disk content-addressed cache of staged files
// shared between cooperating processes
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package fcache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/IATkachenko/arc-sub001/cmn/cos"
	"github.com/IATkachenko/arc-sub001/cmn/nlog"
)

// Link claims the cached file for this job (hard link under joblinks/<job>)
// and symlinks dest to the claim; copies instead when so configured
func (c *Cache) Link(dest, url string) error {
	return c.place(dest, url, c.copyOnly, false)
}

// Copy claims the cached file and places an independent copy at dest
func (c *Cache) Copy(dest, url string, executable bool) error {
	return c.place(dest, url, true, executable)
}

func (c *Cache) place(dest, url string, copyFile, executable bool) error {
	var (
		fqn  = c.File(url)
		r    = c.hrw(url)
		jdir = c.jobDir(r)
		hl   = filepath.Join(jdir, c.linkName(dest))
	)
	if err := os.MkdirAll(filepath.Dir(hl), cos.PermRWX); err != nil {
		return err
	}
	if err := os.Chmod(jdir, cos.PermRWX); err != nil {
		return err
	}
	if err := cos.RemoveFile(hl); err != nil {
		return err
	}
	if err := os.Link(fqn, hl); err != nil {
		if os.IsNotExist(err) {
			if _, errS := os.Stat(fqn); os.IsNotExist(errS) {
				return fmt.Errorf("%w: %s", ErrTryAgain, fqn)
			}
		}
		return fmt.Errorf("cache: failed to claim %s: %w", fqn, err)
	}

	// access time for external (LRU) cleaners
	if finfo, err := os.Stat(fqn); err == nil {
		if err := os.Chtimes(fqn, c.now(), finfo.ModTime()); err != nil {
			nlog.Warningln("failed to update access time of", fqn+":", err)
		}
	}

	if err := cos.CreateDir(filepath.Dir(dest)); err != nil {
		return err
	}
	if err := cos.RemoveFile(dest); err != nil {
		return err
	}
	if copyFile {
		perm := cos.PermRWRR
		if executable {
			perm = cos.PermRX
		}
		if _, _, err := cos.CopyFile(hl, dest, perm, cos.ChecksumNone); err != nil {
			return fmt.Errorf("cache: failed to copy %s to %s: %w", hl, dest, err)
		}
		return nil
	}
	if err := os.Symlink(hl, dest); err != nil {
		return fmt.Errorf("cache: failed to link %s to %s: %w", hl, dest, err)
	}
	return nil
}

// relative to the session directory when inside it
func (c *Cache) linkName(dest string) string {
	if c.session != "" {
		if rel, err := filepath.Rel(c.session, dest); err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
			return rel
		}
	}
	return filepath.Base(dest)
}

// Release drops all claims of this job
func (c *Cache) Release() error {
	errs := cos.NewErrs()
	for i := range c.roots {
		if err := os.RemoveAll(c.jobDir(&c.roots[i])); err != nil {
			errs.Add(err)
		}
	}
	_, err := errs.JoinErr()
	return err
}
