// Package fcache implements an on-disk content-addressed cache of staged files
// shared between cooperating processes
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package fcache

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/IATkachenko/arc-sub001/cmn/cos"
	"github.com/IATkachenko/arc-sub001/cmn/nlog"

	"github.com/karrick/godirwalk"
)

const errThreshold = 100

// Sweep removes stale locks together with the partial data they guarded,
// as well as leftover temporary files; returns the number of reclaimed entries
func (c *Cache) Sweep(now time.Time) (int, error) {
	var n, nerr int
	errs := cos.NewErrs()
	onErr := func(_ string, err error) godirwalk.ErrorAction {
		errs.Add(err)
		if nerr++; nerr > errThreshold {
			return godirwalk.Halt
		}
		return godirwalk.SkipNode
	}
	visit := func(fqn string, de *godirwalk.Dirent) error {
		if de.IsDir() {
			return nil
		}
		name := de.Name()
		switch {
		case strings.Contains(name, tmpSfx+"."):
			if age, err := lockAge(fqn, now); err == nil && age > c.stale {
				if err := cos.RemoveFile(fqn); err != nil {
					errs.Add(err)
				}
			}
		case strings.HasSuffix(name, lockSfx):
			if c.sweepLock(fqn, now) {
				n++
			}
		}
		return nil
	}
	for i := range c.roots {
		dir := filepath.Join(c.roots[i].dir, dataDir)
		opts := &godirwalk.Options{Callback: visit, ErrorCallback: onErr, Unsorted: true}
		if err := godirwalk.Walk(dir, opts); err != nil && !os.IsNotExist(err) {
			errs.Add(err)
		}
	}
	if n > 0 {
		nlog.Infof("%s: swept %s", c, cos.Qty(n, "stale lock"))
	}
	_, err := errs.JoinErr()
	return n, err
}

func (c *Cache) sweepLock(lock string, now time.Time) bool {
	owner, err := readOwner(lock)
	if os.IsNotExist(err) {
		return false
	}
	if owner == c.id {
		return false
	}
	if stale, err := c.isStale(lock, owner, now); err != nil || !stale {
		return false
	}
	fqn := strings.TrimSuffix(lock, lockSfx)
	if err := c.removeEntry(fqn); err != nil {
		nlog.Errorln("failed to remove stale entry", fqn+":", err)
		return false
	}
	if err := cos.RemoveFile(lock); err != nil {
		nlog.Errorln(err)
		return false
	}
	if nlog.V(nlog.LevelVerbose) {
		nlog.Infoln("removed stale lock", lock, "owner", owner)
	}
	return true
}
