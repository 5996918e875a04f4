// Package fcache implements an on-disk content-addressed cache of staged files
// shared between cooperating processes
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package fcache

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/IATkachenko/arc-sub001/cmn/cos"
	"github.com/IATkachenko/arc-sub001/cmn/nlog"
)

const maxLockTries = 3

// tryLock results
const (
	lockAcquired = iota + 1
	lockHeld
	lockVanished // released by the owner in between
)

// locks held by this process, keyed by owner and lock path;
// the on-disk owner alone cannot tell two callers of the same identity apart
var held = struct {
	m  map[string]struct{}
	mu sync.Mutex
}{m: make(map[string]struct{})}

func (c *Cache) reserve(lock string) bool {
	key := c.id.String() + "|" + lock
	held.mu.Lock()
	defer held.mu.Unlock()
	if _, ok := held.m[key]; ok {
		return false
	}
	held.m[key] = struct{}{}
	return true
}

func (c *Cache) unreserve(lock string) {
	held.mu.Lock()
	delete(held.m, c.id.String()+"|"+lock)
	held.mu.Unlock()
}

// Start acquires the cache entry for url.
//   - available: the data is cached and complete (no lock is held)
//   - locked:    another live process is downloading it; back off and retry later
//   - otherwise: the caller owns the lock and must fill File(url), then Stop or StopAndDelete
//
// renew deletes an existing entry first (forced re-download)
func (c *Cache) Start(url string, renew bool) (available, locked bool, err error) {
	lock := c.File(url) + lockSfx
	if !c.reserve(lock) {
		return false, true, nil
	}
	available, locked, err = c.start(url, renew)
	if available || locked || err != nil {
		c.unreserve(lock)
	}
	return available, locked, err
}

func (c *Cache) start(url string, renew bool) (available, locked bool, err error) {
	var (
		fqn   = c.File(url)
		lock  = fqn + lockSfx
		stale bool
	)
	if err = cos.CreateDir(filepath.Dir(fqn)); err != nil {
		return false, false, err
	}
	for try := 0; ; try++ {
		var (
			owner Identity
			res   int
		)
		if owner, res, err = c.tryLock(lock); err != nil {
			return false, false, err
		}
		if res == lockAcquired {
			break
		}
		if try >= maxLockTries {
			return false, true, nil
		}
		if res == lockVanished {
			continue
		}
		if owner == c.id {
			// not held in-process: left behind by an earlier run under the same pid
			nlog.Warningln(c.id.String(), "reclaiming own leftover", lock)
			break
		}
		isStale, errV := c.isStale(lock, owner, c.now())
		if os.IsNotExist(errV) {
			continue
		}
		if !isStale {
			return false, true, nil
		}
		nlog.Warningf("%s: reclaiming stale lock %s (owner %s)", c.id, lock, owner)
		if err = cos.RemoveFile(lock); err != nil {
			return false, false, err
		}
		stale = true
	}

	// owned from here on
	undo := func(e error) (bool, bool, error) {
		if errRm := cos.RemoveFile(lock); errRm != nil {
			nlog.Errorf("nested (%v): failed to remove %s: %v", e, lock, errRm)
		}
		return false, false, e
	}
	if stale || renew {
		if err = c.removeEntry(fqn); err != nil {
			return undo(err)
		}
	}
	meta := fqn + metaSfx
	first, err := readFirstLine(meta)
	switch {
	case os.IsNotExist(err):
		if err = writeMeta(meta, []string{url}); err != nil {
			return undo(err)
		}
	case err != nil:
		return undo(err)
	default:
		if metaURL, _ := cutValidity(first); metaURL != url {
			return undo(fmt.Errorf("%w: %s is %q, expecting %q", ErrCollision, meta, metaURL, url))
		}
	}
	if _, err = os.Stat(fqn); err == nil {
		// complete: give up the lock right away
		if err = cos.RemoveFile(lock); err != nil {
			return false, false, err
		}
		return true, false, nil
	}
	if !os.IsNotExist(err) {
		return undo(err)
	}
	return false, false, nil
}

// Stop releases the lock; the data file stays and becomes available
func (c *Cache) Stop(url string) error {
	lock := c.File(url) + lockSfx
	defer c.unreserve(lock)
	if err := c.checkOwner(lock); err != nil {
		return err
	}
	return cos.RemoveFile(lock)
}

// StopAndDelete releases the lock and removes the entry
func (c *Cache) StopAndDelete(url string) error {
	fqn := c.File(url)
	lock := fqn + lockSfx
	defer c.unreserve(lock)
	if err := c.checkOwner(lock); err != nil {
		return err
	}
	if err := c.removeEntry(fqn); err != nil {
		return err
	}
	return cos.RemoveFile(lock)
}

// Touch extends the lease of an owned lock
func (c *Cache) Touch(url string) error {
	lock := c.File(url) + lockSfx
	if err := c.checkOwner(lock); err != nil {
		return err
	}
	now := c.now()
	return os.Chtimes(lock, now, now)
}

// create-then-link: the lock appears atomically, with its content in place
func (c *Cache) tryLock(lock string) (owner Identity, res int, err error) {
	tmp := lock + tmpSfx + "." + cos.GenTie()
	if err = os.WriteFile(tmp, []byte(c.id.String()), cos.PermRWRR); err != nil {
		return owner, 0, err
	}
	err = os.Link(tmp, lock)
	if errRm := os.Remove(tmp); errRm != nil {
		nlog.Warningln("failed to remove", tmp+":", errRm)
	}
	if err == nil {
		return c.id, lockAcquired, nil
	}
	if !cos.IsErrExist(err) {
		return owner, 0, err
	}
	owner, err = readOwner(lock)
	switch {
	case err == nil:
	case os.IsNotExist(err):
		return owner, lockVanished, nil
	default:
		// unreadable owner: only the lease can expire
		nlog.Warningln(err)
	}
	return owner, lockHeld, nil
}

func readOwner(lock string) (Identity, error) {
	b, err := os.ReadFile(lock)
	if err != nil {
		return Identity{}, err
	}
	return parseIdentity(string(bytes.TrimSpace(b)))
}

// dead local owner, or lease expired
func (c *Cache) isStale(lock string, owner Identity, now time.Time) (bool, error) {
	age, err := lockAge(lock, now)
	if err != nil {
		return false, err
	}
	if owner.Host == c.id.Host && owner.Pid > 0 && !c.alive(owner.Pid) {
		return true, nil
	}
	return age > c.stale, nil
}

func (c *Cache) checkOwner(lock string) error {
	owner, err := readOwner(lock)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s does not exist", ErrNotOwner, lock)
		}
		return err
	}
	if owner != c.id {
		return fmt.Errorf("%w: %s is owned by %s", ErrNotOwner, lock, owner)
	}
	return nil
}

// data and metadata; DN records and validity go with the data
func (c *Cache) removeEntry(fqn string) error {
	if err := cos.RemoveFile(fqn); err != nil {
		return err
	}
	return cos.RemoveFile(fqn + metaSfx)
}

func lockAge(lock string, now time.Time) (time.Duration, error) {
	finfo, err := os.Stat(lock)
	if err != nil {
		return 0, err
	}
	return now.Sub(finfo.ModTime()), nil
}
