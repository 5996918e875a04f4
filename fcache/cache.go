// Package fcache implements an on-disk content-addressed cache of staged files
// shared between cooperating processes
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package fcache

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/IATkachenko/arc-sub001/cmn"
	"github.com/IATkachenko/arc-sub001/cmn/cos"
	"github.com/IATkachenko/arc-sub001/cmn/nlog"

	onexxh "github.com/OneOfOne/xxhash"
)

// on-disk layout
const (
	dataDir  = "data"
	linksDir = "joblinks"

	lockSfx = ".lock"
	metaSfx = ".meta"
	tmpSfx  = ".tmp"

	numGuards = 64
)

type (
	// Identity of the cache user (lock owner): pid@host
	Identity struct {
		Host string
		Pid  int
	}

	root struct {
		dir    string
		digest uint64
	}

	Option func(*Cache)

	Cache struct {
		now      func() time.Time
		alive    func(pid int) bool
		id       Identity
		jobID    string
		session  string
		roots    []root
		stale    time.Duration
		guards   [numGuards]sync.Mutex // serialize .meta rewrites by URL
		copyOnly bool
	}
)

var (
	ErrTryAgain  = errors.New("cached file vanished, try again")
	ErrNotOwner  = errors.New("cache lock is not owned by this process")
	ErrCollision = errors.New("cache file belongs to a different URL")
	ErrNoDirs    = errors.New("no cache directories")
)

func WithIdentity(id Identity) Option { return func(c *Cache) { c.id = id } }

// WithLiveness overrides the local process liveness check (tests)
func WithLiveness(alive func(pid int) bool) Option { return func(c *Cache) { c.alive = alive } }

func WithClock(now func() time.Time) Option { return func(c *Cache) { c.now = now } }

func New(conf *cmn.CacheConf, opts ...Option) (*Cache, error) {
	if !conf.Enabled() {
		return nil, ErrNoDirs
	}
	if conf.JobID == "" {
		return nil, errors.New("cache requires job ID")
	}
	c := &Cache{
		now:      time.Now,
		alive:    pidAlive,
		jobID:    conf.JobID,
		session:  conf.SessionDir,
		stale:    conf.StaleLock.D(),
		copyOnly: conf.CopyThrough,
	}
	if c.stale <= 0 {
		c.stale = cmn.DefaultStaleLock
	}
	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("cache: failed to get hostname: %w", err)
	}
	c.id = Identity{Pid: os.Getpid(), Host: host}
	for _, opt := range opts {
		opt(c)
	}
	for _, dir := range conf.Dirs {
		if err := cos.CreateDir(filepath.Join(dir, dataDir)); err != nil {
			return nil, fmt.Errorf("cache: failed to create %q: %w", dir, err)
		}
		c.roots = append(c.roots, root{dir: dir, digest: onexxh.ChecksumString64S(dir, cos.MLCG32)})
	}
	if nlog.V(nlog.LevelVerbose) {
		nlog.Infoln("cache", c.String())
	}
	return c, nil
}

func (c *Cache) String() string {
	var s string
	if len(c.roots) > 1 {
		s = "+" + strconv.Itoa(len(c.roots)-1)
	}
	return "fcache[" + c.roots[0].dir + s + ", job " + c.jobID + ", " + c.id.String() + "]"
}

func (c *Cache) Identity() Identity { return c.id }
func (c *Cache) JobID() string      { return c.jobID }
func (c *Cache) CopyThrough() bool  { return c.copyOnly }

func (c *Cache) Dirs() []string {
	dirs := make([]string, len(c.roots))
	for i := range c.roots {
		dirs[i] = c.roots[i].dir
	}
	return dirs
}

// highest random weight across cache roots
func (c *Cache) hrw(url string) *root {
	var (
		maxH   uint64
		r      = &c.roots[0]
		digest = onexxh.ChecksumString64S(url, cos.MLCG32)
	)
	for i := range c.roots {
		if cs := xorshift(c.roots[i].digest ^ digest); cs >= maxH {
			maxH, r = cs, &c.roots[i]
		}
	}
	return r
}

// xorshift* mixer
func xorshift(x uint64) uint64 {
	x ^= x >> 12
	x ^= x << 25
	x ^= x >> 27
	return x * 2685821657736338717
}

// File returns the data file path for url: <root>/data/<2-hex>/<rest-of-hash>
func (c *Cache) File(url string) string {
	sum := sha1.Sum([]byte(url))
	hash := hex.EncodeToString(sum[:])
	return filepath.Join(c.hrw(url).dir, dataDir, hash[:2], hash[2:])
}

func (c *Cache) guard(url string) *sync.Mutex {
	return &c.guards[onexxh.ChecksumString32(url)%numGuards]
}

func (c *Cache) jobDir(r *root) string { return filepath.Join(r.dir, linksDir, c.jobID) }

//////////////
// Identity //
//////////////

func (id Identity) String() string { return strconv.Itoa(id.Pid) + "@" + id.Host }

func parseIdentity(s string) (id Identity, err error) {
	pid, host, ok := cutLast(s, "@")
	if !ok || host == "" {
		return id, fmt.Errorf("invalid lock owner %q", s)
	}
	if id.Pid, err = strconv.Atoi(pid); err != nil || id.Pid <= 0 {
		return id, fmt.Errorf("invalid lock owner pid %q", s)
	}
	id.Host = host
	return id, nil
}

func cutLast(s, sep string) (before, after string, found bool) {
	for i := len(s) - len(sep); i >= 0; i-- {
		if s[i:i+len(sep)] == sep {
			return s[:i], s[i+len(sep):], true
		}
	}
	return s, "", false
}
