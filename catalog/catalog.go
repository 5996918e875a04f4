// Package catalog is a local index service: logical file names mapped to
// physical replicas plus metadata, kept in a key-value database
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package catalog

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/IATkachenko/arc-sub001/cmn/cos"
	"github.com/IATkachenko/arc-sub001/cmn/kvdb"
	"github.com/IATkachenko/arc-sub001/cmn/nlog"

	"github.com/pkg/errors"
)

const collLFN = "lfn"

type (
	Replica struct {
		URL  string `json:"url"`
		Name string `json:"name"` // metadata name the replica is registered under
	}

	Entry struct {
		Cksum    *cos.Cksum `json:"cksum,omitempty"`
		LFN      string     `json:"lfn"`
		GUID     string     `json:"guid"`
		Replicas []Replica  `json:"replicas"`
		Size     int64      `json:"size"` // -1: unknown
		Created  int64      `json:"created,omitempty"`
		Modified int64      `json:"modified,omitempty"`
	}

	Catalog struct {
		db   kvdb.Driver
		reg  *Registry
		name string
		mu   sync.Mutex // read-modify-write
	}
)

var (
	ErrNotFound      = errors.New("no such logical file")
	ErrExists        = errors.New("logical file already exists")
	ErrReplicaExists = errors.New("replica already registered")
	ErrInconsistent  = errors.New("inconsistent metadata")
)

func NewEntry(lfn string) *Entry { return &Entry{LFN: lfn, Size: -1} }

func (e *Entry) Replica(url string) (Replica, bool) {
	for _, r := range e.Replicas {
		if r.URL == url {
			return r, true
		}
	}
	return Replica{}, false
}

func (e *Entry) CreatedTime() (time.Time, bool) {
	if e.Created == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, e.Created), true
}

func (c *Catalog) Name() string { return c.name }

// Release drops one reference; the database closes with the last one
func (c *Catalog) Release() {
	if c.reg != nil {
		c.reg.release(c)
	}
}

func (c *Catalog) Lookup(lfn string) (*Entry, error) {
	e := &Entry{}
	if err := c.db.Get(collLFN, lfn, e); err != nil {
		if kvdb.IsErrNotFound(err) {
			return nil, errors.Wrapf(ErrNotFound, "%s: %q", c.name, lfn)
		}
		return nil, errors.WithStack(err)
	}
	return e, nil
}

// Create is the first stage of registration; replication requires an existing
// entry, force tolerates one. created: the entry did not exist before.
func (c *Catalog) Create(meta *Entry, replication, force bool) (e *Entry, created bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, err = c.Lookup(meta.LFN)
	exists := err == nil
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	switch {
	case replication && !exists:
		return nil, false, err
	case exists && !replication && !force:
		return nil, false, errors.Wrapf(ErrExists, "%s: %q", c.name, meta.LFN)
	case exists:
		if err := mergeMeta(e, meta); err != nil {
			return nil, false, err
		}
	default:
		e = &Entry{
			LFN:     meta.LFN,
			GUID:    meta.GUID,
			Size:    meta.Size,
			Cksum:   meta.Cksum,
			Created: meta.Created,
		}
		if e.GUID == "" {
			e.GUID = cos.GenUUID()
		}
	}
	e.Modified = time.Now().UnixNano()
	if err := c.db.Set(collLFN, e.LFN, e); err != nil {
		return nil, false, errors.WithStack(err)
	}
	return e, !exists, nil
}

// AddReplica is the last stage of registration
func (c *Catalog) AddReplica(lfn string, r Replica, meta *Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, err := c.Lookup(lfn)
	if err != nil {
		return err
	}
	if _, ok := e.Replica(r.URL); ok {
		return errors.Wrapf(ErrReplicaExists, "%s: %q at %s", c.name, lfn, r.URL)
	}
	if meta != nil {
		if err := mergeMeta(e, meta); err != nil {
			return err
		}
	}
	if r.Name == "" {
		r.Name = r.URL
	}
	e.Replicas = append(e.Replicas, r)
	e.Modified = time.Now().UnixNano()
	return errors.WithStack(c.db.Set(collLFN, lfn, e))
}

// known values must agree; unknown ones are filled in
func mergeMeta(e, meta *Entry) error {
	if meta.Size >= 0 {
		if e.Size >= 0 && e.Size != meta.Size {
			return errors.Wrapf(ErrInconsistent, "%q: size %d vs %d", e.LFN, e.Size, meta.Size)
		}
		e.Size = meta.Size
	}
	if !meta.Cksum.IsEmpty() {
		if !e.Cksum.IsEmpty() && e.Cksum.Type() == meta.Cksum.Type() && !e.Cksum.Equal(meta.Cksum) {
			return errors.Wrapf(ErrInconsistent, "%q: checksum %s vs %s", e.LFN, e.Cksum, meta.Cksum)
		}
		if e.Cksum.IsEmpty() {
			e.Cksum = meta.Cksum.Clone()
		}
	}
	if e.Created == 0 {
		e.Created = meta.Created
	}
	return nil
}

// DeleteIfEmpty rolls back a Create that made the entry: it goes only if
// it has no replicas
func (c *Catalog) DeleteIfEmpty(lfn string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, err := c.Lookup(lfn)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if len(e.Replicas) > 0 {
		return nil
	}
	return errors.WithStack(c.db.Delete(collLFN, lfn))
}

// RemoveReplica unregisters one replica; the entry goes with the last one
func (c *Catalog) RemoveReplica(lfn, url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, err := c.Lookup(lfn)
	if err != nil {
		return err
	}
	idx := -1
	for i := range e.Replicas {
		if e.Replicas[i].URL == url {
			idx = i
			break
		}
	}
	if idx < 0 {
		return errors.Wrapf(ErrNotFound, "%s: no replica %s of %q", c.name, url, lfn)
	}
	e.Replicas = append(e.Replicas[:idx], e.Replicas[idx+1:]...)
	if len(e.Replicas) == 0 {
		if nlog.V(nlog.LevelVerbose) {
			nlog.Infof("%s: removing %q with its last replica", c.name, lfn)
		}
		return errors.WithStack(c.db.Delete(collLFN, lfn))
	}
	e.Modified = time.Now().UnixNano()
	return errors.WithStack(c.db.Set(collLFN, lfn, e))
}

func (c *Catalog) Delete(lfn string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.db.Delete(collLFN, lfn); err != nil {
		if kvdb.IsErrNotFound(err) {
			return errors.Wrapf(ErrNotFound, "%s: %q", c.name, lfn)
		}
		return errors.WithStack(err)
	}
	return nil
}

// List returns entries under prefix, sorted by name
func (c *Catalog) List(prefix string) ([]*Entry, error) {
	all, err := c.db.GetAll(collLFN, prefix)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	entries := make([]*Entry, 0, len(all))
	for lfn, v := range all {
		if !strings.HasPrefix(lfn, prefix) {
			continue
		}
		e := &Entry{}
		if err := kvdb.Unmarshal(v, e); err != nil {
			nlog.Warningf("%s: skipping corrupted %q: %v", c.name, lfn, err)
			continue
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].LFN < entries[j].LFN })
	return entries, nil
}
