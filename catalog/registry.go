// Package catalog is a local index service: logical file names mapped to
// physical replicas plus metadata, kept in a key-value database
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package catalog

import (
	"path/filepath"
	"sync"

	"github.com/IATkachenko/arc-sub001/cmn/cos"
	"github.com/IATkachenko/arc-sub001/cmn/kvdb"
	"github.com/IATkachenko/arc-sub001/cmn/nlog"

	"github.com/pkg/errors"
)

type (
	// Registry shares open catalogs between data points of the same process
	Registry struct {
		m   map[string]*regEntry
		dir string // empty: in-memory
		mu  sync.Mutex
	}
	regEntry struct {
		c    *Catalog
		refs int
	}
)

func NewRegistry(dir string) *Registry {
	return &Registry{dir: dir, m: make(map[string]*regEntry, 4)}
}

// Open returns the named catalog, opening its database on first use;
// each successful Open must be paired with Catalog.Release
func (reg *Registry) Open(name string) (*Catalog, error) {
	if name == "" {
		return nil, errors.New("empty catalog name")
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if re, ok := reg.m[name]; ok {
		re.refs++
		return re.c, nil
	}
	path := kvdb.InMemory
	if reg.dir != "" {
		if err := cos.CreateDir(reg.dir); err != nil {
			return nil, errors.WithStack(err)
		}
		path = filepath.Join(reg.dir, name+".db")
	}
	db, err := kvdb.NewBuntDB(path)
	if err != nil {
		return nil, errors.Wrapf(err, "catalog %q", name)
	}
	c := &Catalog{db: db, reg: reg, name: name}
	reg.m[name] = &regEntry{c: c, refs: 1}
	if nlog.V(nlog.LevelVerbose) {
		nlog.Infoln("opened catalog", name, "at", path)
	}
	return c, nil
}

// NewWith wraps an externally owned database
func NewWith(name string, db kvdb.Driver) *Catalog { return &Catalog{db: db, name: name} }

func (reg *Registry) release(c *Catalog) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	re, ok := reg.m[c.name]
	if !ok || re.c != c {
		return
	}
	// in-memory content lives as long as the registry
	if re.refs--; re.refs > 0 || reg.dir == "" {
		return
	}
	delete(reg.m, c.name)
	if err := c.db.Close(); err != nil {
		nlog.Errorln("failed to close catalog", c.name+":", err)
	}
}

// Close closes all catalogs regardless of outstanding references
func (reg *Registry) Close() {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for name, re := range reg.m {
		if err := re.c.db.Close(); err != nil {
			nlog.Errorln("failed to close catalog", name+":", err)
		}
		delete(reg.m, name)
	}
}
