// Package cmn provides common constants, types, and utilities for the staging engine
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	"sync"
	ratomic "sync/atomic"
)

// GCO (Global Config Owner) is responsible for updating the config.
// Config is loaded at startup and then can be accessed/updated by other services.

type gco struct {
	c   ratomic.Pointer[Config]
	mtx sync.Mutex // [BeginUpdate -- CommitUpdate]
}

var GCO *gco

func init() {
	GCO = &gco{}
	GCO.c.Store(DefaultConfig())
}

func (gco *gco) Get() *Config       { return gco.c.Load() }
func (gco *gco) Put(config *Config) { gco.c.Store(config) }
func (gco *gco) Clone() *Config     { return gco.Get().Clone() }

// NOTE:
// - BeginUpdate must be followed by CommitUpdate or DiscardUpdate
func (gco *gco) BeginUpdate() *Config {
	gco.mtx.Lock()
	return gco.Clone()
}

func (gco *gco) CommitUpdate(config *Config) {
	gco.c.Store(config)
	gco.mtx.Unlock()
}

func (gco *gco) DiscardUpdate() { gco.mtx.Unlock() }
