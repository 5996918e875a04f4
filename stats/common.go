// Package stats tracks and exports transfer and cache metrics
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package stats

import "time"

// metric kinds
const (
	KindCounter    = "counter"
	KindCounterVec = "counterVec"
	KindGauge      = "gauge"
	KindLatency    = "latency" // histogram (seconds)
)

// metric names
const (
	// KindCounter
	XferSize       = "xfer.size"      // bytes moved through transfer buffers
	CacheHitCount  = "cache.hit.n"    // served from cache, no transfer
	CacheMissCount = "cache.miss.n"   // downloaded into cache
	CacheLockCount = "cache.locked.n" // lock held by another process
	MappedCount    = "xfer.mapped.n"  // placed via the location-mapping table
	DeleteCount    = "del.n"          // physical replicas removed
	RollbackCount  = "reg.rollback.n" // registration rollbacks

	// KindCounterVec
	XferCount  = "xfer.n"  // by result
	RetryCount = "retry.n" // by side

	// KindGauge
	XferActive = "xfer.active"

	// KindLatency
	XferLatency = "xfer.ns"
)

// variable labels
const (
	LabelResult = "result"
	LabelSide   = "side"
)

type (
	Tracker interface {
		Inc(name string)
		Dec(name string)
		Add(name string, val int64)
		IncWith(name, lv string) // the metric's single variable label
		Observe(name string, d time.Duration)
		Get(name string) int64
	}

	// Noop is the tracker when metrics are disabled
	Noop struct{}

	desc struct {
		name  string
		kind  string
		help  string
		label string // KindCounterVec only
	}
)

// interface guard
var (
	_ Tracker = (*Noop)(nil)
	_ Tracker = (*Prom)(nil)
)

var descs = []desc{
	{XferSize, KindCounter, "total size transferred (bytes)", ""},
	{CacheHitCount, KindCounter, "transfers served from cache", ""},
	{CacheMissCount, KindCounter, "transfers downloaded into cache", ""},
	{CacheLockCount, KindCounter, "cache entries locked by another process", ""},
	{MappedCount, KindCounter, "transfers placed via location mapping", ""},
	{DeleteCount, KindCounter, "physical replicas removed", ""},
	{RollbackCount, KindCounter, "registration rollbacks", ""},
	{XferCount, KindCounterVec, "total number of transfers", LabelResult},
	{RetryCount, KindCounterVec, "location retries", LabelSide},
	{XferActive, KindGauge, "transfers in progress", ""},
	{XferLatency, KindLatency, "transfer duration (seconds)", ""},
}

func (Noop) Inc(string)                    {}
func (Noop) Dec(string)                    {}
func (Noop) Add(string, int64)             {}
func (Noop) IncWith(string, string)        {}
func (Noop) Observe(string, time.Duration) {}
func (Noop) Get(string) int64              { return 0 }
