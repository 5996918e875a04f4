// Package mover moves data between two endpoints: resolution, caching,
// location mapping, buffered transfer with retries, and registration
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package mover

import (
	"context"

	"github.com/IATkachenko/arc-sub001/cmn"
	"github.com/IATkachenko/arc-sub001/cmn/cos"
	"github.com/IATkachenko/arc-sub001/dbuf"
	"github.com/IATkachenko/arc-sub001/dpoint"
	"github.com/IATkachenko/arc-sub001/dstatus"
	"github.com/IATkachenko/arc-sub001/dtr"
	"github.com/IATkachenko/arc-sub001/fcache"
	"github.com/IATkachenko/arc-sub001/stats"
	"github.com/IATkachenko/arc-sub001/urlmap"
)

// result labels
const (
	resOK        = "ok"
	resCached    = "cached"
	resMapped    = "mapped"
	resLocked    = "locked"
	resCancelled = "cancelled"
	resError     = "error"
)

type (
	Mover struct {
		env      *dpoint.Env
		config   *cmn.Config
		stats    stats.Tracker
		history  *dtr.Store
		progress func(dbuf.Progress)
		retries  int
		force    bool
		verify   bool
	}

	Option func(*Mover)

	Result struct {
		Cksum    *cos.Cksum
		Status   dstatus.Code // Success, SuccessCached, SuccessCancelled or the failure
		Bytes    int64        // through the transfer buffer
		Attempts int
		Cached   bool // served from cache, no transfer
		Linked   bool // placed as a symlink rather than a copy
		Mapped   bool // placed via the location-mapping table
	}

	Future struct {
		done chan struct{}
		res  *Result
		err  error
	}
)

func WithStats(t stats.Tracker) Option { return func(m *Mover) { m.stats = t } }

func WithProgress(cb func(dbuf.Progress)) Option { return func(m *Mover) { m.progress = cb } }

// WithForce registers the destination despite an existing registration
func WithForce(v bool) Option { return func(m *Mover) { m.force = v } }

// WithVerify computes the checksum even when the source provides one, and compares
func WithVerify(v bool) Option { return func(m *Mover) { m.verify = v } }

// WithRetries overrides the location retry budget of both endpoints
func WithRetries(n int) Option { return func(m *Mover) { m.retries = n } }

// WithHistory saves finished DTRs
func WithHistory(s *dtr.Store) Option { return func(m *Mover) { m.history = s } }

func New(env *dpoint.Env, opts ...Option) *Mover {
	config := env.Conf()
	m := &Mover{
		env:    env,
		config: config,
		stats:  stats.Noop{},
		force:  config.Transfer.Force,
		verify: config.Transfer.Verify,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Transfer copies src to dst. cache and mapper may be nil. A locked cache entry
// fails with the retryable CacheErrorRetryable: back off and call again.
func (m *Mover) Transfer(ctx context.Context, src, dst dpoint.Endpoint, cache *fcache.Cache, mapper *urlmap.Map) (*Result, error) {
	x := &xfer{m: m, src: src, dst: dst, cache: cache, mapper: mapper}
	return x.run(ctx)
}

// TransferAsync runs Transfer in its own goroutine
func (m *Mover) TransferAsync(ctx context.Context, src, dst dpoint.Endpoint, cache *fcache.Cache, mapper *urlmap.Map) *Future {
	f := &Future{done: make(chan struct{})}
	go func() {
		f.res, f.err = m.Transfer(ctx, src, dst, cache, mapper)
		close(f.done)
	}()
	return f
}

////////////
// Future //
////////////

func (f *Future) Done() <-chan struct{} { return f.done }

func (f *Future) Wait() (*Result, error) {
	<-f.done
	return f.res, f.err
}
