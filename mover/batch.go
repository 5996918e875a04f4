// Package mover moves data between two endpoints: resolution, caching,
// location mapping, buffered transfer with retries, and registration
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package mover

import (
	"context"
	"errors"
	"time"

	"github.com/IATkachenko/arc-sub001/cmn/nlog"
	"github.com/IATkachenko/arc-sub001/cmn/work"
	"github.com/IATkachenko/arc-sub001/dpoint"
	"github.com/IATkachenko/arc-sub001/dstatus"
	"github.com/IATkachenko/arc-sub001/dtr"
	"github.com/IATkachenko/arc-sub001/fcache"
	"github.com/IATkachenko/arc-sub001/urlmap"
)

type (
	BatchConf struct {
		Cache    *fcache.Cache
		Mapper   *urlmap.Map
		Workers  int           // concurrent deliveries
		LockWait time.Duration // per DTR, while its cache entry is locked elsewhere
	}

	// Batch moves DTRs generator => scheduler => pre-processor => delivery =>
	// scheduler => post-processor; the scheduler requeues cache-locked DTRs
	// straight to delivery, with backoff
	Batch struct {
		m     *Mover
		conf  BatchConf
		bus   *dtr.Bus
		waits map[string]time.Time // scheduler-owned: first CACHE_WAIT per DTR
	}
)

func (m *Mover) NewBatch(conf BatchConf) *Batch {
	conf.Workers = max(conf.Workers, 1)
	return &Batch{m: m, conf: conf, waits: make(map[string]time.Time)}
}

// Run returns when every DTR is terminal or ctx is done; DTRs must be owned
// by the generator
func (b *Batch) Run(ctx context.Context, dtrs []*dtr.DTR) error {
	if len(dtrs) == 0 {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	b.bus = dtr.NewBus(len(dtrs))
	defer b.bus.Close()

	pool := work.New(b.conf.Workers, b.conf.Workers, func(d *dtr.DTR) { b.deliver(ctx, d) })
	defer func() {
		pool.Stop()
		pool.Wait()
	}()

	for _, d := range dtrs {
		if err := b.bus.Push(ctx, d, dtr.StageGenerator, dtr.StageScheduler); err != nil {
			return err
		}
	}
	go b.schedule(ctx)
	go b.preprocess(ctx)
	go b.dispatch(ctx, pool)

	for range dtrs {
		d, err := b.bus.Receive(ctx, dtr.StagePostProcessor)
		if err != nil {
			b.cancelAll(dtrs)
			return err
		}
		if nlog.V(nlog.LevelVerbose) {
			nlog.Infoln("finished", d.String(), d.GetStatus().String())
		}
	}
	return nil
}

func (b *Batch) schedule(ctx context.Context) {
	for {
		d, err := b.bus.Receive(ctx, dtr.StageScheduler)
		if err != nil {
			return
		}
		status := d.GetStatus()
		switch {
		case status.Terminal():
			delete(b.waits, d.ID)
			b.push(ctx, d, dtr.StageScheduler, dtr.StagePostProcessor)
		case status == dtr.StatusCacheWait:
			first, ok := b.waits[d.ID]
			if !ok {
				first = time.Now()
				b.waits[d.ID] = first
			}
			if time.Since(first) > b.conf.LockWait {
				d.Fail(dstatus.Newf(dstatus.CacheErrorRetryable, "cache entry still locked after %v", b.conf.LockWait))
				b.m.save(d)
				delete(b.waits, d.ID)
				b.push(ctx, d, dtr.StageScheduler, dtr.StagePostProcessor)
				continue
			}
			wait := lockBackoff(time.Since(first))
			time.AfterFunc(wait, func() { b.push(ctx, d, dtr.StageScheduler, dtr.StageDelivery) })
		case status == dtr.StatusNew:
			b.push(ctx, d, dtr.StageScheduler, dtr.StagePreProcessor)
		default:
			b.push(ctx, d, dtr.StageScheduler, dtr.StageDelivery)
		}
	}
}

// preprocess fails DTRs with unusable URLs before they take a delivery slot
func (b *Batch) preprocess(ctx context.Context) {
	for {
		d, err := b.bus.Receive(ctx, dtr.StagePreProcessor)
		if err != nil {
			return
		}
		if err := b.check(d); err != nil {
			d.Fail(err)
			b.m.save(d)
			b.push(ctx, d, dtr.StagePreProcessor, dtr.StageScheduler)
			continue
		}
		b.push(ctx, d, dtr.StagePreProcessor, dtr.StageDelivery)
	}
}

func (b *Batch) check(d *dtr.DTR) error {
	if _, err := dpoint.New(d.Source, b.m.env); err != nil {
		return dstatus.Wrap(dstatus.ReadResolveError, err)
	}
	if _, err := dpoint.New(d.Dest, b.m.env); err != nil {
		return dstatus.Wrap(dstatus.WriteResolveError, err)
	}
	return nil
}

func (b *Batch) dispatch(ctx context.Context, pool *work.Pool[*dtr.DTR]) {
	for {
		d, err := b.bus.Receive(ctx, dtr.StageDelivery)
		if err != nil {
			return
		}
		if err := pool.Submit(ctx, d); err != nil {
			return
		}
	}
}

func (b *Batch) deliver(ctx context.Context, d *dtr.DTR) {
	_, err := b.m.RunDTR(ctx, d, b.conf.Cache, b.conf.Mapper)
	if err != nil && !dstatus.Is(err, dstatus.CacheErrorRetryable) {
		nlog.Warningln(d.String()+":", err)
	}
	b.push(ctx, d, dtr.StageDelivery, dtr.StageScheduler)
}

func (b *Batch) push(ctx context.Context, d *dtr.DTR, from, to dtr.Stage) {
	if err := b.bus.Push(ctx, d, from, to); err != nil && !errors.Is(err, dtr.ErrBusClosed) && ctx.Err() == nil {
		nlog.Errorln(err)
	}
}

func (*Batch) cancelAll(dtrs []*dtr.DTR) {
	for _, d := range dtrs {
		if !d.GetStatus().Terminal() {
			if err := d.Cancel(); err != nil {
				nlog.Warningln(err)
			}
		}
	}
}

// 100ms doubling up to 10s
func lockBackoff(waited time.Duration) time.Duration {
	return min(max(waited, 100*time.Millisecond), 10*time.Second)
}
