// Package work provides a bounded worker pool for concurrent processing of any kind
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package work

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/IATkachenko/arc-sub001/cmn/cos"
)

// The pool maintains a fixed number of worker goroutines and a bounded work channel.
// - Submit() - blocking submission, until the context is done or the pool stops
// - TrySubmit() - best-effort
// - Stop() - to terminate the pool; pending items are dropped
// - Wait() - to wait for all (pooled) goroutines to exit

type Callback[T any] func(item T)

type Pool[T any] struct {
	workCh chan T
	cb     Callback[T]
	stop   *cos.StopCh
	cnt    atomic.Int64
	wg     sync.WaitGroup
}

func New[T any](numWorkers, chanCap int, cb Callback[T]) *Pool[T] {
	p := &Pool[T]{
		workCh: make(chan T, chanCap),
		cb:     cb,
		stop:   cos.NewStopCh(),
	}
	for range max(numWorkers, 1) {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool[T]) worker() {
	defer p.wg.Done()
	for {
		select {
		case item := <-p.workCh:
			p.cb(item)
			p.cnt.Add(1)
		case <-p.stop.Listen():
			return
		}
	}
}

func (p *Pool[T]) Submit(ctx context.Context, item T) error {
	select {
	case p.workCh <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stop.Listen():
		return context.Canceled
	}
}

func (p *Pool[T]) TrySubmit(item T) bool {
	select {
	case p.workCh <- item:
		return true
	default:
		return false
	}
}

func (p *Pool[T]) NumDone() int64 { return p.cnt.Load() }
func (p *Pool[T]) Stop()          { p.stop.Close() }
func (p *Pool[T]) Wait()          { p.wg.Wait() }
func (p *Pool[T]) IsBusy() bool   { return p.stop.Stopped() || len(p.workCh) == cap(p.workCh) }
