// Package work provides a bounded worker pool for concurrent processing of any kind
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package work_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IATkachenko/arc-sub001/cmn/work"
	"github.com/IATkachenko/arc-sub001/tools/tassert"
)

func TestPool(t *testing.T) {
	var sum atomic.Int64
	p := work.New(4, 8, func(n int) { sum.Add(int64(n)) })
	for i := 1; i <= 100; i++ {
		tassert.CheckFatal(t, p.Submit(context.Background(), i))
	}
	deadline := time.Now().Add(10 * time.Second)
	for p.NumDone() < 100 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	p.Stop()
	p.Wait()
	tassert.Fatalf(t, sum.Load() == 5050, "expecting 5050, got %d", sum.Load())
	tassert.Errorf(t, p.IsBusy(), "stopped pool must report busy")
}

func TestPoolTrySubmit(t *testing.T) {
	block := make(chan struct{})
	p := work.New(1, 1, func(struct{}) { <-block })
	tassert.Fatal(t, p.TrySubmit(struct{}{}), "first item goes to the worker or the channel")

	// fill whatever the worker left
	for p.TrySubmit(struct{}{}) {
	}
	tassert.Errorf(t, p.IsBusy(), "expecting busy")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := p.Submit(ctx, struct{}{})
	tassert.Fatalf(t, err == context.DeadlineExceeded, "expecting deadline, got %v", err)

	close(block)
	p.Stop()
	p.Wait()
}
