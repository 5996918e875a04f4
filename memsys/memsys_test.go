// Package memsys provides memory management and slab allocation of transfer segments
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package memsys_test

import (
	"sync"
	"testing"

	"github.com/IATkachenko/arc-sub001/cmn/cos"
	"github.com/IATkachenko/arc-sub001/memsys"
	"github.com/IATkachenko/arc-sub001/tools/tassert"
)

func TestGetSlab(t *testing.T) {
	mm := memsys.NewMMSA("test")
	tests := []struct {
		in, out int64
	}{
		{1, memsys.MinSegSize},
		{memsys.MinSegSize, memsys.MinSegSize},
		{memsys.MinSegSize + 1, 2 * memsys.MinSegSize},
		{64 * cos.KiB, 64 * cos.KiB},
		{memsys.MaxSegSize, memsys.MaxSegSize},
	}
	for _, tc := range tests {
		slab, err := mm.GetSlab(tc.in)
		tassert.CheckFatal(t, err)
		tassert.Errorf(t, slab.Size() == tc.out, "%d: expected slab %d, got %d", tc.in, tc.out, slab.Size())
	}
	_, err := mm.GetSlab(memsys.MaxSegSize + 1)
	tassert.Errorf(t, err != nil, "expected out-of-range error")
	_, err = mm.GetSlab(0)
	tassert.Errorf(t, err != nil, "expected out-of-range error")
}

func TestAllocFreeReuse(t *testing.T) {
	mm := memsys.NewMMSA("test")
	slab, err := mm.GetSlab(8 * cos.KiB)
	tassert.CheckFatal(t, err)

	bufs := make([][]byte, 0, 16)
	for range 16 {
		buf := slab.Alloc()
		tassert.Fatalf(t, len(buf) == 8*cos.KiB, "unexpected len %d", len(buf))
		bufs = append(bufs, buf)
	}
	slab.Free(bufs...)
	for range 16 {
		buf := slab.Alloc()
		tassert.Fatalf(t, len(buf) == 8*cos.KiB, "unexpected len %d", len(buf))
	}
	stats := mm.GetStats()
	tassert.Errorf(t, stats.Hits[1] == 32, "expected 32 hits, got %d", stats.Hits[1])
	mm.GC(0)
	mm.Release()
}

func TestConcurrentAlloc(t *testing.T) {
	var (
		wg sync.WaitGroup
		mm = memsys.NewMMSA("test")
	)
	slab, err := mm.GetSlab(memsys.MinSegSize)
	tassert.CheckFatal(t, err)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 1000 {
				buf := slab.Alloc()
				buf[0] = 0xff
				slab.Free(buf)
			}
		}()
	}
	wg.Wait()
}
