// Package memsys provides memory management and slab allocation of transfer segments
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package memsys

import (
	"fmt"
	"sync"
	"time"

	"github.com/IATkachenko/arc-sub001/cmn/cos"
	"github.com/IATkachenko/arc-sub001/cmn/nlog"
)

// ============== Memory Manager Slab Allocator (MMSA) ===========================
//
// MMSA is a slab allocator of fixed-size buffers ("segments") used by transfer
// buffers. Each slab is a pair of get/put rings, grown on demand and reduced
// by the periodic GC when idle.
//
// Typical usage:
//   slab, _ := mm.GetSlab(64 * cos.KiB)
//   buf := slab.Alloc()
//   ...
//   slab.Free(buf)
//
// ===============================================================================

const (
	MinSegSize = 4 * cos.KiB
	MaxSegSize = 64 * cos.MiB
	NumSlabs   = 15 // MinSegSize << [0..NumSlabs)

	maxDepth   = 4096 // put ring
	minDepth   = 4    // to keep when idle
	idleIval   = time.Minute
	gcInterval = 2 * time.Minute
)

type (
	MMSA struct {
		Name  string
		rings [NumSlabs]*Slab
	}
	Stats struct {
		Hits [NumSlabs]int64
		Idle [NumSlabs]time.Duration
		Size [NumSlabs]int64
	}
)

var (
	gmm     *MMSA
	gmmOnce sync.Once
)

// DefaultMMSA is the process-wide allocator, created upon first use
func DefaultMMSA() *MMSA {
	gmmOnce.Do(func() { gmm = NewMMSA("dstage.mm") })
	return gmm
}

func NewMMSA(name string) *MMSA {
	r := &MMSA{Name: name}
	for i := range r.rings {
		bufSize := int64(MinSegSize) << i
		r.rings[i] = &Slab{
			bufSize: bufSize,
			tag:     r.Name + "." + cos.ToSizeIEC(bufSize, 0),
			get:     make([][]byte, 0, minDepth),
			put:     make([][]byte, 0, minDepth),
		}
	}
	return r
}

// GetSlab selects the slab with the smallest buffer size that fits `bufSize`
func (r *MMSA) GetSlab(bufSize int64) (*Slab, error) {
	if bufSize <= 0 || bufSize > MaxSegSize {
		return nil, fmt.Errorf("%s: buffer size %d out of range (0, %s]", r.Name, bufSize, cos.ToSizeIEC(MaxSegSize, 0))
	}
	for _, s := range &r.rings {
		if s.bufSize >= bufSize {
			return s, nil
		}
	}
	return r.rings[NumSlabs-1], nil
}

// AllocSize returns a buffer of (at least) the given size and the slab to free it to
func (r *MMSA) AllocSize(size int64) (buf []byte, slab *Slab, err error) {
	if slab, err = r.GetSlab(size); err != nil {
		return
	}
	buf = slab.Alloc()
	return
}

func (r *MMSA) GetStats() (stats *Stats) {
	stats = &Stats{}
	now := time.Now()
	for i, s := range &r.rings {
		stats.Hits[i] = s.hits.Load()
		stats.Size[i] = s.bufSize
		if last := s.lastUse.Load(); last != 0 {
			stats.Idle[i] = now.Sub(time.Unix(0, last))
		}
	}
	return
}

// GC reduces idle slabs; returns the next interval (housekeeping callback)
func (r *MMSA) GC(int64) time.Duration {
	var (
		freed int64
		now   = time.Now()
	)
	for _, s := range &r.rings {
		last := s.lastUse.Load()
		idle := last == 0 || now.Sub(time.Unix(0, last)) > idleIval
		freed += s.reduce(minDepth, idle)
	}
	if freed > 0 && nlog.V(nlog.LevelDebug) {
		nlog.Infoln(r.Name, "gc freed", cos.ToSizeIEC(freed, 1))
	}
	return gcInterval
}

// Release frees all cached buffers
func (r *MMSA) Release() {
	for _, s := range &r.rings {
		s.cleanup()
	}
}
