// Package memsys provides memory management and slab allocation of transfer segments
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package memsys

import (
	"sync"
	ratomic "sync/atomic"
	"time"

	"github.com/IATkachenko/arc-sub001/cmn/debug"
	"github.com/IATkachenko/arc-sub001/cmn/nlog"
)

type Slab struct {
	tag          string
	get, put     [][]byte
	bufSize      int64
	pos          int
	hits         ratomic.Int64
	lastUse      ratomic.Int64
	muget, muput sync.Mutex
}

func (s *Slab) Size() int64 { return s.bufSize }
func (s *Slab) Tag() string { return s.tag }

func (s *Slab) Alloc() (buf []byte) {
	s.muget.Lock()
	buf = s._alloc()
	s.muget.Unlock()
	s.lastUse.Store(time.Now().UnixNano())
	return
}

func (s *Slab) Free(bufs ...[]byte) {
	s.muput.Lock()
	for _, buf := range bufs {
		debug.Assert(int64(cap(buf)) == s.bufSize)
		if len(s.put) < maxDepth {
			s.put = append(s.put, buf[:s.bufSize])
		}
	}
	s.muput.Unlock()
}

func (s *Slab) _alloc() (buf []byte) {
	if len(s.get) > s.pos { // fast path
		buf = s.get[s.pos]
		s.get[s.pos] = nil
		s.pos++
		s.hits.Add(1)
		return
	}
	return s._allocSlow()
}

func (s *Slab) _allocSlow() (buf []byte) {
	debug.Assert(len(s.get) == s.pos)
	s.muput.Lock()
	if len(s.put) == 0 {
		s.grow(1)
	}
	s.get, s.put = s.put, s.get
	s.put = s.put[:0]
	s.muput.Unlock()

	s.pos = 0
	buf = s.get[s.pos]
	s.get[s.pos] = nil
	s.pos++
	s.hits.Add(1)
	return
}

// under muput
func (s *Slab) grow(cnt int) {
	if nlog.V(nlog.LevelDebug) {
		nlog.Infof("%s: grow by %d => %d", s.tag, cnt, len(s.put)+cnt)
	}
	for ; cnt > 0; cnt-- {
		s.put = append(s.put, make([]byte, s.bufSize))
	}
}

func (s *Slab) reduce(todepth int, isidle bool) (freed int64) {
	s.muput.Lock()
	lput := len(s.put)
	cnt := lput - todepth
	if isidle {
		cnt = max(cnt, lput/2)
	}
	for ; cnt > 0; cnt-- {
		lput--
		s.put[lput] = nil
		freed += s.bufSize
	}
	s.put = s.put[:lput]
	s.muput.Unlock()

	s.muget.Lock()
	lget := len(s.get) - s.pos
	cnt = lget - todepth
	if isidle {
		cnt = max(cnt, lget/2)
	}
	for ; cnt > 0; cnt-- {
		s.get[s.pos] = nil
		s.pos++
		freed += s.bufSize
	}
	s.muget.Unlock()
	return
}

func (s *Slab) cleanup() {
	s.muget.Lock()
	s.muput.Lock()
	clear(s.get)
	clear(s.put)
	s.get, s.put = s.get[:0], s.put[:0]
	s.pos = 0
	s.muput.Unlock()
	s.muget.Unlock()
}
