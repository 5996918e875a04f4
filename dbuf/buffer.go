// Package dbuf implements the bounded transfer buffer between a reader and a writer
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package dbuf

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IATkachenko/arc-sub001/cmn/cos"
	"github.com/IATkachenko/arc-sub001/cmn/mono"
	"github.com/IATkachenko/arc-sub001/cmn/nlog"
	"github.com/IATkachenko/arc-sub001/memsys"
)

// segment states
const (
	free = iota
	reading
	filled  // awaiting write
	writing // handed out to a writer
	written // written, awaiting checksum (out-of-order)
)

// blamed side
const (
	SideNone = iota
	SideRead
	SideWrite
)

const tick = 100 * time.Millisecond

type (
	segment struct {
		buf    []byte
		offset int64
		length int64
		state  int
		summed bool
	}

	Option func(*Buffer)

	// Buffer is a pool of fixed-size segments shared by one reading and
	// one writing side. Either side may run several parallel workers.
	Buffer struct {
		slab     *memsys.Slab
		segs     []segment
		changed  chan struct{}
		failed   chan struct{} // closed upon the first error
		cksum    *cos.CksumHash
		cksumRes *cos.Cksum
		speed    *speed
		progress func(Progress)
		cond     sync.Cond
		mu       sync.Mutex

		segSize   int64
		nextWrite int64 // sequential writers: the next offset to hand out
		cksumOff  int64 // the next offset to be checksummed
		bytes     int64 // total written

		eofRead, eofWrite bool
		errRead, errWrite bool
		errTimeout        bool
		failClosed        bool
		aborted           bool
		cksumValid        bool
		seekable          bool
		reason            string
		side              int
	}

	Error struct {
		Reason  string
		Read    bool
		Write   bool
		Timeout bool
	}
)

var ErrAborted = errors.New("transfer aborted")

func WithCksum(ty string) Option {
	return func(b *Buffer) {
		if ty != "" && ty != cos.ChecksumNone {
			b.cksum = cos.NewCksumHash(ty)
			b.cksumValid = true
		}
	}
}

func WithSpeed(conf SpeedConf) Option {
	return func(b *Buffer) {
		if conf.enabled() || conf.Progress > 0 {
			b.speed = newSpeed(conf, mono.NanoTime())
		}
	}
}

func WithProgress(cb func(Progress)) Option { return func(b *Buffer) { b.progress = cb } }

// WithSeekable: the writer accepts out-of-order segments (default: sequential)
func WithSeekable(v bool) Option { return func(b *Buffer) { b.seekable = v } }

func WithMMSA(mm *memsys.MMSA) Option {
	return func(b *Buffer) {
		if slab, err := mm.GetSlab(b.segSize); err == nil {
			b.slab = slab
		}
	}
}

// New allocates `count` segments of `size` bytes each
func New(size int64, count int, opts ...Option) (*Buffer, error) {
	if size <= 0 || size > memsys.MaxSegSize || count <= 0 {
		return nil, fmt.Errorf("invalid transfer buffer %d x %d", count, size)
	}
	b := &Buffer{segSize: size, changed: make(chan struct{}, 1), failed: make(chan struct{})}
	b.cond.L = &b.mu
	for _, opt := range opts {
		opt(b)
	}
	if b.slab == nil {
		slab, err := memsys.DefaultMMSA().GetSlab(size)
		if err != nil {
			return nil, err
		}
		b.slab = slab
	}
	b.segs = make([]segment, count)
	for i := range b.segs {
		b.segs[i].buf = b.slab.Alloc()[:size]
	}
	return b, nil
}

// Release returns segments to the allocator; the buffer must not be used afterwards
func (b *Buffer) Release() {
	b.mu.Lock()
	for i := range b.segs {
		if b.segs[i].buf != nil {
			b.slab.Free(b.segs[i].buf)
			b.segs[i].buf = nil
		}
	}
	b.mu.Unlock()
}

func (b *Buffer) SetSeekable(v bool) {
	b.mu.Lock()
	b.seekable = v
	b.mu.Unlock()
}

func (b *Buffer) Size() int64 { return b.segSize }
func (b *Buffer) Count() int  { return len(b.segs) }

// under lock
func (b *Buffer) notify() {
	b.cond.Broadcast()
	if !b.failClosed && b.hasErr() {
		b.failClosed = true
		close(b.failed)
	}
	select {
	case b.changed <- struct{}{}:
	default:
	}
}

// under lock
func (b *Buffer) hasErr() bool { return b.errRead || b.errWrite || b.errTimeout }

//////////////////
// reading side //
//////////////////

// AcquireRead blocks until a free segment is available; returns false
// when reading is over (EOF) or the transfer has failed
func (b *Buffer) AcquireRead() (h int, buf []byte, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		if b.hasErr() || b.eofRead {
			return -1, nil, false
		}
		for i := range b.segs {
			if b.segs[i].state == free {
				b.segs[i].state = reading
				return i, b.segs[i].buf, true
			}
		}
		b.unstick()
		if b.hasFree() {
			continue
		}
		b.cond.Wait()
	}
}

// ReleaseRead hands `n` bytes positioned at `offset` over to the writing side;
// n == 0 returns the segment unfilled
func (b *Buffer) ReleaseRead(h int, n, offset int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if h < 0 || h >= len(b.segs) || b.segs[h].state != reading || n < 0 || n > b.segSize {
		return false
	}
	seg := &b.segs[h]
	if n == 0 {
		seg.state = free
	} else {
		seg.state, seg.offset, seg.length, seg.summed = filled, offset, n, false
		b.sumInOrder()
	}
	b.notify()
	return true
}

// in-order checksumming across filled, writing, and written segments
func (b *Buffer) sumInOrder() {
	if b.cksum == nil || !b.cksumValid {
		return
	}
	for progressed := true; progressed; {
		progressed = false
		for i := range b.segs {
			seg := &b.segs[i]
			if seg.state < filled || seg.summed || seg.offset != b.cksumOff {
				continue
			}
			b.cksum.Write(seg.buf[:seg.length])
			b.cksumOff += seg.length
			seg.summed = true
			if seg.state == written {
				seg.state = free
			}
			progressed = true
		}
	}
	for i := range b.segs {
		seg := &b.segs[i]
		if seg.state >= filled && !seg.summed && seg.offset < b.cksumOff {
			b.invalidateCksum("overlapping data at offset %d", seg.offset)
			return
		}
	}
}

// all segments are written but still awaiting their predecessors: give up on the checksum
func (b *Buffer) unstick() {
	if b.cksum == nil || !b.cksumValid {
		return
	}
	for i := range b.segs {
		if st := b.segs[i].state; st != written {
			return
		}
	}
	b.invalidateCksum("gap at offset %d", b.cksumOff)
}

func (b *Buffer) invalidateCksum(format string, a ...any) {
	if nlog.V(nlog.LevelDebug) {
		nlog.Infof("checksum disabled: "+format, a...)
	}
	b.cksumValid = false
	for i := range b.segs {
		if b.segs[i].state == written {
			b.segs[i].state = free
		}
	}
}

func (b *Buffer) hasFree() bool {
	for i := range b.segs {
		if b.segs[i].state == free {
			return true
		}
	}
	return false
}

//////////////////
// writing side //
//////////////////

// AcquireWrite blocks until a filled segment can be written (in ascending
// contiguous order for sequential writers); returns false when there's
// nothing more to write or the transfer has failed
func (b *Buffer) AcquireWrite() (h int, buf []byte, offset int64, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		if b.hasErr() {
			return -1, nil, 0, false
		}
		var pending, inflight bool
		for i := range b.segs {
			seg := &b.segs[i]
			switch seg.state {
			case filled:
				if b.seekable || seg.offset == b.nextWrite {
					seg.state = writing
					return i, seg.buf[:seg.length], seg.offset, true
				}
				pending = true
			case reading, writing:
				inflight = true
			}
		}
		if b.eofRead && !inflight {
			if pending {
				b.setErr(SideRead, fmt.Sprintf("missing data at offset %d", b.nextWrite))
			}
			return -1, nil, 0, false
		}
		b.cond.Wait()
	}
}

func (b *Buffer) ReleaseWritten(h int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if h < 0 || h >= len(b.segs) || b.segs[h].state != writing {
		return false
	}
	seg := &b.segs[h]
	b.bytes += seg.length
	if !b.seekable {
		b.nextWrite = seg.offset + seg.length
	}
	if b.speed != nil {
		b.speed.transfer(seg.length, mono.NanoTime())
	}
	if seg.summed || b.cksum == nil || !b.cksumValid {
		seg.state = free
	} else {
		seg.state = written
	}
	b.notify()
	return true
}

func (b *Buffer) ReleaseNotWritten(h int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if h < 0 || h >= len(b.segs) || b.segs[h].state != writing {
		return false
	}
	b.segs[h].state = filled
	b.notify()
	return true
}

/////////////////////////
// terminal signalling //
/////////////////////////

func (b *Buffer) SetEOFRead() {
	b.mu.Lock()
	b.eofRead = true
	b.notify()
	b.mu.Unlock()
}

func (b *Buffer) SetEOFWrite() {
	b.mu.Lock()
	b.eofWrite = true
	b.notify()
	b.mu.Unlock()
}

func (b *Buffer) SetErrRead(reason string) {
	b.mu.Lock()
	b.setErr(SideRead, reason)
	b.mu.Unlock()
}

func (b *Buffer) SetErrWrite(reason string) {
	b.mu.Lock()
	b.setErr(SideWrite, reason)
	b.mu.Unlock()
}

// under lock
func (b *Buffer) setErr(side int, reason string) {
	switch side {
	case SideRead:
		b.errRead = true
	case SideWrite:
		b.errWrite = true
	}
	if b.reason == "" {
		b.reason = reason
	}
	b.notify()
}

// Abort fails both sides (cancellation)
func (b *Buffer) Abort() {
	b.mu.Lock()
	b.aborted = true
	b.errRead, b.errWrite = true, true
	if b.reason == "" {
		b.reason = ErrAborted.Error()
	}
	b.notify()
	b.mu.Unlock()
}

func (b *Buffer) EOFRead() bool  { b.mu.Lock(); defer b.mu.Unlock(); return b.eofRead }
func (b *Buffer) EOFWrite() bool { b.mu.Lock(); defer b.mu.Unlock(); return b.eofWrite }
func (b *Buffer) ErrRead() bool  { b.mu.Lock(); defer b.mu.Unlock(); return b.errRead }
func (b *Buffer) ErrWrite() bool { b.mu.Lock(); defer b.mu.Unlock(); return b.errWrite }
func (b *Buffer) Timeout() bool  { b.mu.Lock(); defer b.mu.Unlock(); return b.errTimeout }
func (b *Buffer) Aborted() bool  { b.mu.Lock(); defer b.mu.Unlock(); return b.aborted }
func (b *Buffer) HasError() bool { b.mu.Lock(); defer b.mu.Unlock(); return b.hasErr() }
func (b *Buffer) Bytes() int64   { b.mu.Lock(); defer b.mu.Unlock(); return b.bytes }

// Failed is closed once either side fails, the transfer times out, or is aborted
func (b *Buffer) Failed() <-chan struct{} { return b.failed }

// TimeoutSide returns the side blamed for the timeout (SideNone if there was none)
func (b *Buffer) TimeoutSide() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.errTimeout {
		return SideNone
	}
	return b.side
}

// Err returns nil upon success
func (b *Buffer) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.hasErr() {
		return nil
	}
	return &Error{Reason: b.reason, Read: b.errRead, Write: b.errWrite, Timeout: b.errTimeout}
}

// Cksum returns the digest of all data iff it passed strictly in order and
// both sides have reached EOF without error
func (b *Buffer) Cksum() *cos.Cksum {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cksum == nil || !b.cksumValid || b.hasErr() || !b.eofRead || !b.eofWrite || b.cksumOff != b.bytes {
		return nil
	}
	if b.cksumRes == nil {
		b.cksum.Finalize()
		b.cksumRes = b.cksum.Clone()
	}
	return b.cksumRes
}

//////////
// Wait //
//////////

// Wait blocks until both sides reach EOF, or an error, or the context is done;
// evaluates the speed policy and reports progress
func (b *Buffer) Wait(ctx context.Context) error {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		b.mu.Lock()
		done := b.hasErr() || (b.eofRead && b.eofWrite)
		b.mu.Unlock()
		if done {
			return b.Err()
		}
		select {
		case <-ctx.Done():
			b.Abort()
			return ctx.Err()
		case <-ticker.C:
			b.checkSpeed()
		case <-b.changed:
		}
	}
}

func (b *Buffer) checkSpeed() {
	if b.speed == nil {
		return
	}
	var (
		p   Progress
		due bool
		now = mono.NanoTime()
	)
	b.mu.Lock()
	if b.speed.conf.enabled() {
		if reason := b.speed.check(now); reason != "" && !b.hasErr() {
			b.errTimeout = true
			b.side = b.blame()
			b.reason = reason
			b.notify()
		}
	}
	if b.progress != nil {
		p, due = b.speed.report(now)
	}
	b.mu.Unlock()
	if due {
		b.progress(p)
	}
}

// under lock: who's starved? an empty buffer blames the reader, a full one
// the writer; otherwise it's a coin toss
func (b *Buffer) blame() int {
	switch {
	case b.eofRead && !b.eofWrite:
		return SideWrite
	case b.eofWrite && !b.eofRead:
		return SideRead
	}
	var nfree, nfilled int
	for i := range b.segs {
		switch b.segs[i].state {
		case free:
			nfree++
		case filled, writing:
			nfilled++
		}
	}
	switch {
	case nfilled == 0 && nfree > 0:
		return SideRead
	case nfree == 0 && nfilled > 0:
		return SideWrite
	}
	if cos.NowRand(2) == 0 {
		return SideRead
	}
	return SideWrite
}

func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var counts [written + 1]int
	for i := range b.segs {
		counts[b.segs[i].state]++
	}
	return fmt.Sprintf("dbuf[%dx%s free=%d reading=%d filled=%d writing=%d written=%d eof=(%t,%t) err=(%t,%t,%t)]",
		len(b.segs), cos.ToSizeIEC(b.segSize, 0), counts[free], counts[reading], counts[filled], counts[writing],
		counts[written], b.eofRead, b.eofWrite, b.errRead, b.errWrite, b.errTimeout)
}

///////////
// Error //
///////////

func (e *Error) Error() string {
	switch {
	case e.Timeout:
		return "transfer timeout: " + e.Reason
	case e.Read && e.Write:
		return "read and write failed: " + e.Reason
	case e.Read:
		return "read failed: " + e.Reason
	default:
		return "write failed: " + e.Reason
	}
}
