// Package dpoint defines data points: the source and destination endpoints
// of a transfer, either direct (physical) or indexed (logical names resolved
// through an index service into replicas)
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package dpoint

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/IATkachenko/arc-sub001/cmn/cos"
	"github.com/IATkachenko/arc-sub001/dbuf"
	"github.com/IATkachenko/arc-sub001/dstatus"

	"golang.org/x/sync/errgroup"
)

var errNotStarted = errors.New("not started")

// Job tracks the background workers of one side of a transfer
type Job struct {
	g  *errgroup.Group
	mu sync.Mutex
}

// Go starts a worker; the first worker error is returned by Wait
func (j *Job) Go(fn func() error) {
	j.mu.Lock()
	if j.g == nil {
		j.g = &errgroup.Group{}
	}
	j.g.Go(fn)
	j.mu.Unlock()
}

func (j *Job) Running() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.g != nil
}

// Wait blocks until all workers are done and resets the job
func (j *Job) Wait() error {
	j.mu.Lock()
	g := j.g
	j.g = nil
	j.mu.Unlock()
	if g == nil {
		return errNotStarted
	}
	return g.Wait()
}

// StopJob waits for the workers; stopping what was never started is an error
func StopJob(j *Job, code dstatus.Code) error {
	err := j.Wait()
	if errors.Is(err, errNotStarted) {
		return dstatus.Wrap(code, err)
	}
	return err
}

// WithBuffer derives a context that is cancelled once buf fails, so that
// blocked I/O of one side ends upon the other side's error or a timeout
func WithBuffer(ctx context.Context, buf *dbuf.Buffer) (context.Context, context.CancelFunc) {
	bctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-buf.Failed():
			cancel()
		case <-bctx.Done():
		}
	}()
	return bctx, cancel
}

// Secondary reports whether err is merely the aftermath of a recorded
// buffer failure (I/O cancelled via WithBuffer) rather than an error of its own
func Secondary(ctx context.Context, buf *dbuf.Buffer, err error) bool {
	return err != nil && ctx.Err() != nil && buf.HasError()
}

// Feed reads r sequentially into buf starting at off; returns at EOF or
// when the buffer stops accepting data. Signalling EOF is up to the caller.
func Feed(buf *dbuf.Buffer, r io.Reader, off int64) (int64, error) {
	var n int64
	for {
		h, seg, ok := buf.AcquireRead()
		if !ok {
			return n, nil
		}
		k, err := io.ReadFull(r, seg)
		if k > 0 {
			buf.ReleaseRead(h, int64(k), off+n)
			n += int64(k)
		} else {
			buf.ReleaseRead(h, 0, 0)
		}
		switch {
		case err == nil:
		case cos.IsEOF(err):
			return n, nil
		default:
			return n, err
		}
	}
}

// Drain writes buf to w in offset order
func Drain(buf *dbuf.Buffer, w io.Writer) (int64, error) {
	var n int64
	for {
		h, data, _, ok := buf.AcquireWrite()
		if !ok {
			return n, nil
		}
		k, err := w.Write(data)
		n += int64(k)
		if err != nil {
			buf.ReleaseNotWritten(h)
			return n, err
		}
		buf.ReleaseWritten(h)
	}
}

// DrainAt writes buf to w as segments arrive
func DrainAt(buf *dbuf.Buffer, w io.WriterAt) (int64, error) {
	var n int64
	for {
		h, data, off, ok := buf.AcquireWrite()
		if !ok {
			return n, nil
		}
		k, err := w.WriteAt(data, off)
		n += int64(k)
		if err != nil {
			buf.ReleaseNotWritten(h)
			return n, err
		}
		buf.ReleaseWritten(h)
	}
}

// EndRead marks the outcome of the reading side
func EndRead(buf *dbuf.Buffer, err error) error {
	if err != nil {
		buf.SetErrRead(err.Error())
		return dstatus.Wrap(dstatus.ReadError, err)
	}
	buf.SetEOFRead()
	return nil
}

// EndWrite marks the outcome of the writing side; a writer that ran out of
// segments because the buffer failed has not reached EOF
func EndWrite(buf *dbuf.Buffer, err error) error {
	if err != nil {
		buf.SetErrWrite(err.Error())
		werr := dstatus.Wrap(dstatus.WriteError, err)
		if cos.IsErrOOS(err) {
			// no point retrying the same location
			werr.(*dstatus.Err).SetRetryable(false)
		}
		return werr
	}
	if !buf.HasError() {
		buf.SetEOFWrite()
	}
	return nil
}
