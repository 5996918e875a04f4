// Package web implements the http(s) data point: parallel range reads and
// streaming uploads
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package web

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/IATkachenko/arc-sub001/chunk"
	"github.com/IATkachenko/arc-sub001/cmn/cos"
	"github.com/IATkachenko/arc-sub001/cmn/nlog"
	"github.com/IATkachenko/arc-sub001/dbuf"
	"github.com/IATkachenko/arc-sub001/dpoint"
	"github.com/IATkachenko/arc-sub001/dstatus"
	"github.com/IATkachenko/arc-sub001/durl"

	"golang.org/x/sync/errgroup"
)

const (
	hdrRange        = "Range"
	hdrContentRange = "Content-Range"
	hdrContentMD5   = "Content-MD5"
	hdrLastModified = "Last-Modified"
)

const maxBackoff = time.Second

type (
	endpoint struct {
		dpoint.Base
		client       *http.Client
		chunks       *chunk.Allocator
		rjob         dpoint.Job
		wjob         dpoint.Job
		threads      int
		rangeRetries int
		mu           sync.Mutex // workers learning the size
	}

	// parsed Content-Range
	span struct {
		first int64
		last  int64
		total int64 // -1: unknown
	}
)

// interface guard
var _ dpoint.Endpoint = (*endpoint)(nil)

func init() {
	dpoint.Register("http", dpoint.Direct, New)
	dpoint.Register("https", dpoint.Direct, New)
}

func New(u *durl.URL, env *dpoint.Env) (dpoint.Endpoint, error) {
	if env == nil || env.Pool == nil {
		return nil, dstatus.Newf(dstatus.NotInitializedError, "%s: no connection pool", u)
	}
	config := env.Conf()
	ep := &endpoint{
		Base:         dpoint.NewBase(u, env, dpoint.Direct),
		client:       env.Pool.HTTPClient(u),
		threads:      u.Threads(config.Transfer.MaxStreams),
		rangeRetries: config.Transfer.RangeRetries,
	}
	// a few segments per stream
	ep.SetBufHints(0, max(config.Transfer.BufNum, 2*ep.threads))
	return ep, nil
}

func (ep *endpoint) Cacheable() bool { return ep.CacheAllowed() }
func (*endpoint) ProvidesMeta() bool { return true }
func (ep *endpoint) Threads() int    { return ep.threads }

func (ep *endpoint) target() string { return ep.URL().CanonicalString() }

//////////
// meta //
//////////

func (ep *endpoint) Stat(ctx context.Context) (*dpoint.FileInfo, error) {
	resp, err := ep.do(ctx, http.MethodHead, ep.target(), nil)
	if err != nil {
		return nil, dstatus.Wrap(dstatus.StatError, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusErr(dstatus.StatError, resp)
	}
	fi := &dpoint.FileInfo{Attrs: dpoint.NewAttrs(), Name: path.Base(ep.URL().Path), Type: dpoint.TypeFile}
	if resp.ContentLength >= 0 {
		fi.Size = resp.ContentLength
	}
	if lm := resp.Header.Get(hdrLastModified); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			fi.Created = t
		}
	}
	if md5 := resp.Header.Get(hdrContentMD5); md5 != "" {
		if b, err := base64.StdEncoding.DecodeString(md5); err == nil {
			fi.Cksum = cos.NewCksum(cos.ChecksumMD5, hex.EncodeToString(b))
		}
	}
	ep.Attrs().Merge(&fi.Attrs)
	return fi, nil
}

func (ep *endpoint) List(ctx context.Context) ([]*dpoint.FileInfo, error) {
	fi, err := ep.Stat(ctx)
	if err != nil {
		return nil, dstatus.Wrap(dstatus.ListError, err)
	}
	return []*dpoint.FileInfo{fi}, nil
}

// Check: the object can be read with the current credentials
func (ep *endpoint) Check(ctx context.Context) error {
	resp, err := ep.do(ctx, http.MethodHead, ep.target(), nil)
	if err != nil {
		return dstatus.Wrap(dstatus.CheckError, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusErr(dstatus.CheckError, resp)
	}
	return nil
}

func (ep *endpoint) Remove(ctx context.Context) error {
	resp, err := ep.do(ctx, http.MethodDelete, ep.target(), nil)
	if err != nil {
		return dstatus.Wrap(dstatus.DeleteError, err)
	}
	resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted, http.StatusNoContent:
		return nil
	}
	return statusErr(dstatus.DeleteError, resp)
}

func (ep *endpoint) do(ctx context.Context, method, u string, hdr http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, http.NoBody)
	if err != nil {
		return nil, err
	}
	for k, v := range hdr {
		req.Header[k] = v
	}
	return ep.client.Do(req)
}

func statusErr(code dstatus.Code, resp *http.Response) error {
	e := dstatus.Newf(code, "%s %s: %s", resp.Request.Method, resp.Request.URL, resp.Status)
	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusGone:
		e.Errno = int(syscall.ENOENT)
	case http.StatusUnauthorized, http.StatusForbidden:
		e.Errno = int(syscall.EACCES)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		e.SetRetryable(true)
	}
	return e
}

func transient(status int) bool {
	return status >= http.StatusInternalServerError || status == http.StatusRequestTimeout ||
		status == http.StatusTooManyRequests
}

/////////////
// reading //
/////////////

func (ep *endpoint) StartReading(ctx context.Context, buf *dbuf.Buffer) error {
	if ep.rjob.Running() {
		return dstatus.New(dstatus.ReadStartError, "already reading")
	}
	attrs := ep.Attrs()
	if !attrs.HasSize() {
		// HEAD is optional, but a definite answer (not found, denied, refused) is final
		if _, err := ep.Stat(ctx); err != nil && dstatus.ErrnoOf(err) != 0 {
			return dstatus.Wrap(dstatus.ReadStartError, err)
		}
	}
	ep.chunks = chunk.New(attrs.Size)
	ep.rjob.Go(func() error {
		rctx, cancel := dpoint.WithBuffer(ctx, buf)
		defer cancel()
		g, gctx := errgroup.WithContext(rctx)
		for range ep.threads {
			g.Go(func() error { return ep.readWorker(gctx, buf) })
		}
		err := g.Wait()
		if dpoint.Secondary(rctx, buf, err) {
			return nil
		}
		if err == nil && !ep.chunks.Empty() && !buf.HasError() {
			err = fmt.Errorf("%s: incomplete, missing %s", ep.target(), ep.chunks)
		}
		return dpoint.EndRead(buf, err)
	})
	return nil
}

func (ep *endpoint) StopReading() error { return dpoint.StopJob(&ep.rjob, dstatus.ReadStopError) }

func (ep *endpoint) readWorker(ctx context.Context, buf *dbuf.Buffer) error {
	base := ep.target()
	for {
		h, seg, ok := buf.AcquireRead()
		if !ok {
			return nil
		}
		start, length, ok := ep.chunks.Get(int64(len(seg)))
		if !ok {
			buf.ReleaseRead(h, 0, 0)
			return nil
		}
		if err := ep.fetch(ctx, &base, buf, h, seg, start, length); err != nil {
			if !dpoint.Secondary(ctx, buf, err) {
				buf.SetErrRead(err.Error())
			}
			return err
		}
	}
}

// fetch one range, with retries; releases the segment in all cases
func (ep *endpoint) fetch(ctx context.Context, base *string, buf *dbuf.Buffer, h int, seg []byte, start, length int64) error {
	var (
		hdr = http.Header{hdrRange: []string{fmt.Sprintf("bytes=%d-%d", start, start+length-1)}}
		err error
	)
	for try := 0; ; try++ {
		if try > 0 {
			nlog.Warningln(*base, "range", start, "retry", try, "after:", err)
			if errs := sleepCtx(ctx, min(time.Duration(try)*100*time.Millisecond, maxBackoff)); errs != nil {
				break
			}
		}
		var resp *http.Response
		resp, err = ep.do(ctx, http.MethodGet, *base, hdr)
		if err != nil {
			if cos.IsRetriableConnErr(err) && try < ep.rangeRetries {
				continue
			}
			break
		}
		// redirected: keep talking to the new location
		if loc := resp.Request.URL.String(); loc != *base {
			if nlog.V(nlog.LevelVerbose) {
				nlog.Infoln("redirected", *base, "=>", loc)
			}
			*base = loc
		}
		var retry bool
		retry, err = ep.receive(resp, buf, h, seg, start, length)
		resp.Body.Close()
		if !retry {
			return err
		}
		if try >= ep.rangeRetries {
			break
		}
	}
	ep.giveBack(buf, h, start, length)
	return err
}

// retry=true: the segment is still held and the same range should be requested again
func (ep *endpoint) receive(resp *http.Response, buf *dbuf.Buffer, h int, seg []byte, start, length int64) (retry bool, err error) {
	switch resp.StatusCode {
	case http.StatusPartialContent:
		sp, err := parseContentRange(resp.Header.Get(hdrContentRange))
		if err != nil {
			ep.giveBack(buf, h, start, length)
			return false, err
		}
		if sp.total >= 0 {
			ep.setSize(sp.total)
		}
		// keep the overlap of what's requested and what's returned
		skip := sp.first - start
		if skip < 0 {
			if _, err := io.CopyN(io.Discard, resp.Body, -skip); err != nil {
				return true, err
			}
			skip = 0
		}
		if skip >= length {
			ep.giveBack(buf, h, start, length)
			return false, fmt.Errorf("%s: content range %d past requested %d", resp.Request.URL, sp.first, start)
		}
		n, err := io.ReadFull(resp.Body, seg[skip:length])
		if n == 0 && err != nil {
			return true, err
		}
		ep.chunks.Unclaim(start, length)
		ep.chunks.Claim(start+skip, int64(n))
		buf.ReleaseRead(h, int64(n), start+skip)
		if sp.total >= 0 {
			ep.chunks.ClaimFrom(sp.total)
		}
		if end := start + skip + int64(n); err == nil && sp.last >= end {
			ep.surplus(resp.Body, buf, end, sp.last+1)
		}
		return false, nil
	case http.StatusOK:
		ep.chunks.Unclaim(start, length)
		if resp.ContentLength >= 0 {
			ep.setSize(resp.ContentLength)
		}
		return false, ep.stream(resp.Body, buf, h, seg)
	case http.StatusRequestedRangeNotSatisfiable:
		ep.chunks.ClaimFrom(start)
		ep.setSize(start)
		buf.ReleaseRead(h, 0, 0)
		return false, nil
	}
	err = statusErr(dstatus.ReadError, resp)
	if transient(resp.StatusCode) {
		return true, err
	}
	ep.giveBack(buf, h, start, length)
	return false, err
}

// surplus keeps what the server returned past the requested range, as far
// as nobody else holds it; whatever is not read goes back to the allocator
func (ep *endpoint) surplus(body io.Reader, buf *dbuf.Buffer, pos, end int64) {
	for pos < end {
		h, seg, ok := buf.AcquireRead()
		if !ok {
			return
		}
		start, length, ok := ep.chunks.GetFrom(pos, int64(len(seg)))
		if !ok || start >= end {
			if ok {
				ep.chunks.Unclaim(start, length)
			}
			buf.ReleaseRead(h, 0, 0)
			return
		}
		if over := start + length - end; over > 0 {
			ep.chunks.Unclaim(end, over)
			length -= over
		}
		if start > pos {
			if _, err := io.CopyN(io.Discard, body, start-pos); err != nil {
				ep.giveBack(buf, h, start, length)
				return
			}
		}
		n, err := io.ReadFull(body, seg[:length])
		if n > 0 {
			buf.ReleaseRead(h, int64(n), start)
		} else {
			buf.ReleaseRead(h, 0, 0)
		}
		pos = start + int64(n)
		if err != nil {
			ep.chunks.Unclaim(pos, start+length-pos)
			return
		}
	}
}

func (ep *endpoint) giveBack(buf *dbuf.Buffer, h int, start, length int64) {
	buf.ReleaseRead(h, 0, 0)
	ep.chunks.Unclaim(start, length)
}

// stream handles a server that ignored the Range header: the body is the
// whole object, of which only the ranges nobody else holds are kept
func (ep *endpoint) stream(body io.Reader, buf *dbuf.Buffer, h int, seg []byte) error {
	var pos int64 // in body
	for {
		start, length, ok := ep.chunks.GetFrom(pos, int64(len(seg)))
		if !ok {
			buf.ReleaseRead(h, 0, 0)
			return nil
		}
		if start > pos {
			if n, err := io.CopyN(io.Discard, body, start-pos); err != nil {
				pos += n
				ep.giveBack(buf, h, start, length)
				return ep.streamEnd(pos, err)
			}
			pos = start
		}
		n, err := io.ReadFull(body, seg[:length])
		if n > 0 {
			buf.ReleaseRead(h, int64(n), start)
			pos += int64(n)
		} else {
			buf.ReleaseRead(h, 0, 0)
		}
		if err != nil {
			ep.chunks.Unclaim(pos, start+length-pos)
			return ep.streamEnd(pos, err)
		}
		if h, seg, ok = buf.AcquireRead(); !ok {
			return nil
		}
	}
}

func (ep *endpoint) streamEnd(pos int64, err error) error {
	if cos.IsEOF(err) {
		ep.chunks.ClaimFrom(pos)
		ep.setSize(pos)
		return nil
	}
	return err
}

func (ep *endpoint) setSize(size int64) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	attrs := ep.Attrs()
	if !attrs.HasSize() {
		attrs.Size = size
	}
}

// "bytes first-last/total" where total may be "*"
func parseContentRange(s string) (sp span, err error) {
	s, ok := strings.CutPrefix(s, "bytes ")
	if !ok {
		return sp, fmt.Errorf("invalid content range %q", s)
	}
	rng, total, ok := strings.Cut(s, "/")
	if !ok {
		return sp, fmt.Errorf("invalid content range %q", s)
	}
	first, last, ok := strings.Cut(rng, "-")
	if !ok {
		return sp, fmt.Errorf("invalid content range %q", s)
	}
	if sp.first, err = strconv.ParseInt(first, 10, 64); err != nil {
		return sp, err
	}
	if sp.last, err = strconv.ParseInt(last, 10, 64); err != nil {
		return sp, err
	}
	sp.total = -1
	if total != "*" {
		sp.total, err = strconv.ParseInt(total, 10, 64)
	}
	return sp, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

/////////////
// writing //
/////////////

// StartWriting uploads with a single PUT fed sequentially from the buffer
func (ep *endpoint) StartWriting(ctx context.Context, buf *dbuf.Buffer) error {
	if ep.wjob.Running() {
		return dstatus.New(dstatus.WriteStartError, "already writing")
	}
	pr, pw := io.Pipe()
	wctx, cancel := dpoint.WithBuffer(ctx, buf)
	req, err := http.NewRequestWithContext(wctx, http.MethodPut, ep.target(), pr)
	if err != nil {
		cancel()
		return dstatus.Wrap(dstatus.WriteStartError, err)
	}
	if size := ep.Attrs().Size; size >= 0 {
		req.ContentLength = size
	}
	drained := make(chan error, 1)
	go func() {
		_, err := dpoint.Drain(buf, pw)
		if err == nil && buf.HasError() {
			err = dbuf.ErrAborted // never complete the upload with partial content
		}
		pw.CloseWithError(err)
		drained <- err
	}()
	ep.wjob.Go(func() error {
		defer cancel()
		err := ep.put(req)
		if dpoint.Secondary(wctx, buf, err) {
			pr.CloseWithError(err)
			<-drained
			return nil
		}
		if err != nil {
			pr.CloseWithError(err)
			if !buf.HasError() {
				buf.SetErrWrite(err.Error()) // unblock the drain
			}
		}
		errd := <-drained
		if errors.Is(errd, dbuf.ErrAborted) {
			return nil // the reading side failed
		}
		if err == nil {
			err = errd
		}
		return dpoint.EndWrite(buf, err)
	})
	return nil
}

func (ep *endpoint) put(req *http.Request) error {
	resp, err := ep.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return nil
	}
	return statusErr(dstatus.WriteError, resp)
}

func (ep *endpoint) StopWriting() error { return dpoint.StopJob(&ep.wjob, dstatus.WriteStopError) }
