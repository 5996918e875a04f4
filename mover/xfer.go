// Package mover moves data between two endpoints: resolution, caching,
// location mapping, buffered transfer with retries, and registration
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package mover

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/IATkachenko/arc-sub001/cmn"
	"github.com/IATkachenko/arc-sub001/cmn/cos"
	"github.com/IATkachenko/arc-sub001/cmn/mono"
	"github.com/IATkachenko/arc-sub001/cmn/nlog"
	"github.com/IATkachenko/arc-sub001/dbuf"
	"github.com/IATkachenko/arc-sub001/dpoint"
	"github.com/IATkachenko/arc-sub001/dpoint/file"
	"github.com/IATkachenko/arc-sub001/dstatus"
	"github.com/IATkachenko/arc-sub001/dtr"
	"github.com/IATkachenko/arc-sub001/durl"
	"github.com/IATkachenko/arc-sub001/fcache"
	"github.com/IATkachenko/arc-sub001/stats"
	"github.com/IATkachenko/arc-sub001/urlmap"
)

const (
	minBufSize = 4 * cos.KiB
	minBufNum  = 2
)

// attempt outcomes
const (
	attemptDone = iota
	attemptRetry
	attemptFail
)

// xfer is the state of a single Transfer call
type xfer struct {
	m           *Mover
	src, dst    dpoint.Endpoint
	cache       *fcache.Cache
	mapper      *urlmap.Map
	d           *dtr.DTR // optional; follows the phases
	res         Result
	cacheURL    string
	locked      bool // cache entry lock held
	replication bool
}

func (x *xfer) phase(s dtr.Status) {
	if x.d == nil {
		return
	}
	if err := x.d.SetStatus(s); err != nil {
		nlog.Errorln(err)
	}
}

func (x *xfer) cacheState(c dtr.CacheState) {
	if x.d != nil {
		x.d.SetCache(c)
	}
}

func (x *xfer) run(ctx context.Context) (*Result, error) {
	var (
		m       = x.m
		started = mono.NanoTime()
	)
	m.stats.Inc(stats.XferActive)
	err := x.do(ctx)
	m.stats.Dec(stats.XferActive)
	m.stats.Observe(stats.XferLatency, mono.Since(started))
	if x.res.Bytes > 0 {
		m.stats.Add(stats.XferSize, x.res.Bytes)
	}

	label := resOK
	switch {
	case err == nil && x.res.Cached:
		x.res.Status, label = dstatus.SuccessCached, resCached
	case err == nil && x.res.Mapped:
		x.res.Status, label = dstatus.Success, resMapped
	case err == nil:
		x.res.Status = dstatus.Success
	case ctx.Err() != nil:
		x.res.Status, label = dstatus.SuccessCancelled, resCancelled
	case dstatus.Is(err, dstatus.CacheErrorRetryable):
		x.res.Status, label = dstatus.CacheErrorRetryable, resLocked
	default:
		x.res.Status, label = dstatus.CodeOf(err), resError
	}
	m.stats.IncWith(stats.XferCount, label)
	if err != nil {
		nlog.Errorln("transfer", x.src.String(), "=>", x.dst.String(), "failed:", err)
	} else if nlog.V(nlog.LevelVerbose) {
		nlog.Infoln("transfer", x.src.String(), "=>", x.dst.String(), label, cos.ToSizeIEC(x.res.Bytes, 1))
	}
	return &x.res, err
}

func (x *xfer) do(ctx context.Context) error {
	if x.m.retries > 0 {
		x.src.SetRetries(x.m.retries)
		x.dst.SetRetries(x.m.retries)
	}

	x.phase(dtr.StatusResolve)
	x.phase(dtr.StatusResolving)
	if err := resolve(ctx, x.src, true); err != nil {
		return err
	}
	if err := resolve(ctx, x.dst, false); err != nil {
		return err
	}
	x.phase(dtr.StatusResolved)

	// replication: never onto the source's own replicas
	if x.src.Kind() == dpoint.Indexed && x.dst.Kind() == dpoint.Indexed &&
		x.src.URL().CanonicalString() == x.dst.URL().CanonicalString() {
		x.replication = true
		if err := x.dst.RemoveLocations(x.src); err != nil {
			return err
		}
		if !x.dst.HaveLocations() {
			return dstatus.Newf(dstatus.WriteResolveError, "%s: no locations left to replicate to", x.dst)
		}
	}

	if !x.replication && x.dst.URL().BoolOption(durl.OptOverwrite) {
		if err := x.preClean(ctx); err != nil {
			return err
		}
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		x.res.Attempts = attempt
		x.phase(dtr.StatusCheckCache)
		res, err := x.attempt(ctx)
		switch res {
		case attemptDone:
			return nil
		case attemptFail:
			return err
		}
		if !x.src.LocationValid() || !x.dst.LocationValid() {
			return err
		}
		nlog.Warningf("%s => %s: attempt %d failed, retrying: %v", x.src, x.dst, attempt, err)
	}
}

// resolve with the endpoint's retry budget, while the error says retrying may help
func resolve(ctx context.Context, ep dpoint.Endpoint, source bool) error {
	var err error
	for i := 0; i < max(ep.Retries(), 1); i++ {
		if err = ep.Resolve(ctx, source); err == nil || !dstatus.IsRetryable(err) {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}
	if !ep.HaveLocations() {
		code := dstatus.WriteResolveError
		if source {
			code = dstatus.ReadResolveError
		}
		return dstatus.Newf(code, "%s: no locations", ep)
	}
	return nil
}

// delete the existing destination, then resolve it again
func (x *xfer) preClean(ctx context.Context) error {
	x.phase(dtr.StatusPreClean)
	x.phase(dtr.StatusPreCleaning)
	del, err := dpoint.NewFromURL(x.dst.URL(), x.m.env)
	if err != nil {
		return dstatus.Wrap(dstatus.WritePrepareError, err)
	}
	if err := x.m.Delete(ctx, del, false); err != nil {
		return err
	}
	x.phase(dtr.StatusPreCleaned)
	x.phase(dtr.StatusResolve)
	x.phase(dtr.StatusResolving)
	if err := resolve(ctx, x.dst, false); err != nil {
		return err
	}
	x.phase(dtr.StatusResolved)
	return nil
}

// one pass: cache, mapping, or a buffered transfer, followed by registration
func (x *xfer) attempt(ctx context.Context) (int, error) {
	x.phase(dtr.StatusCheckingCache)
	dest := localPath(x.dst)
	cacheable := x.cache != nil && dest != "" && x.src.Cacheable() && x.dst.Local()
	if cacheable {
		x.cacheURL = x.src.URL().CanonicalString()
		res, err := x.startCache(ctx, dest)
		if res != attemptRetry {
			return res, err
		}
		// lock owned: download into the cache
		x.cacheState(dtr.CacheCacheable)
	} else {
		x.cacheState(dtr.CacheNonCacheable)
	}
	x.phase(dtr.StatusCacheChecked)

	if dest != "" && x.mapper.Len() > 0 {
		if mapped, ok := x.mapper.Map(x.src.CurrentLocation()); ok && mapped.IsLocal() {
			x.dropCache()
			return x.placeMapped(ctx, mapped, dest)
		}
	}

	if err := x.dst.PreRegister(ctx, x.replication, x.m.force); err != nil {
		x.dropCache()
		return attemptFail, err
	}
	if res, err := x.stagePrepare(ctx); res != attemptDone {
		x.dropCache()
		x.rollback(ctx)
		return res, err
	}
	x.phase(dtr.StatusTransfer)
	x.phase(dtr.StatusTransferring)
	if res, err := x.transfer(ctx); res != attemptDone {
		x.finish(ctx)
		x.dropCache()
		return res, err
	}
	x.phase(dtr.StatusTransferred)
	x.phase(dtr.StatusReleaseRequest)
	x.phase(dtr.StatusReleasingRequest)
	x.finish(ctx)
	x.phase(dtr.StatusRequestReleased)

	if cacheable {
		x.phase(dtr.StatusProcessCache)
		x.phase(dtr.StatusProcessingCache)
		if err := x.fromCache(dest); err != nil {
			x.dropCache()
			x.rollback(ctx)
			return attemptFail, dstatus.Wrap(dstatus.CacheError, err)
		}
		if err := x.cache.Stop(x.cacheURL); err != nil {
			nlog.Errorln("failed to release cache entry", x.cacheURL+":", err)
		}
		x.locked = false
		x.cacheState(dtr.CacheDownloaded)
		x.m.stats.Inc(stats.CacheMissCount)
		x.phase(dtr.StatusCacheProcessed)
	}
	return x.register(ctx)
}

///////////
// stage //
///////////

// stagePrepare brings staged data online on either side; direct endpoints
// pass straight through
func (x *xfer) stagePrepare(ctx context.Context) (int, error) {
	x.phase(dtr.StatusStagePrepare)
	x.phase(dtr.StatusStagingPreparing)
	if p, ok := x.src.(dpoint.Preparer); ok {
		if err := p.PrepareReading(ctx); err != nil {
			return x.next(true, false, dstatus.Wrap(dstatus.ReadPrepareError, err))
		}
	}
	if p, ok := x.dst.(dpoint.Preparer); ok {
		if err := p.PrepareWriting(ctx); err != nil {
			if p, ok := x.src.(dpoint.Preparer); ok {
				if errf := p.FinishReading(ctx); errf != nil {
					nlog.Warningln("nested:", errf)
				}
			}
			return x.next(false, true, dstatus.Wrap(dstatus.WritePrepareError, err))
		}
	}
	x.phase(dtr.StatusStagedPrepared)
	return attemptDone, nil
}

// finish releases the staging requests; a failed release does not fail the transfer
func (x *xfer) finish(ctx context.Context) {
	if p, ok := x.src.(dpoint.Preparer); ok {
		if err := p.FinishReading(ctx); err != nil {
			nlog.Warningln(x.src.String(), "release:", err)
		}
	}
	if p, ok := x.dst.(dpoint.Preparer); ok {
		if err := p.FinishWriting(ctx); err != nil {
			nlog.Warningln(x.dst.String(), "release:", err)
		}
	}
}

func localPath(ep dpoint.Endpoint) string {
	if loc := ep.CurrentLocation(); loc != nil && loc.IsLocal() {
		return loc.Path
	}
	return ""
}

///////////
// cache //
///////////

// startCache returns attemptRetry when the caller now owns the (empty) entry
func (x *xfer) startCache(ctx context.Context, dest string) (int, error) {
	renew := x.src.URL().Option(durl.OptCache) == durl.CacheRenew
	for try := 0; ; try++ {
		available, locked, err := x.cache.Start(x.cacheURL, renew)
		if err != nil {
			return attemptFail, dstatus.Wrap(dstatus.CacheError, err)
		}
		if locked {
			x.phase(dtr.StatusCacheWait)
			x.cacheState(dtr.CacheLocked)
			x.m.stats.Inc(stats.CacheLockCount)
			return attemptFail, dstatus.Newf(dstatus.CacheErrorRetryable, "%s: locked by another process", x.cacheURL)
		}
		if !available {
			x.locked = true
			return attemptRetry, nil
		}
		current, err := x.checkCached(ctx)
		if err != nil {
			return attemptFail, err
		}
		if !current {
			nlog.Infoln("cached", x.cacheURL, "is outdated, downloading again")
			renew = true
			continue
		}
		if err := x.dst.PreRegister(ctx, x.replication, x.m.force); err != nil {
			return attemptFail, err
		}
		err = x.fromCache(dest)
		if errors.Is(err, fcache.ErrTryAgain) && try == 0 {
			// removed in between
			x.rollback(ctx)
			continue
		}
		if err != nil {
			x.rollback(ctx)
			return attemptFail, dstatus.Wrap(dstatus.CacheError, err)
		}
		x.res.Cached = true
		x.cacheState(dtr.CacheCached)
		x.m.stats.Inc(stats.CacheHitCount)
		x.phase(dtr.StatusCacheChecked)
		x.phase(dtr.StatusProcessCache)
		x.phase(dtr.StatusProcessingCache)
		x.phase(dtr.StatusCacheProcessed)
		return x.register(ctx)
	}
}

// checkCached verifies access (cached DN or a live check) and freshness
func (x *xfer) checkCached(ctx context.Context) (bool, error) {
	var (
		dn     string
		expiry time.Time
		now    = time.Now()
	)
	if x.m.env.Cred != nil {
		var err error
		if dn, expiry, err = x.m.env.Cred.Identity(); err != nil {
			return false, err
		}
	}
	if dn == "" || !x.cache.CheckDN(x.cacheURL, dn) {
		if err := x.src.Check(ctx); err != nil {
			return false, err
		}
		if dn != "" {
			until := now.Add(x.m.config.Cache.DNLifetime.D())
			if !expiry.IsZero() && expiry.Before(until) {
				until = expiry
			}
			if err := x.cache.AddDN(x.cacheURL, dn, until); err != nil {
				nlog.Warningln("failed to cache DN for", x.cacheURL+":", err)
			}
		}
	} else if nlog.V(nlog.LevelDebug) {
		nlog.Infoln(dn, "is cached for", x.cacheURL)
	}

	// explicit validity overrides creation time
	if valid, ok := x.cache.Valid(x.cacheURL); ok {
		return valid.After(now), nil
	}
	created, ok := x.cache.Created(x.cacheURL)
	if !ok {
		return true, nil
	}
	attrs := x.src.Attrs()
	if !attrs.HasCreated() && x.src.ProvidesMeta() {
		if _, err := x.src.Stat(ctx); err != nil && nlog.V(nlog.LevelDebug) {
			nlog.Infoln("stat", x.src.String(), err)
		}
	}
	if attrs.HasCreated() && attrs.Created.After(created) {
		return false, nil
	}
	return true, nil
}

func (x *xfer) fromCache(dest string) error {
	var (
		u    = x.src.URL()
		exec = u.BoolOption(durl.OptExec)
	)
	if exec || u.Option(durl.OptCache) == durl.CacheCopy {
		return x.cache.Copy(dest, x.cacheURL, exec)
	}
	if err := x.cache.Link(dest, x.cacheURL); err != nil {
		return err
	}
	x.res.Linked = !x.cache.CopyThrough()
	return nil
}

// dropCache gives up an owned entry, with whatever partial data it has
func (x *xfer) dropCache() {
	if !x.locked {
		return
	}
	if err := x.cache.StopAndDelete(x.cacheURL); err != nil {
		nlog.Errorln("failed to release cache entry", x.cacheURL+":", err)
	}
	x.locked = false
}

/////////////
// mapping //
/////////////

func (x *xfer) placeMapped(ctx context.Context, mapped *durl.URL, dest string) (int, error) {
	// mapping bypasses the protocol's access control
	if err := x.src.Check(ctx); err != nil {
		if x.src.NextLocation() {
			return attemptRetry, err
		}
		return attemptFail, err
	}
	if err := x.dst.PreRegister(ctx, x.replication, x.m.force); err != nil {
		return attemptFail, err
	}
	x.phase(dtr.StatusTransfer)
	x.phase(dtr.StatusTransferring)
	u := x.src.URL()
	copyFile := u.Option(durl.OptCache) == durl.CacheCopy || u.BoolOption(durl.OptExec)
	if err := linkFile(mapped.Path, dest, copyFile, u.BoolOption(durl.OptExec)); err != nil {
		x.rollback(ctx)
		err = dstatus.Wrap(dstatus.WriteError, err)
		if x.dst.NextLocation() {
			return attemptRetry, err
		}
		return attemptFail, err
	}
	nlog.Infoln("mapped", x.src.CurrentLocation().String(), "=>", mapped.Path)
	x.res.Mapped, x.res.Linked = true, !copyFile
	x.m.stats.Inc(stats.MappedCount)
	x.phase(dtr.StatusTransferred)
	return x.register(ctx)
}

func linkFile(from, dest string, copyFile, exec bool) error {
	if err := cos.CreateDir(filepath.Dir(dest)); err != nil {
		return err
	}
	if err := cos.RemoveFile(dest); err != nil {
		return err
	}
	if !copyFile {
		return os.Symlink(from, dest)
	}
	perm := cos.PermRWRR
	if exec {
		perm = cos.PermRX
	}
	_, _, err := cos.CopyFile(from, dest, perm, cos.ChecksumNone)
	return err
}

//////////////
// transfer //
//////////////

// the writer is the destination itself, or the cache file when downloading into the cache
func (x *xfer) writer() (dpoint.Endpoint, error) {
	if !x.locked {
		return x.dst, nil
	}
	u, err := durl.Parse(x.cache.File(x.cacheURL))
	if err != nil {
		return nil, err
	}
	return file.New(u, x.m.env)
}

func (x *xfer) transfer(ctx context.Context) (int, error) {
	w, err := x.writer()
	if err != nil {
		x.rollback(ctx)
		return attemptFail, dstatus.Wrap(dstatus.CacheError, err)
	}
	w.SetMeta(x.src)

	ty := x.cksumType()
	opts := []dbuf.Option{
		dbuf.WithSeekable(w.Seekable()),
		dbuf.WithSpeed(speedConf(&x.m.config.Speed)),
		dbuf.WithMMSA(x.m.env.MMSA),
	}
	if ty != "" {
		opts = append(opts, dbuf.WithCksum(ty))
	}
	if x.m.progress != nil {
		opts = append(opts, dbuf.WithProgress(x.m.progress))
	}
	buf, err := dbuf.New(max(x.src.BufSize(), x.dst.BufSize(), minBufSize), max(x.src.BufNum(), x.dst.BufNum(), minBufNum), opts...)
	if err != nil {
		x.rollback(ctx)
		return attemptFail, dstatus.Wrap(dstatus.SystemError, err)
	}
	defer buf.Release()

	if err := w.StartWriting(ctx, buf); err != nil {
		x.rollback(ctx)
		return x.next(false, true, err)
	}
	if err := x.src.StartReading(ctx, buf); err != nil {
		buf.Abort()
		if errw := w.StopWriting(); errw != nil && nlog.V(nlog.LevelDebug) {
			nlog.Infoln("nested:", errw)
		}
		x.rollback(ctx)
		return x.next(true, false, err)
	}
	errb := buf.Wait(ctx)
	errr := x.src.StopReading()
	errw := w.StopWriting()
	x.res.Bytes = buf.Bytes()

	if ctx.Err() != nil {
		x.rollback(ctx)
		return attemptFail, ctx.Err()
	}
	if errb != nil || errr != nil || errw != nil {
		x.rollback(ctx)
		return x.failed(buf, errb, errr, errw)
	}

	// verify
	attrs := x.src.Attrs()
	if attrs.HasSize() && attrs.Size != x.res.Bytes {
		x.rollback(ctx)
		return x.next(true, false, dstatus.Newf(dstatus.ReadError, "%s: size mismatch: expected %d, got %d",
			x.src, attrs.Size, x.res.Bytes))
	}
	if cksum := buf.Cksum(); cksum != nil {
		if attrs.HasCksum() && attrs.Cksum.Type() == cksum.Type() && !attrs.Cksum.Equal(cksum) {
			x.rollback(ctx)
			return x.next(true, false, dstatus.Wrap(dstatus.TransferError, cos.NewErrBadCksum(attrs.Cksum, cksum, x.src.String())))
		}
		x.res.Cksum = cksum
		x.dst.Attrs().Cksum = cksum.Clone()
	} else if attrs.HasCksum() {
		x.res.Cksum = attrs.Cksum.Clone()
	}
	x.dst.SetMeta(x.src)
	x.dst.Attrs().Size = x.res.Bytes
	return attemptDone, nil
}

// desired algorithm: destination option, source option, config; "no" disables.
// Not computed when the source already has it, unless verifying
func (x *xfer) cksumType() string {
	ty := x.dst.URL().Option(durl.OptChecksum)
	if ty == "" {
		ty = x.src.URL().Option(durl.OptChecksum)
	}
	if ty == "" {
		ty = x.m.config.Transfer.Checksum
	}
	if ty == "" || ty == "no" || ty == cos.ChecksumNone {
		return ""
	}
	if attrs := x.src.Attrs(); attrs.HasCksum() && attrs.Cksum.Type() == ty && !x.m.verify {
		return ""
	}
	return ty
}

func speedConf(c *cmn.SpeedConf) dbuf.SpeedConf {
	return dbuf.SpeedConf{
		MinSpeed:      int64(c.MinSpeed),
		MinSpeedTime:  c.MinSpeedTime.D(),
		MinAvgSpeed:   int64(c.MinAvgSpeed),
		MaxInactivity: c.MaxInactivity.D(),
		Progress:      c.Progress.D(),
	}
}

// failed blames a side (random for an ambiguous timeout) and moves it to its next location
func (x *xfer) failed(buf *dbuf.Buffer, errb, errr, errw error) (int, error) {
	var (
		readSide  = errr != nil
		writeSide = errw != nil
		berr      *dbuf.Error
		code      = dstatus.TransferError
	)
	if errors.As(errb, &berr) {
		switch {
		case berr.Timeout:
			// the other side's errors are the cancellation that followed
			side := buf.TimeoutSide()
			readSide = side == dbuf.SideRead
			writeSide = side == dbuf.SideWrite
		default:
			readSide = readSide || berr.Read
			writeSide = writeSide || berr.Write
		}
		if !berr.Timeout {
			code = dstatus.ReadError
			if writeSide && !readSide {
				code = dstatus.WriteError
			}
		}
	} else if readSide != writeSide {
		code = dstatus.ReadError
		if writeSide {
			code = dstatus.WriteError
		}
	}
	var err error
	switch {
	case errb != nil:
		err = dstatus.Wrap(code, errors.Join(errb, errr, errw))
	default:
		err = errors.Join(errr, errw)
	}
	return x.next(readSide, writeSide, err)
}

// next moves the side(s) to blame to their next location
func (x *xfer) next(readSide, writeSide bool, err error) (int, error) {
	res := attemptRetry
	if readSide {
		x.m.stats.IncWith(stats.RetryCount, "read")
		if !x.src.NextLocation() {
			res = attemptFail
		}
	}
	if writeSide {
		x.m.stats.IncWith(stats.RetryCount, "write")
		if !x.dst.NextLocation() {
			res = attemptFail
		}
	}
	if !readSide && !writeSide {
		res = attemptFail
	}
	return res, err
}

//////////////////
// registration //
//////////////////

func (x *xfer) register(ctx context.Context) (int, error) {
	x.phase(dtr.StatusRegisterReplica)
	x.phase(dtr.StatusRegisteringReplica)
	if err := x.dst.PostRegister(ctx, x.replication); err != nil {
		x.rollback(ctx)
		err = dstatus.Wrap(dstatus.PostRegisterError, err)
		if x.dst.NextLocation() {
			return attemptRetry, err
		}
		return attemptFail, err
	}
	x.phase(dtr.StatusReplicaRegistered)
	return attemptDone, nil
}

// rollback undoes PreRegister; its own failure never masks the original error
func (x *xfer) rollback(ctx context.Context) {
	x.m.stats.Inc(stats.RollbackCount)
	if err := x.dst.PreUnregister(ctx, x.replication); err != nil {
		nlog.Errorln("failed to roll back registration of", x.dst.String()+":", err)
	}
}
