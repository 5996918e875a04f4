// Package mover moves data between two endpoints: resolution, caching,
// location mapping, buffered transfer with retries, and registration
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package mover_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/IATkachenko/arc-sub001/cmn"
	"github.com/IATkachenko/arc-sub001/cmn/cos"
	"github.com/IATkachenko/arc-sub001/cmn/kvdb"
	"github.com/IATkachenko/arc-sub001/dpoint"
	_ "github.com/IATkachenko/arc-sub001/dpoint/file"
	"github.com/IATkachenko/arc-sub001/dpoint/mock"
	"github.com/IATkachenko/arc-sub001/dstatus"
	"github.com/IATkachenko/arc-sub001/dtr"
	"github.com/IATkachenko/arc-sub001/fcache"
	"github.com/IATkachenko/arc-sub001/mover"
	"github.com/IATkachenko/arc-sub001/stats"
	"github.com/IATkachenko/arc-sub001/tools"
	"github.com/IATkachenko/arc-sub001/tools/tassert"
	"github.com/IATkachenko/arc-sub001/tools/trand"
	"github.com/IATkachenko/arc-sub001/urlmap"
)

func newEnv(t *testing.T) *dpoint.Env {
	config := cmn.DefaultConfig()
	config.Transfer.Retries = 1
	config.Transfer.BufSize = 16 * cos.KiB
	env := dpoint.NewEnv(config, nil)
	t.Cleanup(env.Close)
	return env
}

func newCache(t *testing.T, env *dpoint.Env) *fcache.Cache {
	conf := env.Config.Cache
	conf.Dirs = []string{t.TempDir()}
	conf.JobID = "job-" + trand.String(6)
	c, err := fcache.New(&conf)
	tassert.CheckFatal(t, err)
	t.Cleanup(func() { c.Release() })
	return c
}

func mustMock(t *testing.T, url string, env *dpoint.Env, store *mock.Store, conf mock.Config) *mock.Endpoint {
	ep, err := mock.New(url, env, store, conf)
	tassert.CheckFatal(t, err)
	return ep
}

func mustNew(t *testing.T, url string, env *dpoint.Env) dpoint.Endpoint {
	ep, err := dpoint.New(url, env)
	tassert.CheckFatal(t, err)
	return ep
}

// direct copy, no cache
func TestFileToFile(t *testing.T) {
	var (
		env  = newEnv(t)
		dir  = t.TempDir()
		tr   = stats.NewProm("test")
		m    = mover.New(env, mover.WithStats(tr))
		dstf = filepath.Join(dir, "out", "dst")
	)
	srcf, data, err := trand.File(dir, "src", 10*cos.MiB)
	tassert.CheckFatal(t, err)

	res, err := m.Transfer(context.Background(), mustNew(t, srcf, env), mustNew(t, dstf, env), nil, nil)
	tassert.CheckFatal(t, err)
	tassert.Errorf(t, res.Status == dstatus.Success, "status %s", res.Status)
	tassert.Errorf(t, res.Bytes == int64(len(data)), "bytes %d", res.Bytes)
	tassert.Errorf(t, res.Cksum != nil && res.Cksum.Type() == cos.ChecksumAdler32, "checksum %v", res.Cksum)
	tassert.Errorf(t, !res.Cached && res.Attempts == 1, "%+v", res)
	tools.CheckFileContent(t, dstf, data)

	tassert.Errorf(t, tr.Get(stats.XferSize) == int64(len(data)), "xfer size %d", tr.Get(stats.XferSize))
	tassert.Errorf(t, tr.Get(stats.XferActive) == 0, "active %d", tr.Get(stats.XferActive))
}

// cache hit: placed from the cache without touching the source data
func TestCacheHit(t *testing.T) {
	var (
		env     = newEnv(t)
		cache   = newCache(t, env)
		store   = mock.NewStore()
		url     = "mock://host/data/x"
		payload = trand.Bytes(cos.KiB)
		dstf    = filepath.Join(t.TempDir(), "dst")
		m       = mover.New(env)
	)
	available, locked, err := cache.Start(url, false)
	tassert.CheckFatal(t, err)
	tassert.Fatalf(t, !available && !locked, "fresh entry: available=%t locked=%t", available, locked)
	tassert.CheckFatal(t, os.WriteFile(cache.File(url), payload, 0o644))
	tassert.CheckFatal(t, cache.Stop(url))

	src := mustMock(t, url, env, store, mock.Config{Cacheable: true, ProvidesMeta: true})
	res, err := m.Transfer(context.Background(), src, mustNew(t, dstf, env), cache, nil)
	tassert.CheckFatal(t, err)
	tassert.Errorf(t, res.Status == dstatus.SuccessCached, "status %s", res.Status)
	tassert.Errorf(t, res.Cached && res.Linked, "%+v", res)
	tassert.Errorf(t, src.Calls.StartReading.Load() == 0, "source was read")
	tassert.Errorf(t, src.Calls.Check.Load() == 1, "expected one permission check, got %d", src.Calls.Check.Load())
	tools.CheckFileContent(t, dstf, payload)

	finfo, err := os.Lstat(dstf)
	tassert.CheckFatal(t, err)
	tassert.Errorf(t, finfo.Mode()&os.ModeSymlink != 0, "expected a symlink, got %v", finfo.Mode())
}

// cache miss: downloaded into the cache, then linked; the second run is a hit
func TestCacheMiss(t *testing.T) {
	var (
		env   = newEnv(t)
		cache = newCache(t, env)
		store = mock.NewStore()
		url   = "mock://host/data/y"
		data  = trand.Bytes(100*cos.KiB + 7)
		dir   = t.TempDir()
		m     = mover.New(env)
	)
	store.Put(url, data)
	src := mustMock(t, url, env, store, mock.Config{Cacheable: true, ProvidesMeta: true, Threads: 2})
	res, err := m.Transfer(context.Background(), src, mustNew(t, filepath.Join(dir, "one"), env), cache, nil)
	tassert.CheckFatal(t, err)
	tassert.Errorf(t, !res.Cached && res.Bytes == int64(len(data)), "%+v", res)
	tools.CheckFileContent(t, filepath.Join(dir, "one"), data)
	tools.CheckFileContent(t, cache.File(url), data)

	src = mustMock(t, url, env, store, mock.Config{Cacheable: true, ProvidesMeta: true})
	res, err = m.Transfer(context.Background(), src, mustNew(t, filepath.Join(dir, "two"), env), cache, nil)
	tassert.CheckFatal(t, err)
	tassert.Errorf(t, res.Cached, "expected a cache hit: %+v", res)
	tassert.Errorf(t, src.Calls.StartReading.Load() == 0, "source was read")
	tools.CheckFileContent(t, filepath.Join(dir, "two"), data)
}

func TestCacheLocked(t *testing.T) {
	var (
		env   = newEnv(t)
		cache = newCache(t, env)
		url   = "mock://host/data/z"
		m     = mover.New(env)
	)
	mock.Default.Put(url, trand.Bytes(cos.KiB))
	other, err := fcache.New(&cmn.CacheConf{Dirs: cache.Dirs(), JobID: "other"},
		fcache.WithIdentity(fcache.Identity{Pid: 1, Host: "elsewhere"}))
	tassert.CheckFatal(t, err)
	_, locked, err := other.Start(url, false)
	tassert.CheckFatal(t, err)
	tassert.Fatalf(t, !locked, "unexpected lock")

	d := dtr.New("job1", url, filepath.Join(t.TempDir(), "dst"), 1)
	d.Owner = dtr.StageDelivery
	res, err := m.RunDTR(context.Background(), d, cache, nil)
	tassert.Fatalf(t, dstatus.Is(err, dstatus.CacheErrorRetryable), "expected locked, got %v", err)
	tassert.Errorf(t, dstatus.IsRetryable(err), "locked must be retryable")
	tassert.Errorf(t, res.Status == dstatus.CacheErrorRetryable, "status %s", res.Status)
	tassert.Errorf(t, d.GetStatus() == dtr.StatusCacheWait, "DTR status %s", d.GetStatus())
	tassert.Errorf(t, d.Cache == dtr.CacheLocked, "cache state %s", d.Cache)
}

// parallel chunked reads reassemble into the same content
func TestParallelReassembly(t *testing.T) {
	var (
		env   = newEnv(t)
		store = mock.NewStore()
		data  = trand.Bytes(3*cos.MiB + 12345)
		m     = mover.New(env)
	)
	store.Put("mock://host/src", data)
	for _, tc := range []struct {
		dst      string
		threads  int
		seekable bool
	}{
		{"mock://host/single", 1, false},
		{"mock://host/parallel", 4, false},
		{"mock://host/parallel-seekable", 4, true},
	} {
		src := mustMock(t, "mock://host/src", env, store, mock.Config{Threads: tc.threads, ProvidesMeta: true})
		dst := mustMock(t, tc.dst, env, store, mock.Config{Seekable: tc.seekable})
		res, err := m.Transfer(context.Background(), src, dst, nil, nil)
		tassert.CheckFatal(t, err)
		tassert.Errorf(t, res.Bytes == int64(len(data)), "%s: bytes %d", tc.dst, res.Bytes)
		got, ok := store.Get(tc.dst)
		tassert.Fatalf(t, ok, "%s: not written", tc.dst)
		tassert.Errorf(t, bytes.Equal(got, data), "%s: content mismatch", tc.dst)
		if tc.threads > 1 {
			tassert.Errorf(t, src.Calls.Ranges.Load() > 1, "%s: expected multiple ranges", tc.dst)
		}
	}
}

// failed PostRegister: rolled back once, reported as PostRegisterError
func TestRegistrationRollback(t *testing.T) {
	var (
		env   = newEnv(t)
		store = mock.NewStore()
		tr    = stats.NewProm("test")
		m     = mover.New(env, mover.WithStats(tr))
	)
	store.Put("mock://host/src", trand.Bytes(64*cos.KiB))
	src := mustMock(t, "mock://host/src", env, store, mock.Config{ProvidesMeta: true})
	dst := mustMock(t, "mock://index/lfn", env, store, mock.Config{Indexed: true, Locations: []string{"mock://host/replica"}})
	dst.Faults.PostRegister = errors.New("catalog unavailable")

	res, err := m.Transfer(context.Background(), src, dst, nil, nil)
	tassert.Fatalf(t, dstatus.Is(err, dstatus.PostRegisterError), "expected PostRegisterError, got %v", err)
	tassert.Errorf(t, res.Status == dstatus.PostRegisterError, "status %s", res.Status)
	tassert.Errorf(t, dst.Calls.PreRegister.Load() == 1, "pre-register %d", dst.Calls.PreRegister.Load())
	tassert.Errorf(t, dst.Calls.PreUnregister.Load() == 1, "expected exactly one rollback, got %d", dst.Calls.PreUnregister.Load())
	tassert.Errorf(t, tr.Get(stats.RollbackCount) == 1, "rollback count %d", tr.Get(stats.RollbackCount))
}

func TestAlreadyRegistered(t *testing.T) {
	var (
		env   = newEnv(t)
		store = mock.NewStore()
	)
	store.Put("mock://host/src", trand.Bytes(cos.KiB))
	newDst := func() *mock.Endpoint {
		return mustMock(t, "mock://index/lfn", env, store,
			mock.Config{Indexed: true, Registered: true, Locations: []string{"mock://host/replica"}})
	}
	src := mustMock(t, "mock://host/src", env, store, mock.Config{})
	dst := newDst()
	_, err := mover.New(env).Transfer(context.Background(), src, dst, nil, nil)
	tassert.Fatalf(t, dstatus.Is(err, dstatus.PreRegisterError), "expected PreRegisterError, got %v", err)
	tassert.Errorf(t, dst.Calls.StartWriting.Load() == 0, "data moved")

	src = mustMock(t, "mock://host/src", env, store, mock.Config{})
	dst = newDst()
	_, err = mover.New(env, mover.WithForce(true)).Transfer(context.Background(), src, dst, nil, nil)
	tassert.CheckFatal(t, err)
	tassert.Errorf(t, dst.Registered(), "not registered")
}

func TestSelfReplication(t *testing.T) {
	var (
		env   = newEnv(t)
		store = mock.NewStore()
		locs  = []string{"mock://host/r1", "mock://host/r2"}
	)
	store.Put(locs[0], trand.Bytes(cos.KiB))
	store.Put(locs[1], trand.Bytes(cos.KiB))
	src := mustMock(t, "mock://index/lfn", env, store, mock.Config{Indexed: true, Registered: true, Locations: locs})
	dst := mustMock(t, "mock://index/lfn", env, store, mock.Config{Indexed: true, Registered: true, Locations: locs})

	_, err := mover.New(env).Transfer(context.Background(), src, dst, nil, nil)
	tassert.Fatalf(t, dstatus.Is(err, dstatus.WriteResolveError), "expected WriteResolveError, got %v", err)
	tassert.Errorf(t, src.Calls.StartReading.Load() == 0 && dst.Calls.StartWriting.Load() == 0, "data moved")
	tassert.Errorf(t, dst.Calls.PreRegister.Load() == 0, "registration started")
}

func TestReplication(t *testing.T) {
	var (
		env   = newEnv(t)
		store = mock.NewStore()
		data  = trand.Bytes(10 * cos.KiB)
	)
	store.Put("mock://host/r1", data)
	src := mustMock(t, "mock://index/lfn", env, store, mock.Config{Indexed: true, Registered: true, Locations: []string{"mock://host/r1"}})
	dst := mustMock(t, "mock://index/lfn", env, store,
		mock.Config{Indexed: true, Registered: true, Locations: []string{"mock://host/r1", "mock://host/r2"}})

	_, err := mover.New(env).Transfer(context.Background(), src, dst, nil, nil)
	tassert.CheckFatal(t, err)
	got, ok := store.Get("mock://host/r2")
	tassert.Fatalf(t, ok && bytes.Equal(got, data), "replica not written")
}

// the first replica is missing: the second one is used
func TestNextLocation(t *testing.T) {
	var (
		env   = newEnv(t)
		store = mock.NewStore()
		data  = trand.Bytes(20 * cos.KiB)
		tr    = stats.NewProm("test")
	)
	store.Put("mock://host/r2", data)
	src := mustMock(t, "mock://index/lfn", env, store,
		mock.Config{Indexed: true, Locations: []string{"mock://host/r1", "mock://host/r2"}})
	dst := mustMock(t, "mock://host/dst", env, store, mock.Config{})

	res, err := mover.New(env, mover.WithStats(tr)).Transfer(context.Background(), src, dst, nil, nil)
	tassert.CheckFatal(t, err)
	tassert.Errorf(t, res.Attempts == 2, "attempts %d", res.Attempts)
	tassert.Errorf(t, src.Calls.StartReading.Load() == 2, "start reading %d", src.Calls.StartReading.Load())
	got, _ := store.Get("mock://host/dst")
	tassert.Errorf(t, bytes.Equal(got, data), "content mismatch")
}

// the first replica hangs: inactivity times out the read and the second replica is used
func TestStalledReplica(t *testing.T) {
	var (
		env   = newEnv(t)
		store = mock.NewStore()
		data  = trand.Bytes(64 * cos.KiB)
	)
	env.Config.Speed.MaxInactivity = cos.Duration(300 * time.Millisecond)
	store.Put("mock://host/r1", data)
	store.Put("mock://host/r2", data)
	src := mustMock(t, "mock://index/stalled", env, store,
		mock.Config{Indexed: true, Threads: 2, Locations: []string{"mock://host/r1", "mock://host/r2"}})
	src.Faults.StallAfter = 20 * cos.KiB
	src.Faults.StallOn = "mock://host/r1"
	dst := mustMock(t, "mock://host/dst-stalled", env, store, mock.Config{})

	started := time.Now()
	res, err := mover.New(env).Transfer(context.Background(), src, dst, nil, nil)
	tassert.CheckFatal(t, err)
	tassert.Errorf(t, res.Attempts == 2, "attempts %d", res.Attempts)
	tassert.Errorf(t, src.Calls.StopReading.Load() == 2, "stop reading %d", src.Calls.StopReading.Load())
	tassert.Errorf(t, time.Since(started) < 10*time.Second, "took %v", time.Since(started))
	got, _ := store.Get("mock://host/dst-stalled")
	tassert.Errorf(t, bytes.Equal(got, data), "content mismatch")
}

func TestChecksumMismatch(t *testing.T) {
	var (
		env   = newEnv(t)
		store = mock.NewStore()
	)
	store.Put("mock://host/src", trand.Bytes(32*cos.KiB))
	src := mustMock(t, "mock://host/src", env, store, mock.Config{})
	src.Attrs().Cksum = cos.NewCksum(cos.ChecksumAdler32, "00000001")
	dst := mustMock(t, "mock://host/dst", env, store, mock.Config{})

	_, err := mover.New(env, mover.WithVerify(true)).Transfer(context.Background(), src, dst, nil, nil)
	tassert.Fatalf(t, dstatus.Is(err, dstatus.TransferError), "expected TransferError, got %v", err)
	tassert.Errorf(t, errors.Is(err, &cos.ErrBadCksum{}), "expected a bad checksum, got %v", err)
}

func TestReadFailure(t *testing.T) {
	var (
		env   = newEnv(t)
		store = mock.NewStore()
	)
	store.Put("mock://host/src", trand.Bytes(256*cos.KiB))
	src := mustMock(t, "mock://host/src", env, store, mock.Config{Threads: 2})
	src.Faults.ReadAfter = 100 * cos.KiB
	dst := mustMock(t, "mock://host/dst", env, store, mock.Config{})

	_, err := mover.New(env, mover.WithRetries(2)).Transfer(context.Background(), src, dst, nil, nil)
	tassert.Fatalf(t, dstatus.Is(err, dstatus.ReadError), "expected ReadError, got %v", err)
	tassert.Errorf(t, src.Calls.StartReading.Load() == 2, "expected 2 attempts, got %d", src.Calls.StartReading.Load())
	_, ok := store.Get("mock://host/dst")
	tassert.Errorf(t, !ok, "partial data flushed")
}

func TestMapped(t *testing.T) {
	var (
		env   = newEnv(t)
		dir   = t.TempDir()
		store = mock.NewStore()
		dstf  = filepath.Join(dir, "dst")
	)
	local, data, err := trand.File(dir, "local", 4*cos.KiB)
	tassert.CheckFatal(t, err)
	mapper, err := urlmap.New([]cmn.URLMapRule{{Prefix: "mock://host/", Replacement: dir + "/", Access: true}})
	tassert.CheckFatal(t, err)

	src := mustMock(t, "mock://host/local", env, store, mock.Config{})
	res, err := mover.New(env).Transfer(context.Background(), src, mustNew(t, dstf, env), nil, mapper)
	tassert.CheckFatal(t, err)
	tassert.Errorf(t, res.Mapped && res.Linked, "%+v", res)
	tassert.Errorf(t, src.Calls.Check.Load() == 1 && src.Calls.StartReading.Load() == 0, "check=%d read=%d",
		src.Calls.Check.Load(), src.Calls.StartReading.Load())
	target, err := os.Readlink(dstf)
	tassert.CheckFatal(t, err)
	tassert.Errorf(t, target == local, "link to %q", target)
	tools.CheckFileContent(t, dstf, data)
}

func TestDelete(t *testing.T) {
	var (
		env   = newEnv(t)
		store = mock.NewStore()
		locs  = []string{"mock://host/r1", "mock://host/r2"}
		m     = mover.New(env)
		ctx   = context.Background()
	)
	store.Put(locs[0], []byte("one"))
	ep := mustMock(t, "mock://index/lfn", env, store, mock.Config{Indexed: true, Registered: true, Locations: locs})
	tassert.CheckFatal(t, m.Delete(ctx, ep, false))
	tassert.Errorf(t, ep.Calls.Remove.Load() == 2, "remove %d", ep.Calls.Remove.Load())
	tassert.Errorf(t, ep.Calls.Unregister.Load() == 2, "unregister %d", ep.Calls.Unregister.Load())
	_, ok := store.Get(locs[0])
	tassert.Errorf(t, !ok, "replica not removed")

	ep = mustMock(t, "mock://host/gone", env, store, mock.Config{})
	err := m.Delete(ctx, ep, true)
	tassert.Errorf(t, dstatus.Is(err, dstatus.DeleteError), "expected DeleteError, got %v", err)
}

func TestAsyncAndDTR(t *testing.T) {
	var (
		env   = newEnv(t)
		dir   = t.TempDir()
		hist  = dtr.NewStore(kvdb.NewDBMock())
		m     = mover.New(env, mover.WithHistory(hist))
		ctx   = context.Background()
		dstf  = filepath.Join(dir, "dst")
		dstf2 = filepath.Join(dir, "dst2")
	)
	srcf, data, err := trand.File(dir, "src", 300*cos.KiB)
	tassert.CheckFatal(t, err)

	f := m.TransferAsync(ctx, mustNew(t, srcf, env), mustNew(t, dstf, env), nil, nil)
	select {
	case <-f.Done():
	case <-time.After(30 * time.Second):
		t.Fatal("async transfer did not complete")
	}
	_, err = f.Wait()
	tassert.CheckFatal(t, err)
	tools.CheckFileContent(t, dstf, data)

	d := dtr.New("job1", srcf, dstf2, 1)
	_, err = m.RunDTR(ctx, d, nil, nil)
	tassert.Errorf(t, errors.Is(err, dtr.ErrNotOwner), "expected not-owner, got %v", err)

	bus := dtr.NewBus(1)
	defer bus.Close()
	tassert.CheckFatal(t, bus.Push(ctx, d, dtr.StageGenerator, dtr.StageDelivery))
	d, err = bus.Receive(ctx, dtr.StageDelivery)
	tassert.CheckFatal(t, err)
	_, err = m.RunDTR(ctx, d, nil, nil)
	tassert.CheckFatal(t, err)
	tassert.Errorf(t, d.GetStatus() == dtr.StatusDone, "status %s", d.GetStatus())
	tassert.Errorf(t, d.Bytes == int64(len(data)), "bytes %d", d.Bytes)
	tools.CheckFileContent(t, dstf2, data)

	saved, err := hist.List("job1")
	tassert.CheckFatal(t, err)
	tassert.Fatalf(t, len(saved) == 1, "saved %d", len(saved))
	tassert.Errorf(t, saved[0].Status == dtr.StatusDone, "saved status %s", saved[0].Status)
}

func TestStagingPhases(t *testing.T) {
	var (
		env  = newEnv(t)
		m    = mover.New(env)
		url  = "mock://host/data/staged"
		dest = "mock://host/data/staged-copy"
		ctx  = context.Background()
	)
	mock.Default.Put(url, trand.Bytes(8*cos.KiB))
	bus := dtr.NewBus(1)
	defer bus.Close()
	d := dtr.New("job1", url, dest, 1)
	tassert.CheckFatal(t, bus.Push(ctx, d, dtr.StageGenerator, dtr.StageDelivery))
	d, err := bus.Receive(ctx, dtr.StageDelivery)
	tassert.CheckFatal(t, err)
	_, err = m.RunDTR(ctx, d, nil, nil)
	tassert.CheckFatal(t, err)

	pos := make(map[dtr.Status]int, len(d.History))
	for i, tr := range d.History {
		pos[tr.Status] = i
	}
	order := []dtr.Status{
		dtr.StatusStagePrepare, dtr.StatusStagingPreparing, dtr.StatusStagedPrepared,
		dtr.StatusTransfer, dtr.StatusTransferring, dtr.StatusTransferred,
		dtr.StatusReleaseRequest, dtr.StatusReleasingRequest, dtr.StatusRequestReleased,
		dtr.StatusDone,
	}
	for i, s := range order {
		p, ok := pos[s]
		tassert.Fatalf(t, ok, "%s missing from history", s)
		if i > 0 {
			tassert.Errorf(t, p > pos[order[i-1]], "%s before %s", s, order[i-1])
		}
	}

	// a source that cannot be staged: no data is read, the request is not left behind
	store := mock.NewStore()
	store.Put("mock://host/src", trand.Bytes(cos.KiB))
	src := mustMock(t, "mock://host/src", env, store, mock.Config{})
	src.Faults.Prepare = errors.New("tape offline")
	dst := mustMock(t, "mock://host/dst", env, store, mock.Config{})
	_, err = m.Transfer(ctx, src, dst, nil, nil)
	tassert.Fatalf(t, dstatus.Is(err, dstatus.ReadPrepareError), "expected ReadPrepareError, got %v", err)
	tassert.Errorf(t, src.Calls.StartReading.Load() == 0, "source was read")
	tassert.Errorf(t, dst.Calls.Prepare.Load() == 0, "destination prepared after the source failed")
	_, ok := store.Get("mock://host/dst")
	tassert.Errorf(t, !ok, "destination written")
}

func TestCancel(t *testing.T) {
	var (
		env   = newEnv(t)
		store = mock.NewStore()
	)
	store.Put("mock://host/src", trand.Bytes(cos.KiB))
	src := mustMock(t, "mock://host/src", env, store, mock.Config{})
	dst := mustMock(t, "mock://host/dst", env, store, mock.Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := mover.New(env).Transfer(ctx, src, dst, nil, nil)
	tassert.Errorf(t, errors.Is(err, context.Canceled), "expected canceled, got %v", err)
	tassert.Errorf(t, res.Status == dstatus.SuccessCancelled, "status %s", res.Status)
}
