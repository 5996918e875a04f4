// Package mover moves data between two endpoints: resolution, caching,
// location mapping, buffered transfer with retries, and registration
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package mover_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/IATkachenko/arc-sub001/cmn"
	"github.com/IATkachenko/arc-sub001/cmn/cos"
	"github.com/IATkachenko/arc-sub001/cmn/kvdb"
	"github.com/IATkachenko/arc-sub001/dpoint/mock"
	"github.com/IATkachenko/arc-sub001/dstatus"
	"github.com/IATkachenko/arc-sub001/dtr"
	"github.com/IATkachenko/arc-sub001/fcache"
	"github.com/IATkachenko/arc-sub001/mover"
	"github.com/IATkachenko/arc-sub001/tools"
	"github.com/IATkachenko/arc-sub001/tools/tassert"
	"github.com/IATkachenko/arc-sub001/tools/trand"
)

func TestBatch(t *testing.T) {
	var (
		env     = newEnv(t)
		dir     = t.TempDir()
		history = dtr.NewStore(kvdb.NewDBMock())
		m       = mover.New(env, mover.WithHistory(history))
		dtrs    []*dtr.DTR
		content = make(map[string][]byte)
	)
	for i := range 6 {
		src, b, err := trand.File(dir, fmt.Sprintf("src%d", i), 100*cos.KiB+i)
		tassert.CheckFatal(t, err)
		dst := filepath.Join(dir, "out", fmt.Sprintf("dst%d", i))
		content[dst] = b
		dtrs = append(dtrs, dtr.New("job1", src, dst, 1))
	}
	// and one that cannot succeed
	dtrs = append(dtrs, dtr.New("job1", filepath.Join(dir, "missing"), filepath.Join(dir, "out", "x"), 1))
	// and one that never reaches delivery
	dtrs = append(dtrs, dtr.New("job1", "nosuch://host/obj", filepath.Join(dir, "out", "y"), 1))

	b := m.NewBatch(mover.BatchConf{Workers: 3, LockWait: time.Second})
	tassert.CheckFatal(t, b.Run(context.Background(), dtrs))

	for _, d := range dtrs[:6] {
		tassert.Errorf(t, d.GetStatus() == dtr.StatusDone, "%s: status %s (%s)", d, d.GetStatus(), d.ErrDesc)
		tassert.Errorf(t, d.GetOwner() == dtr.StagePostProcessor, "%s: owner %s", d, d.GetOwner())
		tools.CheckFileContent(t, d.Dest, content[d.Dest])
	}
	failed := dtrs[6]
	tassert.Errorf(t, failed.GetStatus() == dtr.StatusError, "expecting ERROR, got %s", failed.GetStatus())
	rejected := dtrs[7]
	tassert.Errorf(t, rejected.GetStatus() == dtr.StatusError && rejected.ErrCode == dstatus.ReadResolveError,
		"expecting ERROR (%s), got %s (%s)", dstatus.ReadResolveError, rejected.GetStatus(), rejected.ErrCode)
	for _, tr := range rejected.History {
		tassert.Errorf(t, tr.Status != dtr.StatusCheckCache, "rejected DTR was delivered")
	}

	saved, err := history.List("job1")
	tassert.CheckFatal(t, err)
	tassert.Errorf(t, len(saved) == len(dtrs), "expecting %d saved, got %d", len(dtrs), len(saved))
}

// a locked entry is retried until the other holder finishes
func TestBatchLockWait(t *testing.T) {
	var (
		env   = newEnv(t)
		cache = newCache(t, env)
		url   = "mock://host/data/batch-locked"
		m     = mover.New(env)
		data  = trand.Bytes(4 * cos.KiB)
	)
	mock.Default.Put(url, data)
	other, err := fcache.New(&cmn.CacheConf{Dirs: cache.Dirs(), JobID: "other"},
		fcache.WithIdentity(fcache.Identity{Pid: 1, Host: "elsewhere"}))
	tassert.CheckFatal(t, err)
	_, locked, err := other.Start(url, false)
	tassert.CheckFatal(t, err)
	tassert.Fatalf(t, !locked, "unexpected lock")
	time.AfterFunc(300*time.Millisecond, func() { other.StopAndDelete(url) })

	d := dtr.New("job1", url, filepath.Join(t.TempDir(), "dst"), 1)
	b := m.NewBatch(mover.BatchConf{Cache: cache, Workers: 1, LockWait: 30 * time.Second})
	tassert.CheckFatal(t, b.Run(context.Background(), []*dtr.DTR{d}))
	tassert.Fatalf(t, d.GetStatus() == dtr.StatusDone, "status %s (%s)", d.GetStatus(), d.ErrDesc)
	tools.CheckFileContent(t, d.Dest, data)

	var waited bool
	for _, tr := range d.History {
		waited = waited || tr.Status == dtr.StatusCacheWait
	}
	tassert.Errorf(t, waited, "expecting CACHE_WAIT in history")
}

func TestBatchLockTimeout(t *testing.T) {
	var (
		env   = newEnv(t)
		cache = newCache(t, env)
		url   = "mock://host/data/batch-timeout"
		m     = mover.New(env)
	)
	mock.Default.Put(url, trand.Bytes(cos.KiB))
	other, err := fcache.New(&cmn.CacheConf{Dirs: cache.Dirs(), JobID: "other"},
		fcache.WithIdentity(fcache.Identity{Pid: 1, Host: "elsewhere"}))
	tassert.CheckFatal(t, err)
	_, _, err = other.Start(url, false)
	tassert.CheckFatal(t, err)
	t.Cleanup(func() { other.StopAndDelete(url) })

	d := dtr.New("job1", url, filepath.Join(t.TempDir(), "dst"), 1)
	b := m.NewBatch(mover.BatchConf{Cache: cache, LockWait: 200 * time.Millisecond})
	tassert.CheckFatal(t, b.Run(context.Background(), []*dtr.DTR{d}))
	tassert.Fatalf(t, d.GetStatus() == dtr.StatusError, "status %s", d.GetStatus())
	tassert.Errorf(t, d.ErrCode == dstatus.CacheErrorRetryable, "error code %s", d.ErrCode)
}

func TestBatchCancel(t *testing.T) {
	var (
		env   = newEnv(t)
		cache = newCache(t, env)
		url   = "mock://host/data/batch-cancel"
		m     = mover.New(env)
	)
	mock.Default.Put(url, trand.Bytes(cos.KiB))
	other, err := fcache.New(&cmn.CacheConf{Dirs: cache.Dirs(), JobID: "other"},
		fcache.WithIdentity(fcache.Identity{Pid: 1, Host: "elsewhere"}))
	tassert.CheckFatal(t, err)
	_, _, err = other.Start(url, false)
	tassert.CheckFatal(t, err)
	t.Cleanup(func() { other.StopAndDelete(url) })

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	d := dtr.New("job1", url, filepath.Join(t.TempDir(), "dst"), 1)
	b := m.NewBatch(mover.BatchConf{Cache: cache, LockWait: time.Hour})
	err = b.Run(ctx, []*dtr.DTR{d})
	tassert.Fatalf(t, err == context.DeadlineExceeded, "expecting deadline, got %v", err)
	tassert.Errorf(t, d.GetStatus() == dtr.StatusCancelled, "status %s", d.GetStatus())
}
