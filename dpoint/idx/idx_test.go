// Package idx implements the indexed data point over the local catalog:
// idx://[loc1|loc2@]catalog/lfn
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package idx_test

import (
	"context"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/IATkachenko/arc-sub001/cmn"
	"github.com/IATkachenko/arc-sub001/dpoint"
	_ "github.com/IATkachenko/arc-sub001/dpoint/file"
	_ "github.com/IATkachenko/arc-sub001/dpoint/idx"
	"github.com/IATkachenko/arc-sub001/dstatus"
	"github.com/IATkachenko/arc-sub001/tools"
	"github.com/IATkachenko/arc-sub001/tools/tassert"
	"github.com/IATkachenko/arc-sub001/tools/trand"
)

func newEnv(t *testing.T) *dpoint.Env {
	env := dpoint.NewEnv(cmn.DefaultConfig(), nil)
	t.Cleanup(env.Close)
	return env
}

func TestRegisterReadUnregister(t *testing.T) {
	var (
		dir     = t.TempDir()
		env     = newEnv(t)
		ctx     = context.Background()
		replica = filepath.Join(dir, "replica")
	)
	src, data, err := trand.File(dir, "src", 100*1024+3)
	tassert.CheckFatal(t, err)
	sep, err := dpoint.New(src, env)
	tassert.CheckFatal(t, err)
	_, err = sep.Stat(ctx)
	tassert.CheckFatal(t, err)

	dep, err := dpoint.New("idx://file://"+replica+"@cat/data/f1", env)
	tassert.CheckFatal(t, err)
	tassert.CheckFatal(t, dep.Resolve(ctx, false))
	tassert.Errorf(t, !dep.Registered(), "expected unregistered destination")
	tassert.Errorf(t, dep.Local() && dep.Seekable(), "expected file delegate capabilities")

	dep.SetMeta(sep)
	tassert.CheckFatal(t, dep.PreRegister(ctx, false, false))
	_, err = tools.Transfer(ctx, sep, dep)
	tassert.CheckFatal(t, err)
	tassert.CheckFatal(t, dep.PostRegister(ctx, false))
	tools.CheckFileContent(t, replica, data)

	// same name again, no force
	again, err := dpoint.New("idx://file://"+replica+".2@cat/data/f1", env)
	tassert.CheckFatal(t, err)
	tassert.CheckFatal(t, again.Resolve(ctx, false))
	tassert.Errorf(t, again.Registered(), "expected registered destination")
	err = again.PreRegister(ctx, false, false)
	tassert.Errorf(t, dstatus.Is(err, dstatus.PreRegisterError), "expected pre-register error, got %v", err)

	// read back
	lep, err := dpoint.New("idx://cat/data/f1", env)
	tassert.CheckFatal(t, err)
	tassert.CheckFatal(t, lep.Resolve(ctx, true))
	tassert.Fatalf(t, len(lep.Locations()) == 1, "expected 1 replica, got %d", len(lep.Locations()))
	tassert.Errorf(t, lep.Attrs().Size == int64(len(data)), "catalog size %d", lep.Attrs().Size)
	dst := filepath.Join(dir, "dst")
	dst2, err := dpoint.New(dst, env)
	tassert.CheckFatal(t, err)
	_, err = tools.Transfer(ctx, lep, dst2)
	tassert.CheckFatal(t, err)
	tools.CheckFileContent(t, dst, data)

	fi, err := lep.Stat(ctx)
	tassert.CheckFatal(t, err)
	tassert.Errorf(t, fi.Size == int64(len(data)) && fi.Name == "f1", "unexpected stat %+v", fi)

	dirEp, err := dpoint.New("idx://cat/data/", env)
	tassert.CheckFatal(t, err)
	files, err := dirEp.List(ctx)
	tassert.CheckFatal(t, err)
	tassert.Errorf(t, len(files) == 1 && files[0].Name == "/data/f1", "unexpected listing %v", files)

	// last replica takes the entry with it
	tassert.CheckFatal(t, lep.Unregister(ctx, false))
	gone, err := dpoint.New("idx://cat/data/f1", env)
	tassert.CheckFatal(t, err)
	err = gone.Resolve(ctx, true)
	tassert.Errorf(t, dstatus.Is(err, dstatus.ReadResolveError), "expected resolve error, got %v", err)
	tassert.Errorf(t, dstatus.ErrnoOf(err) == int(syscall.ENOENT), "expected ENOENT, got %v", err)
}

func TestResolveErrors(t *testing.T) {
	var (
		env = newEnv(t)
		ctx = context.Background()
	)
	ep, err := dpoint.New("idx://cat/none", env)
	tassert.CheckFatal(t, err)
	err = ep.Resolve(ctx, false)
	tassert.Errorf(t, dstatus.Is(err, dstatus.WriteResolveError), "expected write-resolve error, got %v", err)

	_, err = dpoint.New("idx://cat", env)
	tassert.Errorf(t, dstatus.Is(err, dstatus.NotInitializedError), "expected not-initialized, got %v", err)
}

func TestRollback(t *testing.T) {
	var (
		dir = t.TempDir()
		env = newEnv(t)
		ctx = context.Background()
	)
	ep, err := dpoint.New("idx://file://"+filepath.Join(dir, "r")+"@cat/rollback", env)
	tassert.CheckFatal(t, err)
	tassert.CheckFatal(t, ep.Resolve(ctx, false))
	tassert.CheckFatal(t, ep.PreRegister(ctx, false, false))
	tassert.CheckFatal(t, ep.PreUnregister(ctx, false))

	ep2, err := dpoint.New("idx://file://"+filepath.Join(dir, "r")+"@cat/rollback", env)
	tassert.CheckFatal(t, err)
	tassert.CheckFatal(t, ep2.Resolve(ctx, false))
	tassert.Errorf(t, !ep2.Registered(), "expected rolled back entry")
}

// rollback of a forced registration leaves alone the entry it found
func TestRollbackForced(t *testing.T) {
	var (
		dir = t.TempDir()
		env = newEnv(t)
		ctx = context.Background()
		u   = "idx://file://" + filepath.Join(dir, "r") + "@cat/forced"
	)
	first, err := dpoint.New(u, env)
	tassert.CheckFatal(t, err)
	tassert.CheckFatal(t, first.Resolve(ctx, false))
	tassert.CheckFatal(t, first.PreRegister(ctx, false, false))

	ep, err := dpoint.New(u, env)
	tassert.CheckFatal(t, err)
	tassert.CheckFatal(t, ep.Resolve(ctx, false))
	tassert.Fatalf(t, ep.Registered(), "expected the empty entry to be found")
	tassert.CheckFatal(t, ep.PreRegister(ctx, false, true))
	tassert.CheckFatal(t, ep.PreUnregister(ctx, false))

	check, err := dpoint.New(u, env)
	tassert.CheckFatal(t, err)
	tassert.CheckFatal(t, check.Resolve(ctx, false))
	tassert.Errorf(t, check.Registered(), "rollback deleted an entry it did not create")

	// the endpoint that created it may still roll it back
	tassert.CheckFatal(t, first.PreUnregister(ctx, false))
	check, err = dpoint.New(u, env)
	tassert.CheckFatal(t, err)
	tassert.CheckFatal(t, check.Resolve(ctx, false))
	tassert.Errorf(t, !check.Registered(), "expected rolled back entry")
}
