// Package main is the dstage command: stage data between grid storage
// endpoints through a local file cache
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/IATkachenko/arc-sub001/cmn/cos"
	"github.com/IATkachenko/arc-sub001/tools"
	"github.com/IATkachenko/arc-sub001/tools/tassert"
	"github.com/IATkachenko/arc-sub001/tools/trand"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cli = flags{}
	copyFlags.threads, copyFlags.noCache, copyFlags.progress, copyFlags.quiet = 0, false, false, false
	copyFlags.lockWait = time.Minute
	deleteFlags.errIfMissing = false
	batchFlags.workers, batchFlags.lockWait, batchFlags.noCache = 4, time.Minute, false
	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	app.close()
	return out.String(), err
}

func TestCopyAndHistory(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DSTAGE_CACHE_DIRS", filepath.Join(dir, "cache"))
	t.Setenv("DSTAGE_CATALOG_DIR", filepath.Join(dir, "catalogs"))
	t.Setenv("DSTAGE_JOBID", "job1")
	tassert.CheckFatal(t, os.MkdirAll(filepath.Join(dir, "catalogs"), 0o755))

	src, b, err := trand.File(dir, "src.bin", 3*cos.MiB+17)
	tassert.CheckFatal(t, err)
	dst := filepath.Join(dir, "out", "dst.bin")

	out, err := execute(t, "copy", "--threads", "2", src, dst)
	tassert.CheckFatal(t, err)
	tassert.Errorf(t, strings.Contains(out, "dst.bin") && strings.Contains(out, "copied"), "unexpected output %q", out)
	tools.CheckFileContent(t, dst, b)

	out, err = execute(t, "history")
	tassert.CheckFatal(t, err)
	tassert.Errorf(t, strings.Contains(out, "DONE") && strings.Contains(out, "src.bin"), "unexpected history %q", out)
}

func TestStatAndDelete(t *testing.T) {
	dir := t.TempDir()
	src, _, err := trand.File(dir, "f.bin", 1000)
	tassert.CheckFatal(t, err)

	out, err := execute(t, "stat", src)
	tassert.CheckFatal(t, err)
	tassert.Errorf(t, strings.Contains(out, "1000"), "expecting size in %q", out)

	_, err = execute(t, "delete", src)
	tassert.CheckFatal(t, err)
	_, err = os.Stat(src)
	tassert.Fatalf(t, os.IsNotExist(err), "expecting %s removed, got %v", src, err)

	// missing is fine unless asked otherwise
	_, err = execute(t, "delete", src)
	tassert.CheckFatal(t, err)
	_, err = execute(t, "delete", "--error-if-missing", src)
	tassert.Fatal(t, err != nil, "expecting error for a missing file")
}

func TestCacheNotConfigured(t *testing.T) {
	t.Setenv("DSTAGE_CACHE_DIRS", "")
	_, err := execute(t, "cache", "sweep")
	tassert.Fatalf(t, err == errNoCache, "expecting %v, got %v", errNoCache, err)
}

func TestBatch(t *testing.T) {
	dir := t.TempDir()
	var (
		list    strings.Builder
		content = make(map[string][]byte)
	)
	list.WriteString("# source destination\n\n")
	for _, name := range []string{"a", "b", "c"} {
		src, b, err := trand.File(dir, name, 64*cos.KiB)
		tassert.CheckFatal(t, err)
		dst := filepath.Join(dir, "out", name)
		content[dst] = b
		list.WriteString(src + " " + dst + "\n")
	}
	rootCmd.SetIn(strings.NewReader(list.String()))
	out, err := execute(t, "batch", "--workers", "2", "-")
	tassert.CheckFatal(t, err)
	for dst, b := range content {
		tools.CheckFileContent(t, dst, b)
	}
	tassert.Errorf(t, strings.Count(out, "DONE") == 3, "expecting 3 DONE, got %q", out)

	_, err = readPairs(strings.NewReader("only-one-field\n"), "job", 1)
	tassert.Fatal(t, err != nil, "expecting parse error")
}
