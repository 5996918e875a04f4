// Package cos_test: unit tests
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cos_test

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/IATkachenko/arc-sub001/cmn/cos"
	"github.com/IATkachenko/arc-sub001/tools/tassert"
	jsoniter "github.com/json-iterator/go"
)

func TestCksumKnownValues(t *testing.T) {
	tests := []struct {
		ty, in, out string
	}{
		{cos.ChecksumAdler32, "hello", "062c0215"},
		{cos.ChecksumMD5, "", "d41d8cd98f00b204e9800998ecf8427e"},
		{cos.ChecksumSHA256, "", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
	}
	for _, tc := range tests {
		t.Run(tc.ty, func(t *testing.T) {
			ck := cos.NewCksumHash(tc.ty)
			ck.Write([]byte(tc.in))
			ck.Finalize()
			tassert.Errorf(t, ck.Value() == tc.out, "%s(%q): expected %s, got %s", tc.ty, tc.in, tc.out, ck.Value())
			tassert.Errorf(t, ck.Full() == tc.ty+":"+tc.out, "unexpected full form %q", ck.Full())
		})
	}
}

func TestParseCksum(t *testing.T) {
	ck, err := cos.ParseCksum("ADLER32:062C0215")
	tassert.CheckFatal(t, err)
	tassert.Errorf(t, ck.Type() == cos.ChecksumAdler32 && ck.Value() == "062c0215", "got %s", ck.Full())
	tassert.Errorf(t, ck.Equal(cos.NewCksum(cos.ChecksumAdler32, "062c0215")), "expected equal")

	for _, bad := range []string{"", "adler32", "adler32:", "bogus:1234"} {
		_, err := cos.ParseCksum(bad)
		tassert.Errorf(t, err != nil, "expected error parsing %q", bad)
	}
	tassert.Errorf(t, !cos.NewCksum("", "").Equal(cos.NewCksum("", "")), "empty checksums never match")
}

func TestCksumJSON(t *testing.T) {
	ck := cos.NewCksum(cos.ChecksumMD5, "abcd")
	b, err := jsoniter.Marshal(ck)
	tassert.CheckFatal(t, err)
	var out cos.Cksum
	tassert.CheckFatal(t, jsoniter.Unmarshal(b, &out))
	tassert.Errorf(t, out.Equal(ck), "expected %s, got %s", ck, &out)
}

func TestCopyAndChecksum(t *testing.T) {
	var (
		dir = t.TempDir()
		src = filepath.Join(dir, "src")
		dst = filepath.Join(dir, "a", "b", "dst")
	)
	tassert.CheckFatal(t, os.WriteFile(src, []byte("hello"), cos.PermRWR))
	n, ck, err := cos.CopyFile(src, dst, cos.PermRWR, cos.ChecksumAdler32)
	tassert.CheckFatal(t, err)
	tassert.Errorf(t, n == 5, "expected 5 bytes, got %d", n)
	tassert.Errorf(t, ck.Value() == "062c0215", "unexpected checksum %s", ck.Value())

	var buf bytes.Buffer
	n, ck, err = cos.CopyAndChecksum(&buf, strings.NewReader("xyz"), cos.ChecksumNone)
	tassert.CheckFatal(t, err)
	tassert.Errorf(t, n == 3 && ck == nil, "expected 3 bytes and no checksum, got %d, %v", n, ck)
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in  string
		out int64
	}{
		{"512", 512},
		{"512B", 512},
		{"64KiB", 64 * cos.KiB},
		{"4MiB", 4 * cos.MiB},
		{"1.5G", cos.GiB + cos.GiB/2},
		{"2kb", 2 * cos.KiB},
	}
	for _, tc := range tests {
		n, err := cos.ParseSize(tc.in)
		tassert.CheckError(t, err)
		tassert.Errorf(t, n == tc.out, "%q: expected %d, got %d", tc.in, tc.out, n)
	}
	for _, bad := range []string{"", "MiB", "-1", "abc"} {
		_, err := cos.ParseSize(bad)
		tassert.Errorf(t, err != nil, "expected error parsing %q", bad)
	}
}

func TestSizeDurationJSON(t *testing.T) {
	type cfg struct {
		Size cos.SizeIEC  `json:"size"`
		Dur  cos.Duration `json:"dur"`
	}
	var c cfg
	tassert.CheckFatal(t, jsoniter.Unmarshal([]byte(`{"size":"64KiB","dur":"90s"}`), &c))
	tassert.Errorf(t, c.Size == 64*cos.KiB, "unexpected size %d", c.Size)
	tassert.Errorf(t, c.Dur.D() == 90*time.Second, "unexpected duration %v", c.Dur)

	tassert.CheckFatal(t, jsoniter.Unmarshal([]byte(`{"size":1024,"dur":"1m"}`), &c))
	tassert.Errorf(t, c.Size == cos.KiB, "unexpected size %d", c.Size)
	tassert.Errorf(t, c.Dur.String() == "1m", "unexpected duration string %q", c.Dur.String())
}

func TestMetaTime(t *testing.T) {
	tm := time.Date(2025, 1, 15, 14, 30, 0, 0, time.UTC)
	s := cos.FormatMetaTime(tm)
	tassert.Fatalf(t, s == "20250115143000Z", "unexpected %q", s)
	parsed, err := cos.ParseMetaTime(s)
	tassert.CheckFatal(t, err)
	tassert.Errorf(t, parsed.Equal(tm), "expected %v, got %v", tm, parsed)

	_, err = cos.ParseMetaTime("2025-01-15")
	tassert.Errorf(t, err != nil, "expected error")
}

func TestErrs(t *testing.T) {
	errs := cos.NewErrs(2)
	errs.Add(errors.New("one"))
	errs.Add(errors.New("one"))
	errs.Add(errors.New("two"))
	errs.Add(errors.New("three"))
	tassert.Fatalf(t, errs.Cnt() == 2, "expected 2 (capped, deduplicated), got %d", errs.Cnt())
	tassert.Errorf(t, strings.Contains(errs.Error(), "and 1 more error"), "unexpected %q", errs.Error())
}

func TestErrnoHelpers(t *testing.T) {
	err := fmt.Errorf("link: %w", &os.LinkError{Op: "link", Old: "a", New: "b", Err: syscall.EXDEV})
	tassert.Errorf(t, !cos.IsErrOOS(err) && !cos.IsErrNoProcess(err), "misclassified %v", err)
	tassert.Errorf(t, cos.Errno(err) == int(syscall.EXDEV), "unexpected errno %d", cos.Errno(err))
	tassert.Errorf(t, cos.Errno(errors.New("plain")) == 0, "expected zero errno")
	tassert.Errorf(t, cos.IsRetriableConnErr(fmt.Errorf("x: %w", syscall.ECONNRESET)), "expected retriable")
	tassert.Errorf(t, cos.IsErrOOS(&os.PathError{Op: "write", Path: "f", Err: syscall.ENOSPC}), "expected ENOSPC")
	tassert.Errorf(t, cos.IsErrNoProcess(syscall.ESRCH), "expected ESRCH")
	tassert.Errorf(t, cos.IsEOF(fmt.Errorf("body: %w", io.ErrUnexpectedEOF)), "expected EOF")
	tassert.Errorf(t, cos.IsNotExist(cos.NewErrNotFound(nil, "file x")), "expected not-exist")
}

func TestGenUUID(t *testing.T) {
	seen := make(map[string]struct{}, 100)
	for range 100 {
		id := cos.GenUUID()
		tassert.Fatalf(t, cos.IsAlphaNice(id), "not nice: %q", id)
		_, dup := seen[id]
		tassert.Fatalf(t, !dup, "duplicate %q", id)
		seen[id] = struct{}{}
	}
}
