// Package durl parses and renders data staging URLs, including URL options,
// metadata options, and embedded location lists
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package durl_test

import (
	"testing"

	"github.com/IATkachenko/arc-sub001/durl"
	"github.com/IATkachenko/arc-sub001/tools/tassert"
)

func TestParseFull(t *testing.T) {
	u, err := durl.Parse("http://Host.Example:8080;threads=4;cache=no/dir/f.dat?x=1:guid=abc")
	tassert.CheckFatal(t, err)
	tassert.Errorf(t, u.Scheme == "http" && u.Host == "host.example" && u.Port == 8080, "%+v", u)
	tassert.Errorf(t, u.Path == "/dir/f.dat" && u.Query == "x=1", "path %q query %q", u.Path, u.Query)
	tassert.Errorf(t, u.Option(durl.OptThreads) == "4" && u.Option(durl.OptCache) == durl.CacheNo, "options")
	tassert.Errorf(t, u.MetaOption(durl.MdGUID) == "abc", "metadata option %q", u.MetaOption(durl.MdGUID))

	s := "http://host.example:8080;cache=no;threads=4/dir/f.dat?x=1:guid=abc"
	tassert.Errorf(t, u.String() == s, "got %q", u.String())
	tassert.Errorf(t, u.CanonicalString() == "http://host.example:8080/dir/f.dat?x=1", "got %q", u.CanonicalString())

	again, err := durl.Parse(u.String())
	tassert.CheckFatal(t, err)
	tassert.Errorf(t, again.String() == s, "round-trip: %q", again.String())
}

func TestParseFile(t *testing.T) {
	tests := []struct {
		in, path, str string
	}{
		{"/tmp/a/../b", "/tmp/b", "file:///tmp/b"},
		{"file:///tmp/x", "/tmp/x", "file:///tmp/x"},
		{"file://localhost/tmp/x", "/tmp/x", "file:///tmp/x"},
		{"file:///tmp/x;cache=copy", "/tmp/x", "file:///tmp/x;cache=copy"},
	}
	for _, test := range tests {
		u, err := durl.Parse(test.in)
		tassert.CheckFatal(t, err)
		tassert.Errorf(t, u.IsLocal() && u.Path == test.path, "%s: path %q", test.in, u.Path)
		tassert.Errorf(t, u.String() == test.str, "%s: got %q", test.in, u.String())
	}
	u, err := durl.Parse("-")
	tassert.CheckFatal(t, err)
	tassert.Errorf(t, u.IsStdio() && !u.IsLocal() && u.String() == "-", "stdio: %+v", u)
}

func TestParseLocations(t *testing.T) {
	u, err := durl.Parse("idx://file:///s1/a;name=r1|file:///s2/a@cat;checksum=md5/lfn/x")
	tassert.CheckFatal(t, err)
	tassert.Errorf(t, u.Host == "cat" && u.Path == "/lfn/x", "host %q path %q", u.Host, u.Path)
	tassert.Errorf(t, u.Option(durl.OptChecksum) == "md5", "options %q", u.Option(durl.OptChecksum))
	locs := u.Locations()
	tassert.Fatalf(t, len(locs) == 2, "expected 2 locations, got %d", len(locs))
	tassert.Errorf(t, locs[0].Path == "/s1/a" && locs[0].Name() == "r1", "loc[0] %+v", locs[0])
	tassert.Errorf(t, locs[1].Name() == "file:///s2/a", "loc[1] name %q", locs[1].Name())
	tassert.Errorf(t, u.CanonicalString() == "idx://cat/lfn/x", "got %q", u.CanonicalString())

	s := "idx://file:///s1/a;name=r1|file:///s2/a@cat;checksum=md5/lfn/x"
	tassert.Errorf(t, u.String() == s, "got %q", u.String())

	u, err = durl.Parse("idx://cat/lfn")
	tassert.CheckFatal(t, err)
	tassert.Errorf(t, len(u.Locations()) == 0, "no locations expected")
}

func TestParseUserInfo(t *testing.T) {
	u, err := durl.Parse("http://user@h/a@b")
	tassert.CheckFatal(t, err)
	tassert.Errorf(t, u.User == "user" && u.Host == "h" && u.Path == "/a@b", "%+v", u)
	tassert.Errorf(t, len(u.Locations()) == 0, "non-indexed URL with locations")
}

func TestParseErrors(t *testing.T) {
	for _, s := range []string{"", "://x", "http://h:99999/x", "http://h:port/x", "file://remote/x", "a;b", "idx://loc@cat/x"} {
		_, err := durl.Parse(s)
		tassert.Errorf(t, err != nil, "expected error for %q", s)
	}
}

func TestOptions(t *testing.T) {
	u := durl.MustParse("http://h;threads=100;exec=yes/x")
	tassert.Errorf(t, u.Threads(20) == 20, "expected clamp to 20, got %d", u.Threads(20))
	tassert.Errorf(t, u.Threads(0) == 100, "no clamp, got %d", u.Threads(0))
	tassert.Errorf(t, u.BoolOption(durl.OptExec), "exec=yes")
	tassert.Errorf(t, !u.BoolOption(durl.OptOverwrite), "overwrite not set")

	u = durl.MustParse("http://h;threads=0/x")
	tassert.Errorf(t, u.Threads(20) == 1, "expected 1, got %d", u.Threads(20))
	u = durl.MustParse("http://h/x")
	tassert.Errorf(t, u.Threads(20) == 1 && u.OptionDefault(durl.OptChecksum, "adler32") == "adler32", "defaults")

	c := u.Clone()
	c.SetOption(durl.OptCache, durl.CacheRenew)
	tassert.Errorf(t, !u.HasOption(durl.OptCache), "clone shares options")
	tassert.Errorf(t, u.Join("y").String() == "http://h/x/y", "join: %q", u.Join("y").String())
}
