// Package kvdb provides a local key-value database for catalogs and transfer history
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package kvdb_test

import (
	"path/filepath"
	"testing"

	"github.com/IATkachenko/arc-sub001/cmn/kvdb"
	"github.com/IATkachenko/arc-sub001/tools/tassert"
)

type record struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

func drivers(t *testing.T) map[string]kvdb.Driver {
	bunt, err := kvdb.NewBuntDB(kvdb.InMemory)
	tassert.CheckFatal(t, err)
	file, err := kvdb.NewBuntDB(filepath.Join(t.TempDir(), "test.db"))
	tassert.CheckFatal(t, err)
	return map[string]kvdb.Driver{"mock": kvdb.NewDBMock(), "buntdb-mem": bunt, "buntdb-file": file}
}

func TestDriver(t *testing.T) {
	for name, driver := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			defer driver.Close()

			tassert.CheckFatal(t, driver.Set("files", "a/1", &record{Name: "one", Size: 1}))
			tassert.CheckFatal(t, driver.Set("files", "a/2", &record{Name: "two", Size: 2}))
			tassert.CheckFatal(t, driver.Set("files", "b/3", &record{Name: "three", Size: 3}))
			tassert.CheckFatal(t, driver.SetString("other", "a/1", "x"))

			var rec record
			tassert.CheckFatal(t, driver.Get("files", "a/2", &rec))
			tassert.Errorf(t, rec.Name == "two" && rec.Size == 2, "unexpected %+v", rec)

			keys, err := driver.List("files", "a/")
			tassert.CheckFatal(t, err)
			tassert.Fatalf(t, len(keys) == 2 && keys[0] == "a/1" && keys[1] == "a/2", "unexpected keys %v", keys)

			keys, err = driver.List("files", "*/3")
			tassert.CheckFatal(t, err)
			tassert.Fatalf(t, len(keys) == 1 && keys[0] == "b/3", "unexpected keys %v", keys)

			all, err := driver.GetAll("files", "")
			tassert.CheckFatal(t, err)
			tassert.Errorf(t, len(all) == 3, "expected 3 values, got %d", len(all))

			tassert.CheckFatal(t, driver.Delete("files", "a/1"))
			err = driver.Delete("files", "a/1")
			tassert.Errorf(t, kvdb.IsErrNotFound(err), "expected not-found, got %v", err)
			_, err = driver.GetString("files", "a/1")
			tassert.Errorf(t, kvdb.IsErrNotFound(err), "expected not-found, got %v", err)

			tassert.CheckFatal(t, driver.DeleteCollection("files"))
			keys, err = driver.List("files", "")
			tassert.CheckFatal(t, err)
			tassert.Errorf(t, len(keys) == 0, "expected empty collection, got %v", keys)

			s, err := driver.GetString("other", "a/1")
			tassert.CheckFatal(t, err)
			tassert.Errorf(t, s == "x", "other collection must survive, got %q", s)
		})
	}
}

func TestParsePath(t *testing.T) {
	coll, key := kvdb.ParsePath("files##a/b##c")
	tassert.Errorf(t, coll == "files" && key == "a/b##c", "got %q, %q", coll, key)
	coll, key = kvdb.ParsePath("nosepa")
	tassert.Errorf(t, coll == "nosepa" && key == "", "got %q, %q", coll, key)
}
