// Package kvdb provides a local key-value database for catalogs and transfer history
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package kvdb

import (
	"errors"
	"sort"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/buntdb"
)

const InMemory = ":memory:"

type BuntDriver struct {
	driver *buntdb.DB
}

// interface guard
var _ Driver = (*BuntDriver)(nil)

// NewBuntDB opens (creates) the database file; use InMemory for a transient one
func NewBuntDB(path string) (*BuntDriver, error) {
	driver, err := buntdb.Open(path)
	if err != nil {
		return nil, err
	}
	if path != InMemory {
		err = driver.SetConfig(buntdb.Config{
			SyncPolicy:           buntdb.EverySecond,
			AutoShrinkPercentage: 100,
			AutoShrinkMinSize:    32 * 1024 * 1024,
		})
		if err != nil {
			driver.Close()
			return nil, err
		}
	}
	return &BuntDriver{driver: driver}, nil
}

func (bd *BuntDriver) Close() error { return bd.driver.Close() }

func (bd *BuntDriver) Set(collection, key string, object any) error {
	b, err := jsoniter.Marshal(object)
	if err != nil {
		return err
	}
	return bd.SetString(collection, key, string(b))
}

func (bd *BuntDriver) Get(collection, key string, object any) error {
	s, err := bd.GetString(collection, key)
	if err != nil {
		return err
	}
	return jsoniter.Unmarshal([]byte(s), object)
}

func (bd *BuntDriver) SetString(collection, key, data string) error {
	return bd.driver.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(makePath(collection, key), data, nil)
		return err
	})
}

func (bd *BuntDriver) GetString(collection, key string) (value string, err error) {
	err = bd.driver.View(func(tx *buntdb.Tx) error {
		var errGet error
		value, errGet = tx.Get(makePath(collection, key))
		return errGet
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		err = NewErrNotFound(collection, key)
	}
	return value, err
}

func (bd *BuntDriver) Delete(collection, key string) error {
	err := bd.driver.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(makePath(collection, key))
		return err
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return NewErrNotFound(collection, key)
	}
	return err
}

func (bd *BuntDriver) DeleteCollection(collection string) error {
	keys, err := bd.List(collection, "")
	if err != nil || len(keys) == 0 {
		return err
	}
	return bd.driver.Update(func(tx *buntdb.Tx) error {
		for _, k := range keys {
			if _, err := tx.Delete(makePath(collection, k)); err != nil && !errors.Is(err, buntdb.ErrNotFound) {
				return err
			}
		}
		return nil
	})
}

func (bd *BuntDriver) List(collection, pattern string) ([]string, error) {
	keys := make([]string, 0)
	err := bd.driver.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(bd.filter(collection, pattern), func(path, _ string) bool {
			if _, key := ParsePath(path); key != "" {
				keys = append(keys, key)
			}
			return true
		})
	})
	sort.Strings(keys)
	return keys, err
}

func (bd *BuntDriver) GetAll(collection, pattern string) (map[string]string, error) {
	values := make(map[string]string)
	err := bd.driver.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(bd.filter(collection, pattern), func(path, value string) bool {
			if _, key := ParsePath(path); key != "" {
				values[key] = value
			}
			return true
		})
	})
	return values, err
}

func (*BuntDriver) filter(collection, pattern string) string {
	filter := makePath(collection, pattern)
	if !hasWildcard(pattern) {
		filter += "*"
	}
	return filter
}
