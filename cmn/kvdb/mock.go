// Package kvdb provides a local key-value database for catalogs and transfer history
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package kvdb

import (
	"path"
	"sort"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

type DBMock struct {
	values map[string]string
	mtx    sync.RWMutex
}

// interface guard
var _ Driver = (*DBMock)(nil)

func NewDBMock() *DBMock     { return &DBMock{values: make(map[string]string)} }
func (*DBMock) Close() error { return nil }

func (bd *DBMock) Set(collection, key string, object any) error {
	b, err := jsoniter.Marshal(object)
	if err != nil {
		return err
	}
	return bd.SetString(collection, key, string(b))
}

func (bd *DBMock) Get(collection, key string, object any) error {
	s, err := bd.GetString(collection, key)
	if err != nil {
		return err
	}
	return jsoniter.Unmarshal([]byte(s), object)
}

func (bd *DBMock) SetString(collection, key, data string) error {
	bd.mtx.Lock()
	bd.values[makePath(collection, key)] = data
	bd.mtx.Unlock()
	return nil
}

func (bd *DBMock) GetString(collection, key string) (string, error) {
	bd.mtx.RLock()
	defer bd.mtx.RUnlock()
	value, ok := bd.values[makePath(collection, key)]
	if !ok {
		return "", NewErrNotFound(collection, key)
	}
	return value, nil
}

func (bd *DBMock) Delete(collection, key string) error {
	bd.mtx.Lock()
	defer bd.mtx.Unlock()
	name := makePath(collection, key)
	if _, ok := bd.values[name]; !ok {
		return NewErrNotFound(collection, key)
	}
	delete(bd.values, name)
	return nil
}

func (bd *DBMock) DeleteCollection(collection string) error {
	prefix := makePath(collection, "")
	bd.mtx.Lock()
	for k := range bd.values {
		if strings.HasPrefix(k, prefix) {
			delete(bd.values, k)
		}
	}
	bd.mtx.Unlock()
	return nil
}

func (bd *DBMock) List(collection, pattern string) ([]string, error) {
	keys := make([]string, 0)
	bd.mtx.RLock()
	for k := range bd.values {
		if key, ok := match(k, collection, pattern); ok {
			keys = append(keys, key)
		}
	}
	bd.mtx.RUnlock()
	sort.Strings(keys)
	return keys, nil
}

func (bd *DBMock) GetAll(collection, pattern string) (map[string]string, error) {
	values := make(map[string]string)
	bd.mtx.RLock()
	for k, v := range bd.values {
		if key, ok := match(k, collection, pattern); ok {
			values[key] = v
		}
	}
	bd.mtx.RUnlock()
	return values, nil
}

func match(fullPath, collection, pattern string) (string, bool) {
	coll, key := ParsePath(fullPath)
	if coll != collection || key == "" {
		return "", false
	}
	if !hasWildcard(pattern) {
		return key, strings.HasPrefix(key, pattern)
	}
	ok, err := path.Match(pattern, key)
	return key, ok && err == nil
}
