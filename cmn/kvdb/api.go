// Package kvdb provides a local key-value database for catalogs and transfer history
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package kvdb

import (
	"errors"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// General info:
// ## Collection ##
//   For buntdb the collection is a pure virtual stuff: it is just a prefix
//   of a key in database.
// ## List ##
//   If a pattern is empty, List returns all keys in the collection. A pattern
//   may include '*' and '?'. If a pattern does not include any of those
//   characters, the pattern is considered a prefix and trailing '*' is added
//   automatically.
// ## Errors ##
//   A driver must convert original errors to `kvdb` package errors for clients.

const CollectionSepa = "##"

type (
	Driver interface {
		// A driver should sync data with local drives on close
		Close() error
		// Write an object to database. Object is marshaled as JSON
		Set(collection, key string, object any) error
		// Read an object from database.
		Get(collection, key string, object any) error
		// Write an already marshaled object or simple string
		SetString(collection, key, data string) error
		// Read a string or an object as JSON from database
		GetString(collection, key string) (string, error)
		// Delete a single object
		Delete(collection, key string) error
		// Delete a collection. It iterates over all subkeys of key
		// `collection` and removes them one by one.
		DeleteCollection(collection string) error
		// Return subkeys of a collection that match the pattern (sorted)
		List(collection, pattern string) ([]string, error)
		// Return subkeys with their values: map[key]value
		GetAll(collection, pattern string) (map[string]string, error)
	}

	ErrNotFound struct {
		collection string
		key        string
	}
)

func makePath(collection, key string) string { return collection + CollectionSepa + key }

// Extract collection and key names from full key path
func ParsePath(path string) (string, string) {
	pos := strings.Index(path, CollectionSepa)
	if pos < 0 {
		return path, ""
	}
	return path[:pos], path[pos+len(CollectionSepa):]
}

// Unmarshal decodes a value returned by GetString or GetAll
func Unmarshal(data string, object any) error { return jsoniter.UnmarshalFromString(data, object) }

func hasWildcard(pattern string) bool { return strings.ContainsAny(pattern, "*?") }

func NewErrNotFound(collection, key string) *ErrNotFound {
	return &ErrNotFound{collection: collection, key: key}
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s %q not found", e.collection, e.key)
}

func IsErrNotFound(err error) bool {
	var e *ErrNotFound
	return errors.As(err, &e)
}
