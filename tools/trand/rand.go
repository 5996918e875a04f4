// Package trand provides random strings and payloads for dev tools and tests
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package trand

import (
	"math/rand/v2"
	"os"
	"path/filepath"
)

const letterRunes = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func String(n int) string {
	b := make([]byte, n)
	for i := range n {
		b[i] = letterRunes[rand.IntN(len(letterRunes))]
	}
	return string(b)
}

func Bytes(n int) []byte {
	b := make([]byte, n)
	for i := range n {
		b[i] = byte(rand.Uint32())
	}
	return b
}

// File writes `size` random bytes into dir/name and returns the content
func File(dir, name string, size int) (fqn string, b []byte, err error) {
	b = Bytes(size)
	fqn = filepath.Join(dir, name)
	if err = os.MkdirAll(filepath.Dir(fqn), 0o755); err != nil {
		return
	}
	err = os.WriteFile(fqn, b, 0o644)
	return
}
