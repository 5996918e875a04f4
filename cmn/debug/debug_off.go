//go:build !debug

// Package debug provides build-tag enabled assertions
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package debug

func ON() bool { return false }

func Assert(bool, ...any)          {}
func Assertf(bool, string, ...any) {}
func AssertNoErr(error)            {}

func Func(func()) {}
