// Package hk provides mechanism for registering periodic (housekeeping)
// callbacks which are invoked at specified intervals.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package hk_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestHousekeeper(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Housekeeper Suite")
}
