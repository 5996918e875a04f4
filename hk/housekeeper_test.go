// Package hk provides mechanism for registering periodic (housekeeping)
// callbacks which are invoked at specified intervals.
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package hk_test

import (
	ratomic "sync/atomic"
	"time"

	"github.com/IATkachenko/arc-sub001/hk"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Housekeeper", func() {
	var h *hk.Housekeeper

	BeforeEach(func() {
		h = hk.New(false)
		go h.Run()
		Eventually(h.Running).Should(BeTrue())
	})

	AfterEach(func() {
		h.Stop(nil)
		Eventually(h.Running).Should(BeFalse())
	})

	It("should register the callback and fire it right away", func() {
		var fired ratomic.Int32
		h.Reg("foo", func(int64) time.Duration {
			fired.Add(1)
			return time.Second
		}, 0)

		Eventually(fired.Load).Should(BeEquivalentTo(1))
		Consistently(fired.Load, 500*time.Millisecond).Should(BeEquivalentTo(1))
		Eventually(fired.Load, 2*time.Second).Should(BeEquivalentTo(2))
	})

	It("should register the callback and fire it after initial interval", func() {
		var fired ratomic.Bool
		h.Reg("foo", func(int64) time.Duration {
			fired.Store(true)
			return time.Second
		}, time.Second)

		Consistently(fired.Load, 500*time.Millisecond).Should(BeFalse())
		Eventually(fired.Load, 2*time.Second).Should(BeTrue())
	})

	It("should fire multiple callbacks in the order of their intervals", func() {
		var first, second ratomic.Int32
		h.Reg("long", func(int64) time.Duration {
			first.Add(1)
			return 2 * time.Second
		}, 0)
		h.Reg("short", func(int64) time.Duration {
			second.Add(1)
			return 500 * time.Millisecond
		}, 0)

		Eventually(func() bool { return first.Load() == 1 && second.Load() == 1 }).Should(BeTrue())
		Eventually(second.Load, time.Second).Should(BeEquivalentTo(2))
		Expect(first.Load()).To(BeEquivalentTo(1))
	})

	It("should unregister the callback", func() {
		var fired ratomic.Int32
		h.Reg("foo", func(int64) time.Duration {
			fired.Add(1)
			return 100 * time.Millisecond
		}, 0)
		Eventually(fired.Load, time.Second).Should(BeNumerically(">=", 2))

		h.Unreg("foo")
		time.Sleep(150 * time.Millisecond)
		cnt := fired.Load()
		Consistently(fired.Load, 400*time.Millisecond).Should(Equal(cnt))
	})

	It("should unregister when the callback says so", func() {
		var fired ratomic.Int32
		h.Reg("once", func(int64) time.Duration {
			if fired.Add(1) > 1 {
				return hk.UnregInterval
			}
			return 50 * time.Millisecond
		}, 0)
		Eventually(fired.Load, time.Second).Should(BeEquivalentTo(2))
		Consistently(fired.Load, 300*time.Millisecond).Should(BeEquivalentTo(2))
	})
})
