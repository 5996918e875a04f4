// Package cos provides common low-level types and utilities for all staging packages
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"sync"
)

type (
	StopCh struct {
		ch   chan struct{}
		once sync.Once
	}

	// Runner is a long-running component that can be started and stopped (e.g., housekeeper)
	Runner interface {
		Name() string
		Run() error
		Stop(error)
	}
)

////////////
// StopCh //
////////////

func NewStopCh() *StopCh {
	sc := &StopCh{}
	sc.Init()
	return sc
}

func (sc *StopCh) Init() { sc.ch = make(chan struct{}, 1) }

func (sc *StopCh) Listen() <-chan struct{} { return sc.ch }

func (sc *StopCh) Close() {
	sc.once.Do(func() {
		close(sc.ch)
	})
}

func (sc *StopCh) Stopped() bool {
	select {
	case <-sc.ch:
		return true
	default:
		return false
	}
}
