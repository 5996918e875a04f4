// Package dtr defines the data transfer request: a record of one transfer
// moving through processing stages
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package dtr

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

type Stage int

const (
	StageGenerator Stage = iota
	StageScheduler
	StagePreProcessor
	StageDelivery
	StagePostProcessor

	numStages
)

var stageNames = [numStages]string{"GENERATOR", "SCHEDULER", "PRE_PROCESSOR", "DELIVERY", "POST_PROCESSOR"}

var (
	ErrNotOwner  = errors.New("not the owner of the DTR")
	ErrBusClosed = errors.New("DTR bus closed")
)

func (s Stage) String() string {
	if s < 0 || s >= numStages {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return stageNames[s]
}

func (s Stage) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Stage) UnmarshalText(b []byte) error {
	for i, n := range stageNames {
		if n == string(b) {
			*s = Stage(i)
			return nil
		}
	}
	return fmt.Errorf("unknown stage %q", b)
}

// Bus hands DTRs between stages, one inbox per stage; a DTR is owned
// by exactly one stage at a time
type Bus struct {
	inbox  [numStages]chan *DTR
	closed chan struct{}
	once   sync.Once
}

func NewBus(capacity int) *Bus {
	b := &Bus{closed: make(chan struct{})}
	for i := range b.inbox {
		b.inbox[i] = make(chan *DTR, capacity)
	}
	return b
}

// Push transfers ownership from `from` to `to`; blocks while the inbox is full
func (b *Bus) Push(ctx context.Context, d *DTR, from, to Stage) error {
	if to < 0 || to >= numStages {
		return fmt.Errorf("invalid stage %d", int(to))
	}
	d.mu.Lock()
	if d.Owner != from {
		owner := d.Owner
		d.mu.Unlock()
		return fmt.Errorf("%w: %s is owned by %s, not %s", ErrNotOwner, d.ID, owner, from)
	}
	d.Owner = to
	d.mu.Unlock()

	select {
	case b.inbox[to] <- d:
		return nil
	case <-b.closed:
	case <-ctx.Done():
	}
	// not delivered: ownership stays with the sender
	d.mu.Lock()
	d.Owner = from
	d.mu.Unlock()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return ErrBusClosed
}

// Receive returns the next DTR addressed to stage
func (b *Bus) Receive(ctx context.Context, stage Stage) (*DTR, error) {
	select {
	case d := <-b.inbox[stage]:
		return d, nil
	case <-b.closed:
		return nil, ErrBusClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *Bus) Close() { b.once.Do(func() { close(b.closed) }) }
