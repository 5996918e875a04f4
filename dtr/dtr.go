// Package dtr defines the data transfer request: a record of one transfer
// moving through processing stages
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package dtr

import (
	"fmt"
	"sync"
	"time"

	"github.com/IATkachenko/arc-sub001/cmn/cos"
	"github.com/IATkachenko/arc-sub001/cmn/nlog"
	"github.com/IATkachenko/arc-sub001/dstatus"
)

const DefaultPriority = 50

type (
	Transition struct {
		Time   time.Time `json:"time"`
		Status Status    `json:"status"`
	}

	// DTR is safe for concurrent use; only the owning stage may change its status
	DTR struct {
		Created   time.Time    `json:"created"`
		Modified  time.Time    `json:"modified"`
		ID        string       `json:"id"`
		JobID     string       `json:"job_id"`
		Source    string       `json:"source"`
		Dest      string       `json:"dest"`
		ErrDesc   string       `json:"error,omitempty"`
		History   []Transition `json:"history"`
		Bytes     int64        `json:"bytes"`
		Priority  int          `json:"priority"`
		TriesLeft int          `json:"tries_left"`
		Status    Status       `json:"status"`
		ErrCode   dstatus.Code `json:"error_code,omitempty"`
		Cache     CacheState   `json:"cache"`
		Owner     Stage        `json:"owner"`
		mu        sync.Mutex
	}
)

func New(jobID, source, dest string, tries int) *DTR {
	now := time.Now()
	d := &DTR{
		ID:        cos.GenUUID(),
		JobID:     jobID,
		Source:    source,
		Dest:      dest,
		Priority:  DefaultPriority,
		TriesLeft: max(tries, 1),
		Status:    StatusNew,
		Owner:     StageGenerator,
		Created:   now,
		Modified:  now,
	}
	d.History = []Transition{{Status: StatusNew, Time: now}}
	return d
}

func (d *DTR) String() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fmt.Sprintf("dtr[%s %s => %s %s@%s]", d.ID, d.Source, d.Dest, d.Status, d.Owner)
}

func (d *DTR) GetStatus() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Status
}

func (d *DTR) GetOwner() Stage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Owner
}

// SetStatus rejects moves the status machine does not allow
func (d *DTR) SetStatus(s Status) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setStatus(s)
}

func (d *DTR) setStatus(s Status) error {
	if d.Status == s {
		return nil
	}
	if !d.Status.CanMove(s) {
		return fmt.Errorf("%w: %s => %s (%s)", ErrTransition, d.Status, s, d.ID)
	}
	if nlog.V(nlog.LevelDebug) {
		nlog.Infoln(d.ID, d.Status.String(), "=>", s.String())
	}
	now := time.Now()
	d.Status, d.Modified = s, now
	d.History = append(d.History, Transition{Status: s, Time: now})
	return nil
}

// Fail moves to ERROR recording the error kind and description
func (d *DTR) Fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Status.Terminal() {
		return
	}
	d.ErrCode, d.ErrDesc = dstatus.CodeOf(err), err.Error()
	if err := d.setStatus(StatusError); err != nil {
		nlog.Errorln(err)
	}
}

func (d *DTR) Cancel() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setStatus(StatusCancelled)
}

func (d *DTR) SetCache(c CacheState) {
	d.mu.Lock()
	d.Cache = c
	d.mu.Unlock()
}

func (d *DTR) AddBytes(n int64) {
	d.mu.Lock()
	d.Bytes += n
	d.mu.Unlock()
}

// Retryable: failed, with tries left, and the error says trying again may help
func (d *DTR) Retryable() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Status == StatusError && d.TriesLeft > 1 && d.ErrCode.Retryable()
}

func (d *DTR) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Status != StatusError {
		return nil
	}
	return dstatus.New(d.ErrCode, d.ErrDesc)
}

// Clone is a snapshot without the lock
func (d *DTR) Clone() *DTR {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := &DTR{
		Created:   d.Created,
		Modified:  d.Modified,
		ID:        d.ID,
		JobID:     d.JobID,
		Source:    d.Source,
		Dest:      d.Dest,
		ErrDesc:   d.ErrDesc,
		History:   append([]Transition(nil), d.History...),
		Bytes:     d.Bytes,
		Priority:  d.Priority,
		TriesLeft: d.TriesLeft,
		Status:    d.Status,
		ErrCode:   d.ErrCode,
		Cache:     d.Cache,
		Owner:     d.Owner,
	}
	return c
}
