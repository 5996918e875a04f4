// Package cos provides common low-level types and utilities for all staging packages
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync"
	ratomic "sync/atomic"
	"syscall"

	"github.com/IATkachenko/arc-sub001/cmn/debug"
)

type (
	ErrNotFound struct {
		where fmt.Stringer
		what  string
	}
	Errs struct {
		errs []error
		cnt  int64
		cap  int
		mu   sync.Mutex
	}
)

// ErrNotFound

func NewErrNotFound(where fmt.Stringer, what string) *ErrNotFound {
	return &ErrNotFound{where: where, what: what}
}

func (e *ErrNotFound) Error() string {
	s := e.what
	if !strings.Contains(s, "not exist") && !strings.Contains(s, "not found") {
		s += " does not exist"
	}
	if e.where == nil {
		return s
	}
	return e.where.String() + ": " + s
}

func IsErrNotFound(err error) bool {
	var e *ErrNotFound
	return errors.As(err, &e)
}

func IsNotExist(err error, ecode ...int) bool {
	if len(ecode) > 0 && ecode[0] == http.StatusNotFound {
		return true
	}
	return IsErrNotFound(err) || os.IsNotExist(err) || errors.Is(err, iofs.ErrNotExist)
}

// Errs is a thread-safe collection of errors

const defaultMaxErrs = 8

func NewErrs(maxErrs ...int) Errs {
	capacity := defaultMaxErrs
	if len(maxErrs) > 0 && maxErrs[0] > 0 {
		capacity = maxErrs[0]
	}
	return Errs{
		errs: make([]error, 0, capacity),
		cap:  capacity,
	}
}

func (e *Errs) Add(err error) {
	debug.Assert(err != nil)
	e.mu.Lock()
	for _, added := range e.errs {
		if added.Error() == err.Error() {
			e.mu.Unlock()
			return
		}
	}
	if len(e.errs) < e.cap {
		e.errs = append(e.errs, err)
		ratomic.StoreInt64(&e.cnt, int64(len(e.errs)))
	}
	e.mu.Unlock()
}

func (e *Errs) Cnt() int { return int(ratomic.LoadInt64(&e.cnt)) }

func (e *Errs) JoinErr() (cnt int, err error) {
	if cnt = e.Cnt(); cnt > 0 {
		e.mu.Lock()
		err = errors.Join(e.errs...)
		e.mu.Unlock()
	}
	return
}

func (e *Errs) Error() string {
	var (
		err error
		cnt = e.Cnt()
	)
	if cnt == 0 {
		return ""
	}
	e.mu.Lock()
	err = e.errs[0]
	e.mu.Unlock()
	if cnt > 1 {
		err = fmt.Errorf("%v (and %d more error%s)", err, cnt-1, Plural(cnt-1))
	}
	return err.Error()
}

func (e *Errs) Unwrap() []error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.errs)
}

//
// IS-syscall helpers
//

func IsErrConnectionRefused(err error) bool { return errors.Is(err, syscall.ECONNREFUSED) }
func IsErrConnectionReset(err error) bool   { return errors.Is(err, syscall.ECONNRESET) }
func IsErrBrokenPipe(err error) bool        { return errors.Is(err, syscall.EPIPE) }

// retriable conn errs
func IsRetriableConnErr(err error) bool {
	return IsErrConnectionRefused(err) || IsErrConnectionReset(err) || IsErrBrokenPipe(err) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

func IsErrOOS(err error) bool       { return errors.Is(err, syscall.ENOSPC) }
func IsErrExist(err error) bool     { return errors.Is(err, iofs.ErrExist) }
func IsErrNoProcess(err error) bool { return errors.Is(err, syscall.ESRCH) }

// Errno extracts the system error number (0 when none)
func Errno(err error) int {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return int(errno)
	}
	return 0
}
