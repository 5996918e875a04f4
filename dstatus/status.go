// Package dstatus defines the closed set of data staging result codes
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package dstatus

import (
	"errors"
	"fmt"

	"github.com/IATkachenko/arc-sub001/cmn/cos"
)

type Code int

const (
	Success Code = iota
	ReadAcquireError
	WriteAcquireError
	ReadResolveError
	WriteResolveError
	ReadStartError
	WriteStartError
	ReadError
	WriteError
	TransferError // timeout or otherwise ambiguous side
	ReadStopError
	WriteStopError
	PreRegisterError
	PostRegisterError
	UnregisterError
	CacheError
	CacheErrorRetryable
	CredentialsExpiredError
	DeleteError
	NoLocationError
	LocationAlreadyExistsError
	NotSupportedForDirectDataPointsError
	StatError
	ListError
	CheckError
	NotInitializedError
	SystemError
	InconsistentMetadataError
	ReadPrepareError
	WritePrepareError
	SuccessCached
	SuccessCancelled
	GenericError
	UnknownError

	numCodes
)

type descr struct {
	text      string
	retryable bool
}

var codes = [numCodes]descr{
	Success:                              {"success", false},
	ReadAcquireError:                     {"failed to resolve or access source", true},
	WriteAcquireError:                    {"failed to resolve or access destination", true},
	ReadResolveError:                     {"failed to resolve source locations", true},
	WriteResolveError:                    {"failed to resolve destination locations", true},
	ReadStartError:                       {"failed to start reading from source", true},
	WriteStartError:                      {"failed to start writing to destination", true},
	ReadError:                            {"failed while reading from source", true},
	WriteError:                           {"failed while writing to destination", true},
	TransferError:                        {"failed while transferring data", true},
	ReadStopError:                        {"failed to complete reading from source", true},
	WriteStopError:                       {"failed to complete writing to destination", true},
	PreRegisterError:                     {"first stage of registration of destination failed", false},
	PostRegisterError:                    {"last stage of registration of destination failed", true},
	UnregisterError:                      {"unregistration of destination failed", true},
	CacheError:                           {"error in caching procedure", false},
	CacheErrorRetryable:                  {"cache entry is locked by another process", true},
	CredentialsExpiredError:              {"credentials expired or not found", false},
	DeleteError:                          {"failed to delete location", true},
	NoLocationError:                      {"no valid location available", false},
	LocationAlreadyExistsError:           {"location already exists", false},
	NotSupportedForDirectDataPointsError: {"operation not supported for this kind of URL", false},
	StatError:                            {"failed to obtain information about file", true},
	ListError:                            {"failed to list directory", true},
	CheckError:                           {"permission check failed", true},
	NotInitializedError:                  {"data point is not initialized", false},
	SystemError:                          {"internal system error", false},
	InconsistentMetadataError:            {"inconsistent metadata", false},
	ReadPrepareError:                     {"failed to prepare source", true},
	WritePrepareError:                    {"failed to prepare destination", true},
	SuccessCached:                        {"data was already cached", false},
	SuccessCancelled:                     {"operation was cancelled successfully", false},
	GenericError:                         {"generic error", false},
	UnknownError:                         {"unknown error", false},
}

func (c Code) String() string {
	if c < 0 || c >= numCodes {
		return fmt.Sprintf("code(%d)", int(c))
	}
	return codes[c].text
}

// Retryable per code table
func (c Code) Retryable() bool { return c >= 0 && c < numCodes && codes[c].retryable }

// Err is the only error type returned by the staging core
type Err struct {
	cause     error
	Desc      string
	Code      Code
	Errno     int
	retryable *bool // explicit override
}

func New(code Code, desc string) *Err { return &Err{Code: code, Desc: desc} }

func Newf(code Code, format string, a ...any) *Err {
	return &Err{Code: code, Desc: fmt.Sprintf(format, a...)}
}

// Wrap returns nil for nil err; an existing *Err is re-coded while keeping its
// description, errno, and cause
func Wrap(code Code, err error) error {
	if err == nil {
		return nil
	}
	var e *Err
	if errors.As(err, &e) {
		return &Err{Code: code, Desc: e.Desc, Errno: e.Errno, cause: e.cause}
	}
	return &Err{Code: code, Desc: err.Error(), Errno: cos.Errno(err), cause: err}
}

func (e *Err) Error() string {
	if e.Desc == "" {
		return e.Code.String()
	}
	return e.Code.String() + ": " + e.Desc
}

func (e *Err) Unwrap() error { return e.cause }

func (e *Err) Retryable() bool {
	if e.retryable != nil {
		return *e.retryable
	}
	return e.Code.Retryable()
}

func (e *Err) SetRetryable(v bool) *Err {
	e.retryable = &v
	return e
}

// Is matches by code: errors.Is(err, dstatus.New(dstatus.CacheError, ""))
func (e *Err) Is(target error) bool {
	var t *Err
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// CodeOf returns Success for nil, UnknownError for foreign errors
func CodeOf(err error) Code {
	if err == nil {
		return Success
	}
	var e *Err
	if errors.As(err, &e) {
		return e.Code
	}
	return UnknownError
}

func IsRetryable(err error) bool {
	var e *Err
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return cos.IsRetriableConnErr(err)
}

func Is(err error, code Code) bool { return err != nil && CodeOf(err) == code }

// ErrnoOf returns the system error number carried by err, if any
func ErrnoOf(err error) int {
	var e *Err
	if errors.As(err, &e) && e.Errno != 0 {
		return e.Errno
	}
	return cos.Errno(err)
}
