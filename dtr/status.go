// Package dtr defines the data transfer request: a record of one transfer
// moving through processing stages
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package dtr

import (
	"errors"
	"fmt"
)

type Status int

const (
	StatusNew Status = iota
	StatusCheckCache
	StatusCheckingCache
	StatusCacheWait
	StatusCacheChecked
	StatusResolve
	StatusResolving
	StatusResolved
	StatusQueryReplica
	StatusQueryingReplica
	StatusReplicaQueried
	StatusPreClean
	StatusPreCleaning
	StatusPreCleaned
	StatusStagePrepare
	StatusStagingPreparing
	StatusStagedPrepared
	StatusTransfer
	StatusTransferring
	StatusTransferringCancel
	StatusTransferred
	StatusReleaseRequest
	StatusReleasingRequest
	StatusRequestReleased
	StatusRegisterReplica
	StatusRegisteringReplica
	StatusReplicaRegistered
	StatusProcessCache
	StatusProcessingCache
	StatusCacheProcessed
	StatusDone
	StatusCancelled
	StatusError

	numStatuses
)

var statusNames = [numStatuses]string{
	"NEW",
	"CHECK_CACHE",
	"CHECKING_CACHE",
	"CACHE_WAIT",
	"CACHE_CHECKED",
	"RESOLVE",
	"RESOLVING",
	"RESOLVED",
	"QUERY_REPLICA",
	"QUERYING_REPLICA",
	"REPLICA_QUERIED",
	"PRE_CLEAN",
	"PRE_CLEANING",
	"PRE_CLEANED",
	"STAGE_PREPARE",
	"STAGING_PREPARING",
	"STAGED_PREPARED",
	"TRANSFER",
	"TRANSFERRING",
	"TRANSFERRING_CANCEL",
	"TRANSFERRED",
	"RELEASE_REQUEST",
	"RELEASING_REQUEST",
	"REQUEST_RELEASED",
	"REGISTER_REPLICA",
	"REGISTERING_REPLICA",
	"REPLICA_REGISTERED",
	"PROCESS_CACHE",
	"PROCESSING_CACHE",
	"CACHE_PROCESSED",
	"DONE",
	"CANCELLED",
	"ERROR",
}

// allowed moves, other than to CANCELLED and ERROR (always allowed from non-terminal)
var transitions = map[Status][]Status{
	StatusNew:                {StatusCheckCache, StatusResolve},
	StatusResolve:            {StatusResolving},
	StatusResolving:          {StatusResolved},
	StatusResolved:           {StatusQueryReplica, StatusPreClean, StatusCheckCache, StatusStagePrepare, StatusTransfer},
	StatusQueryReplica:       {StatusQueryingReplica},
	StatusQueryingReplica:    {StatusReplicaQueried},
	StatusReplicaQueried:     {StatusPreClean, StatusCheckCache, StatusStagePrepare, StatusTransfer},
	StatusPreClean:           {StatusPreCleaning},
	StatusPreCleaning:        {StatusPreCleaned},
	StatusPreCleaned:         {StatusResolve, StatusCheckCache, StatusStagePrepare, StatusTransfer},
	StatusCheckCache:         {StatusCheckingCache},
	StatusCheckingCache:      {StatusCacheChecked, StatusCacheWait},
	StatusCacheWait:          {StatusCheckCache, StatusResolve},
	StatusCacheChecked:       {StatusResolve, StatusStagePrepare, StatusTransfer, StatusProcessCache, StatusCheckCache},
	StatusStagePrepare:       {StatusStagingPreparing},
	StatusStagingPreparing:   {StatusStagedPrepared, StatusCheckCache},
	StatusStagedPrepared:     {StatusTransfer},
	StatusTransfer:           {StatusTransferring},
	StatusTransferring:       {StatusTransferred, StatusTransferringCancel, StatusCheckCache, StatusTransfer},
	StatusTransferringCancel: {},
	StatusTransferred:        {StatusReleaseRequest, StatusRegisterReplica, StatusProcessCache, StatusDone},
	StatusReleaseRequest:     {StatusReleasingRequest},
	StatusReleasingRequest:   {StatusRequestReleased},
	StatusRequestReleased:    {StatusRegisterReplica, StatusProcessCache, StatusDone},
	StatusRegisterReplica:    {StatusRegisteringReplica},
	StatusRegisteringReplica: {StatusReplicaRegistered, StatusCheckCache, StatusTransfer},
	StatusReplicaRegistered:  {StatusProcessCache, StatusDone},
	StatusProcessCache:       {StatusProcessingCache},
	StatusProcessingCache:    {StatusCacheProcessed},
	StatusCacheProcessed:     {StatusRegisterReplica, StatusDone},
}

var ErrTransition = errors.New("invalid status transition")

func (s Status) String() string {
	if s < 0 || s >= numStatuses {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

func ParseStatus(name string) (Status, error) {
	for i, n := range statusNames {
		if n == name {
			return Status(i), nil
		}
	}
	return 0, fmt.Errorf("unknown DTR status %q", name)
}

func (s Status) Terminal() bool { return s == StatusDone || s == StatusCancelled || s == StatusError }

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) (err error) {
	*s, err = ParseStatus(string(b))
	return err
}

// CanMove reports whether s -> to is allowed
func (s Status) CanMove(to Status) bool {
	if s.Terminal() {
		return false
	}
	if to == StatusCancelled || to == StatusError {
		return true
	}
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

////////////////
// CacheState //
////////////////

type CacheState int

const (
	CacheNone CacheState = iota
	CacheCacheable
	CacheNonCacheable
	CacheLocked
	CacheDownloaded
	CacheSkip
	CacheCached
)

var cacheStateNames = []string{"NONE", "CACHEABLE", "NON_CACHEABLE", "CACHE_LOCKED", "CACHE_DOWNLOADED", "CACHE_SKIP", "CACHED"}

func (c CacheState) String() string {
	if c < 0 || int(c) >= len(cacheStateNames) {
		return fmt.Sprintf("CacheState(%d)", int(c))
	}
	return cacheStateNames[c]
}

func (c CacheState) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *CacheState) UnmarshalText(b []byte) error {
	for i, n := range cacheStateNames {
		if n == string(b) {
			*c = CacheState(i)
			return nil
		}
	}
	return fmt.Errorf("unknown cache state %q", b)
}
