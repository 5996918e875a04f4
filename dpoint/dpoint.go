// Package dpoint defines data points: the source and destination endpoints
// of a transfer, either direct (physical) or indexed (logical names resolved
// through an index service into replicas)
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package dpoint

import (
	"context"
	"time"

	"github.com/IATkachenko/arc-sub001/cmn/cos"
	"github.com/IATkachenko/arc-sub001/dbuf"
	"github.com/IATkachenko/arc-sub001/durl"
)

type Kind int

const (
	Direct Kind = iota
	Indexed
)

// file types
const (
	TypeUnknown = iota
	TypeFile
	TypeDir
)

type (
	// Attrs: each attribute is independently known or unknown
	Attrs struct {
		Cksum   *cos.Cksum
		Created time.Time
		Valid   time.Time
		Size    int64 // -1: unknown
	}

	FileInfo struct {
		Attrs
		Name string
		Type int
	}

	Location struct {
		URL  *durl.URL
		Name string // metadata name the replica is registered under
	}

	// Endpoint is one side of a transfer; the lifetime of its resolution
	// state is a single transfer operation
	Endpoint interface {
		URL() *durl.URL
		String() string
		Kind() Kind

		// metadata
		Attrs() *Attrs
		SetMeta(other Endpoint)
		CompareMeta(other Endpoint) bool
		ProvidesMeta() bool

		// capabilities
		Cacheable() bool
		Local() bool
		Seekable() bool
		BufSize() int64
		BufNum() int

		// locations
		Resolve(ctx context.Context, source bool) error
		HaveLocations() bool
		LocationValid() bool
		CurrentLocation() *durl.URL
		CurrentLocationName() string
		Locations() []Location
		NextLocation() bool
		RemoveLocation() error
		RemoveLocations(other Endpoint) error
		AddLocation(u *durl.URL, name string) error
		Retries() int
		SetRetries(n int)

		// index service
		Registered() bool
		PreRegister(ctx context.Context, replication, force bool) error
		PostRegister(ctx context.Context, replication bool) error
		PreUnregister(ctx context.Context, replication bool) error
		Unregister(ctx context.Context, all bool) error

		// data
		Stat(ctx context.Context) (*FileInfo, error)
		List(ctx context.Context) ([]*FileInfo, error)
		Check(ctx context.Context) error
		Remove(ctx context.Context) error
		StartReading(ctx context.Context, buf *dbuf.Buffer) error
		StopReading() error
		StartWriting(ctx context.Context, buf *dbuf.Buffer) error
		StopWriting() error
	}

	// Preparer is implemented by endpoints that stage data (bring it online,
	// reserve space) ahead of a transfer and release the request after it
	Preparer interface {
		PrepareReading(ctx context.Context) error
		PrepareWriting(ctx context.Context) error
		FinishReading(ctx context.Context) error
		FinishWriting(ctx context.Context) error
	}
)

func (k Kind) String() string {
	if k == Indexed {
		return "indexed"
	}
	return "direct"
}

func NewAttrs() Attrs { return Attrs{Size: -1} }

func (a *Attrs) HasSize() bool    { return a.Size >= 0 }
func (a *Attrs) HasCksum() bool   { return !a.Cksum.IsEmpty() }
func (a *Attrs) HasCreated() bool { return !a.Created.IsZero() }
func (a *Attrs) HasValid() bool   { return !a.Valid.IsZero() }

// Merge fills in what's unknown
func (a *Attrs) Merge(o *Attrs) {
	if !a.HasSize() && o.HasSize() {
		a.Size = o.Size
	}
	if !a.HasCksum() && o.HasCksum() {
		a.Cksum = o.Cksum.Clone()
	}
	if !a.HasCreated() && o.HasCreated() {
		a.Created = o.Created
	}
	if !a.HasValid() && o.HasValid() {
		a.Valid = o.Valid
	}
}

// Compatible: known attributes agree (checksums - when of the same type)
func (a *Attrs) Compatible(o *Attrs) bool {
	if a.HasSize() && o.HasSize() && a.Size != o.Size {
		return false
	}
	if a.HasCksum() && o.HasCksum() && a.Cksum.Type() == o.Cksum.Type() && !a.Cksum.Equal(o.Cksum) {
		return false
	}
	return true
}
