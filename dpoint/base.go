// Package dpoint defines data points: the source and destination endpoints
// of a transfer, either direct (physical) or indexed (logical names resolved
// through an index service into replicas)
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package dpoint

import (
	"context"

	"github.com/IATkachenko/arc-sub001/cmn"
	"github.com/IATkachenko/arc-sub001/cmn/cos"
	"github.com/IATkachenko/arc-sub001/cmn/nlog"
	"github.com/IATkachenko/arc-sub001/dstatus"
	"github.com/IATkachenko/arc-sub001/durl"
)

// Base implements the protocol-independent part of an endpoint: attributes,
// location list with its cursor, and the retry budget. Concrete endpoints
// embed it and override what they support.
type Base struct {
	u          *durl.URL
	Env        *Env
	attrs      Attrs
	locs       []Location
	cur        int
	tries      int
	bufSize    int64
	bufNum     int
	kind       Kind
	registered bool
}

func NewBase(u *durl.URL, env *Env, kind Kind) Base {
	config := env.Conf()
	b := Base{
		u:       u,
		Env:     env,
		attrs:   NewAttrs(),
		kind:    kind,
		tries:   max(config.Transfer.Retries, 1),
		bufSize: int64(config.Transfer.BufSize),
		bufNum:  config.Transfer.BufNum,
	}
	if ty, v := u.MetaOption(durl.MdChecksumType), u.MetaOption(durl.MdChecksumValue); ty != "" && v != "" {
		b.attrs.Cksum = cos.NewCksum(ty, v)
	}
	if kind == Direct {
		b.locs = []Location{{URL: u, Name: u.Name()}}
	}
	return b
}

func (b *Base) URL() *durl.URL { return b.u }
func (b *Base) String() string { return b.u.String() }
func (b *Base) Kind() Kind     { return b.kind }
func (b *Base) Attrs() *Attrs  { return &b.attrs }

func (b *Base) SetMeta(other Endpoint) { b.attrs.Merge(other.Attrs()) }

func (b *Base) CompareMeta(other Endpoint) bool { return b.attrs.Compatible(other.Attrs()) }

// defaults; overridden by concrete endpoints
func (*Base) ProvidesMeta() bool { return false }
func (*Base) Cacheable() bool    { return false }
func (*Base) Local() bool        { return false }
func (*Base) Seekable() bool     { return false }
func (b *Base) BufSize() int64   { return b.bufSize }
func (b *Base) BufNum() int      { return b.bufNum }

func (b *Base) SetBufHints(size int64, num int) {
	if size > 0 {
		b.bufSize = size
	}
	if num > 0 {
		b.bufNum = num
	}
}

// CacheAllowed: URL option `cache=no` disables caching for any protocol
func (b *Base) CacheAllowed() bool { return b.u.Option(durl.OptCache) != durl.CacheNo }

///////////////
// locations //
///////////////

func (b *Base) HaveLocations() bool { return len(b.locs) > 0 }

func (b *Base) LocationValid() bool { return b.tries > 0 && b.cur < len(b.locs) }

func (b *Base) CurrentLocation() *durl.URL {
	if b.cur >= len(b.locs) {
		return nil
	}
	return b.locs[b.cur].URL
}

func (b *Base) CurrentLocationName() string {
	if b.cur >= len(b.locs) {
		return ""
	}
	return b.locs[b.cur].Name
}

func (b *Base) Locations() []Location { return b.locs }

func (b *Base) Retries() int     { return b.tries }
func (b *Base) SetRetries(n int) { b.tries = n }

// NextLocation advances the cursor; an indexed endpoint spends one retry per
// pass over the whole list, a direct one - per call
func (b *Base) NextLocation() bool {
	if b.tries <= 0 {
		return false
	}
	if b.kind == Direct {
		b.tries--
		return b.tries > 0
	}
	b.cur++
	if b.cur >= len(b.locs) {
		b.tries--
		if b.tries <= 0 || len(b.locs) == 0 {
			return false
		}
		b.cur = 0
	}
	if nlog.V(nlog.LevelVerbose) {
		nlog.Infoln(b.u.String(), "next location:", b.CurrentLocationName())
	}
	return true
}

// RemoveLocation drops the current location; the cursor moves to the next one
func (b *Base) RemoveLocation() error {
	if b.kind == Direct {
		return errNotIndexed("remove location", b.u)
	}
	if b.cur >= len(b.locs) {
		return dstatus.New(dstatus.NoLocationError, "no current location")
	}
	b.locs = append(b.locs[:b.cur], b.locs[b.cur+1:]...)
	if b.cur >= len(b.locs) {
		b.cur = 0
	}
	return nil
}

// RemoveLocations drops locations physically identical to any of the other's
func (b *Base) RemoveLocations(other Endpoint) error {
	if b.kind == Direct {
		return nil
	}
	drop := make(map[string]struct{}, 4)
	for _, loc := range other.Locations() {
		drop[loc.URL.CanonicalString()] = struct{}{}
	}
	locs := b.locs[:0]
	for _, loc := range b.locs {
		if _, ok := drop[loc.URL.CanonicalString()]; !ok {
			locs = append(locs, loc)
		}
	}
	b.locs = locs
	b.cur = 0
	return nil
}

func (b *Base) AddLocation(u *durl.URL, name string) error {
	if b.kind == Direct {
		return errNotIndexed("add location", b.u)
	}
	for _, loc := range b.locs {
		if loc.URL.CanonicalString() == u.CanonicalString() {
			return dstatus.Newf(dstatus.LocationAlreadyExistsError, "%s already in %s", u, b.u)
		}
	}
	if name == "" {
		name = u.Name()
	}
	b.locs = append(b.locs, Location{URL: u, Name: name})
	return nil
}

// SetLocations replaces the list (index lookup)
func (b *Base) SetLocations(locs []Location) { b.locs, b.cur = locs, 0 }

///////////////////////////////////
// index service (direct: no-op) //
///////////////////////////////////

func (b *Base) Resolve(context.Context, bool) error {
	if b.kind == Indexed && len(b.locs) == 0 {
		return dstatus.Newf(dstatus.NoLocationError, "%s: no locations", b.u)
	}
	return nil
}

func (b *Base) Registered() bool     { return b.registered }
func (b *Base) SetRegistered(v bool) { b.registered = v }

func (*Base) PreRegister(context.Context, bool, bool) error { return nil }
func (*Base) PostRegister(context.Context, bool) error      { return nil }
func (*Base) PreUnregister(context.Context, bool) error     { return nil }
func (*Base) Unregister(context.Context, bool) error        { return nil }

func (b *Base) List(context.Context) ([]*FileInfo, error) {
	return nil, dstatus.Newf(dstatus.ListError, "%s: listing not supported", b.u)
}

func (b *Base) Check(context.Context) error { return nil }

func errNotIndexed(what string, u *durl.URL) error {
	return dstatus.Newf(dstatus.NotSupportedForDirectDataPointsError, "%s: %s", what, u)
}

// Conf falls back to the global config
func (env *Env) Conf() *cmn.Config {
	if env == nil || env.Config == nil {
		return cmn.GCO.Get()
	}
	return env.Config
}
