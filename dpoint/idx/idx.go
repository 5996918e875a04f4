// Package idx implements the indexed data point over the local catalog:
// idx://[loc1|loc2@]catalog/lfn
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package idx

import (
	"context"
	"errors"
	"path"
	"syscall"

	"github.com/IATkachenko/arc-sub001/catalog"
	"github.com/IATkachenko/arc-sub001/cmn/nlog"
	"github.com/IATkachenko/arc-sub001/dbuf"
	"github.com/IATkachenko/arc-sub001/dpoint"
	"github.com/IATkachenko/arc-sub001/dstatus"
	"github.com/IATkachenko/arc-sub001/durl"
)

const Scheme = "idx"

// endpoint resolves into replicas; data operations go to a direct
// endpoint created for the current location
type endpoint struct {
	dpoint.Base
	delegate dpoint.Endpoint
	dloc     string // location the delegate was created for
	lfn      string
	guid     string
	created  bool // catalog entry made by PreRegister
}

// interface guard
var _ dpoint.Endpoint = (*endpoint)(nil)

func init() { dpoint.Register(Scheme, dpoint.Indexed, New) }

func New(u *durl.URL, env *dpoint.Env) (dpoint.Endpoint, error) {
	if env == nil || env.Catalogs == nil {
		return nil, dstatus.Newf(dstatus.NotInitializedError, "%s: no catalogs", u)
	}
	if u.Host == "" || u.Path == "" || u.Path == "/" {
		return nil, dstatus.Newf(dstatus.NotInitializedError, "%s: expecting %s://catalog/lfn", u, Scheme)
	}
	ep := &endpoint{
		Base: dpoint.NewBase(u, env, dpoint.Indexed),
		lfn:  u.Path,
		guid: u.MetaOption(durl.MdGUID),
	}
	for _, loc := range u.Locations() {
		if err := ep.AddLocation(loc, loc.Option(durl.OptName)); err != nil {
			return nil, dstatus.Wrap(dstatus.NotInitializedError, err)
		}
	}
	return ep, nil
}

func (ep *endpoint) catalog(fn func(c *catalog.Catalog) error) error {
	c, err := ep.Env.Catalogs.Open(ep.URL().Host)
	if err != nil {
		return err
	}
	defer c.Release()
	return fn(c)
}

func (ep *endpoint) entry() *catalog.Entry {
	var (
		attrs = ep.Attrs()
		e     = catalog.NewEntry(ep.lfn)
	)
	e.GUID = ep.guid
	e.Size = attrs.Size
	if attrs.HasCksum() {
		e.Cksum = attrs.Cksum.Clone()
	}
	if attrs.HasCreated() {
		e.Created = attrs.Created.UnixNano()
	}
	return e
}

func (ep *endpoint) setAttrs(e *catalog.Entry) {
	attrs := dpoint.NewAttrs()
	attrs.Size = e.Size
	attrs.Cksum = e.Cksum
	if t, ok := e.CreatedTime(); ok {
		attrs.Created = t
	}
	ep.Attrs().Merge(&attrs)
	if ep.guid == "" {
		ep.guid = e.GUID
	}
}

func notFound(err error) bool { return errors.Is(err, catalog.ErrNotFound) }

func withErrno(e *dstatus.Err, err error) *dstatus.Err {
	if notFound(err) {
		e.Errno = int(syscall.ENOENT)
	}
	return e
}

///////////////////
// index service //
///////////////////

// Resolve: as a source the replicas come from the catalog in registration
// order; as a destination the embedded locations are used
func (ep *endpoint) Resolve(_ context.Context, source bool) error {
	var e *catalog.Entry
	err := ep.catalog(func(c *catalog.Catalog) (err error) {
		e, err = c.Lookup(ep.lfn)
		return err
	})
	if source {
		if err != nil {
			return withErrno(dstatus.Newf(dstatus.ReadResolveError, "%s: %v", ep, err), err)
		}
		locs := make([]dpoint.Location, 0, len(e.Replicas))
		for _, r := range e.Replicas {
			u, err := durl.Parse(r.URL)
			if err != nil {
				nlog.Warningln(ep.String(), "skipping replica", r.URL+":", err)
				continue
			}
			locs = append(locs, dpoint.Location{URL: u, Name: r.Name})
		}
		if len(locs) == 0 {
			return dstatus.Newf(dstatus.NoLocationError, "%s: no replicas", ep)
		}
		ep.SetLocations(locs)
		ep.setAttrs(e)
		ep.SetRegistered(true)
		return nil
	}
	switch {
	case err == nil:
		ep.SetRegistered(true)
		if ep.guid == "" {
			ep.guid = e.GUID
		}
	case notFound(err):
		ep.SetRegistered(false)
	default:
		return dstatus.Newf(dstatus.WriteResolveError, "%s: %v", ep, err)
	}
	if !ep.HaveLocations() {
		return dstatus.Newf(dstatus.WriteResolveError, "%s: no destination locations", ep)
	}
	return nil
}

func (*endpoint) ProvidesMeta() bool { return true }

func (ep *endpoint) PreRegister(_ context.Context, replication, force bool) error {
	err := ep.catalog(func(c *catalog.Catalog) error {
		e, created, err := c.Create(ep.entry(), replication, force)
		if err == nil {
			ep.guid, ep.created = e.GUID, created
		}
		return err
	})
	if err != nil {
		return dstatus.Newf(dstatus.PreRegisterError, "%s: %v", ep, err)
	}
	return nil
}

func (ep *endpoint) PostRegister(_ context.Context, _ bool) error {
	loc := ep.CurrentLocation()
	if loc == nil {
		return dstatus.Newf(dstatus.PostRegisterError, "%s: no current location", ep)
	}
	r := catalog.Replica{URL: loc.String(), Name: ep.CurrentLocationName()}
	err := ep.catalog(func(c *catalog.Catalog) error { return c.AddReplica(ep.lfn, r, ep.entry()) })
	if err != nil {
		return dstatus.Newf(dstatus.PostRegisterError, "%s: %v", ep, err)
	}
	ep.SetRegistered(true)
	return nil
}

// PreUnregister rolls back an unfinished registration; an entry that
// existed before PreRegister stays
func (ep *endpoint) PreUnregister(_ context.Context, replication bool) error {
	if replication || !ep.created {
		return nil
	}
	if err := ep.catalog(func(c *catalog.Catalog) error { return c.DeleteIfEmpty(ep.lfn) }); err != nil {
		return dstatus.Newf(dstatus.UnregisterError, "%s: %v", ep, err)
	}
	ep.created = false
	return nil
}

// Unregister removes the current replica, or the whole entry
func (ep *endpoint) Unregister(_ context.Context, all bool) error {
	err := ep.catalog(func(c *catalog.Catalog) error {
		if all {
			return c.Delete(ep.lfn)
		}
		loc := ep.CurrentLocation()
		if loc == nil {
			return catalog.ErrNotFound
		}
		return c.RemoveReplica(ep.lfn, loc.String())
	})
	if err != nil {
		return withErrno(dstatus.Newf(dstatus.UnregisterError, "%s: %v", ep, err), err)
	}
	if all {
		ep.SetRegistered(false)
	}
	return nil
}

//////////////
// delegate //
//////////////

func (ep *endpoint) current() (dpoint.Endpoint, error) {
	loc := ep.CurrentLocation()
	if loc == nil {
		return nil, dstatus.Newf(dstatus.NoLocationError, "%s: no current location", ep)
	}
	if ep.delegate != nil && ep.dloc == loc.String() {
		return ep.delegate, nil
	}
	d, err := dpoint.NewFromURL(loc, ep.Env)
	if err != nil {
		return nil, dstatus.Wrap(dstatus.NotInitializedError, err)
	}
	if d.Kind() == dpoint.Indexed {
		return nil, dstatus.Newf(dstatus.NotInitializedError, "%s: indexed location %s", ep, loc)
	}
	d.SetMeta(ep)
	ep.delegate, ep.dloc = d, loc.String()
	return d, nil
}

func (ep *endpoint) Cacheable() bool {
	d, err := ep.current()
	return err == nil && d.Cacheable() && ep.CacheAllowed()
}

func (ep *endpoint) Local() bool {
	d, err := ep.current()
	return err == nil && d.Local()
}

func (ep *endpoint) Seekable() bool {
	d, err := ep.current()
	return err == nil && d.Seekable()
}

func (ep *endpoint) BufSize() int64 {
	if d, err := ep.current(); err == nil {
		return d.BufSize()
	}
	return ep.Base.BufSize()
}

func (ep *endpoint) BufNum() int {
	if d, err := ep.current(); err == nil {
		return d.BufNum()
	}
	return ep.Base.BufNum()
}

// Stat reports what the catalog knows
func (ep *endpoint) Stat(context.Context) (*dpoint.FileInfo, error) {
	var e *catalog.Entry
	err := ep.catalog(func(c *catalog.Catalog) (err error) {
		e, err = c.Lookup(ep.lfn)
		return err
	})
	if err != nil {
		return nil, withErrno(dstatus.Newf(dstatus.StatError, "%s: %v", ep, err), err)
	}
	ep.setAttrs(e)
	fi := &dpoint.FileInfo{Attrs: *ep.Attrs(), Name: path.Base(e.LFN), Type: dpoint.TypeFile}
	return fi, nil
}

func (ep *endpoint) List(context.Context) ([]*dpoint.FileInfo, error) {
	var entries []*catalog.Entry
	err := ep.catalog(func(c *catalog.Catalog) (err error) {
		entries, err = c.List(ep.lfn)
		return err
	})
	if err != nil {
		return nil, dstatus.Newf(dstatus.ListError, "%s: %v", ep, err)
	}
	files := make([]*dpoint.FileInfo, 0, len(entries))
	for _, e := range entries {
		fi := &dpoint.FileInfo{Attrs: dpoint.NewAttrs(), Name: e.LFN, Type: dpoint.TypeFile}
		fi.Size, fi.Cksum = e.Size, e.Cksum
		if t, ok := e.CreatedTime(); ok {
			fi.Created = t
		}
		files = append(files, fi)
	}
	return files, nil
}

func (ep *endpoint) Check(ctx context.Context) error {
	d, err := ep.current()
	if err != nil {
		return dstatus.Wrap(dstatus.CheckError, err)
	}
	return d.Check(ctx)
}

// Remove deletes the physical replica at the current location
func (ep *endpoint) Remove(ctx context.Context) error {
	d, err := ep.current()
	if err != nil {
		return dstatus.Wrap(dstatus.DeleteError, err)
	}
	return d.Remove(ctx)
}

func (ep *endpoint) StartReading(ctx context.Context, buf *dbuf.Buffer) error {
	d, err := ep.current()
	if err != nil {
		return dstatus.Wrap(dstatus.ReadStartError, err)
	}
	return d.StartReading(ctx, buf)
}

func (ep *endpoint) StopReading() error {
	if ep.delegate == nil {
		return dstatus.New(dstatus.ReadStopError, "not reading")
	}
	err := ep.delegate.StopReading()
	ep.SetMeta(ep.delegate)
	return err
}

func (ep *endpoint) StartWriting(ctx context.Context, buf *dbuf.Buffer) error {
	d, err := ep.current()
	if err != nil {
		return dstatus.Wrap(dstatus.WriteStartError, err)
	}
	d.SetMeta(ep)
	return d.StartWriting(ctx, buf)
}

func (ep *endpoint) StopWriting() error {
	if ep.delegate == nil {
		return dstatus.New(dstatus.WriteStopError, "not writing")
	}
	return ep.delegate.StopWriting()
}
