// Package mock provides an in-memory data point with fault injection and
// call counters
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package mock

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	ratomic "sync/atomic"
	"syscall"
	"time"

	"github.com/IATkachenko/arc-sub001/chunk"
	"github.com/IATkachenko/arc-sub001/dbuf"
	"github.com/IATkachenko/arc-sub001/dpoint"
	"github.com/IATkachenko/arc-sub001/dstatus"
	"github.com/IATkachenko/arc-sub001/durl"

	"golang.org/x/sync/errgroup"
)

const Scheme = "mock"

type (
	// Store holds the objects; endpoints sharing a store see each other's writes
	Store struct {
		objs map[string]*object
		mu   sync.Mutex
	}
	object struct {
		created time.Time
		data    []byte
	}

	// Faults are returned by the corresponding operations (nil: success)
	Faults struct {
		Resolve      error
		StartReading error
		StartWriting error
		Prepare      error
		PreRegister  error
		PostRegister error
		Unregister   error
		Check        error
		Remove       error
		// fail the reading (writing) side past this many bytes
		ReadAfter  int64
		WriteAfter int64
		// the reading side of location StallOn ("" for any) hangs past
		// StallAfter bytes until cancelled
		StallAfter int64
		StallOn    string
	}

	Calls struct {
		Resolve       ratomic.Int32
		Stat          ratomic.Int32
		Check         ratomic.Int32
		Remove        ratomic.Int32
		StartReading  ratomic.Int32
		StopReading   ratomic.Int32
		StartWriting  ratomic.Int32
		StopWriting   ratomic.Int32
		Prepare       ratomic.Int32
		Finish        ratomic.Int32
		PreRegister   ratomic.Int32
		PostRegister  ratomic.Int32
		PreUnregister ratomic.Int32
		Unregister    ratomic.Int32
		Ranges        ratomic.Int32 // segments read
	}

	Config struct {
		Locations    []string // indexed: replica URLs, in order
		Threads      int
		Cacheable    bool
		Local        bool
		Seekable     bool
		Indexed      bool
		ProvidesMeta bool
		Registered   bool // indexed: already has a registered replica
	}

	Endpoint struct {
		dpoint.Base
		Faults Faults
		Calls  Calls
		store  *Store
		chunks *chunk.Allocator
		conf   Config
		rjob   dpoint.Job
		wjob   dpoint.Job
	}

	// sink collects what's written; flushed into the store at the end
	sink struct {
		ep    *Endpoint
		data  []byte
		limit int64
		mu    sync.Mutex
	}
)

// interface guard
var (
	_ dpoint.Endpoint = (*Endpoint)(nil)
	_ dpoint.Preparer = (*Endpoint)(nil)
)

// Default backs mock:// URLs created through the registry
var Default = NewStore()

func init() {
	dpoint.Register(Scheme, dpoint.Direct, func(u *durl.URL, env *dpoint.Env) (dpoint.Endpoint, error) {
		return NewFromURL(u, env, Default, Config{Threads: u.Threads(16), ProvidesMeta: true, Cacheable: true})
	})
}

///////////
// Store //
///////////

func NewStore() *Store { return &Store{objs: make(map[string]*object, 8)} }

func key(s string) string {
	u, err := durl.Parse(s)
	if err != nil {
		return s
	}
	return u.CanonicalString()
}

func (s *Store) Put(url string, data []byte) { s.PutAt(url, data, time.Now()) }

func (s *Store) PutAt(url string, data []byte, created time.Time) {
	s.mu.Lock()
	s.objs[key(url)] = &object{data: append([]byte(nil), data...), created: created}
	s.mu.Unlock()
}

func (s *Store) Get(url string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objs[key(url)]
	if !ok {
		return nil, false
	}
	return obj.data, true
}

func (s *Store) get(k string) (*object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objs[k]
	return obj, ok
}

func (s *Store) del(k string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objs[k]
	delete(s.objs, k)
	return ok
}

func (s *Store) keys(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.objs))
	for k := range s.objs {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

//////////////
// Endpoint //
//////////////

func New(rawURL string, env *dpoint.Env, store *Store, conf Config) (*Endpoint, error) {
	u, err := durl.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	return NewFromURL(u, env, store, conf)
}

func NewFromURL(u *durl.URL, env *dpoint.Env, store *Store, conf Config) (*Endpoint, error) {
	kind := dpoint.Direct
	if conf.Indexed {
		kind = dpoint.Indexed
	}
	ep := &Endpoint{Base: dpoint.NewBase(u, env, kind), store: store, conf: conf}
	ep.Base.SetBufHints(0, max(ep.Base.BufNum(), 2*ep.threads()))
	for _, loc := range conf.Locations {
		lu, err := durl.Parse(loc)
		if err != nil {
			return nil, err
		}
		if err := ep.AddLocation(lu, ""); err != nil {
			return nil, err
		}
	}
	ep.SetRegistered(conf.Indexed && conf.Registered)
	return ep, nil
}

func (ep *Endpoint) threads() int { return max(ep.conf.Threads, 1) }

// key of the current location
func (ep *Endpoint) key() string {
	if loc := ep.CurrentLocation(); loc != nil {
		return loc.CanonicalString()
	}
	return ep.URL().CanonicalString()
}

// Data returns what's stored at the current location
func (ep *Endpoint) Data() ([]byte, bool) {
	obj, ok := ep.store.get(ep.key())
	if !ok {
		return nil, false
	}
	return obj.data, true
}

func (ep *Endpoint) Cacheable() bool    { return ep.conf.Cacheable && ep.CacheAllowed() }
func (ep *Endpoint) Local() bool        { return ep.conf.Local }
func (ep *Endpoint) Seekable() bool     { return ep.conf.Seekable }
func (ep *Endpoint) ProvidesMeta() bool { return ep.conf.ProvidesMeta }

func (ep *Endpoint) Resolve(ctx context.Context, source bool) error {
	ep.Calls.Resolve.Add(1)
	if err := ep.Faults.Resolve; err != nil {
		code := dstatus.WriteResolveError
		if source {
			code = dstatus.ReadResolveError
		}
		return dstatus.Wrap(code, err)
	}
	if err := ep.Base.Resolve(ctx, source); err != nil {
		return err
	}
	if obj, ok := ep.store.get(ep.key()); ok && source && ep.conf.ProvidesMeta {
		ep.setAttrs(obj)
	}
	return nil
}

func (ep *Endpoint) setAttrs(obj *object) {
	attrs := dpoint.NewAttrs()
	attrs.Size = int64(len(obj.data))
	attrs.Created = obj.created
	ep.Attrs().Merge(&attrs)
}

func (ep *Endpoint) Stat(context.Context) (*dpoint.FileInfo, error) {
	ep.Calls.Stat.Add(1)
	obj, ok := ep.store.get(ep.key())
	if !ok {
		e := dstatus.Newf(dstatus.StatError, "%s: no such object", ep.key())
		e.Errno = int(syscall.ENOENT)
		return nil, e
	}
	ep.setAttrs(obj)
	return &dpoint.FileInfo{Attrs: *ep.Attrs(), Name: path.Base(ep.URL().Path), Type: dpoint.TypeFile}, nil
}

func (ep *Endpoint) List(context.Context) ([]*dpoint.FileInfo, error) {
	keys := ep.store.keys(ep.key())
	files := make([]*dpoint.FileInfo, 0, len(keys))
	for _, k := range keys {
		obj, ok := ep.store.get(k)
		if !ok {
			continue
		}
		fi := &dpoint.FileInfo{Attrs: dpoint.NewAttrs(), Name: k, Type: dpoint.TypeFile}
		fi.Size, fi.Created = int64(len(obj.data)), obj.created
		files = append(files, fi)
	}
	return files, nil
}

func (ep *Endpoint) Check(context.Context) error {
	ep.Calls.Check.Add(1)
	return dstatus.Wrap(dstatus.CheckError, ep.Faults.Check)
}

func (ep *Endpoint) Remove(context.Context) error {
	ep.Calls.Remove.Add(1)
	if err := ep.Faults.Remove; err != nil {
		return dstatus.Wrap(dstatus.DeleteError, err)
	}
	if !ep.store.del(ep.key()) {
		e := dstatus.Newf(dstatus.DeleteError, "%s: no such object", ep.key())
		e.Errno = int(syscall.ENOENT)
		return e
	}
	return nil
}

/////////////
// staging //
/////////////

func (ep *Endpoint) PrepareReading(context.Context) error { return ep.prepare() }
func (ep *Endpoint) PrepareWriting(context.Context) error { return ep.prepare() }
func (ep *Endpoint) FinishReading(context.Context) error  { ep.Calls.Finish.Add(1); return nil }
func (ep *Endpoint) FinishWriting(context.Context) error  { ep.Calls.Finish.Add(1); return nil }

func (ep *Endpoint) prepare() error {
	ep.Calls.Prepare.Add(1)
	return ep.Faults.Prepare
}

///////////////////
// index service //
///////////////////

func (ep *Endpoint) PreRegister(_ context.Context, replication, force bool) error {
	ep.Calls.PreRegister.Add(1)
	if err := ep.Faults.PreRegister; err != nil {
		return dstatus.Wrap(dstatus.PreRegisterError, err)
	}
	if ep.Kind() == dpoint.Indexed && ep.Registered() && !replication && !force {
		return dstatus.Newf(dstatus.PreRegisterError, "%s: already registered", ep)
	}
	return nil
}

func (ep *Endpoint) PostRegister(context.Context, bool) error {
	ep.Calls.PostRegister.Add(1)
	if err := ep.Faults.PostRegister; err != nil {
		return dstatus.Wrap(dstatus.PostRegisterError, err)
	}
	if ep.Kind() == dpoint.Indexed {
		ep.SetRegistered(true)
	}
	return nil
}

func (ep *Endpoint) PreUnregister(context.Context, bool) error {
	ep.Calls.PreUnregister.Add(1)
	return nil
}

func (ep *Endpoint) Unregister(context.Context, bool) error {
	ep.Calls.Unregister.Add(1)
	if err := ep.Faults.Unregister; err != nil {
		return dstatus.Wrap(dstatus.UnregisterError, err)
	}
	ep.SetRegistered(false)
	return nil
}

/////////////
// reading //
/////////////

// StartReading runs Threads parallel workers over the object's byte ranges
func (ep *Endpoint) StartReading(ctx context.Context, buf *dbuf.Buffer) error {
	ep.Calls.StartReading.Add(1)
	if err := ep.Faults.StartReading; err != nil {
		return dstatus.Wrap(dstatus.ReadStartError, err)
	}
	obj, ok := ep.store.get(ep.key())
	if !ok {
		e := dstatus.Newf(dstatus.ReadStartError, "%s: no such object", ep.key())
		e.Errno = int(syscall.ENOENT)
		return e
	}
	ep.setAttrs(obj)
	ep.chunks = chunk.New(int64(len(obj.data)))
	ep.rjob.Go(func() error {
		rctx, cancel := dpoint.WithBuffer(ctx, buf)
		defer cancel()
		g, gctx := errgroup.WithContext(rctx)
		for range ep.threads() {
			g.Go(func() error { return ep.readWorker(gctx, buf, obj.data) })
		}
		err := g.Wait()
		if dpoint.Secondary(rctx, buf, err) {
			return nil
		}
		return dpoint.EndRead(buf, err)
	})
	return nil
}

func (ep *Endpoint) readWorker(ctx context.Context, buf *dbuf.Buffer, data []byte) error {
	for ctx.Err() == nil {
		h, seg, ok := buf.AcquireRead()
		if !ok {
			return nil
		}
		start, length, ok := ep.chunks.Get(int64(len(seg)))
		if !ok {
			buf.ReleaseRead(h, 0, 0)
			return nil
		}
		if lim := ep.Faults.ReadAfter; lim > 0 && start+length > lim {
			buf.ReleaseRead(h, 0, 0)
			ep.chunks.Unclaim(start, length)
			err := fmt.Errorf("%s: injected read failure at offset %d", ep.key(), lim)
			buf.SetErrRead(err.Error())
			return err
		}
		if lim := ep.Faults.StallAfter; lim > 0 && start+length > lim && ep.stalls() {
			buf.ReleaseRead(h, 0, 0)
			ep.chunks.Unclaim(start, length)
			<-ctx.Done()
			return ctx.Err()
		}
		n := copy(seg, data[start:start+length])
		ep.Calls.Ranges.Add(1)
		buf.ReleaseRead(h, int64(n), start)
	}
	return ctx.Err()
}

func (ep *Endpoint) stalls() bool { return ep.Faults.StallOn == "" || ep.Faults.StallOn == ep.key() }

func (ep *Endpoint) StopReading() error {
	ep.Calls.StopReading.Add(1)
	return dpoint.StopJob(&ep.rjob, dstatus.ReadStopError)
}

/////////////
// writing //
/////////////

func (ep *Endpoint) StartWriting(_ context.Context, buf *dbuf.Buffer) error {
	ep.Calls.StartWriting.Add(1)
	if err := ep.Faults.StartWriting; err != nil {
		return dstatus.Wrap(dstatus.WriteStartError, err)
	}
	s := &sink{ep: ep, limit: ep.Faults.WriteAfter}
	ep.wjob.Go(func() error {
		var err error
		if ep.conf.Seekable {
			_, err = dpoint.DrainAt(buf, s)
		} else {
			_, err = dpoint.Drain(buf, s)
		}
		if err == nil && !buf.HasError() {
			ep.store.PutAt(ep.key(), s.data, time.Now())
		}
		return dpoint.EndWrite(buf, err)
	})
	return nil
}

func (ep *Endpoint) StopWriting() error {
	ep.Calls.StopWriting.Add(1)
	return dpoint.StopJob(&ep.wjob, dstatus.WriteStopError)
}

func (s *sink) Write(b []byte) (int, error) {
	s.mu.Lock()
	off := int64(len(s.data))
	s.mu.Unlock()
	return s.WriteAt(b, off)
}

func (s *sink) WriteAt(b []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.limit > 0 && off+int64(len(b)) > s.limit {
		return 0, fmt.Errorf("%s: injected write failure at offset %d", s.ep.key(), s.limit)
	}
	if end := off + int64(len(b)); end > int64(len(s.data)) {
		s.data = append(s.data, make([]byte, end-int64(len(s.data)))...)
	}
	copy(s.data[off:], b)
	return len(b), nil
}
