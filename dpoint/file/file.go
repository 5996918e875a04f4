// Package file implements the local filesystem data point (including stdio)
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package file

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/IATkachenko/arc-sub001/cmn/cos"
	"github.com/IATkachenko/arc-sub001/cmn/nlog"
	"github.com/IATkachenko/arc-sub001/dbuf"
	"github.com/IATkachenko/arc-sub001/dpoint"
	"github.com/IATkachenko/arc-sub001/dstatus"
	"github.com/IATkachenko/arc-sub001/durl"

	"golang.org/x/sys/unix"
)

const permFile = 0o644

type endpoint struct {
	dpoint.Base
	path  string
	rjob  dpoint.Job
	wjob  dpoint.Job
	stdio bool
}

// interface guard
var _ dpoint.Endpoint = (*endpoint)(nil)

func init() { dpoint.Register(durl.SchemeFile, dpoint.Direct, New) }

func New(u *durl.URL, env *dpoint.Env) (dpoint.Endpoint, error) {
	if u.Scheme != durl.SchemeFile {
		return nil, dstatus.Newf(dstatus.NotInitializedError, "not a file URL: %s", u)
	}
	return &endpoint{
		Base:  dpoint.NewBase(u, env, dpoint.Direct),
		path:  u.Path,
		stdio: u.IsStdio(),
	}, nil
}

func (*endpoint) ProvidesMeta() bool { return true }
func (ep *endpoint) Local() bool     { return !ep.stdio }
func (ep *endpoint) Seekable() bool  { return !ep.stdio }

func (ep *endpoint) Stat(context.Context) (*dpoint.FileInfo, error) {
	if ep.stdio {
		return nil, dstatus.New(dstatus.StatError, "cannot stat stdio")
	}
	finfo, err := os.Stat(ep.path)
	if err != nil {
		return nil, dstatus.Wrap(dstatus.StatError, err)
	}
	fi := toFileInfo(finfo)
	fi.Name = ep.path
	attrs := ep.Attrs()
	if fi.Type == dpoint.TypeFile {
		attrs.Size = fi.Size
	}
	attrs.Created = fi.Created
	return fi, nil
}

func toFileInfo(finfo os.FileInfo) *dpoint.FileInfo {
	fi := &dpoint.FileInfo{Attrs: dpoint.NewAttrs(), Name: finfo.Name(), Type: dpoint.TypeFile}
	fi.Created = finfo.ModTime()
	if finfo.IsDir() {
		fi.Type = dpoint.TypeDir
	} else {
		fi.Size = finfo.Size()
	}
	return fi
}

func (ep *endpoint) List(ctx context.Context) ([]*dpoint.FileInfo, error) {
	fi, err := ep.Stat(ctx)
	if err != nil {
		return nil, dstatus.Wrap(dstatus.ListError, err)
	}
	if fi.Type != dpoint.TypeDir {
		return []*dpoint.FileInfo{fi}, nil
	}
	dents, err := os.ReadDir(ep.path)
	if err != nil {
		return nil, dstatus.Wrap(dstatus.ListError, err)
	}
	files := make([]*dpoint.FileInfo, 0, len(dents))
	for _, de := range dents {
		finfo, err := de.Info()
		if err != nil {
			continue // removed in the meantime
		}
		files = append(files, toFileInfo(finfo))
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Check: readable by this process
func (ep *endpoint) Check(context.Context) error {
	if ep.stdio {
		return nil
	}
	if err := unix.Access(ep.path, unix.R_OK); err != nil {
		return dstatus.Wrap(dstatus.CheckError, &os.PathError{Op: "access", Path: ep.path, Err: err})
	}
	return nil
}

func (ep *endpoint) Remove(context.Context) error {
	if ep.stdio {
		return dstatus.New(dstatus.DeleteError, "cannot remove stdio")
	}
	if err := os.Remove(ep.path); err != nil {
		return dstatus.Wrap(dstatus.DeleteError, err)
	}
	return nil
}

/////////////
// reading //
/////////////

func (ep *endpoint) StartReading(_ context.Context, buf *dbuf.Buffer) error {
	if ep.rjob.Running() {
		return dstatus.New(dstatus.ReadStartError, "already reading")
	}
	var r io.ReadCloser = os.Stdin
	if !ep.stdio {
		fh, err := os.Open(ep.path)
		if err != nil {
			return dstatus.Wrap(dstatus.ReadStartError, err)
		}
		if finfo, err := fh.Stat(); err == nil && !finfo.IsDir() {
			ep.Attrs().Size = finfo.Size()
		}
		r = fh
	}
	ep.rjob.Go(func() error {
		_, err := dpoint.Feed(buf, r, 0)
		if !ep.stdio {
			cos.Close(r)
		}
		return dpoint.EndRead(buf, err)
	})
	return nil
}

func (ep *endpoint) StopReading() error { return dpoint.StopJob(&ep.rjob, dstatus.ReadStopError) }

/////////////
// writing //
/////////////

func (ep *endpoint) StartWriting(_ context.Context, buf *dbuf.Buffer) error {
	if ep.wjob.Running() {
		return dstatus.New(dstatus.WriteStartError, "already writing")
	}
	if ep.stdio {
		ep.wjob.Go(func() error {
			_, err := dpoint.Drain(buf, os.Stdout)
			return dpoint.EndWrite(buf, err)
		})
		return nil
	}
	if err := cos.CreateDir(filepath.Dir(ep.path)); err != nil {
		return dstatus.Wrap(dstatus.WriteStartError, err)
	}
	fh, err := os.OpenFile(ep.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, ep.perm())
	if err != nil {
		return dstatus.Wrap(dstatus.WriteStartError, err)
	}
	if size := ep.Attrs().Size; size > 0 {
		if err := fh.Truncate(size); err != nil && nlog.V(nlog.LevelDebug) {
			nlog.Infoln("preallocate", ep.path, err)
		}
	}
	ep.wjob.Go(func() error {
		n, err := dpoint.DrainAt(buf, fh)
		if err == nil {
			err = ep.finalize(fh, buf, n)
		}
		if errc := fh.Close(); err == nil {
			err = errc
		}
		return dpoint.EndWrite(buf, err)
	})
	return nil
}

// the file may have been preallocated to the announced size
func (ep *endpoint) finalize(fh *os.File, buf *dbuf.Buffer, n int64) error {
	if buf.HasError() {
		return nil
	}
	if size := ep.Attrs().Size; size > 0 && size != n {
		if err := fh.Truncate(n); err != nil {
			return err
		}
	}
	return fh.Sync()
}

func (ep *endpoint) perm() os.FileMode {
	if ep.URL().BoolOption(durl.OptExec) {
		return 0o755
	}
	return permFile
}

func (ep *endpoint) StopWriting() error { return dpoint.StopJob(&ep.wjob, dstatus.WriteStopError) }
