// Package mover moves data between two endpoints: resolution, caching,
// location mapping, buffered transfer with retries, and registration
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package mover

import (
	"context"
	"fmt"

	"github.com/IATkachenko/arc-sub001/cmn/nlog"
	"github.com/IATkachenko/arc-sub001/dpoint"
	"github.com/IATkachenko/arc-sub001/dstatus"
	"github.com/IATkachenko/arc-sub001/dtr"
	"github.com/IATkachenko/arc-sub001/fcache"
	"github.com/IATkachenko/arc-sub001/urlmap"
)

// RunDTR transfers d.Source to d.Dest, moving the DTR through its statuses.
// The DTR must be owned by the delivery stage. A DTR that finds its cache
// entry locked stays in CACHE_WAIT and may be run again later.
func (m *Mover) RunDTR(ctx context.Context, d *dtr.DTR, cache *fcache.Cache, mapper *urlmap.Map) (*Result, error) {
	if owner := d.GetOwner(); owner != dtr.StageDelivery {
		return nil, fmt.Errorf("%w: %s is owned by %s", dtr.ErrNotOwner, d.ID, owner)
	}
	src, err := dpoint.New(d.Source, m.env)
	if err != nil {
		err = dstatus.Wrap(dstatus.ReadResolveError, err)
		d.Fail(err)
		m.save(d)
		return nil, err
	}
	dst, err := dpoint.New(d.Dest, m.env)
	if err != nil {
		err = dstatus.Wrap(dstatus.WriteResolveError, err)
		d.Fail(err)
		m.save(d)
		return nil, err
	}
	if d.TriesLeft > 0 && m.retries == 0 {
		src.SetRetries(d.TriesLeft)
		dst.SetRetries(d.TriesLeft)
	}

	x := &xfer{m: m, src: src, dst: dst, cache: cache, mapper: mapper, d: d}
	res, err := x.run(ctx)
	d.AddBytes(res.Bytes)
	switch {
	case err == nil:
		if err := d.SetStatus(dtr.StatusDone); err != nil {
			nlog.Errorln(err)
		}
	case res.Status == dstatus.SuccessCancelled:
		if err := d.Cancel(); err != nil {
			nlog.Errorln(err)
		}
	case res.Status == dstatus.CacheErrorRetryable:
		return res, err
	default:
		d.Fail(err)
	}
	m.save(d)
	return res, err
}

func (m *Mover) save(d *dtr.DTR) {
	if m.history == nil {
		return
	}
	if err := m.history.Save(d); err != nil {
		nlog.Errorln("failed to save", d.String()+":", err)
	}
}
