// Package mover moves data between two endpoints: resolution, caching,
// location mapping, buffered transfer with retries, and registration
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package mover

import (
	"context"
	"errors"
	"syscall"

	"github.com/IATkachenko/arc-sub001/cmn/nlog"
	"github.com/IATkachenko/arc-sub001/dpoint"
	"github.com/IATkachenko/arc-sub001/dstatus"
	"github.com/IATkachenko/arc-sub001/stats"
)

// Delete removes each physical replica and, for an indexed endpoint, its
// registration. With errIfMissing unset, replicas that are already gone count
// as removed.
func (m *Mover) Delete(ctx context.Context, ep dpoint.Endpoint, errIfMissing bool) error {
	if err := ep.Resolve(ctx, true); err != nil {
		if !errIfMissing && missing(err) {
			return nil
		}
		return err
	}
	if !ep.HaveLocations() {
		if errIfMissing {
			return dstatus.Newf(dstatus.NoLocationError, "%s: no locations", ep)
		}
		return nil
	}
	var errs []error
	for ep.HaveLocations() {
		loc := ep.CurrentLocationName()
		err := ep.Remove(ctx)
		switch {
		case err == nil:
			m.stats.Inc(stats.DeleteCount)
		case missing(err) && !errIfMissing:
			if nlog.V(nlog.LevelVerbose) {
				nlog.Infoln(loc, "is already gone")
			}
			err = nil
		default:
			errs = append(errs, err)
		}
		if ep.Kind() == dpoint.Direct {
			break
		}
		if err == nil {
			if err := ep.Unregister(ctx, false); err != nil {
				errs = append(errs, dstatus.Wrap(dstatus.UnregisterError, err))
			}
		}
		if err := ep.RemoveLocation(); err != nil {
			errs = append(errs, err)
			break
		}
	}
	if len(errs) > 0 {
		return dstatus.Wrap(dstatus.DeleteError, errors.Join(errs...))
	}
	return nil
}

func missing(err error) bool { return dstatus.ErrnoOf(err) == int(syscall.ENOENT) }
