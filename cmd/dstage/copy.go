// Package main is the dstage command: stage data between grid storage
// endpoints through a local file cache
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/IATkachenko/arc-sub001/cmn/cos"
	"github.com/IATkachenko/arc-sub001/cmn/nlog"
	"github.com/IATkachenko/arc-sub001/dbuf"
	"github.com/IATkachenko/arc-sub001/dpoint"
	"github.com/IATkachenko/arc-sub001/dstatus"
	"github.com/IATkachenko/arc-sub001/durl"
	"github.com/IATkachenko/arc-sub001/dtr"
	"github.com/IATkachenko/arc-sub001/mover"

	"github.com/spf13/cobra"
)

var copyFlags struct {
	threads  int
	lockWait time.Duration
	noCache  bool
	progress bool
	quiet    bool
}

var copyCmd = &cobra.Command{
	Use:   "copy SRC DST",
	Short: "Copy one file between endpoints",
	Long: `Copies SRC to DST. Either side may be a file path, an http(s), s3 or idx URL.
Indexed destinations are registered; cached sources are linked from the cache.`,
	Args: cobra.ExactArgs(2),
	RunE: runCopy,
}

func init() {
	f := copyCmd.Flags()
	f.IntVarP(&copyFlags.threads, "threads", "t", 0, "parallel streams for the source (0: URL option or 1)")
	f.DurationVar(&copyFlags.lockWait, "lock-wait", 10*time.Minute, "how long to wait for a cache entry locked by another process")
	f.BoolVar(&copyFlags.noCache, "no-cache", false, "bypass the cache")
	f.BoolVarP(&copyFlags.progress, "progress", "p", false, "report progress on stderr")
	f.BoolVarP(&copyFlags.quiet, "quiet", "q", false, "do not print the result")
	rootCmd.AddCommand(copyCmd)
}

func sigContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runCopy(cmd *cobra.Command, args []string) error {
	ctx, cancel := sigContext(cmd.Context())
	defer cancel()

	srcURL, err := durl.Parse(args[0])
	if err != nil {
		return dstatus.Wrap(dstatus.ReadResolveError, err)
	}
	if copyFlags.threads > 0 {
		srcURL.SetOption(durl.OptThreads, strconv.Itoa(copyFlags.threads))
	}
	cache, err := app.cache()
	if err != nil {
		return err
	}
	if copyFlags.noCache {
		cache = nil
	}
	mapper, err := app.mapper()
	if err != nil {
		return err
	}
	history, err := app.historyStore()
	if err != nil {
		return err
	}

	opts := []mover.Option{mover.WithHistory(history)}
	if copyFlags.progress {
		opts = append(opts, mover.WithProgress(progressTo(cmd.ErrOrStderr())))
	}
	m := app.mover(opts...)

	d := dtr.New(app.config.Cache.JobID, srcURL.String(), args[1], app.config.Transfer.Retries)
	d.Owner = dtr.StageDelivery

	var (
		res      *mover.Result
		start    = time.Now()
		deadline = start.Add(copyFlags.lockWait)
	)
	for try := 0; ; try++ {
		res, err = m.RunDTR(ctx, d, cache, mapper)
		if !dstatus.Is(err, dstatus.CacheErrorRetryable) || time.Now().After(deadline) {
			break
		}
		wait := min(backoff(try), time.Until(deadline))
		nlog.Infof("%s: cache entry locked, retrying in %v", d, wait)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			if cerr := d.Cancel(); cerr != nil {
				nlog.Warningln(cerr)
			}
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}
	if !copyFlags.quiet {
		printResult(cmd.OutOrStdout(), d, res, time.Since(start))
	}
	return nil
}

func progressTo(w io.Writer) func(dbuf.Progress) {
	return func(p dbuf.Progress) {
		fmt.Fprintf(w, "\r%s in %v (%s/s, avg %s/s)   ", cos.ToSizeIEC(p.Bytes, 1), p.Elapsed.Truncate(time.Second),
			cos.ToSizeIEC(int64(p.Speed), 1), cos.ToSizeIEC(int64(p.Average), 1))
	}
}

func printResult(w io.Writer, d *dtr.DTR, res *mover.Result, elapsed time.Duration) {
	how := "copied"
	switch {
	case res.Mapped:
		how = "mapped"
	case res.Cached && res.Linked:
		how = "linked from cache"
	case res.Cached:
		how = "copied from cache"
	}
	fmt.Fprintf(w, "%s -> %s: %s, %s in %v (%d attempt(s))\n", d.Source, d.Dest, how,
		cos.ToSizeIEC(res.Bytes, 1), elapsed.Truncate(time.Millisecond), res.Attempts)
	if res.Cksum != nil && !res.Cksum.IsEmpty() {
		fmt.Fprintln(w, "checksum:", res.Cksum)
	}
	if res.Status != dstatus.Success {
		fmt.Fprintln(w, "status:", res.Status)
	}
}

// endpoint constructs an endpoint and resolves it as a source
func endpoint(ctx context.Context, raw string) (dpoint.Endpoint, error) {
	ep, err := dpoint.New(raw, app.env)
	if err != nil {
		return nil, err
	}
	if err := ep.Resolve(ctx, true); err != nil {
		return nil, err
	}
	return ep, nil
}
