// Package main is the dstage command: stage data between grid storage
// endpoints through a local file cache
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/IATkachenko/arc-sub001/dstatus"
	"github.com/IATkachenko/arc-sub001/dtr"
	"github.com/IATkachenko/arc-sub001/mover"

	"github.com/spf13/cobra"
)

var batchFlags struct {
	workers  int
	lockWait time.Duration
	noCache  bool
}

var batchCmd = &cobra.Command{
	Use:   "batch FILE",
	Short: "Copy many files concurrently",
	Long: `Reads "SRC DST" pairs, one per line, from FILE ("-" for stdin); empty lines
and lines starting with '#' are skipped. Prints one line per transfer upon completion.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	f := batchCmd.Flags()
	f.IntVarP(&batchFlags.workers, "workers", "w", 4, "concurrent transfers")
	f.DurationVar(&batchFlags.lockWait, "lock-wait", 10*time.Minute, "how long to wait for a cache entry locked by another process")
	f.BoolVar(&batchFlags.noCache, "no-cache", false, "bypass the cache")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := sigContext(cmd.Context())
	defer cancel()

	in := cmd.InOrStdin()
	if args[0] != "-" {
		fh, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer fh.Close()
		in = fh
	}
	dtrs, err := readPairs(in, app.config.Cache.JobID, app.config.Transfer.Retries)
	if err != nil {
		return err
	}
	conf := mover.BatchConf{Workers: batchFlags.workers, LockWait: batchFlags.lockWait}
	if !batchFlags.noCache {
		if conf.Cache, err = app.cache(); err != nil {
			return err
		}
	}
	if conf.Mapper, err = app.mapper(); err != nil {
		return err
	}
	history, err := app.historyStore()
	if err != nil {
		return err
	}
	b := app.mover(mover.WithHistory(history)).NewBatch(conf)
	if err := b.Run(ctx, dtrs); err != nil {
		return err
	}
	printHistory(cmd.OutOrStdout(), dtrs)

	var failed int
	for _, d := range dtrs {
		if d.GetStatus() != dtr.StatusDone {
			failed++
		}
	}
	if failed > 0 {
		return dstatus.Newf(dstatus.GenericError, "%d of %d transfer(s) failed", failed, len(dtrs))
	}
	return nil
}

func readPairs(r io.Reader, jobID string, tries int) ([]*dtr.DTR, error) {
	var (
		dtrs []*dtr.DTR
		sc   = bufio.NewScanner(r)
	)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("line %d: expecting \"SRC DST\", got %q", n, line)
		}
		dtrs = append(dtrs, dtr.New(jobID, fields[0], fields[1], tries))
	}
	return dtrs, sc.Err()
}
