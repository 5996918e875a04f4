// Package main is the dstage command: stage data between grid storage
// endpoints through a local file cache
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/IATkachenko/arc-sub001/cmn/nlog"
	"github.com/IATkachenko/arc-sub001/fcache"
	"github.com/IATkachenko/arc-sub001/hk"

	"github.com/spf13/cobra"
)

var errNoCache = errors.New("no cache directories configured (see --cache-dir)")

var sweepFlags struct {
	every time.Duration
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Maintain the local file cache",
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Reclaim stale locks and leftover partial files",
	Long: `Removes cache locks held by dead processes or older than cache.stale_lock,
together with the partial data they guarded. With --every, keeps sweeping until interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := mustCache()
		if err != nil {
			return err
		}
		if sweepFlags.every <= 0 {
			n, err := c.Sweep(time.Now())
			fmt.Fprintf(cmd.OutOrStdout(), "%s: reclaimed %d entr(ies)\n", c, n)
			return err
		}
		keeper := hk.New(true)
		keeper.Reg("cache"+hk.NameSuffix, func(int64) time.Duration {
			n, err := c.Sweep(time.Now())
			if err != nil {
				nlog.Errorln(c.String()+": sweep:", err)
			} else if n > 0 {
				nlog.Infof("%s: reclaimed %d entr(ies)", c, n)
			}
			return sweepFlags.every
		}, 0)
		return keeper.Run()
	},
}

var releaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Drop this job's claims on cached files",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		c, err := mustCache()
		if err != nil {
			return err
		}
		return c.Release()
	},
}

func init() {
	sweepCmd.Flags().DurationVar(&sweepFlags.every, "every", 0, "sweep periodically at this interval")
	cacheCmd.AddCommand(sweepCmd, releaseCmd)
	rootCmd.AddCommand(cacheCmd)
}

func mustCache() (*fcache.Cache, error) {
	c, err := app.cache()
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errNoCache
	}
	return c, nil
}
