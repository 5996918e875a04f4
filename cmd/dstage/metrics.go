// Package main is the dstage command: stage data between grid storage
// endpoints through a local file cache
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/IATkachenko/arc-sub001/cmn/nlog"
	"github.com/IATkachenko/arc-sub001/stats"

	"github.com/spf13/cobra"
)

var serveFlags struct {
	addr string
}

// serve-metrics keeps the process alive exposing the registry; useful
// together with `cache sweep --every`
var metricsCmd = &cobra.Command{
	Use:   "serve-metrics",
	Short: "Expose Prometheus metrics over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := sigContext(cmd.Context())
		defer cancel()
		if app.prom == nil {
			app.prom = stats.NewProm(app.config.Stats.Namespace)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", app.prom.Handler())
		srv := &http.Server{Addr: serveFlags.addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			<-ctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			if err := srv.Shutdown(sctx); err != nil {
				nlog.Warningln("metrics server shutdown:", err)
			}
		}()
		nlog.Infoln("serving metrics at", serveFlags.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	metricsCmd.Flags().StringVar(&serveFlags.addr, "addr", ":9464", "listen address")
	rootCmd.AddCommand(metricsCmd)
}
