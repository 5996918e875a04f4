// Package main is the dstage command: stage data between grid storage
// endpoints through a local file cache
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/IATkachenko/arc-sub001/cmn"
	"github.com/IATkachenko/arc-sub001/cmn/kvdb"
	"github.com/IATkachenko/arc-sub001/cmn/nlog"
	"github.com/IATkachenko/arc-sub001/cred"
	"github.com/IATkachenko/arc-sub001/dpoint"
	"github.com/IATkachenko/arc-sub001/dtr"
	"github.com/IATkachenko/arc-sub001/fcache"
	"github.com/IATkachenko/arc-sub001/mover"
	"github.com/IATkachenko/arc-sub001/stats"
	"github.com/IATkachenko/arc-sub001/urlmap"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	envProxy   = "X509_USER_PROXY"
	historyDB  = "dtr.db"
	defaultJob = "dstage"
)

type (
	flags struct {
		config    string
		cacheDirs []string
		jobID     string
		logDir    string
		verbosity int
		retries   int
		force     bool
		verify    bool
		metrics   bool
	}

	// state shared by the subcommands
	appState struct {
		config  *cmn.Config
		env     *dpoint.Env
		prom    *stats.Prom
		history kvdb.Driver
	}
)

var (
	cli flags
	app appState

	rootCmd = &cobra.Command{
		Use:           "dstage",
		Short:         "Stage data between storage endpoints",
		Long:          "Copies, deletes and inspects data at file, http(s), s3 and catalog (idx) URLs, using a shared local cache.",
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE:  setup,
		PersistentPostRunE: teardown,
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cli.config, "config", "c", "", "configuration file (JSON or YAML)")
	pf.StringSliceVar(&cli.cacheDirs, "cache-dir", nil, "cache directory (repeatable); overrides configuration")
	pf.StringVar(&cli.jobID, "job", "", "job ID for cache claims and transfer history")
	pf.StringVar(&cli.logDir, "log-dir", "", "log to rotated files in this directory")
	pf.CountVarP(&cli.verbosity, "verbose", "v", "more logging (-v, -vv)")
	pf.IntVar(&cli.retries, "retries", 0, "location retry budget per endpoint (0: configuration)")
	pf.BoolVar(&cli.force, "force", false, "register the destination despite an existing registration")
	pf.BoolVar(&cli.verify, "verify", false, "compute and compare the checksum even when the source provides one")
	pf.BoolVar(&cli.metrics, "metrics", false, "print metrics upon completion")
}

func setup(*cobra.Command, []string) error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	// flags take precedence over the environment, which overrides the file
	for env, v := range map[string]string{
		cmn.EnvCacheDirs: strings.Join(cli.cacheDirs, ","),
		cmn.EnvJobID:     cli.jobID,
		cmn.EnvLogDir:    cli.logDir,
	} {
		if v != "" {
			os.Setenv(env, v)
		}
	}
	config, err := cmn.LoadConfig(cli.config)
	if err != nil {
		return err
	}
	if config.Cache.JobID == "" {
		config.Cache.JobID = defaultJob
	}
	config.Log.Verbosity = max(config.Log.Verbosity, cli.verbosity)
	if cli.force {
		config.Transfer.Force = true
	}
	if cli.verify {
		config.Transfer.Verify = true
	}
	if err := config.Validate(); err != nil {
		return err
	}
	cmn.GCO.Put(config)

	nlog.SetTitle("dstage")
	nlog.SetVerbosity(config.Log.Verbosity)
	if config.Log.Dir != "" {
		if err := nlog.SetLogDir(config.Log.Dir, "dstage"); err != nil {
			return err
		}
		nlog.AlsoToStderr(config.Log.ToStderr)
	}

	var provider cred.Provider
	if proxy := os.Getenv(envProxy); proxy != "" {
		provider = cred.NewX509File(proxy)
	}
	app.config = config
	app.env = dpoint.NewEnv(config, provider)
	if config.Stats.Enabled || cli.metrics {
		app.prom = stats.NewProm(config.Stats.Namespace)
	}
	return nil
}

func teardown(cmd *cobra.Command, _ []string) error {
	if cli.metrics && app.prom != nil {
		return app.prom.WriteText(cmd.OutOrStdout())
	}
	return nil
}

func (a *appState) close() {
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			nlog.Errorln("failed to close transfer history:", err)
		}
		a.history = nil
	}
	if a.env != nil {
		a.env.Close()
		a.env = nil
	}
}

func (a *appState) tracker() stats.Tracker {
	if a.prom == nil {
		return stats.Noop{}
	}
	return a.prom
}

func (a *appState) mover(opts ...mover.Option) *mover.Mover {
	opts = append([]mover.Option{mover.WithStats(a.tracker()), mover.WithRetries(cli.retries)}, opts...)
	return mover.New(a.env, opts...)
}

// nil when no cache directories are configured
func (a *appState) cache() (*fcache.Cache, error) {
	if !a.config.Cache.Enabled() {
		return nil, nil
	}
	return fcache.New(&a.config.Cache)
}

func (a *appState) mapper() (*urlmap.Map, error) {
	if len(a.config.URLMap) == 0 {
		return nil, nil
	}
	return urlmap.New(a.config.URLMap)
}

// transfer history lives next to the catalogs; in memory without a catalog dir
func (a *appState) historyStore() (*dtr.Store, error) {
	if a.history == nil {
		if dir := a.config.Catalog.Dir; dir != "" {
			db, err := kvdb.NewBuntDB(filepath.Join(dir, historyDB))
			if err != nil {
				return nil, err
			}
			a.history = db
		} else {
			a.history = kvdb.NewDBMock()
		}
	}
	return dtr.NewStore(a.history), nil
}

func backoff(try int) time.Duration { return min(time.Second<<try, time.Minute) }
