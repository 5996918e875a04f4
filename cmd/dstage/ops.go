// Package main is the dstage command: stage data between grid storage
// endpoints through a local file cache
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/IATkachenko/arc-sub001/cmn/cos"
	"github.com/IATkachenko/arc-sub001/dpoint"
	"github.com/IATkachenko/arc-sub001/dtr"

	"github.com/spf13/cobra"
)

var deleteFlags struct {
	errIfMissing bool
}

var deleteCmd = &cobra.Command{
	Use:   "delete URL",
	Short: "Remove a file and unregister its replicas",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := sigContext(cmd.Context())
		defer cancel()
		ep, err := dpoint.New(args[0], app.env)
		if err != nil {
			return err
		}
		return app.mover().Delete(ctx, ep, deleteFlags.errIfMissing)
	},
}

var statCmd = &cobra.Command{
	Use:   "stat URL",
	Short: "Show attributes of a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := sigContext(cmd.Context())
		defer cancel()
		ep, err := endpoint(ctx, args[0])
		if err != nil {
			return err
		}
		fi, err := ep.Stat(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "name:\t%s\n", fi.Name)
		fmt.Fprintf(w, "type:\t%s\n", typeName(fi.Type))
		if fi.HasSize() {
			fmt.Fprintf(w, "size:\t%d (%s)\n", fi.Size, cos.ToSizeIEC(fi.Size, 1))
		}
		if fi.HasCksum() {
			fmt.Fprintf(w, "checksum:\t%s\n", fi.Cksum)
		}
		if fi.HasCreated() {
			fmt.Fprintf(w, "created:\t%s\n", fi.Created.Format(time.RFC3339))
		}
		if fi.HasValid() {
			fmt.Fprintf(w, "valid until:\t%s\n", fi.Valid.Format(time.RFC3339))
		}
		for _, loc := range ep.Locations() {
			fmt.Fprintf(w, "location:\t%s\n", loc.URL)
		}
		return w.Flush()
	},
}

var listCmd = &cobra.Command{
	Use:   "list URL",
	Short: "List a directory or a catalog prefix",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := sigContext(cmd.Context())
		defer cancel()
		ep, err := endpoint(ctx, args[0])
		if err != nil {
			return err
		}
		list, err := ep.List(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, fi := range list {
			size := "-"
			if fi.HasSize() {
				size = cos.ToSizeIEC(fi.Size, 1)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", typeName(fi.Type), size, fi.Name)
		}
		return w.Flush()
	},
}

var historyCmd = &cobra.Command{
	Use:   "history [JOB]",
	Short: "Show transfers recorded for a job",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job := app.config.Cache.JobID
		if len(args) > 0 {
			job = args[0]
		}
		store, err := app.historyStore()
		if err != nil {
			return err
		}
		list, err := store.List(job)
		if err != nil {
			return err
		}
		printHistory(cmd.OutOrStdout(), list)
		return nil
	},
}

func init() {
	deleteCmd.Flags().BoolVar(&deleteFlags.errIfMissing, "error-if-missing", false, "fail when the file does not exist")
	rootCmd.AddCommand(deleteCmd, statCmd, listCmd, historyCmd)
}

func typeName(t int) string {
	switch t {
	case dpoint.TypeFile:
		return "file"
	case dpoint.TypeDir:
		return "dir"
	default:
		return "?"
	}
}

func printHistory(out io.Writer, list []*dtr.DTR) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tSTATUS\tSIZE\tSOURCE\tDESTINATION\tERROR")
	for _, d := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", d.Created.Format(time.DateTime), d.Status,
			cos.ToSizeIEC(d.Bytes, 1), d.Source, d.Dest, d.ErrDesc)
	}
	w.Flush()
}
