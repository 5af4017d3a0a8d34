package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"adlytics/internal/app"
	"adlytics/internal/storage"
)

func newFetchCmd(open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <source>",
		Short: "Fetch a configured source once and print the normalized result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open()
			if err != nil {
				return err
			}
			defer a.Stop(cmd.Context(), app.StopAppStop)

			snap, err := a.FetchOnce(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printSnapshot(cmd.OutOrStdout(), snap)
		},
	}
}

func newHistoryCmd(open openFunc) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <source>",
		Short: "List stored snapshots of a source, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open()
			if err != nil {
				return err
			}
			defer a.Stop(cmd.Context(), app.StopAppStop)

			if a.Store() == nil {
				return storage.ErrDisabled
			}
			snaps, err := a.Store().History(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, s := range snaps {
				kind := "text"
				if s.IsJSON {
					kind = "json"
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%d bytes\n", s.FetchedAt.Format(time.RFC3339), s.Status, kind, len(s.Data))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of snapshots")
	return cmd
}

func printSnapshot(w io.Writer, s storage.Snapshot) error {
	if !s.IsJSON {
		_, err := fmt.Fprintln(w, string(s.Data))
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, s.Data, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}
