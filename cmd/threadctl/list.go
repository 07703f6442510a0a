package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vinayprograms/threadkit/errors"
	"github.com/vinayprograms/threadkit/introspect"
)

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List threads served by a process's HTTP endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, _ := cmd.Flags().GetString("http")
			shortName, _ := cmd.Flags().GetString("short-name")
			stalled, _ := cmd.Flags().GetDuration("stalled")
			asJSON, _ := cmd.Flags().GetBool("json")

			snap, err := fetchSnapshot(base, shortName, stalled)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}
			printSnapshot(cmd.OutOrStdout(), snap)
			return nil
		},
	}
	cmd.Flags().String("http", "http://localhost:8089", "Base URL of the introspection endpoint")
	cmd.Flags().String("short-name", "", "Only threads with this short name")
	cmd.Flags().Duration("stalled", 0, "Only threads whose activity is older than this")
	cmd.Flags().Bool("json", false, "Print raw JSON")
	return cmd
}

func fetchSnapshot(base, shortName string, stalled time.Duration) (*introspect.Snapshot, error) {
	u := strings.TrimRight(base, "/") + "/threads"
	q := url.Values{}
	if stalled > 0 {
		u += "/stalled"
		q.Set("after", stalled.String())
	}
	if shortName != "" {
		q.Set("short_name", shortName)
	}
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(u)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeUnavailable, "fetch "+u)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf(errors.ErrCodeUnavailable, "%s: %s: %s", u, resp.Status, strings.TrimSpace(string(data)))
	}
	snap, err := introspect.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	// /threads/stalled ignores short_name; filter here.
	return snap.Filter(shortName), nil
}

func printSnapshot(w io.Writer, snap *introspect.Snapshot) {
	if snap.Instance != "" {
		fmt.Fprintf(w, "instance %s  seq %d  %s\n", snap.Instance, snap.Seq, snap.Timestamp.Format(time.RFC3339))
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSHORT\tSTATE\tACTIVITY\tSINCE")
	for _, st := range snap.Threads {
		state := "running"
		switch {
		case !st.Running:
			state = "exiting"
		case st.ShutdownRequested:
			state = "stopping"
		}
		activity := st.Activity
		if st.IsIdle() {
			activity = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			st.ID, st.Name, st.ShortName, state, activity, since(snap.Timestamp, st.ActivityAt))
	}
	tw.Flush()
}

func since(now, t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return now.Sub(t).Truncate(time.Millisecond).String()
}
