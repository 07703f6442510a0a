package main

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/vinayprograms/threadkit/introspect"
)

func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <instance>",
		Short: "Ask one process for a fresh snapshot over the bus",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			timeout, _ := cmd.Flags().GetDuration("timeout")
			asJSON, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			b, err := openBus(cfg)
			if err != nil {
				return err
			}
			defer b.Close()

			snap, err := introspect.Query(b, introspect.DefaultQueryPrefix, args[0], timeout)
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
	cmd.Flags().Duration("timeout", 2*time.Second, "How long to wait for the reply")
	cmd.Flags().Bool("json", false, "Print raw JSON")
	return cmd
}
