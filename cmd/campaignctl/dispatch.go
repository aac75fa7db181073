// cmd/campaignctl/dispatch.go
package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var dispatchJSON bool

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Run one dispatcher invocation",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := a.Dispatcher.Tick(cmd.Context())
		if err != nil {
			return err
		}
		if dispatchJSON {
			b, _ := json.MarshalIndent(res, "", "  ")
			fmt.Println(string(b))
			return nil
		}
		if res.Idle {
			fmt.Println("no eligible job")
			return nil
		}
		fmt.Printf("job=%d status=%s sent=%d failed=%d skipped=%d\n",
			res.JobID, res.JobStatus, res.Sent, res.Failed, res.Skipped)
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire stale jobs and purge old expired ones",
	RunE: func(cmd *cobra.Command, args []string) error {
		expired, purged, err := a.Dispatcher.Sweep(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("expired=%d purged=%d\n", len(expired), purged)
		return nil
	},
}

func init() {
	dispatchCmd.Flags().BoolVar(&dispatchJSON, "json", false, "JSON output")
	rootCmd.AddCommand(dispatchCmd)
	rootCmd.AddCommand(sweepCmd)
}
