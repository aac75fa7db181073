// cmd/campaignctl/jobs.go
package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	listStatus string
	listPage   int
	listLimit  int
	listJSON   bool
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect dispatch jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs (optionally by status)",
	RunE: func(cmd *cobra.Command, args []string) error {
		jobs, pagination, err := a.JobService.ListJobs(cmd.Context(), listPage, listLimit, listStatus)
		if err != nil {
			return err
		}
		if listJSON {
			b, _ := json.MarshalIndent(map[string]interface{}{"data": jobs, "pagination": pagination}, "", "  ")
			fmt.Println(string(b))
			return nil
		}
		for _, j := range jobs {
			fmt.Printf("%-6d %-8s  start=%s  rate=%d/min  sent=%d failed=%d total=%d  template=%q\n",
				j.ID, j.Status, j.StartAt.In(cfg.Location).Format("2006-01-02 15:04"),
				j.RatePerMinute, j.Sent, j.Failed, j.Total, j.TemplateRef)
		}
		fmt.Printf("page %d/%d (%d jobs)\n", pagination["page"], pagination["total_pages"], pagination["total_count"])
		return nil
	},
}

func init() {
	jobsListCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status (pending|running|done|expired|failed)")
	jobsListCmd.Flags().IntVar(&listPage, "page", 1, "Page number")
	jobsListCmd.Flags().IntVar(&listLimit, "limit", 20, "Rows per page")
	jobsListCmd.Flags().BoolVar(&listJSON, "json", false, "JSON output")
	jobsCmd.AddCommand(jobsListCmd)
	rootCmd.AddCommand(jobsCmd)
}
