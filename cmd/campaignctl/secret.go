// cmd/campaignctl/secret.go
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manage the external trigger secret",
}

var secretRotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Rotate the secret; the previous one stays valid during the grace period",
	RunE: func(cmd *cobra.Command, args []string) error {
		fresh, err := a.Secrets.Rotate(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println("new trigger URL:", cfg.TriggerURL(fresh))
		fmt.Printf("previous secret accepted for %s\n", cfg.SecretGrace)
		return nil
	},
}

var secretURLCmd = &cobra.Command{
	Use:   "url",
	Short: "Print the current trigger URL",
	RunE: func(cmd *cobra.Command, args []string) error {
		cur, err := a.Secrets.Current(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(cfg.TriggerURL(cur))

		notice, err := a.Secrets.PendingNotice(cmd.Context())
		if err != nil {
			return err
		}
		if notice != nil {
			fmt.Println("notice:", notice.Message)
		}
		return nil
	},
}

func init() {
	secretCmd.AddCommand(secretRotateCmd)
	secretCmd.AddCommand(secretURLCmd)
	rootCmd.AddCommand(secretCmd)
}
