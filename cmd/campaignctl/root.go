// cmd/campaignctl/root.go
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/unclebandit/mailqueue-backend/internal/app"
	"github.com/unclebandit/mailqueue-backend/internal/config"
	"github.com/unclebandit/mailqueue-backend/internal/logger"
)

var (
	dsn     string
	verbose bool
	cfg     config.Config
	a       *app.App
)

var rootCmd = &cobra.Command{
	Use:   "campaignctl",
	Short: "Operator tool for the mail campaign dispatcher.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if a != nil {
			return nil
		}
		_ = godotenv.Load()
		cfg = config.Parse()
		if dsn != "" {
			cfg.DatabaseURL = dsn
		}
		level := "warn"
		if verbose {
			level = "debug"
		}
		log := logger.New(level, true)

		built, err := app.New(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		sched, err := built.AMQPScheduler()
		if err != nil {
			built.Close()
			return err
		}
		if sched != nil {
			built.UseScheduler(sched)
		}
		a = built
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if a != nil {
			a.Close()
		}
	},
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dsn, "db", "", "Postgres DSN (default $DATABASE_URL)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
}
