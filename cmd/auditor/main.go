package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/metorial/auditor/internal/ioc"
	"github.com/spf13/cobra"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "auditor",
	Short: "Remote host security audit engine",
	Long: `auditor keeps an inventory of hosts and a library of audit playbooks,
runs playbooks on selected hosts over SSH and serves the collected
GOOD/BAD/N/A results over HTTP.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv, cleanup, err := InitServer(ioc.ConfigPath(configPath))
		if err != nil {
			return fmt.Errorf("init server: %w", err)
		}
		defer cleanup()

		return srv.Run(ctx)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a TOML config file (default $AUDITOR_CONFIG, /etc/auditor/config.toml, ./config.toml)")
}
