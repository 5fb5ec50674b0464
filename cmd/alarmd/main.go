// alarmd listens to a telemetry feed over MQTT, evaluates alarm rules
// on every value change, and serves the resulting alarm state over
// REST, SSE, and a periodic MQTT status roll-up.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hklweb/alarmd/internal/server"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "alarmd",
	Short: "Alarm rule evaluation and notification engine",
	Long: `alarmd subscribes to a telemetry topic, detects value changes per
address, evaluates value-match and bit-flag rules, and maintains an
alarm ledger with a global acknowledge operation. State is pushed to
subscribers over SSE and rolled up to an MQTT status topic.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()
		return server.Run(ctx, configPath)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to configuration file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
