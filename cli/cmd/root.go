package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/careatlas-systems/pulse/cli/internal/config"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "pulsectl",
	Short: "Pulse operator CLI",
	Long: `pulsectl is the operator command-line interface for the pulse
facility event platform.

Tail live change events, purge cache entries, and seed synthetic facility
updates for load and demo environments.`,
	Version: "0.1.0",
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.pulsectl/config.yaml)")
	rootCmd.PersistentFlags().String("nats-url", "", "override NATS URL")
	rootCmd.PersistentFlags().String("stream-url", "", "override stream service URL")
	rootCmd.PersistentFlags().String("query-url", "", "override query service URL")
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not load config: %v\n", err)
		cfg = config.Default()
	}

	if v, _ := rootCmd.PersistentFlags().GetString("nats-url"); v != "" {
		cfg.NATSURL = v
	}
	if v, _ := rootCmd.PersistentFlags().GetString("stream-url"); v != "" {
		cfg.StreamURL = v
	}
	if v, _ := rootCmd.PersistentFlags().GetString("query-url"); v != "" {
		cfg.QueryURL = v
	}
}
