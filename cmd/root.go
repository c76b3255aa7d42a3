// Package cmd wires the command line interface.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/charlesms1246/home-iot-guard/config"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "home-iot-guard",
	Short: "Anomaly detection for home IoT network traffic",
	Long: `home-iot-guard trains an LSTM autoencoder on labeled IoT network
traffic, calibrates a reconstruction-error threshold against a false
positive target, and serves an HTTP API that scans uploaded captures.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (overrides CONFIG_PATH)")
}

func loadConfig() (*config.Config, error) {
	if cfgPath != "" {
		os.Setenv("CONFIG_PATH", cfgPath)
	}
	return config.LoadConfig()
}

func newLogger() (*zap.Logger, error) {
	return zap.NewProduction()
}
