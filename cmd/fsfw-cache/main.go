// fsfw-cache is the flow-stat cache daemon of the flowspace firewall.
//
// Usage:
//
//	fsfw-cache serve                     Run the cache, the API and the health service
//	fsfw-cache snapshot show             Print the stored snapshot per switch
//	fsfw-cache inject -f report.json     Publish a recorded statistics report
package main

import (
	"FlowSpaceFirewall/internal/config"
	"FlowSpaceFirewall/internal/pkg/logging"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "fsfw-cache",
	Short:             "Flow-stat cache of the flowspace firewall",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides the configuration)")

	rootCmd.AddCommand(
		newServeCmd(),
		newSnapshotCmd(),
		newInjectCmd(),
	)
}

// loadConfig reads the configuration and applies its logging settings.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	if err := logging.Configure(level, cfg.Log.JSON); err != nil {
		return nil, err
	}
	return cfg, nil
}
