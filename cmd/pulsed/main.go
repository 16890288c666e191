// pulsed is the agent runtime daemon: it serves the HTTP API, drives the
// heartbeat scheduler, and hosts the planning engine over the configured
// stores.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pulse/internal/config"
	"pulse/internal/logging"
)

var version = "dev"

var (
	configPath string
	verbose    bool
	dev        bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "pulsed",
	Short: "pulse - task-based autonomous agent runtime",
	Long: `pulsed runs the pulse agent runtime: a hierarchical planning engine
that reacts to platform events and heartbeat ticks, sequencing function
calls toward a configured goal.

The high-level planner synthesizes tasks on the main heartbeat; the
low-level planner turns each task or event into an ordered sequence of
function executions with feedback folded into session history.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(logging.Options{Verbose: verbose, Dev: dev})
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the pulsed version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pulsed %s\n", version)
	},
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}
	return cfg, nil
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.BaseConfigFile, "path to the configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&dev, "dev", false, "use the console log encoder")

	rootCmd.AddCommand(serveCmd, simulateCmd, exportCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
