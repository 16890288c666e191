package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pulse/internal/configstore"
	"pulse/internal/engine"
	"pulse/internal/executor"
	"pulse/internal/planner"
	"pulse/internal/session"
)

var (
	simSessionID string
	simSteps     int
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run simulation steps against the configured profile",
	Long: `Runs HLP->LLP->action turns against an in-memory session and prints
each step record as JSON. With an oracle api key the real planner backend
decides; otherwise the scripted oracle answers wait.`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().StringVar(&simSessionID, "session", "simulate", "session id to simulate under")
	simulateCmd.Flags().IntVar(&simSteps, "steps", 1, "number of steps to run")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	profiles, err := configstore.NewFileStore(cfg.Profile.Path, logger)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}

	eng, err := engine.New(engine.Config{
		Profiles:        profiles,
		Store:           session.NewMemoryStore(),
		Oracle:          buildOracle(cfg),
		Executor:        executor.NewHTTPCaller(cfg.Planner.ExecTimeoutDuration(), logger),
		Defaults:        buildDefaults(cfg),
		DefaultPlatform: cfg.Agent.DefaultPlatform,
		Planner: planner.Options{
			MaxSteps:      cfg.Planner.MaxSteps,
			OracleTimeout: cfg.Oracle.TimeoutDuration(),
			ExecTimeout:   cfg.Planner.ExecTimeoutDuration(),
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for i := 0; i < simSteps; i++ {
		step, err := eng.SimulateStep(cmd.Context(), simSessionID, cfg.Agent.DefaultPlatform)
		if err != nil {
			return fmt.Errorf("simulate step %d: %w", i+1, err)
		}
		if err := enc.Encode(step); err != nil {
			return err
		}
	}
	return nil
}
