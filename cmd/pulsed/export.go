package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pulse/internal/configstore"
)

var exportPath string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the deployable agent.json snapshot of the profile",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportPath, "out", "agent.json", "output path for the snapshot")
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	profiles, err := configstore.NewFileStore(cfg.Profile.Path, logger)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	if err := profiles.ExportJSON(exportPath); err != nil {
		return err
	}
	fmt.Printf("profile exported to %s\n", exportPath)
	return nil
}
