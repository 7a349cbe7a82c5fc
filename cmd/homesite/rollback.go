package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"homesite/internal/update"
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Switch to the previous release",
	Long: `Switch the current symlink in DEPLOY_ROOT to the release before the active one.

This command will:
- Find the active release
- Find the previous release (by timestamp)
- Atomically switch the current symlink to the previous release

Restart the service afterwards to run the restored binary.`,
	Args: cobra.NoArgs,
	RunE: runRollback,
}

func runRollback(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Context())
	if err != nil {
		return err
	}

	releases, err := update.NewReleaseManager(update.ReleaseManagerConfig{
		DeployRoot:     cfg.DeployRoot,
		BinaryName:     cfg.BinaryName,
		ExtractCommand: cfg.ExtractCommand,
		KeepReleases:   cfg.KeepReleases,
	})
	if err != nil {
		return err
	}

	from, to, err := releases.Rollback()
	if err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Rolled back from %s to %s\n", from, to)
	fmt.Fprintln(cmd.OutOrStdout(), "Restart the service to run the restored release.")
	return nil
}
