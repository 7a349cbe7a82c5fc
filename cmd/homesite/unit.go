package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"homesite/pkg/fileutil"
	"homesite/pkg/templates"
)

var (
	unitUser    string
	unitGroup   string
	unitEnvFile string
)

var unitCmd = &cobra.Command{
	Use:   "unit",
	Short: "Print a systemd unit for the server",
	Long: `Print a systemd service unit that runs 'homesite serve' from the current release.

The unit restarts the service whenever it exits, which is how a newly installed
release is started. A template in ./templates, ./config/templates or
/etc/homesite/templates overrides the built-in one.

Example:
  homesite unit --user www-data > /etc/systemd/system/homesite.service`,
	Args: cobra.NoArgs,
	RunE: runUnit,
}

func init() {
	unitCmd.Flags().StringVar(&unitUser, "user", "homesite", "User the service runs as")
	unitCmd.Flags().StringVar(&unitGroup, "group", "", "Group the service runs as (default: same as user)")
	unitCmd.Flags().StringVar(&unitEnvFile, "env-file", filepath.Join(fileutil.SystemConfigDir, "homesite.env"), "Environment file")
}

func runUnit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Context())
	if err != nil {
		return err
	}

	siteRoot, err := filepath.Abs(cfg.SiteRoot)
	if err != nil {
		return fmt.Errorf("failed to resolve site root: %w", err)
	}
	group := unitGroup
	if group == "" {
		group = unitUser
	}

	unit, err := templates.RenderSystemdService(templates.ServiceUnit{
		User:       unitUser,
		Group:      group,
		WorkingDir: siteRoot,
		Binary:     filepath.Join(cfg.DeployRoot, "current", cfg.BinaryName),
		EnvFile:    unitEnvFile,
	})
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), unit)
	return nil
}
