package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"homesite/internal/config"
)

var version = "dev" // Will be set during build

var configFile string

var rootCmd = &cobra.Command{
	Use:   "homesite",
	Short: "Personal website server",
	Long: `Homesite serves a personal website: pages, a blog, an image gallery and a visit counter.

A signed GitHub webhook keeps the site up to date. Content changes are reloaded in place;
a new build is installed as a release and the service restarts into it.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Custom usage template that encourages 'help' subcommand pattern
const usageTemplate = `Usage:{{if .Runnable}}
  {{.UseLine}}{{end}}{{if .HasAvailableSubCommands}}
  {{.CommandPath}} [command]{{end}}{{if .HasExample}}

Examples:
{{.Example}}{{end}}{{if .HasAvailableSubCommands}}

Available Commands:{{range .Commands}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}{{end}}{{if .HasAvailableLocalFlags}}

Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasAvailableInheritedFlags}}

Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasAvailableSubCommands}}

Use "{{.CommandPath}} help [command]" for more information about a command.{{end}}
`

// exitError ends the process with a specific exit code once deferred
// cleanup has run.
type exitError struct {
	code   int
	reason string
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit %d: %s", e.code, e.reason)
}

func main() {
	// A missing .env file is fine; the environment may be set by systemd.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetUsageTemplate(usageTemplate)
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to homesite.yaml (default: search ./, ./config, /etc/homesite)")

	// Register subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(signCmd)
	rootCmd.AddCommand(visitsCmd)
	rootCmd.AddCommand(unitCmd)
	rootCmd.AddCommand(secretCmd)
}

func loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load(ctx, configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}
