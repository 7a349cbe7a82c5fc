package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"homesite/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long: `Apply pending database migrations to DATABASE_URL.

'serve' migrates on startup as well; this command is for preparing a database ahead of time.`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	applied, err := db.Migrate(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(applied) == 0 {
		fmt.Fprintln(out, "Database is up to date")
		return nil
	}
	for _, v := range applied {
		fmt.Fprintf(out, "Applied migration %05d\n", v)
	}
	return nil
}
