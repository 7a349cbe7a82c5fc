package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"homesite/internal/security"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Generate a random secret",
	Long:  `Generate a random value suitable for WEBHOOK_SECRET, GALLERY_TOKEN or API_TOKEN.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := security.GenerateSecret()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), secret)
		return nil
	},
}
