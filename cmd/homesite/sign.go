package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"homesite/internal/server"
)

var signCmd = &cobra.Command{
	Use:   "sign FILE",
	Short: "Print the webhook signature of a payload",
	Long: `Print the X-Hub-Signature-256 header value for a payload, signed with WEBHOOK_SECRET.

Use "-" to read the payload from standard input.

Example:
  curl -X POST http://127.0.0.1:6900/update \
    -H "X-Hub-Signature-256: $(homesite sign payload.json)" \
    --data-binary @payload.json`,
	Args: cobra.ExactArgs(1),
	RunE: runSign,
}

func runSign(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Context())
	if err != nil {
		return err
	}
	if cfg.WebhookSecret == "" {
		return errors.New("WEBHOOK_SECRET is not set")
	}

	var payload []byte
	if args[0] == "-" {
		payload, err = io.ReadAll(cmd.InOrStdin())
	} else {
		payload, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("failed to read payload: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), server.Sign(payload, cfg.WebhookSecret))
	return nil
}
