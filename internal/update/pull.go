package update

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"homesite/internal/security"
	"homesite/pkg/cmdutil"
)

// DefaultPullCommand updates the site checkout.
const DefaultPullCommand = "git pull --ff-only"

// CommandPuller runs a pull command in the site checkout.
type CommandPuller struct {
	Command []string
	Dir     string
	Timeout time.Duration
	Logger  *slog.Logger

	policy *security.CommandPolicy
}

// NewCommandPuller parses and validates command, which is split with shell
// quoting rules but never run through a shell.
func NewCommandPuller(command, dir string, timeout time.Duration, logger *slog.Logger) (*CommandPuller, error) {
	if command == "" {
		command = DefaultPullCommand
	}
	parts, err := cmdutil.ParseCommandString(command)
	if err != nil {
		return nil, fmt.Errorf("invalid pull command: %w", err)
	}
	policy := security.NewCommandPolicy()
	if err := policy.Validate(parts); err != nil {
		return nil, fmt.Errorf("invalid pull command: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandPuller{Command: parts, Dir: dir, Timeout: timeout, Logger: logger, policy: policy}, nil
}

// Pull runs the command and returns its combined output.
func (p *CommandPuller) Pull(ctx context.Context) ([]byte, error) {
	if err := p.policy.Validate(p.Command); err != nil {
		return nil, err
	}

	p.Logger.Info("Running pull", "command", cmdutil.FormatCommand(p.Command), "dir", p.Dir)
	result, err := cmdutil.Run(ctx, cmdutil.ExecOptions{Dir: p.Dir, Timeout: p.Timeout}, p.Command)
	var output []byte
	if result != nil {
		output = result.Output
	}
	if err != nil {
		return output, err
	}
	p.Logger.Info("Pull completed", "duration_ms", result.Duration.Milliseconds())
	return output, nil
}
