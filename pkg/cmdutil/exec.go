package cmdutil

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
)

// ErrTimeout is returned (wrapped) when a command is killed because its
// timeout elapsed.
var ErrTimeout = errors.New("command timed out")

// ExecOptions configures command execution.
type ExecOptions struct {
	// Dir is the working directory for the command.
	Dir string

	// Timeout is the maximum execution time.
	// If zero, no timeout is applied.
	Timeout time.Duration

	// Env contains environment variables for the command, in "KEY=value"
	// form. Nil inherits the environment of the server.
	Env []string
}

// Result contains the result of a command execution.
type Result struct {
	// Output is the combined stdout and stderr.
	Output []byte

	// ExitCode is the exit code of the command, -1 if it was killed.
	ExitCode int

	// Duration is how long the command took to execute.
	Duration time.Duration
}

// Run executes a command with the given options. The command is provided as
// a slice of arguments and is never passed through a shell.
//
// A result is returned whenever the process was started, even on failure,
// so callers can report its output.
func Run(ctx context.Context, opts ExecOptions, cmdParts []string) (*Result, error) {
	if len(cmdParts) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, cmdParts[0], cmdParts[1:]...)
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env

	start := time.Now()
	output, err := cmd.CombinedOutput()
	result := &Result{
		Output:   output,
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return result, fmt.Errorf("%s after %s: %w", cmdParts[0], opts.Timeout, ErrTimeout)
		}
		return result, fmt.Errorf("command failed: %w", err)
	}

	return result, nil
}

// ParseCommandString parses a shell-quoted command string into parts.
//
// Example:
//
//	"git pull --ff-only origin \"main\"" -> ["git", "pull", "--ff-only", "origin", "main"]
func ParseCommandString(cmdStr string) ([]string, error) {
	parts, err := shellquote.Split(cmdStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse command string: %w", err)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty command string")
	}
	return parts, nil
}

// FormatCommand formats command parts into a readable string for logging.
// Example: ["unzip", "-o", "my file.zip"] -> "unzip -o 'my file.zip'"
func FormatCommand(cmdParts []string) string {
	if len(cmdParts) == 0 {
		return "<empty command>"
	}

	quoted := make([]string, len(cmdParts))
	for i, part := range cmdParts {
		if strings.ContainsAny(part, " \t\n\"'") {
			quoted[i] = shellquote.Join(part)
		} else {
			quoted[i] = part
		}
	}

	return strings.Join(quoted, " ")
}

// SanitizeOutput removes secrets from command output before it is logged or
// returned to a client.
func SanitizeOutput(output []byte, secrets []string) []byte {
	sanitized := string(output)
	for _, secret := range secrets {
		if secret != "" {
			sanitized = strings.ReplaceAll(sanitized, secret, "***REDACTED***")
		}
	}
	return []byte(sanitized)
}
