package security

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultAllowedCommands is the set of programs the updater may run.
var DefaultAllowedCommands = map[string]bool{
	"git":    true,
	"unzip":  true,
	"tar":    true,
	"bsdtar": true,
}

// CommandPolicy validates configured subprocess invocations before they are
// run. Commands are executed without a shell, so the policy only has to keep
// the program name on a short list and keep shell syntax out of arguments
// that an operator might expect a shell to interpret.
type CommandPolicy struct {
	// AllowedCommands is the map of commands that are permitted to run.
	AllowedCommands map[string]bool
}

// NewCommandPolicy creates a policy with the default allow list.
func NewCommandPolicy() *CommandPolicy {
	allowed := make(map[string]bool, len(DefaultAllowedCommands))
	for cmd := range DefaultAllowedCommands {
		allowed[cmd] = true
	}
	return &CommandPolicy{AllowedCommands: allowed}
}

// Validate checks a command before execution.
func (p *CommandPolicy) Validate(cmdParts []string) error {
	if len(cmdParts) == 0 {
		return fmt.Errorf("empty command")
	}

	baseCmd := cmdParts[0]
	if !p.AllowedCommands[baseCmd] {
		return fmt.Errorf("command not allowed: %s (must be one of: %s)",
			baseCmd, strings.Join(p.allowedList(), ", "))
	}

	for i, arg := range cmdParts[1:] {
		if containsShellMetachars(arg) {
			return fmt.Errorf("argument %d contains shell metacharacters: %s", i+1, arg)
		}
	}

	return nil
}

// IsCommandAllowed checks if a command is in the allowed list.
func (p *CommandPolicy) IsCommandAllowed(cmd string) bool {
	return p.AllowedCommands[cmd]
}

func (p *CommandPolicy) allowedList() []string {
	commands := make([]string, 0, len(p.AllowedCommands))
	for cmd := range p.AllowedCommands {
		commands = append(commands, cmd)
	}
	sort.Strings(commands)
	return commands
}

// containsShellMetachars checks if a string contains shell metacharacters.
func containsShellMetachars(s string) bool {
	return strings.ContainsAny(s, ";|&$`\n<>(){}*?[]\\'\"")
}
