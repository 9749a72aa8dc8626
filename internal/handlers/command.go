package handlers

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultCommandTimeout bounds external action commands.
const DefaultCommandTimeout = 5 * time.Second

// Commands runs the external programs configured per action name.
type Commands struct {
	argv    map[string][]string
	timeout time.Duration
}

// NewCommands returns a Commands runner. Entries with an empty argv are
// ignored. A non-positive timeout uses DefaultCommandTimeout.
func NewCommands(argv map[string][]string, timeout time.Duration) *Commands {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	m := make(map[string][]string, len(argv))
	for name, args := range argv {
		if len(args) == 0 || args[0] == "" {
			continue
		}
		m[name] = append([]string(nil), args...)
	}
	return &Commands{argv: m, timeout: timeout}
}

// Has reports whether a command is configured for action.
func (c *Commands) Has(action string) bool {
	if c == nil {
		return false
	}
	_, ok := c.argv[action]
	return ok
}

// Run executes the command for action and waits for it, up to the timeout.
func (c *Commands) Run(ctx context.Context, action string) error {
	if !c.Has(action) {
		return fmt.Errorf("%w: %s", ErrNotConfigured, action)
	}
	args := c.argv[action]

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	cmd.WaitDelay = time.Second

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%s: %s timed out after %s", action, args[0], c.timeout)
		}
		msg := strings.TrimSpace(out.String())
		if msg != "" {
			return fmt.Errorf("%s: %s: %w: %s", action, args[0], err, msg)
		}
		return fmt.Errorf("%s: %s: %w", action, args[0], err)
	}
	return nil
}
