package migrate

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Engine is the external transform engine contract. ProcessGroup
// synchronously processes every migration definition tagged with the
// group against the currently staged files, returning an error on
// failure. The engine is an injected capability: whether a real engine
// is available is decided by the caller at construction time, never
// probed at runtime.
type Engine interface {
	ProcessGroup(ctx context.Context, group string) error
}

// CommandEngine invokes the CMS's import trigger as an external command,
// e.g. ["/usr/local/bin/cms", "migrate:import"]. The staged path and the
// group are exported as SFIMPORT_STAGING and SFIMPORT_GROUP environment
// variables for the child process.
type CommandEngine struct {
	argv    []string
	staging string
}

var _ Engine = (*CommandEngine)(nil)

// NewCommandEngine creates an engine running argv for each group import.
func NewCommandEngine(argv []string, stagingPath string) (*CommandEngine, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("engine command must not be empty")
	}
	return &CommandEngine{argv: argv, staging: stagingPath}, nil
}

// ProcessGroup runs the configured command and waits for it. A non-zero
// exit is reported with the command's combined output attached.
func (e *CommandEngine) ProcessGroup(ctx context.Context, group string) error {
	cmd := exec.CommandContext(ctx, e.argv[0], e.argv[1:]...)
	cmd.Env = append(os.Environ(),
		"SFIMPORT_GROUP="+group,
		"SFIMPORT_STAGING="+e.staging,
	)

	out, err := cmd.CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(out))
		if detail != "" {
			return fmt.Errorf("transform engine %q: %w: %s", e.argv[0], err, detail)
		}
		return fmt.Errorf("transform engine %q: %w", e.argv[0], err)
	}
	return nil
}

// UnavailableEngine is the explicit stub for contexts where the
// transform engine cannot run (interactive web requests, or a settings
// file without an engine command). Every invocation fails.
type UnavailableEngine struct{}

var _ Engine = UnavailableEngine{}

// ProcessGroup always returns an error.
func (UnavailableEngine) ProcessGroup(ctx context.Context, group string) error {
	return fmt.Errorf("transform engine unavailable in this execution context")
}
