// Package health implements the pre-flight migration health gate.
//
// Importing into a group whose migrations are mid-run or mid-rollback
// corrupts the destination records, so a tick refuses to proceed unless
// every definition in the group is idle. Any doubt (a query failure, an
// unknown status) is treated as "not safe to import", never as safe.
package health

import (
	"context"
	"log/slog"

	"github.com/sundew/sfimport/internal/migrate"
)

// StatusSource yields the migration definitions of a group.
// *migrate.Registry satisfies this.
type StatusSource interface {
	GroupDefinitions(ctx context.Context, group string) ([]migrate.Definition, error)
}

// Checker verifies that a migration group is safe to import into.
type Checker struct {
	src    StatusSource
	logger *slog.Logger
}

// NewChecker creates a Checker. A nil logger falls back to slog.Default.
func NewChecker(src StatusSource, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{src: src, logger: logger}
}

// CheckGroup returns true only if every migration definition in the
// group is idle. The first non-idle definition is logged with its status
// label and short-circuits the check; the remaining definitions are not
// inspected. A retrieval failure logs and returns false.
func (c *Checker) CheckGroup(ctx context.Context, group string) bool {
	defs, err := c.src.GroupDefinitions(ctx, group)
	if err != nil {
		c.logger.Error("failed to load migration group", "group", group, "error", err)
		return false
	}

	for _, def := range defs {
		if def.Status != migrate.StatusIdle {
			c.logger.Error("migration not idle",
				"group", group,
				"migration", def.ID,
				"status", def.Status.Label(),
			)
			return false
		}
	}

	return true
}
