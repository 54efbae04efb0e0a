// Package migrate holds the migration-side domain: definition statuses,
// the SQLite-backed registry the CMS and importer share, and the
// contract for the external transform engine.
package migrate

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a migration definition. Only Idle
// definitions are safe to trigger; anything else means a run or rollback
// is in flight (or the definition is administratively off).
type Status int

const (
	StatusIdle Status = iota
	StatusImporting
	StatusRollingBack
	StatusStopping
	StatusDisabled
)

// statusCodes are the canonical storage representation of each status.
var statusCodes = map[Status]string{
	StatusIdle:        "idle",
	StatusImporting:   "importing",
	StatusRollingBack: "rolling_back",
	StatusStopping:    "stopping",
	StatusDisabled:    "disabled",
}

// statusLabels are the human-readable forms used in logs and CLI output.
var statusLabels = map[Status]string{
	StatusIdle:        "Idle",
	StatusImporting:   "Importing",
	StatusRollingBack: "Rolling back",
	StatusStopping:    "Stopping",
	StatusDisabled:    "Disabled",
}

// Code returns the storage code, e.g. "rolling_back".
func (s Status) Code() string {
	if code, ok := statusCodes[s]; ok {
		return code
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// Label returns the human-readable status label, e.g. "Rolling back".
func (s Status) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return fmt.Sprintf("Unknown (%d)", int(s))
}

// ParseStatus converts a storage code back into a Status.
func ParseStatus(code string) (Status, error) {
	for s, c := range statusCodes {
		if c == code {
			return s, nil
		}
	}
	return StatusIdle, fmt.Errorf("unknown migration status %q", code)
}

// Definition is one migration definition as tracked by the registry.
// Definitions are owned by the CMS; the importer only reads their status
// and never mutates it.
type Definition struct {
	// ID is the machine name, e.g. "sf_sessions".
	ID string

	// Group tags the definition into a processing group.
	Group string

	// Status is the current lifecycle state.
	Status Status

	// UpdatedAt is when the status last changed.
	UpdatedAt time.Time
}

// Run is one recorded import attempt for a single batch directory.
type Run struct {
	// Token is the UUIDv7 run token, sortable by start time.
	Token string

	// Batch is the batch directory path the run processed.
	Batch string

	// Outcome is the result kind code, e.g. "imported" or "engine_error".
	Outcome string

	// Files is how many JSON files the batch contributed to staging.
	Files int

	StartedAt  time.Time
	FinishedAt time.Time
}
