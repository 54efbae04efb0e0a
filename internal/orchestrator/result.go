package orchestrator

import "fmt"

// Kind categorizes the outcome of a single batch run. The staging
// pipeline's "log and continue" policy is expressed through these typed
// results instead of suppressed exceptions: callers and tests can assert
// on the outcome without capturing logs.
type Kind string

const (
	// KindImported: files staged, engine succeeded, batch archived or
	// deleted.
	KindImported Kind = "imported"

	// KindNoFiles: the batch had no *.json files. A legitimate no-op,
	// not an error; nothing was copied, invoked, or removed.
	KindNoFiles Kind = "no_files"

	// KindSkipped: the importer is disabled or the orchestrator is not
	// in batch mode. Nothing happened.
	KindSkipped Kind = "skipped"

	// KindStagingError: scan, schema validation, or copy failed. The
	// batch is left in its then-current state for manual inspection.
	KindStagingError Kind = "staging_error"

	// KindEngineError: the transform engine invocation failed. Staged
	// copies remain; the batch directory is untouched.
	KindEngineError Kind = "engine_error"

	// KindArchiveError: the import succeeded but archival or deletion
	// failed. The batch will be re-scanned next run; re-staging is safe
	// because copies overwrite on conflict.
	KindArchiveError Kind = "archive_error"
)

// Result is the outcome of one batch run.
type Result struct {
	Kind  Kind
	Batch string

	// Files is how many JSON files the batch contributed.
	Files int

	// Err is the underlying failure for the error kinds, nil otherwise.
	Err error
}

// Failed reports whether the run ended in any error kind.
func (r Result) Failed() bool {
	switch r.Kind {
	case KindStagingError, KindEngineError, KindArchiveError:
		return true
	}
	return false
}

// String renders a one-line summary for logs and text output.
func (r Result) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", r.Batch, r.Kind, r.Err)
	}
	return fmt.Sprintf("%s: %s (%d files)", r.Batch, r.Kind, r.Files)
}
