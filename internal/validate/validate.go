// Package validate checks batch JSON files against an optional CUE
// schema before they are staged. Records the schema rejects never reach
// the transform engine, which keeps malformed upstream payloads from
// half-importing into destination records.
package validate

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"
)

// Validator validates JSON documents against a compiled CUE schema.
type Validator struct {
	schema cue.Value
}

// Load compiles the CUE schema at path.
//
// The schema is the top-level value of the file; batch documents must
// unify with it. Example schema accepting session exports:
//
//	{
//		kind!:  string
//		items!: [...{id!: string}]
//	}
func Load(path string) (*Validator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}

	v := cuecontext.New().CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile schema %s: %s", path, errors.Details(err, nil))
	}

	return &Validator{schema: v}, nil
}

// ValidateFile checks that the JSON document at path satisfies the
// schema.
func (v *Validator) ValidateFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := cuejson.Validate(data, v.schema); err != nil {
		return fmt.Errorf("schema violation in %s: %w", path, err)
	}
	return nil
}
