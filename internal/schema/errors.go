package schema

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks a malformed field schema. It is only ever
	// returned while loading, never while processing a document.
	ErrConfiguration = errors.New("invalid field schema")

	// ErrUnknownField is returned by Select for names the schema does not declare.
	ErrUnknownField = errors.New("unknown field")
)

// ConfigurationError describes which part of a schema failed to load.
type ConfigurationError struct {
	Source string // file path or "embedded"
	Field  string // empty for document-level problems
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("schema %s: field %q: %v", e.Source, e.Field, e.Err)
	}
	return fmt.Sprintf("schema %s: %v", e.Source, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}
