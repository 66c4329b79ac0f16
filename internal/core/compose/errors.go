// Package compose contains pure functions over CasaOS compose descriptors:
// parsing, normalization into the platform's installable shape, schema
// validation and structural change detection.
// This is part of the Functional Core - all functions are pure with no I/O.
package compose

import (
	"fmt"

	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/core/domain"
)

// =============================================================================
// Error Types
// =============================================================================

// Every error here wraps domain.ErrValidation so callers can classify it
// without knowing this package.
var (
	// Input validation errors
	ErrEmptyInput = fmt.Errorf("%w: descriptor is empty", domain.ErrValidation)

	// YAML parsing errors
	ErrInvalidYAML = fmt.Errorf("%w: invalid YAML syntax", domain.ErrValidation)

	// Descriptor structure errors
	ErrNoServices     = fmt.Errorf("%w: descriptor must define at least one service", domain.ErrValidation)
	ErrMissingAppID   = fmt.Errorf("%w: descriptor has no top-level name", domain.ErrValidation)
	ErrInvalidService = fmt.Errorf("%w: service definition must be a mapping", domain.ErrValidation)
	ErrInvalidBuild   = fmt.Errorf("%w: invalid build configuration", domain.ErrValidation)
	ErrSchema         = fmt.Errorf("%w: descriptor does not match the compose schema", domain.ErrValidation)
	ErrBindSource     = fmt.Errorf("%w: unsupported bind mount source", domain.ErrValidation)
)

// ParseError wraps errors with context about where parsing failed.
type ParseError struct {
	Field   string // e.g., "services.web.build"
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError.
func NewParseError(field, message string, err error) *ParseError {
	return &ParseError{
		Field:   field,
		Message: message,
		Err:     err,
	}
}
