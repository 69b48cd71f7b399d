// Package errors provides the standardized error types used across bowdler.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates invalid input or validation failure
	ErrInvalidInput = errors.New("invalid input")
	// ErrFormat indicates malformed manuscript grammar
	ErrFormat = errors.New("format error")
	// ErrOracle indicates a failed rewriting-oracle call
	ErrOracle = errors.New("oracle failure")
	// ErrInvariant indicates a violated model invariant (programmer error)
	ErrInvariant = errors.New("invariant violation")
	// ErrUnsupported indicates an unsupported operation or format
	ErrUnsupported = errors.New("unsupported")
)

// FormatError represents malformed manuscript grammar. It is fatal: a parse
// that produces a FormatError returns no document.
type FormatError struct {
	Line    int    // 1-based line number of the offending line
	Path    string // File path, if known
	Message string // Error details
	Err     error  // Underlying error, if any
}

func (e *FormatError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

func (e *FormatError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrFormat
}

// OracleError represents a failed call to the rewriting oracle. It is scoped
// to one change block and one category; sibling blocks are unaffected and the
// block's cleaned text is left unchanged.
type OracleError struct {
	Section  int    // Section sequence number
	Block    string // Change block ID within the section
	Category string // Cleaning category of the failed pass
	Err      error  // Underlying error
}

func (e *OracleError) Error() string {
	if e.Block != "" {
		return fmt.Sprintf("oracle failed for section %d block %s (%s): %v", e.Section, e.Block, e.Category, e.Err)
	}
	return fmt.Sprintf("oracle failed for section %d (%s): %v", e.Section, e.Category, e.Err)
}

func (e *OracleError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrOracle
}

// InvariantError represents a programmer error: an attempt to break a model
// guarantee, such as rewriting an immutable original text or moving a
// workflow status backward. It is never silently ignored.
type InvariantError struct {
	Op      string // Operation that was attempted
	Message string // What guarantee would have been broken
}

func (e *InvariantError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("invariant violated in %s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("invariant violated: %s", e.Message)
}

func (e *InvariantError) Unwrap() error {
	return ErrInvariant
}

// NotFoundError represents a resource not found error with context
type NotFoundError struct {
	Resource string // Type of resource (e.g., "section", "change block")
	ID       string // Identifier of the resource
	Err      error  // Underlying error, if any
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrNotFound
}

// IOError represents an I/O operation error with context
type IOError struct {
	Operation string // Operation being performed (e.g., "read", "write", "open")
	Path      string // File/resource path involved
	Err       error  // Underlying error
}

func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to %s %s: %v", e.Operation, e.Path, e.Err)
	}
	return fmt.Sprintf("failed to %s: %v", e.Operation, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// UnsupportedError represents an unsupported feature or format
type UnsupportedError struct {
	Feature string // Feature or format that is unsupported
	Reason  string // Why it's not supported
	Err     error  // Underlying error, if any
}

func (e *UnsupportedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unsupported %s: %s", e.Feature, e.Reason)
	}
	return fmt.Sprintf("unsupported %s", e.Feature)
}

func (e *UnsupportedError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrUnsupported
}

// Helper functions for creating common errors

// NewFormat creates a FormatError for the given line.
func NewFormat(line int, message string) *FormatError {
	return &FormatError{
		Line:    line,
		Message: message,
	}
}

// NewFormatf creates a FormatError with a formatted message.
func NewFormatf(line int, format string, args ...interface{}) *FormatError {
	return &FormatError{
		Line:    line,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewOracle creates an OracleError.
func NewOracle(section int, block, category string, err error) *OracleError {
	return &OracleError{
		Section:  section,
		Block:    block,
		Category: category,
		Err:      err,
	}
}

// NewInvariant creates an InvariantError.
func NewInvariant(op, message string) *InvariantError {
	return &InvariantError{
		Op:      op,
		Message: message,
	}
}

// NewNotFound creates a NotFoundError
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		ID:       id,
	}
}

// NewIO creates an IOError
func NewIO(operation, path string, err error) *IOError {
	return &IOError{
		Operation: operation,
		Path:      path,
		Err:       err,
	}
}

// NewUnsupported creates an UnsupportedError
func NewUnsupported(feature, reason string) *UnsupportedError {
	return &UnsupportedError{
		Feature: feature,
		Reason:  reason,
	}
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
