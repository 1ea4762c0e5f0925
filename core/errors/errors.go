// Package errors provides the error taxonomy shared by the collation and stemma pipeline.
//
// Every typed error unwraps to one of the sentinels below, so callers at the
// edges (HTTP status mapping, CLI exit messages) only test with Is.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	// ErrCollation marks a verse the alignment oracle could not align.
	ErrCollation = errors.New("collation failed")
	// ErrClustering marks a tree build where every linkage method failed.
	ErrClustering  = errors.New("clustering failed")
	ErrUnsupported = errors.New("unsupported")
)

// chain lets a typed error match its sentinel and its cause.
func chain(sentinel, cause error) []error {
	if cause == nil {
		return []error{sentinel}
	}
	return []error{sentinel, cause}
}

// suffix renders ": s" when s is non-empty.
func suffix(s string) string {
	if s == "" {
		return ""
	}
	return ": " + s
}

// NotFoundError reports a missing manuscript, verse, artifact or bundle entry.
type NotFoundError struct {
	Resource string
	ID       string
	Err      error
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found" + suffix(e.ID)
}

func (e *NotFoundError) Unwrap() []error { return chain(ErrNotFound, e.Err) }

// ValidationError reports a rejected request parameter.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() []error { return chain(ErrInvalidInput, e.Err) }

// ParseError reports malformed input. Format names what was being decoded
// ("alignment table", "newick", "TEI"); Path is a file or verse id.
type ParseError struct {
	Format  string
	Path    string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	where := ""
	if e.Path != "" {
		where = " at " + e.Path
	}
	return fmt.Sprintf("failed to parse %s%s: %s", e.Format, where, e.Message)
}

func (e *ParseError) Unwrap() []error { return chain(ErrInvalidInput, e.Err) }

// CollationError marks an alignment oracle failure for a single verse.
// It never aborts a batch; the verse result carries it instead of a table.
type CollationError struct {
	Verse string
	Err   error
}

func (e *CollationError) Error() string {
	msg := "collation failed for verse " + e.Verse
	if e.Err != nil {
		msg += suffix(e.Err.Error())
	}
	return msg
}

// Is matches ErrCollation while Unwrap still exposes the oracle error.
func (e *CollationError) Is(target error) bool { return target == ErrCollation }

func (e *CollationError) Unwrap() error { return e.Err }

// ClusteringError lists every linkage method tried, in order, with its error.
type ClusteringError struct {
	Attempts []string
	Errs     []error
}

func (e *ClusteringError) Error() string {
	var b strings.Builder
	b.WriteString("clustering failed for all methods [")
	for i, err := range e.Errs {
		if i > 0 {
			b.WriteString("; ")
		}
		method := "?"
		if i < len(e.Attempts) {
			method = e.Attempts[i]
		}
		fmt.Fprintf(&b, "%s: %v", method, err)
	}
	b.WriteByte(']')
	return b.String()
}

func (e *ClusteringError) Unwrap() []error {
	return append([]error{ErrClustering}, e.Errs...)
}

// UnsupportedError reports an unknown output mode, strategy or file kind.
type UnsupportedError struct {
	Feature string
	Reason  string
	Err     error
}

func (e *UnsupportedError) Error() string {
	return "unsupported " + e.Feature + suffix(e.Reason)
}

func (e *UnsupportedError) Unwrap() []error { return chain(ErrUnsupported, e.Err) }

func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

func NewValidation(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func NewParse(format, path, message string) *ParseError {
	return &ParseError{Format: format, Path: path, Message: message}
}

// WrapParse converts a decoder error into a ParseError that keeps it as the cause.
func WrapParse(format, path string, err error) *ParseError {
	return &ParseError{Format: format, Path: path, Message: err.Error(), Err: err}
}

func NewCollation(verse string, err error) *CollationError {
	return &CollationError{Verse: verse, Err: err}
}

func NewUnsupported(feature, reason string) *UnsupportedError {
	return &UnsupportedError{Feature: feature, Reason: reason}
}

// Wrap prefixes err with message. A nil err stays nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf is Wrap with a format string.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }
