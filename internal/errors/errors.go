// Package errors defines the error taxonomy shared by the build, import and
// watch subsystems.
//
// Three categories exist and never overlap: recoverable build errors
// (RebuildError, resolved by disposing and recreating the build context),
// recoverable watch/runtime errors (plain errors, logged, watchers stay up),
// and fatal startup errors (listener bind failures, which terminate the
// process). Bundle diagnostics carry enough position information to be
// formatted for a browser overlay.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// RebuildError reports that the incremental module graph of a build session
// is no longer valid, typically because a file referenced by the graph was
// deleted. It is resolved by disposing the session and creating a fresh one;
// it is never surfaced to a client.
type RebuildError struct {
	// Path is the graph input that disappeared, if known.
	Path string
	Err  error
}

func (e *RebuildError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("stale build graph: input %s no longer on disk", e.Path)
	}
	return fmt.Sprintf("stale build graph: %v", e.Err)
}

func (e *RebuildError) Unwrap() error {
	return e.Err
}

// IsRebuildError reports whether err is (or wraps) a RebuildError.
func IsRebuildError(err error) bool {
	var re *RebuildError
	return errors.As(err, &re)
}

// InvalidPathError reports that no usable component name could be derived
// from a source file path.
type InvalidPathError struct {
	Path string
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("cannot derive component name from path %q", e.Path)
}

// DuplicateElementError reports a redefinition attempt for an element name
// that is already registered. Raised in non-development mode only.
type DuplicateElementError struct {
	Name string
}

func (e *DuplicateElementError) Error() string {
	return fmt.Sprintf("element %q is already defined", e.Name)
}

// ErrorSeverity represents the severity of a bundle diagnostic.
type ErrorSeverity int

const (
	ErrorSeverityWarning ErrorSeverity = iota
	ErrorSeverityError
)

// String returns the string representation of the severity.
func (s ErrorSeverity) String() string {
	switch s {
	case ErrorSeverityWarning:
		return "warning"
	case ErrorSeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// BundleError is a single diagnostic produced by the bundler.
type BundleError struct {
	File     string
	Line     int
	Column   int
	Message  string
	Severity ErrorSeverity
}

// Error implements the error interface.
func (be *BundleError) Error() string {
	if be.File == "" {
		return fmt.Sprintf("%s: %s", be.Severity, be.Message)
	}
	return fmt.Sprintf("%s:%d:%d: %s: %s", be.File, be.Line, be.Column, be.Severity, be.Message)
}

// BundleFailure aggregates the diagnostics of one failed bundler run.
type BundleFailure struct {
	Diagnostics []*BundleError
}

func (bf *BundleFailure) Error() string {
	if len(bf.Diagnostics) == 0 {
		return "bundling failed"
	}
	msgs := make([]string, len(bf.Diagnostics))
	for i, d := range bf.Diagnostics {
		msgs[i] = d.Error()
	}
	return fmt.Sprintf("bundling failed with %d error(s): %s", len(bf.Diagnostics), strings.Join(msgs, "; "))
}

// FormatForBrowser renders bundle diagnostics as plain text suitable for the
// reload stream, one diagnostic per line.
func FormatForBrowser(diags []*BundleError) string {
	var b strings.Builder
	for _, d := range diags {
		b.WriteString(d.Error())
		b.WriteString("\n")
	}
	return b.String()
}
