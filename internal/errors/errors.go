// Package errors provides a lightweight structured error type (BuildError)
// for stage-based classification of failures in the build pipeline and CLI.
package errors

import (
	"errors"
	"fmt"
)

// Category classifies where in the pipeline an error originated.
type Category string

const (
	// Local state and configuration errors
	CategoryConfig Category = "config"
	CategoryState  Category = "state"

	// Remote artifact source errors
	CategoryListing Category = "listing"
	CategoryCatalog Category = "catalog"
	CategoryFetch   Category = "fetch"

	// Per-task pipeline errors
	CategoryTemplate Category = "template"
	CategoryRender   Category = "render"

	// End-of-run persistence errors
	CategoryCommit Category = "commit"
)

// Severity indicates how an error affects the run as a whole.
type Severity string

const (
	SeverityFatal   Severity = "fatal"   // aborts the run
	SeverityError   Severity = "error"   // task-scoped, run continues
	SeverityWarning Severity = "warning" // degraded but functional
)

// BuildError is a structured error with category, severity, and context.
type BuildError struct {
	Category Category       `json:"category"`
	Severity Severity       `json:"severity"`
	Message  string         `json:"message"`
	Cause    error          `json:"cause,omitempty"`
	Context  map[string]any `json:"context,omitempty"`
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling.
func (e *BuildError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error.
func (e *BuildError) WithContext(key string, value any) *BuildError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// IsFatal reports whether the error should abort the run.
func (e *BuildError) IsFatal() bool { return e.Severity == SeverityFatal }

// New creates a new BuildError.
func New(category Category, severity Severity, message string) *BuildError {
	return &BuildError{Category: category, Severity: severity, Message: message}
}

// Wrap creates a new BuildError that wraps an existing error.
func Wrap(err error, category Category, severity Severity, message string) *BuildError {
	return &BuildError{Category: category, Severity: severity, Message: message, Cause: err}
}

// CategoryOf extracts the category from err, walking the wrap chain.
// Errors that are not BuildErrors report an empty category.
func CategoryOf(err error) Category {
	var be *BuildError
	if errors.As(err, &be) {
		return be.Category
	}
	return ""
}

// Convenience constructors for the pipeline categories.

func ListingFailure(err error, message string) *BuildError {
	return Wrap(err, CategoryListing, SeverityFatal, message)
}

func CatalogFailure(err error, message string) *BuildError {
	return Wrap(err, CategoryCatalog, SeverityFatal, message)
}

func FetchFailure(err error, message string) *BuildError {
	return Wrap(err, CategoryFetch, SeverityError, message)
}

func TemplateFailure(err error, message string) *BuildError {
	return Wrap(err, CategoryTemplate, SeverityError, message)
}

func RenderFailure(err error, message string) *BuildError {
	return Wrap(err, CategoryRender, SeverityError, message)
}

func CommitFailure(err error, message string) *BuildError {
	return Wrap(err, CategoryCommit, SeverityWarning, message)
}

func StateUnavailable(err error, message string) *BuildError {
	return Wrap(err, CategoryState, SeverityWarning, message)
}
