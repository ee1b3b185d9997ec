// Package errors defines the application error kinds and their mapping
// to RFC 7807 problem responses. Every error here is recoverable at the
// level of a single user action; nothing in this package terminates a
// session.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an application error
type Kind string

const (
	// KindInvalidParameter marks bad user input (simulation parameters,
	// unusable uploads). The action is aborted and the message surfaced.
	KindInvalidParameter Kind = "INVALID_PARAMETER"

	// KindMalformedRow marks a row-level defect recovered locally by
	// default-fill or exclusion. It is reported, never fatal.
	KindMalformedRow Kind = "MALFORMED_ROW"

	// KindEmptyDataset marks a read against a session with no dataset,
	// surfaced as an empty-state message.
	KindEmptyDataset Kind = "EMPTY_DATASET"

	// KindParsing marks an uploaded file that could not be decoded at all.
	KindParsing Kind = "PARSING"

	// KindConfig marks startup configuration problems.
	KindConfig Kind = "CONFIG"

	// KindInternal is the fallback for unexpected failures.
	KindInternal Kind = "INTERNAL"
)

// AppError is the application-wide error type
type AppError struct {
	Kind    Kind
	Message string
	Field   string
	Cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	switch {
	case e.Field != "" && e.Cause != nil:
		return fmt.Sprintf("[%s] %s: %s: %v", e.Kind, e.Field, e.Message, e.Cause)
	case e.Field != "":
		return fmt.Sprintf("[%s] %s: %s", e.Kind, e.Field, e.Message)
	case e.Cause != nil:
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	default:
		return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	}
}

// Unwrap allows errors.Is and errors.As to reach the cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new application error
func NewAppError(kind Kind, message string, cause error) *AppError {
	return &AppError{Kind: kind, Message: message, Cause: cause}
}

// NewInvalidParameterError creates an invalid-parameter error for a field
func NewInvalidParameterError(field, message string) *AppError {
	return &AppError{Kind: KindInvalidParameter, Field: field, Message: message}
}

// NewMalformedRowError creates a recoverable row-level error
func NewMalformedRowError(message string, cause error) *AppError {
	return NewAppError(KindMalformedRow, message, cause)
}

// NewEmptyDatasetError creates an empty-dataset error
func NewEmptyDatasetError(message string) *AppError {
	return NewAppError(KindEmptyDataset, message, nil)
}

// NewParsingError creates a file-decoding error
func NewParsingError(message string, cause error) *AppError {
	return NewAppError(KindParsing, message, cause)
}

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(KindConfig, message, cause)
}

// IsKind reports whether err is an AppError of the given kind
func IsKind(err error, kind Kind) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}
