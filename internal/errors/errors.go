// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrNoCompanySelected = errors.New("select company")
	ErrNoGoodSelected    = errors.New("select good")
	ErrSelectionUnset    = errors.New("selection used before initialization")
	ErrSourceStopped     = errors.New("data source stopped")
	ErrConfigInvalid     = errors.New("invalid configuration")
	ErrReadOnlyMode      = errors.New("operation blocked: read-only mode enabled")
	ErrInputValidation   = errors.New("input validation failed")
	ErrNotFound          = errors.New("not found")
)

// RemoteError is returned by the gateway for every failed call. A non-success
// response carries the raw body; transport and decode failures carry Status 0
// and the underlying error.
type RemoteError struct {
	Method string
	Path   string
	Status int
	Body   string
	Err    error
}

// Error returns the response body verbatim when the service answered.
func (e *RemoteError) Error() string {
	if e.Status != 0 {
		return e.Body
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
	}
	return fmt.Sprintf("%s %s failed", e.Method, e.Path)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// NewRemoteError creates a RemoteError for a non-success response.
func NewRemoteError(method, path string, status int, body string) *RemoteError {
	return &RemoteError{
		Method: method,
		Path:   path,
		Status: status,
		Body:   body,
	}
}

// NewTransportError creates a RemoteError for a failure below HTTP.
func NewTransportError(method, path string, err error) *RemoteError {
	return &RemoteError{
		Method: method,
		Path:   path,
		Err:    err,
	}
}

// ValidationError represents a local validation failure. No request is sent
// when one of these is returned.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInputValidation
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// MissingSelection creates a ValidationError wrapping a selection sentinel.
func MissingSelection(field string, sentinel error) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: sentinel.Error(),
		Err:     sentinel,
	}
}

// ConsistencyError reports inventory rows whose reserved amount exceeds the
// held quantity.
type ConsistencyError struct {
	CompanyID int64
	GoodIDs   []int64
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("inventory inconsistent for company %d: reserved exceeds quantity for goods %v", e.CompanyID, e.GoodIDs)
}

// RefreshError is returned when a mutation was accepted by the service but a
// dependent source failed to refresh afterwards.
type RefreshError struct {
	Action string
	Source string
	Err    error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("%s succeeded but refreshing %s failed: %v", e.Action, e.Source, e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// NewRefreshError creates a new RefreshError.
func NewRefreshError(action, source string, err error) *RefreshError {
	return &RefreshError{
		Action: action,
		Source: source,
		Err:    err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join wraps errors.Join.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
