package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeResolution ErrorType = "resolution"
	ErrorTypeFetch      ErrorType = "fetch"
	ErrorTypeParams     ErrorType = "params"
	ErrorTypeDOM        ErrorType = "dom"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

// StitchError is a structured error type with context.
type StitchError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Component   string
	URL         string
	Recoverable bool
}

// Error implements the error interface.
func (e *StitchError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Component != "" {
		parts = append(parts, "component:"+e.Component)
	}

	if e.URL != "" {
		parts = append(parts, e.URL)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *StitchError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *StitchError) Is(target error) bool {
	var t *StitchError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *StitchError) WithContext(key string, value interface{}) *StitchError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithURL records the URL the failing operation was working on.
func (e *StitchError) WithURL(url string) *StitchError {
	e.URL = url

	return e
}

// WithComponent adds component context.
func (e *StitchError) WithComponent(component string) *StitchError {
	e.Component = component

	return e
}

// Error creation functions

// NewResolutionError creates an error for a path or selector that could not
// be turned into something usable.
func NewResolutionError(code, message string, cause error) *StitchError {
	return &StitchError{
		Type:        ErrorTypeResolution,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewFetchError creates a fragment fetch error.
func NewFetchError(code, message string, cause error) *StitchError {
	return &StitchError{
		Type:        ErrorTypeFetch,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewParamsError creates a parameter parsing error. These never abort an
// include.
func NewParamsError(code, message string, cause error) *StitchError {
	return &StitchError{
		Type:        ErrorTypeParams,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewDOMError creates a document mutation error.
func NewDOMError(code, message string) *StitchError {
	return &StitchError{
		Type:        ErrorTypeDOM,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *StitchError {
	return &StitchError{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *StitchError {
	return &StitchError{
		Type:        ErrorTypeInternal,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// Error recovery and handling utilities

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var se *StitchError
	if errors.As(err, &se) {
		return se.Recoverable
	}

	return false
}

// IsResolutionError checks if an error came from alias or selector resolution.
func IsResolutionError(err error) bool {
	return hasType(err, ErrorTypeResolution)
}

// IsFetchError checks if an error came from fetching a fragment.
func IsFetchError(err error) bool {
	return hasType(err, ErrorTypeFetch)
}

// IsParamsError checks if an error came from parsing include parameters.
func IsParamsError(err error) bool {
	return hasType(err, ErrorTypeParams)
}

func hasType(err error, t ErrorType) bool {
	var se *StitchError
	if errors.As(err, &se) {
		return se.Type == t
	}

	return false
}

// ErrorHandler provides centralized error handling.
type ErrorHandler struct {
	logger Logger
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs an error at a level matching its type.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil || h.logger == nil {
		return
	}

	var se *StitchError
	if !errors.As(err, &se) {
		h.logger.Error(ctx, err, "Unhandled error occurred")
		return
	}

	switch se.Type {
	case ErrorTypeParams, ErrorTypeDOM:
		h.logger.Warn(ctx, err, "Recoverable include error",
			"type", se.Type,
			"code", se.Code,
			"url", se.URL)
	default:
		h.logger.Error(ctx, err, "Include error occurred",
			"type", se.Type,
			"code", se.Code,
			"component", se.Component,
			"url", se.URL)
	}
}

// Common error codes.
const (
	ErrCodeResolve       = "ERR_RESOLVE"
	ErrCodeSelector      = "ERR_SELECTOR"
	ErrCodeFetch         = "ERR_FETCH"
	ErrCodeFetchStatus   = "ERR_FETCH_STATUS"
	ErrCodeFetchTooLarge = "ERR_FETCH_TOO_LARGE"
	ErrCodeParamsJSON    = "ERR_PARAMS_JSON"
	ErrCodeDetached      = "ERR_DETACHED"
	ErrCodeConfigInvalid = "ERR_CONFIG_INVALID"
	ErrCodeFileNotFound  = "ERR_FILE_NOT_FOUND"
	ErrCodeInternalError = "ERR_INTERNAL"
)
