package engine

import (
	"errors"
	"fmt"
)

// ErrorClass decides what the orchestrator does with a failure.
type ErrorClass string

const (
	// ErrorClassFatal stops provisioning immediately.
	// Examples: wrong entry point, interpreter version mismatch.
	ErrorClassFatal ErrorClass = "fatal"

	// ErrorClassLogged is counted and recorded, and the run continues.
	// Examples: download failures, a failed package-manager step.
	ErrorClassLogged ErrorClass = "logged"

	// ErrorClassSilent marks a best-effort capability that is absent on this
	// machine. It is neither counted nor recorded.
	ErrorClassSilent ErrorClass = "silent"
)

// ProvisionError is a classified failure raised by a provisioning component.
type ProvisionError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Step names the provisioning step that failed, if any.
	Step string `json:"step,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *ProvisionError) Error() string {
	msg := e.Message
	if e.Step != "" {
		msg = fmt.Sprintf("%s (step=%s)", msg, e.Step)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s", e.Class, msg, e.Err.Error())
	}
	return fmt.Sprintf("[%s] %s", e.Class, msg)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *ProvisionError) Unwrap() error {
	return e.Err
}

// Is matches on class and code so sentinel values work with errors.Is.
func (e *ProvisionError) Is(target error) bool {
	t, ok := target.(*ProvisionError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewFatalError creates a new fatal error.
func NewFatalError(message string, err error) *ProvisionError {
	return &ProvisionError{
		Class:   ErrorClassFatal,
		Message: message,
		Err:     err,
	}
}

// NewLoggedError creates a new logged error.
func NewLoggedError(message string, err error) *ProvisionError {
	return &ProvisionError{
		Class:   ErrorClassLogged,
		Message: message,
		Err:     err,
	}
}

// NewSilentError creates a new silent error.
func NewSilentError(message string, err error) *ProvisionError {
	return &ProvisionError{
		Class:   ErrorClassSilent,
		Message: message,
		Err:     err,
	}
}

// WithCode adds an error code to an error.
func (e *ProvisionError) WithCode(code string) *ProvisionError {
	e.Code = code
	return e
}

// WithStep adds step context to an error.
func (e *ProvisionError) WithStep(step string) *ProvisionError {
	e.Step = step
	return e
}

// WithDetail adds a detail field to the error context.
func (e *ProvisionError) WithDetail(key string, value interface{}) *ProvisionError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ClassOf returns the class of err, or ErrorClassLogged for unclassified errors.
func ClassOf(err error) ErrorClass {
	var e *ProvisionError
	if errors.As(err, &e) {
		return e.Class
	}
	return ErrorClassLogged
}

// CodeOf returns the code of err, or ErrCodeInternal for unclassified errors.
func CodeOf(err error) string {
	var e *ProvisionError
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	return ErrCodeInternal
}

// IsFatal returns true if the error is classified as fatal.
func IsFatal(err error) bool {
	var e *ProvisionError
	if errors.As(err, &e) {
		return e.Class == ErrorClassFatal
	}
	return false
}

// IsSilent returns true if the error is classified as silent.
func IsSilent(err error) bool {
	var e *ProvisionError
	if errors.As(err, &e) {
		return e.Class == ErrorClassSilent
	}
	return false
}

// Common error codes.
const (
	ErrCodeEntryPoint        = "ENTRY_POINT"
	ErrCodeVersionMismatch   = "VERSION_MISMATCH"
	ErrCodeDownloadFailed    = "DOWNLOAD_FAILED"
	ErrCodeSizeMismatch      = "SIZE_MISMATCH"
	ErrCodeInstallFailed     = "INSTALL_FAILED"
	ErrCodeStepFailed        = "STEP_FAILED"
	ErrCodeInvalidFormat     = "INVALID_FORMAT"
	ErrCodeConvertFailed     = "CONVERT_FAILED"
	ErrCodeCapabilityMissing = "CAPABILITY_MISSING"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// ErrEntryPoint is returned when the process was not started through the launcher.
var ErrEntryPoint = NewFatalError("Please run the script using start.bat", nil).WithCode(ErrCodeEntryPoint)
