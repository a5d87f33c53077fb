package domain

import (
	"context"
	"errors"
	"fmt"
)

// Panel errors. Parsing and format failures are recovered close to where
// they occur; only ErrNoValidEvaluations, ErrSessionAlreadyActive and
// ErrPitchNotCaptured are surfaced to callers.
var (
	// ErrUnknownPersona indicates a lookup for a name that is not registered.
	ErrUnknownPersona = errors.New("unknown persona")

	// ErrMalformedJudgeOutput indicates a completion that could not be
	// parsed into the structure the caller expected.
	ErrMalformedJudgeOutput = errors.New("malformed judge output")

	// ErrNoValidEvaluations indicates that every judge failed to produce a
	// usable evaluation.
	ErrNoValidEvaluations = errors.New("no valid evaluations")

	// ErrSessionAlreadyActive indicates a Q&A loop is already running.
	ErrSessionAlreadyActive = errors.New("Q&A session already active")

	// ErrPitchNotCaptured indicates Q&A was requested while the pitch is
	// still being captured.
	ErrPitchNotCaptured = errors.New("pitch not captured yet")

	// ErrUnhandledLoop indicates a failure inside the Q&A loop.
	ErrUnhandledLoop = errors.New("unhandled Q&A loop error")

	// ErrBudgetExceeded indicates the completion budget is spent.
	ErrBudgetExceeded = errors.New("completion budget exceeded")

	// ErrInvalidConfiguration indicates that configuration is invalid or incomplete.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// Failure categories reported in FailurePayload.
const (
	CategoryUnknownPersona  = "unknown_persona"
	CategoryMalformedOutput = "malformed_judge_output"
	CategoryNoEvaluations   = "no_valid_evaluations"
	CategorySessionActive   = "session_already_active"
	CategoryPitchPending    = "pitch_not_captured"
	CategoryLoop            = "unhandled_loop_error"
	CategoryValidation      = "validation_error"
	CategoryCanceled        = "canceled"
	CategoryInternal        = "internal_error"
	CategoryConfiguration   = "configuration_error"
	CategoryBudget          = "budget_exceeded"
)

// UnknownPersonaError names the persona that failed lookup.
type UnknownPersonaError struct {
	Name string
}

func (e *UnknownPersonaError) Error() string {
	return fmt.Sprintf("unknown persona %q", e.Name)
}

// Is lets errors.Is match ErrUnknownPersona.
func (e *UnknownPersonaError) Is(target error) bool { return target == ErrUnknownPersona }

// MalformedOutputError records which judge produced unusable output and why.
type MalformedOutputError struct {
	Judge  string
	Reason string
	Err    error
}

// Error implements the error interface for MalformedOutputError.
func (e *MalformedOutputError) Error() string {
	msg := fmt.Sprintf("malformed output from %s: %s", e.Judge, e.Reason)
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *MalformedOutputError) Unwrap() error { return e.Err }

// Is lets errors.Is match ErrMalformedJudgeOutput.
func (e *MalformedOutputError) Is(target error) bool { return target == ErrMalformedJudgeOutput }

// NewMalformedOutputError creates a MalformedOutputError.
func NewMalformedOutputError(judge, reason string, err error) *MalformedOutputError {
	return &MalformedOutputError{Judge: judge, Reason: reason, Err: err}
}

// UnhandledLoopError wraps a failure that ended a Q&A loop.
type UnhandledLoopError struct {
	Err error
}

func (e *UnhandledLoopError) Error() string {
	return fmt.Sprintf("Q&A loop terminated: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *UnhandledLoopError) Unwrap() error { return e.Err }

// Is lets errors.Is match ErrUnhandledLoop.
func (e *UnhandledLoopError) Is(target error) bool { return target == ErrUnhandledLoop }

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}

// Categorize maps an error to the category string carried in a
// FailurePayload.
func Categorize(err error) string {
	var verr *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoValidEvaluations):
		return CategoryNoEvaluations
	case errors.Is(err, ErrUnknownPersona):
		return CategoryUnknownPersona
	case errors.Is(err, ErrSessionAlreadyActive):
		return CategorySessionActive
	case errors.Is(err, ErrPitchNotCaptured):
		return CategoryPitchPending
	case errors.Is(err, ErrMalformedJudgeOutput):
		return CategoryMalformedOutput
	case errors.Is(err, ErrUnhandledLoop):
		return CategoryLoop
	case errors.Is(err, ErrInvalidConfiguration):
		return CategoryConfiguration
	case errors.Is(err, ErrBudgetExceeded):
		return CategoryBudget
	case errors.As(err, &verr):
		return CategoryValidation
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CategoryCanceled
	default:
		return CategoryInternal
	}
}

// NewFailurePayload builds the structured failure for err.
func NewFailurePayload(err error) *FailurePayload {
	return &FailurePayload{Error: err.Error(), Category: Categorize(err)}
}
