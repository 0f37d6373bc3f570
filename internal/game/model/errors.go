package model

import (
	"errors"
	"fmt"
)

// FailureKind classifies a failed request.
type FailureKind string

const (
	// FailureValidation means a rule or legality check failed; user-correctable.
	FailureValidation FailureKind = "validation"

	// FailureNotFound means a referenced card, zone or entity does not exist.
	FailureNotFound FailureKind = "not_found"

	// FailureMalformedPlan means a plan references a step that cannot be resolved.
	FailureMalformedPlan FailureKind = "malformed_plan"

	// FailureTurnViolation means the action was attempted out of turn or out of phase.
	FailureTurnViolation FailureKind = "turn_violation"
)

// Failure is a classified, non-fatal engine error. A failed request leaves state unchanged.
type Failure struct {
	Kind    FailureKind       `json:"kind"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// Error implements the error interface.
func (f *Failure) Error() string {
	return fmt.Sprintf("[%s] %s", f.Kind, f.Message)
}

// WithDetail attaches a detail key and returns the failure for chaining.
func (f *Failure) WithDetail(key, value string) *Failure {
	if f.Details == nil {
		f.Details = make(map[string]string)
	}
	f.Details[key] = value
	return f
}

// Validationf creates a ValidationFailure.
func Validationf(format string, args ...any) *Failure {
	return &Failure{Kind: FailureValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf creates a NotFoundFailure.
func NotFoundf(format string, args ...any) *Failure {
	return &Failure{Kind: FailureNotFound, Message: fmt.Sprintf(format, args...)}
}

// MalformedPlanf creates a MalformedPlanFailure.
func MalformedPlanf(format string, args ...any) *Failure {
	return &Failure{Kind: FailureMalformedPlan, Message: fmt.Sprintf(format, args...)}
}

// TurnViolationf creates a TurnViolationFailure.
func TurnViolationf(format string, args ...any) *Failure {
	return &Failure{Kind: FailureTurnViolation, Message: fmt.Sprintf(format, args...)}
}

// AsFailure extracts a *Failure from an error chain.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// IsKind reports whether err is a Failure of the given kind.
func IsKind(err error, kind FailureKind) bool {
	f, ok := AsFailure(err)
	return ok && f.Kind == kind
}
