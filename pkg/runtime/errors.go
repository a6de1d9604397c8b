package runtime

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSteps is returned by New for a form without steps.
	ErrNoSteps = errors.New("runtime: form has no steps")
	// ErrUnknownField is returned for ids not present in the form.
	ErrUnknownField = errors.New("runtime: unknown field")
	// ErrLayoutField is returned when writing a value to a layout-only field.
	ErrLayoutField = errors.New("runtime: layout fields carry no value")
	// ErrNotEditing is returned by mutations outside the Editing state.
	ErrNotEditing = errors.New("runtime: session is not editing")
	// ErrNotLastStep is returned by Submit before the last step.
	ErrNotLastStep = errors.New("runtime: submit is only allowed on the last step")
	// ErrValidationFailed is returned by Submit when required fields are empty.
	// Details are in Errors().
	ErrValidationFailed = errors.New("runtime: validation failed")
	// ErrNoSubmitter is returned by Submit without a configured sink.
	ErrNoSubmitter = errors.New("runtime: no submitter configured")
	// ErrNoSchedule is returned for schedule operations on non-schedule fields.
	ErrNoSchedule = errors.New("runtime: field has no schedule engine")
)

// SubmitError wraps a remote rejection of a submit attempt. The session is
// back in Editing with its values intact, so the attempt can be retried.
// Fields holds remote field errors that were mapped onto the form.
type SubmitError struct {
	Err    error
	Fields map[string]string
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("runtime: submit rejected: %v", e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }
