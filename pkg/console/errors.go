package console

import "errors"

var (
	// ErrAborted is returned when the user interrupts a prompt.
	ErrAborted = errors.New("console: aborted")
	// ErrUnanswerable is returned when a required field has nothing to
	// choose from, so the step can never pass.
	ErrUnanswerable = errors.New("console: required field has no options")
)
