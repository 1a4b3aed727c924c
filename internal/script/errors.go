package script

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors for the script package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, script.ErrUnresolvedVariable) {
//	    // a ${name} reference had no value
//	}
var (
	// ErrExit is returned by ExitStep. The engine treats it as a clean stop.
	ErrExit = errors.New("script: exit requested")

	// ErrInterrupted is returned when a run observes cancellation at a step boundary.
	ErrInterrupted = errors.New("script: interrupted")

	// ErrUnresolvedVariable is returned when a ${name} reference has no value.
	ErrUnresolvedVariable = errors.New("script: unresolved variable")

	// ErrInvalidNumber is returned when a resolved parameter is not an integer.
	ErrInvalidNumber = errors.New("script: invalid number")

	// ErrInvalidScript is returned when a script document fails validation.
	ErrInvalidScript = errors.New("script: invalid")

	// ErrUnknownStepType is returned when a step document names no known kind.
	ErrUnknownStepType = errors.New("script: unknown step type")

	// ErrRunExists is returned when a (run id, instance) pair is already executing.
	ErrRunExists = errors.New("script: run already active")

	// ErrInvalidRunSpec is returned when a RunSpec is missing required fields.
	ErrInvalidRunSpec = errors.New("script: invalid run spec")

	// ErrEngineClosed is returned by RunAsync after Shutdown.
	ErrEngineClosed = errors.New("script: engine closed")
)

// StepError records which step failed. Path holds the index at each nesting
// level, so [3 0] is the first child of the fourth top-level step.
type StepError struct {
	Path []int
	Type StepType
	Err  error
}

func (e *StepError) Error() string {
	parts := make([]string, len(e.Path))
	for i, p := range e.Path {
		parts[i] = fmt.Sprint(p)
	}
	return fmt.Sprintf("step %s (%s): %v", strings.Join(parts, "."), e.Type, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// wrapStep attaches the index of a step to err. Nested StepErrors get the
// index prepended so the final path reads outermost first.
func wrapStep(err error, index int, t StepType) error {
	if err == nil || errors.Is(err, ErrExit) || errors.Is(err, ErrInterrupted) {
		return err
	}
	var se *StepError
	if errors.As(err, &se) {
		return &StepError{Path: append([]int{index}, se.Path...), Type: se.Type, Err: se.Err}
	}
	return &StepError{Path: []int{index}, Type: t, Err: err}
}
