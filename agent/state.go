package agent

import (
	"errors"
	"fmt"

	"github.com/akolk/loki-nexus2/tools"
)

// State is a stage of one run.
type State string

const (
	StateAssembling State = "assembling"
	StateRunning    State = "running"
	StateExecuting  State = "executing"
	StatePersisting State = "persisting"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

var (
	// ErrSchema means the model's final answer was not valid JSON or lacked
	// a required field.
	ErrSchema = errors.New("answer does not match the required schema")

	// ErrMaxSteps means the model kept requesting tools past the step limit.
	ErrMaxSteps = errors.New("model exceeded the maximum number of steps")

	ErrAssembly = tools.ErrAssembly
)

// RunError is a run that ended in StateFailed. Stage is where it stopped.
type RunError struct {
	RunID string
	Stage State
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run %s failed while %s: %v", e.RunID, e.Stage, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }
