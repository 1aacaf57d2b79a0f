package engine

import (
	"encoding/json"
	"fmt"
)

// Phase is one state of the provisioning state machine.
type Phase string

const (
	PhaseInit             Phase = "init"
	PhaseEnsureDeps       Phase = "ensure_deps"
	PhaseProbeEnvironment Phase = "probe_environment"
	PhaseEnsureToolkit    Phase = "ensure_toolkit"
	PhaseProvision        Phase = "provision"
	PhaseOptionalConvert  Phase = "optional_convert"
	PhaseReport           Phase = "report"
)

// Phases lists the phases in execution order.
var Phases = []Phase{
	PhaseInit,
	PhaseEnsureDeps,
	PhaseProbeEnvironment,
	PhaseEnsureToolkit,
	PhaseProvision,
	PhaseOptionalConvert,
	PhaseReport,
}

// Validate checks if the phase is valid.
func (p Phase) Validate() error {
	for _, known := range Phases {
		if p == known {
			return nil
		}
	}
	return fmt.Errorf("invalid phase: %s", p)
}

// StepStatus is the outcome of a single provisioning step.
type StepStatus string

const (
	// StepStatusSucceeded indicates the command ran and exited zero.
	StepStatusSucceeded StepStatus = "succeeded"

	// StepStatusFailed indicates the command failed or could not be started.
	StepStatusFailed StepStatus = "failed"

	// StepStatusSkipped indicates the step was not needed or not applicable.
	StepStatusSkipped StepStatus = "skipped"
)

// IsFailure returns true if the status counts against the run.
func (s StepStatus) IsFailure() bool {
	return s == StepStatusFailed
}

// Validate checks if the step status is valid.
func (s StepStatus) Validate() error {
	switch s {
	case StepStatusSucceeded, StepStatusFailed, StepStatusSkipped:
		return nil
	default:
		return fmt.Errorf("invalid step status: %s", s)
	}
}

// MarshalJSON implements json.Marshaler for StepStatus.
func (s StepStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements json.Unmarshaler for StepStatus.
func (s *StepStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	status := StepStatus(str)
	if err := status.Validate(); err != nil {
		return err
	}
	*s = status
	return nil
}

// StepOutcome records what happened to one step.
type StepOutcome struct {
	Name     string     `json:"name"`
	Status   StepStatus `json:"status"`
	ExitCode int        `json:"exit_code"`
	Error    string     `json:"error,omitempty"`
}
