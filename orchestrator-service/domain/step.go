package domain

import (
	"encoding/json"
	"time"

	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/pkg/errors"
)

// StepStatus is the status of one step instance
type StepStatus string

const (
	StepStatusPending     StepStatus = "PENDING"
	StepStatusCompleted   StepStatus = "COMPLETED"
	StepStatusFailed      StepStatus = "FAILED"
	StepStatusCompensated StepStatus = "COMPENSATED"
)

// StepInstance is one attempt of one step within one saga
type StepInstance struct {
	SagaID        models.ID
	Sequence      int
	Name          string
	Status        StepStatus
	Result        json.RawMessage
	Error         string
	CreatedAt     time.Time
	DispatchedAt  *time.Time
	CompletedAt   *time.Time
	FailedAt      *time.Time
	CompensatedAt *time.Time
}

// NewStepInstance creates the PENDING record written before a command is sent
func NewStepInstance(sagaID models.ID, name string, sequence int) *StepInstance {
	return &StepInstance{
		SagaID:    sagaID,
		Sequence:  sequence,
		Name:      name,
		Status:    StepStatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

// Dispatched reports whether the transport accepted the step's command
func (s *StepInstance) Dispatched() bool {
	return s.DispatchedAt != nil
}

// Complete applies a success outcome. It returns false without error when the
// step already completed, so duplicate events are harmless.
func (s *StepInstance) Complete(result json.RawMessage, at time.Time) (bool, error) {
	applied, err := CompletionOutcome(s.Status)
	if !applied || err != nil {
		return false, err
	}

	s.Status = StepStatusCompleted
	s.Result = result
	s.CompletedAt = &at
	return true, nil
}

// Fail applies a failure outcome with the same duplicate semantics as Complete
func (s *StepInstance) Fail(reason string, at time.Time) (bool, error) {
	applied, err := FailureOutcome(s.Status)
	if !applied || err != nil {
		return false, err
	}

	s.Status = StepStatusFailed
	s.Error = reason
	s.FailedAt = &at
	return true, nil
}

// Compensate marks a COMPLETED step as undone
func (s *StepInstance) Compensate(at time.Time) (bool, error) {
	applied, err := CompensationOutcome(s.Status)
	if !applied || err != nil {
		return false, err
	}

	s.Status = StepStatusCompensated
	s.CompensatedAt = &at
	return true, nil
}

// CompletionOutcome decides what completing a step in the given status does:
// apply it, ignore a duplicate, or reject a conflicting outcome.
func CompletionOutcome(current StepStatus) (bool, error) {
	switch current {
	case StepStatusPending:
		return true, nil
	case StepStatusCompleted, StepStatusCompensated:
		return false, nil
	default:
		return false, errors.Wrapf(ErrStepConflict, "cannot complete a %s step", current)
	}
}

// FailureOutcome is CompletionOutcome for failures
func FailureOutcome(current StepStatus) (bool, error) {
	switch current {
	case StepStatusPending:
		return true, nil
	case StepStatusFailed:
		return false, nil
	default:
		return false, errors.Wrapf(ErrStepConflict, "cannot fail a %s step", current)
	}
}

// CompensationOutcome is CompletionOutcome for compensations
func CompensationOutcome(current StepStatus) (bool, error) {
	switch current {
	case StepStatusCompleted:
		return true, nil
	case StepStatusCompensated:
		return false, nil
	default:
		return false, errors.Wrapf(ErrStepConflict, "cannot compensate a %s step", current)
	}
}

// LatestStep returns the step with the highest sequence, or nil
func LatestStep(steps []*StepInstance) *StepInstance {
	var latest *StepInstance
	for _, step := range steps {
		if latest == nil || step.Sequence > latest.Sequence {
			latest = step
		}
	}
	return latest
}

// StepResults collects the results of completed steps keyed by step name
func StepResults(steps []*StepInstance) map[string]json.RawMessage {
	results := make(map[string]json.RawMessage)
	for _, step := range steps {
		if step.Status == StepStatusCompleted && len(step.Result) > 0 {
			results[step.Name] = step.Result
		}
	}
	return results
}
