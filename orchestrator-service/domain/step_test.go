package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepInstance_Outcomes(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name            string
		initial         StepStatus
		apply           func(s *StepInstance) (bool, error)
		expectedApplied bool
		expectedStatus  StepStatus
		expectedError   error
	}{
		{
			name:            "complete pending",
			initial:         StepStatusPending,
			apply:           func(s *StepInstance) (bool, error) { return s.Complete(json.RawMessage(`{"ok":true}`), now) },
			expectedApplied: true,
			expectedStatus:  StepStatusCompleted,
		},
		{
			name:           "complete twice is a no-op",
			initial:        StepStatusCompleted,
			apply:          func(s *StepInstance) (bool, error) { return s.Complete(nil, now) },
			expectedStatus: StepStatusCompleted,
		},
		{
			name:           "late success after compensation is a no-op",
			initial:        StepStatusCompensated,
			apply:          func(s *StepInstance) (bool, error) { return s.Complete(nil, now) },
			expectedStatus: StepStatusCompensated,
		},
		{
			name:           "complete a failed step conflicts",
			initial:        StepStatusFailed,
			apply:          func(s *StepInstance) (bool, error) { return s.Complete(nil, now) },
			expectedStatus: StepStatusFailed,
			expectedError:  ErrStepConflict,
		},
		{
			name:            "fail pending",
			initial:         StepStatusPending,
			apply:           func(s *StepInstance) (bool, error) { return s.Fail("insufficient funds", now) },
			expectedApplied: true,
			expectedStatus:  StepStatusFailed,
		},
		{
			name:           "fail twice is a no-op",
			initial:        StepStatusFailed,
			apply:          func(s *StepInstance) (bool, error) { return s.Fail("insufficient funds", now) },
			expectedStatus: StepStatusFailed,
		},
		{
			name:           "fail a completed step conflicts",
			initial:        StepStatusCompleted,
			apply:          func(s *StepInstance) (bool, error) { return s.Fail("late", now) },
			expectedStatus: StepStatusCompleted,
			expectedError:  ErrStepConflict,
		},
		{
			name:            "compensate completed",
			initial:         StepStatusCompleted,
			apply:           func(s *StepInstance) (bool, error) { return s.Compensate(now) },
			expectedApplied: true,
			expectedStatus:  StepStatusCompensated,
		},
		{
			name:           "compensate a pending step conflicts",
			initial:        StepStatusPending,
			apply:          func(s *StepInstance) (bool, error) { return s.Compensate(now) },
			expectedStatus: StepStatusPending,
			expectedError:  ErrStepConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := NewStepInstance(models.GenerateUUID(), "ChargePayment", 2)
			step.Status = tt.initial

			applied, err := tt.apply(step)

			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.expectedApplied, applied)
			assert.Equal(t, tt.expectedStatus, step.Status)
		})
	}
}

func TestStepInstance_CompleteKeepsFirstResult(t *testing.T) {
	step := NewStepInstance(models.GenerateUUID(), "ReserveInventory", 1)

	applied, err := step.Complete(json.RawMessage(`{"reservation_id":"r-1"}`), time.Now())
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = step.Complete(json.RawMessage(`{"reservation_id":"r-2"}`), time.Now())
	require.NoError(t, err)
	assert.False(t, applied)
	assert.JSONEq(t, `{"reservation_id":"r-1"}`, string(step.Result))
}

func TestLatestStepAndResults(t *testing.T) {
	sagaID := models.GenerateUUID()
	first := NewStepInstance(sagaID, "ReserveInventory", 1)
	first.Status = StepStatusCompleted
	first.Result = json.RawMessage(`{"reservation_id":"r-1"}`)
	second := NewStepInstance(sagaID, "ChargePayment", 2)

	assert.Nil(t, LatestStep(nil))
	assert.Equal(t, second, LatestStep([]*StepInstance{second, first}))

	results := StepResults([]*StepInstance{first, second})
	assert.Len(t, results, 1)
	assert.JSONEq(t, `{"reservation_id":"r-1"}`, string(results["ReserveInventory"]))
}
