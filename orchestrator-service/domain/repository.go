package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/draftea/saga-orchestrator/shared/models"
)

// SagaRepository is the saga state store. Every method is atomic. The step
// outcome methods are idempotent: repeating an already applied outcome returns
// false and no error, a conflicting one returns ErrStepConflict.
type SagaRepository interface {
	CreateSaga(ctx context.Context, saga *Saga) error
	// UpdateSaga persists state changes; fails with ErrVersionConflict when the saga moved on
	UpdateSaga(ctx context.Context, saga *Saga) error
	FindByID(ctx context.Context, id models.ID) (*Saga, error)
	// FindStalled returns up to limit sagas in one of states that have nothing in
	// flight: no PENDING step already handed to the transport, and no saga or step
	// change after quietSince. Least recently updated first.
	FindStalled(ctx context.Context, states []SagaState, quietSince time.Time, limit int) ([]*Saga, error)

	// CreateStep inserts a PENDING step. It fails with ErrStepExists when the
	// sequence is taken or another step of the saga is still PENDING, and with
	// ErrInvalidTransition when the previous step has not completed.
	CreateStep(ctx context.Context, step *StepInstance) error
	MarkStepDispatched(ctx context.Context, sagaID models.ID, sequence int, at time.Time) error
	CompleteStep(ctx context.Context, sagaID models.ID, sequence int, result json.RawMessage) (bool, error)
	FailStep(ctx context.Context, sagaID models.ID, sequence int, reason string) (bool, error)
	CompensateStep(ctx context.Context, sagaID models.ID, sequence int) (bool, error)
	GetSteps(ctx context.Context, sagaID models.ID) ([]*StepInstance, error)
	// GetCompletedSteps returns COMPLETED steps ordered by sequence ascending
	GetCompletedSteps(ctx context.Context, sagaID models.ID) ([]*StepInstance, error)
}
