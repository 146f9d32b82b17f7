package infrastructure

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/draftea/saga-orchestrator/orchestrator-service/domain"
	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/pkg/errors"
)

// MemorySagaRepository is an in-process SagaRepository with the same
// atomicity and idempotency rules as the Postgres one.
type MemorySagaRepository struct {
	mu    sync.RWMutex
	sagas map[models.ID]*domain.Saga
	steps map[models.ID][]*domain.StepInstance
}

var _ domain.SagaRepository = (*MemorySagaRepository)(nil)

func NewMemorySagaRepository() *MemorySagaRepository {
	return &MemorySagaRepository{
		sagas: make(map[models.ID]*domain.Saga),
		steps: make(map[models.ID][]*domain.StepInstance),
	}
}

func (r *MemorySagaRepository) CreateSaga(_ context.Context, saga *domain.Saga) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sagas[saga.ID]; exists {
		return errors.Errorf("saga %s already exists", saga.ID)
	}
	r.sagas[saga.ID] = cloneSaga(saga)
	return nil
}

func (r *MemorySagaRepository) UpdateSaga(_ context.Context, saga *domain.Saga) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.sagas[saga.ID]
	if !ok {
		return errors.Wrapf(domain.ErrSagaNotFound, "saga %s", saga.ID)
	}
	if stored.Version.Value != saga.Version.Previous() {
		return errors.Wrapf(domain.ErrVersionConflict, "saga %s at version %d", saga.ID, saga.Version.Previous())
	}

	r.sagas[saga.ID] = cloneSaga(saga)
	return nil
}

func (r *MemorySagaRepository) FindByID(_ context.Context, id models.ID) (*domain.Saga, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	saga, ok := r.sagas[id]
	if !ok {
		return nil, errors.Wrapf(domain.ErrSagaNotFound, "saga %s", id)
	}
	return cloneSaga(saga), nil
}

func (r *MemorySagaRepository) FindStalled(_ context.Context, states []domain.SagaState, quietSince time.Time, limit int) ([]*domain.Saga, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wanted := make(map[domain.SagaState]bool, len(states))
	for _, state := range states {
		wanted[state] = true
	}

	var sagas []*domain.Saga
	for id, saga := range r.sagas {
		if !wanted[saga.State] || saga.Timestamps.UpdatedAt.After(quietSince) || inFlight(r.steps[id], quietSince) {
			continue
		}
		sagas = append(sagas, cloneSaga(saga))
	}

	sort.Slice(sagas, func(i, j int) bool {
		return sagas[i].Timestamps.UpdatedAt.Before(sagas[j].Timestamps.UpdatedAt)
	})
	if limit > 0 && len(sagas) > limit {
		sagas = sagas[:limit]
	}
	return sagas, nil
}

// inFlight reports a dispatched PENDING step or any step change after quietSince
func inFlight(steps []*domain.StepInstance, quietSince time.Time) bool {
	for _, step := range steps {
		if step.Status == domain.StepStatusPending && step.Dispatched() {
			return true
		}
		for _, at := range []*time.Time{&step.CreatedAt, step.DispatchedAt, step.CompletedAt, step.FailedAt, step.CompensatedAt} {
			if at != nil && at.After(quietSince) {
				return true
			}
		}
	}
	return false
}

func (r *MemorySagaRepository) CreateStep(_ context.Context, step *domain.StepInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	steps := r.steps[step.SagaID]
	for _, existing := range steps {
		if existing.Sequence == step.Sequence || existing.Status == domain.StepStatusPending {
			return errors.Wrapf(domain.ErrStepExists, "step %d of saga %s", step.Sequence, step.SagaID)
		}
	}

	if step.Sequence > 1 {
		previous := findStep(steps, step.Sequence-1)
		if previous == nil {
			return errors.Wrapf(domain.ErrInvalidTransition, "step %d of saga %s does not exist", step.Sequence-1, step.SagaID)
		}
		if previous.Status != domain.StepStatusCompleted {
			return errors.Wrapf(domain.ErrInvalidTransition, "step %d of saga %s is %s", step.Sequence-1, step.SagaID, previous.Status)
		}
	}

	stored := *step
	r.steps[step.SagaID] = append(steps, &stored)
	return nil
}

func (r *MemorySagaRepository) MarkStepDispatched(_ context.Context, sagaID models.ID, sequence int, at time.Time) error {
	return r.withStep(sagaID, sequence, func(step *domain.StepInstance) error {
		if step.DispatchedAt == nil {
			step.DispatchedAt = &at
		}
		return nil
	})
}

func (r *MemorySagaRepository) CompleteStep(_ context.Context, sagaID models.ID, sequence int, result json.RawMessage) (bool, error) {
	var applied bool
	err := r.withStep(sagaID, sequence, func(step *domain.StepInstance) (err error) {
		applied, err = step.Complete(result, time.Now().UTC())
		return err
	})
	return applied, err
}

func (r *MemorySagaRepository) FailStep(_ context.Context, sagaID models.ID, sequence int, reason string) (bool, error) {
	var applied bool
	err := r.withStep(sagaID, sequence, func(step *domain.StepInstance) (err error) {
		applied, err = step.Fail(reason, time.Now().UTC())
		return err
	})
	return applied, err
}

func (r *MemorySagaRepository) CompensateStep(_ context.Context, sagaID models.ID, sequence int) (bool, error) {
	var applied bool
	err := r.withStep(sagaID, sequence, func(step *domain.StepInstance) (err error) {
		applied, err = step.Compensate(time.Now().UTC())
		return err
	})
	return applied, err
}

func (r *MemorySagaRepository) GetSteps(_ context.Context, sagaID models.ID) ([]*domain.StepInstance, error) {
	return r.listSteps(sagaID, func(*domain.StepInstance) bool { return true }), nil
}

func (r *MemorySagaRepository) GetCompletedSteps(_ context.Context, sagaID models.ID) ([]*domain.StepInstance, error) {
	return r.listSteps(sagaID, func(step *domain.StepInstance) bool {
		return step.Status == domain.StepStatusCompleted
	}), nil
}

func (r *MemorySagaRepository) withStep(sagaID models.ID, sequence int, fn func(step *domain.StepInstance) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	step := findStep(r.steps[sagaID], sequence)
	if step == nil {
		return errors.Wrapf(domain.ErrStepNotFound, "step %d of saga %s", sequence, sagaID)
	}
	return fn(step)
}

func (r *MemorySagaRepository) listSteps(sagaID models.ID, keep func(*domain.StepInstance) bool) []*domain.StepInstance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var steps []*domain.StepInstance
	for _, step := range r.steps[sagaID] {
		if keep(step) {
			copied := *step
			steps = append(steps, &copied)
		}
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].Sequence < steps[j].Sequence })
	return steps
}

func findStep(steps []*domain.StepInstance, sequence int) *domain.StepInstance {
	for _, step := range steps {
		if step.Sequence == sequence {
			return step
		}
	}
	return nil
}

func cloneSaga(saga *domain.Saga) *domain.Saga {
	copied := *saga
	copied.ClearEvents()
	return &copied
}
