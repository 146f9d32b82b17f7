package application

import (
	"context"

	"github.com/draftea/saga-orchestrator/orchestrator-service/domain"
	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/infrastructure"
	"github.com/draftea/saga-orchestrator/shared/logger"
	"github.com/draftea/saga-orchestrator/shared/telemetry"
	"github.com/pkg/errors"
)

// AdvanceSaga drives a running saga from its latest step: dispatch the first
// or next step, re-send an undispatched one, complete the saga after the last
// step, or hand a failed step to the compensator.
type AdvanceSaga struct {
	store       *sagaStore
	definitions domain.DefinitionTable
	dispatcher  *DispatchStep
	compensator *CompensateSaga
	log         *logger.Logger
}

// NewAdvanceSaga creates a new AdvanceSaga use case
func NewAdvanceSaga(
	repository domain.SagaRepository,
	publisher events.Publisher,
	definitions domain.DefinitionTable,
	dispatcher *DispatchStep,
	compensator *CompensateSaga,
	retry infrastructure.RetryPolicy,
	log *logger.Logger,
) *AdvanceSaga {
	store := newSagaStore(repository, publisher, retry, log)
	return &AdvanceSaga{
		store:       store,
		definitions: definitions,
		dispatcher:  dispatcher,
		compensator: compensator,
		log:         store.log,
	}
}

// Execute is safe to repeat: it only acts on what the latest step says
func (uc *AdvanceSaga) Execute(ctx context.Context, saga *domain.Saga) error {
	if saga.State != domain.SagaStatePending && saga.State != domain.SagaStateInProgress {
		return nil
	}

	ctx, span := telemetry.StartSpan(ctx, "saga.advance")
	defer span.End()

	definition, err := uc.definitions.Lookup(saga.Type)
	if err != nil {
		return err
	}

	steps, err := uc.store.steps(ctx, saga.ID)
	if err != nil {
		return errors.Wrap(err, "failed to load steps")
	}

	latest := domain.LatestStep(steps)
	if latest == nil {
		first, _ := definition.NextStep(0)
		return uc.dispatcher.Execute(ctx, saga, first, 1)
	}

	switch latest.Status {
	case domain.StepStatusPending:
		return uc.dispatcher.Resend(ctx, saga, latest)

	case domain.StepStatusFailed:
		return uc.compensator.FailAndCompensate(ctx, saga, latest.Sequence, latest.Error)

	case domain.StepStatusCompleted:
		// sequences are contiguous and all completed, so the count is the latest sequence
		next, ok := definition.NextStep(latest.Sequence)
		if ok {
			return uc.dispatcher.Execute(ctx, saga, next, latest.Sequence+1)
		}
		return uc.complete(ctx, saga)
	}

	return errors.Wrapf(domain.ErrInvalidTransition, "latest step %d of running saga %s is %s", latest.Sequence, saga.ID, latest.Status)
}

func (uc *AdvanceSaga) complete(ctx context.Context, saga *domain.Saga) error {
	// each transition is saved on its own; UpdateSaga locks on the previous version
	if saga.State == domain.SagaStatePending {
		if err := saga.Start(); err != nil {
			return err
		}
		if err := uc.store.save(ctx, saga); err != nil {
			return errors.Wrap(err, "failed to mark saga in progress")
		}
	}
	if err := saga.Complete(); err != nil {
		return err
	}
	if err := uc.store.save(ctx, saga); err != nil {
		return errors.Wrap(err, "failed to mark saga completed")
	}

	recordTerminal(ctx, saga)
	uc.log.WithContext(ctx).Infof("saga completed", sagaFields(saga))
	return nil
}
