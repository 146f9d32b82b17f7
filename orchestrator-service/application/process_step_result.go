package application

import (
	"context"

	"github.com/draftea/saga-orchestrator/orchestrator-service/domain"
	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/infrastructure"
	"github.com/draftea/saga-orchestrator/shared/logger"
	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/draftea/saga-orchestrator/shared/telemetry"
	"github.com/pkg/errors"
)

var errStaleEvent = errors.New("stale step event")

// ProcessStepResult is the event/failure listener. Participants deliver at
// least once, so every path here tolerates duplicates. Returned errors are
// infrastructure errors and ask the transport to redeliver.
type ProcessStepResult struct {
	store       *sagaStore
	advancer    *AdvanceSaga
	compensator *CompensateSaga
	log         *logger.Logger
}

// NewProcessStepResult creates a new ProcessStepResult use case
func NewProcessStepResult(
	repository domain.SagaRepository,
	publisher events.Publisher,
	advancer *AdvanceSaga,
	compensator *CompensateSaga,
	retry infrastructure.RetryPolicy,
	log *logger.Logger,
) *ProcessStepResult {
	store := newSagaStore(repository, publisher, retry, log)
	return &ProcessStepResult{store: store, advancer: advancer, compensator: compensator, log: store.log}
}

// Succeeded completes the step and advances the saga
func (uc *ProcessStepResult) Succeeded(ctx context.Context, msg events.StepSucceeded) error {
	ctx, span := telemetry.StartSpan(ctx, "saga.step_succeeded")
	defer span.End()

	saga, ok, err := uc.findSaga(ctx, msg.SagaID, msg.StepSequence)
	if !ok {
		return err
	}

	applied, err := uc.applyOutcome(ctx, saga, msg.StepSequence, func(ctx context.Context) (bool, error) {
		return uc.store.repository.CompleteStep(ctx, saga.ID, msg.StepSequence, msg.Result)
	})
	if errors.Is(err, errStaleEvent) {
		return nil
	}
	if err != nil {
		return err
	}

	if applied {
		recordStepEvent(ctx, "succeeded")
		uc.log.WithContext(ctx).Infof("step completed", map[string]interface{}{
			"saga_id":  saga.ID.String(),
			"sequence": msg.StepSequence,
			"event":    msg.Event,
		})
	} else {
		recordStepEvent(ctx, "duplicate")
	}

	// a duplicate still goes through: it re-sends the next command only if that was never dispatched
	return uc.advancer.Execute(ctx, saga)
}

// Failed fails the step and hands the saga to the compensator
func (uc *ProcessStepResult) Failed(ctx context.Context, msg events.StepFailed) error {
	ctx, span := telemetry.StartSpan(ctx, "saga.step_failed")
	defer span.End()

	saga, ok, err := uc.findSaga(ctx, msg.SagaID, msg.StepSequence)
	if !ok {
		return err
	}

	applied, err := uc.applyOutcome(ctx, saga, msg.StepSequence, func(ctx context.Context) (bool, error) {
		return uc.store.repository.FailStep(ctx, saga.ID, msg.StepSequence, msg.Error)
	})
	if errors.Is(err, errStaleEvent) {
		return nil
	}
	if err != nil {
		return err
	}

	if applied {
		recordStepEvent(ctx, "failed")
	} else {
		recordStepEvent(ctx, "duplicate")
	}

	return uc.compensator.FailAndCompensate(ctx, saga, msg.StepSequence, msg.Error)
}

// findSaga returns ok=false when the event must not be processed; err is then
// nil for an unknown saga (dropped) or set for a store failure (redelivered).
func (uc *ProcessStepResult) findSaga(ctx context.Context, id models.ID, sequence int) (*domain.Saga, bool, error) {
	var saga *domain.Saga
	_, err := models.NewID(id.String())
	if err != nil {
		// not an id this orchestrator ever issued
		err = errors.Wrapf(domain.ErrSagaNotFound, "saga %q", id)
	} else {
		saga, err = uc.store.find(ctx, id)
	}
	if errors.Is(err, domain.ErrSagaNotFound) {
		recordStepEvent(ctx, "unknown_saga")
		uc.log.WithContext(ctx).Warnf("dropping event for unknown saga", map[string]interface{}{
			"saga_id":  id.String(),
			"sequence": sequence,
		})
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to load saga")
	}
	return saga, true, nil
}

// applyOutcome runs a step transition. Unknown steps and outcomes that
// contradict the recorded one come back as errStaleEvent.
func (uc *ProcessStepResult) applyOutcome(ctx context.Context, saga *domain.Saga, sequence int, apply func(ctx context.Context) (bool, error)) (bool, error) {
	var applied bool
	err := uc.store.do(ctx, func(ctx context.Context) (err error) {
		applied, err = apply(ctx)
		return err
	})

	switch {
	case err == nil:
		return applied, nil
	case errors.Is(err, domain.ErrStepNotFound), errors.Is(err, domain.ErrStepConflict):
		recordStepEvent(ctx, "stale")
		uc.log.WithContext(ctx).WithError(err).Warnf("dropping stale step event", map[string]interface{}{
			"saga_id":  saga.ID.String(),
			"sequence": sequence,
		})
		return false, errStaleEvent
	default:
		return false, errors.Wrapf(err, "failed to record outcome of step %d", sequence)
	}
}
