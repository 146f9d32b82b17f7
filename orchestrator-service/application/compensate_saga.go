package application

import (
	"context"

	"github.com/draftea/saga-orchestrator/orchestrator-service/domain"
	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/infrastructure"
	"github.com/draftea/saga-orchestrator/shared/logger"
	"github.com/draftea/saga-orchestrator/shared/telemetry"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

// CompensateSaga is the compensator: it unwinds the completed steps of a
// failed saga in strict reverse order.
type CompensateSaga struct {
	store       *sagaStore
	publisher   events.Publisher
	definitions domain.DefinitionTable
	log         *logger.Logger
}

// NewCompensateSaga creates a new CompensateSaga use case
func NewCompensateSaga(
	repository domain.SagaRepository,
	publisher events.Publisher,
	definitions domain.DefinitionTable,
	retry infrastructure.RetryPolicy,
	log *logger.Logger,
) *CompensateSaga {
	store := newSagaStore(repository, publisher, retry, log)
	return &CompensateSaga{store: store, publisher: publisher, definitions: definitions, log: store.log}
}

// FailAndCompensate moves a running saga to FAILED because step sequence
// failed, then compensates it. Sagas already failing are re-driven.
func (uc *CompensateSaga) FailAndCompensate(ctx context.Context, saga *domain.Saga, sequence int, reason string) error {
	switch saga.State {
	case domain.SagaStatePending, domain.SagaStateInProgress:
		if err := saga.Fail(sequence, reason); err != nil {
			return err
		}
		if err := uc.store.save(ctx, saga); err != nil {
			return errors.Wrap(err, "failed to mark saga failed")
		}
		uc.log.WithContext(ctx).WithField("error", reason).Warnf("saga failed", map[string]interface{}{
			"saga_id":  saga.ID.String(),
			"sequence": sequence,
		})
	case domain.SagaStateCompleted, domain.SagaStateCompensated:
		return nil
	}

	return uc.Execute(ctx, saga)
}

// Execute dispatches compensations for every COMPLETED step, highest
// sequence first. A step is marked COMPENSATED only after its compensation
// was accepted by the transport; on a dispatch failure the saga stays
// COMPENSATING and a later run picks up the steps still COMPLETED.
func (uc *CompensateSaga) Execute(ctx context.Context, saga *domain.Saga) error {
	ctx, span := telemetry.StartSpan(ctx, "saga.compensate")
	defer span.End()

	log := uc.log.WithContext(ctx).WithFields(sagaFields(saga))

	switch saga.State {
	case domain.SagaStateCompensated:
		return nil
	case domain.SagaStateFailed:
		if err := saga.BeginCompensation(); err != nil {
			return err
		}
		if err := uc.store.save(ctx, saga); err != nil {
			return errors.Wrap(err, "failed to mark saga compensating")
		}
	case domain.SagaStateCompensating:
	default:
		return errors.Wrapf(domain.ErrInvalidTransition, "cannot compensate a %s saga", saga.State)
	}

	definition, err := uc.definitions.Lookup(saga.Type)
	if err != nil {
		return err
	}

	completed, err := uc.store.completedSteps(ctx, saga.ID)
	if err != nil {
		return errors.Wrap(err, "failed to load completed steps")
	}

	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		if err := uc.compensateStep(ctx, saga, definition, step); err != nil {
			log.WithError(err).Warnf("compensation not dispatched, saga stays compensating", map[string]interface{}{
				"sequence": step.Sequence,
				"step":     step.Name,
			})
			return err
		}
	}

	if err := saga.FinishCompensation(); err != nil {
		return err
	}
	if err := uc.store.save(ctx, saga); err != nil {
		return errors.Wrap(err, "failed to mark saga compensated")
	}

	recordTerminal(ctx, saga)
	log.Infof("saga compensated", map[string]interface{}{"compensated_steps": len(completed)})
	return nil
}

func (uc *CompensateSaga) compensateStep(ctx context.Context, saga *domain.Saga, definition domain.Definition, step *domain.StepInstance) error {
	stepDefinition, ok := definition.StepAt(step.Sequence)
	if !ok || stepDefinition.Name != step.Name {
		return errors.Wrapf(domain.ErrInvalidDefinitions, "%s has no step %s at %d", saga.Type, step.Name, step.Sequence)
	}

	if stepDefinition.Compensation != "" {
		payload := step.Result
		if len(payload) == 0 {
			payload = saga.Payload
		}

		err := uc.publisher.Publish(ctx, events.NewCompensationEvent(events.CompensationMessage{
			SagaID:       saga.ID,
			StepSequence: step.Sequence,
			StepName:     step.Name,
			Compensation: stepDefinition.Compensation,
			Payload:      payload,
		}))
		if err != nil {
			return errors.Wrapf(err, "failed to dispatch %s", stepDefinition.Compensation)
		}

		telemetry.RecordCounter(ctx, metricCompensationDispatched, "Compensation commands accepted by the transport", 1,
			attribute.String("saga_type", saga.Type), attribute.String("compensation", stepDefinition.Compensation))
	}

	return uc.store.do(ctx, func(ctx context.Context) error {
		_, err := uc.store.repository.CompensateStep(ctx, saga.ID, step.Sequence)
		return err
	})
}
