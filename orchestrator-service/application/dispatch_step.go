package application

import (
	"context"
	"time"

	"github.com/draftea/saga-orchestrator/orchestrator-service/domain"
	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/infrastructure"
	"github.com/draftea/saga-orchestrator/shared/logger"
	"github.com/draftea/saga-orchestrator/shared/telemetry"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

// DispatchStep is the command dispatcher. The step instance is written as
// PENDING before its command is sent, and only marked dispatched once the
// transport accepted it, so a crash in between is recovered by re-sending.
// A PENDING saga moves to IN_PROGRESS together with its first dispatch.
type DispatchStep struct {
	store     *sagaStore
	publisher events.Publisher
	log       *logger.Logger
}

// NewDispatchStep creates a new DispatchStep use case
func NewDispatchStep(
	repository domain.SagaRepository,
	publisher events.Publisher,
	retry infrastructure.RetryPolicy,
	log *logger.Logger,
) *DispatchStep {
	store := newSagaStore(repository, publisher, retry, log)
	return &DispatchStep{store: store, publisher: publisher, log: store.log}
}

// Execute creates step sequence of the saga and sends its command. When the
// step already exists it is re-sent only if the transport never accepted it.
func (uc *DispatchStep) Execute(ctx context.Context, saga *domain.Saga, step domain.StepDefinition, sequence int) error {
	ctx, span := telemetry.StartSpan(ctx, "saga.dispatch_step")
	defer span.End()

	instance := domain.NewStepInstance(saga.ID, step.Name, sequence)
	err := uc.store.do(ctx, func(ctx context.Context) error {
		return uc.store.repository.CreateStep(ctx, instance)
	})

	switch {
	case errors.Is(err, domain.ErrStepExists):
		return uc.resendExisting(ctx, saga, sequence)
	case err != nil:
		return errors.Wrapf(err, "failed to create step %d", sequence)
	}

	return uc.send(ctx, saga, instance)
}

// Resend sends the command of a PENDING step that was never dispatched
func (uc *DispatchStep) Resend(ctx context.Context, saga *domain.Saga, step *domain.StepInstance) error {
	if step.Status != domain.StepStatusPending || step.Dispatched() {
		return nil
	}

	ctx, span := telemetry.StartSpan(ctx, "saga.resend_step")
	defer span.End()

	uc.log.WithContext(ctx).Infof("re-sending undispatched command", stepFields(saga, step))
	return uc.send(ctx, saga, step)
}

func (uc *DispatchStep) resendExisting(ctx context.Context, saga *domain.Saga, sequence int) error {
	steps, err := uc.store.steps(ctx, saga.ID)
	if err != nil {
		return errors.Wrap(err, "failed to load steps")
	}

	for _, step := range steps {
		if step.Sequence == sequence {
			return uc.Resend(ctx, saga, step)
		}
	}

	// another step of this saga is PENDING; never dispatch two at once
	uc.log.WithContext(ctx).Warnf("step not created while another step is pending", map[string]interface{}{
		"saga_id":  saga.ID.String(),
		"sequence": sequence,
	})
	return nil
}

func (uc *DispatchStep) send(ctx context.Context, saga *domain.Saga, step *domain.StepInstance) error {
	completed, err := uc.store.completedSteps(ctx, saga.ID)
	if err != nil {
		return errors.Wrap(err, "failed to load completed steps")
	}

	// saved before the command leaves so the listener never races this write
	if saga.State == domain.SagaStatePending {
		if err := saga.Start(); err != nil {
			return err
		}
		if err := uc.store.save(ctx, saga); err != nil {
			return errors.Wrap(err, "failed to mark saga in progress")
		}
	}

	command := events.CommandMessage{
		SagaID:         saga.ID,
		StepSequence:   step.Sequence,
		Command:        step.Name,
		IdempotencyKey: domain.IdempotencyKey(saga.ID, step.Sequence),
		Payload: events.CommandPayload{
			Input:   saga.Payload,
			Results: domain.StepResults(completed),
		},
	}

	if err := uc.publisher.Publish(ctx, events.NewCommandEvent(command)); err != nil {
		return errors.Wrapf(err, "failed to dispatch %s", step.Name)
	}

	if err := uc.store.do(ctx, func(ctx context.Context) error {
		return uc.store.repository.MarkStepDispatched(ctx, saga.ID, step.Sequence, time.Now().UTC())
	}); err != nil {
		return errors.Wrap(err, "failed to mark step dispatched")
	}

	telemetry.RecordCounter(ctx, metricCommandsDispatched, "Step commands accepted by the transport", 1,
		attribute.String("saga_type", saga.Type), attribute.String("command", step.Name))
	uc.log.WithContext(ctx).Infof("command dispatched", stepFields(saga, step))

	return nil
}

func stepFields(saga *domain.Saga, step *domain.StepInstance) map[string]interface{} {
	return map[string]interface{}{
		"saga_id":   saga.ID.String(),
		"saga_type": saga.Type,
		"sequence":  step.Sequence,
		"step":      step.Name,
	}
}
