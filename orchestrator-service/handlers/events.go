package handlers

import (
	"context"

	"github.com/draftea/saga-orchestrator/orchestrator-service/application"
	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/logger"
)

// SagaEventHandlers routes participant outcome events to the listener
type SagaEventHandlers struct {
	processStepResult *application.ProcessStepResult
	log               *logger.Logger
}

// NewSagaEventHandlers creates new saga event handlers
func NewSagaEventHandlers(processStepResult *application.ProcessStepResult, log *logger.Logger) *SagaEventHandlers {
	if log == nil {
		log = logger.Nop()
	}
	return &SagaEventHandlers{processStepResult: processStepResult, log: log}
}

// Handle implements the events.EventHandler interface
func (h *SagaEventHandlers) Handle(ctx context.Context, event *events.Event) error {
	switch event.Topic.String() {
	case events.StepSucceededTopic:
		return h.HandleStepSucceeded(ctx, event)
	case events.StepFailedTopic:
		return h.HandleStepFailed(ctx, event)
	default:
		// lifecycle events and other channels are not ours
		return nil
	}
}

// HandlerID returns the unique identifier for this event handler
func (h *SagaEventHandlers) HandlerID() string {
	return "orchestrator-service-event-handler"
}

// HandleStepSucceeded handles saga.step.succeeded events
func (h *SagaEventHandlers) HandleStepSucceeded(ctx context.Context, event *events.Event) error {
	var msg events.StepSucceeded
	if err := event.UnmarshalPayload(&msg); err != nil {
		h.dropMalformed(ctx, event, err)
		return nil
	}
	return h.processStepResult.Succeeded(ctx, msg)
}

// HandleStepFailed handles saga.step.failed events
func (h *SagaEventHandlers) HandleStepFailed(ctx context.Context, event *events.Event) error {
	var msg events.StepFailed
	if err := event.UnmarshalPayload(&msg); err != nil {
		h.dropMalformed(ctx, event, err)
		return nil
	}
	return h.processStepResult.Failed(ctx, msg)
}

// a payload that does not decode will not decode on redelivery either
func (h *SagaEventHandlers) dropMalformed(ctx context.Context, event *events.Event, err error) {
	h.log.WithContext(ctx).WithError(err).Warnf("dropping malformed event", map[string]interface{}{
		"event_id": event.ID.String(),
		"topic":    event.Topic.String(),
	})
}
