package application

import (
	"context"

	"github.com/draftea/saga-orchestrator/orchestrator-service/domain"
	"github.com/draftea/saga-orchestrator/shared/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

const (
	metricSagaStarted            = "saga_started_total"
	metricCommandsDispatched     = "saga_commands_dispatched_total"
	metricStepEvents             = "saga_step_events_total"
	metricCompensationDispatched = "saga_compensations_dispatched_total"
	metricSagaTerminal           = "saga_terminal_total"
	metricSagaDuration           = "saga_duration_seconds"
	metricReconciled             = "saga_reconciled_total"
)

func recordTerminal(ctx context.Context, saga *domain.Saga) {
	attrs := []attribute.KeyValue{
		attribute.String("saga_type", saga.Type),
		attribute.String("state", string(saga.State)),
	}
	telemetry.RecordCounter(ctx, metricSagaTerminal, "Sagas that reached a terminal state", 1, attrs...)
	telemetry.RecordHistogram(ctx, metricSagaDuration, "Time from saga start to terminal state", saga.Duration().Seconds(), attrs...)
}

func recordStepEvent(ctx context.Context, outcome string) {
	telemetry.RecordCounter(ctx, metricStepEvents, "Participant events received", 1, attribute.String("outcome", outcome))
}
