package application

import (
	"context"
	"encoding/json"
	"time"

	"github.com/draftea/saga-orchestrator/orchestrator-service/domain"
	"github.com/draftea/saga-orchestrator/orchestrator-service/mocks"
	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/infrastructure"
	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/stretchr/testify/mock"
)

var noRetry = infrastructure.RetryPolicy{MaxRetries: 0, InitialBackoff: time.Millisecond}

type useCases struct {
	dispatcher  *DispatchStep
	compensator *CompensateSaga
	advancer    *AdvanceSaga
	listener    *ProcessStepResult
	start       *StartSaga
	status      *GetSagaStatus
	reconcile   *ReconcileSagas
}

func newUseCases(repo *mocks.MockSagaRepository, publisher *mocks.MockPublisher, definitions domain.DefinitionTable) useCases {
	dispatcher := NewDispatchStep(repo, publisher, noRetry, nil)
	compensator := NewCompensateSaga(repo, publisher, definitions, noRetry, nil)
	advancer := NewAdvanceSaga(repo, publisher, definitions, dispatcher, compensator, noRetry, nil)
	return useCases{
		dispatcher:  dispatcher,
		compensator: compensator,
		advancer:    advancer,
		listener:    NewProcessStepResult(repo, publisher, advancer, compensator, noRetry, nil),
		start:       NewStartSaga(repo, publisher, definitions, advancer, noRetry, nil),
		status:      NewGetSagaStatus(repo, noRetry, nil),
		reconcile:   NewReconcileSagas(repo, publisher, advancer, compensator, noRetry, ReconcileOptions{Concurrency: 2}, nil),
	}
}

func sagaIn(state domain.SagaState) *domain.Saga {
	saga := domain.NewSaga(domain.OrderCheckout, json.RawMessage(`{"orderId":"ord-1"}`))
	saga.ClearEvents()
	saga.State = state
	return saga
}

func completedStep(sagaID models.ID, sequence int, name string) *domain.StepInstance {
	step := domain.NewStepInstance(sagaID, name, sequence)
	_, _ = step.Complete(json.RawMessage(`{"ref":"`+name+`"}`), time.Now())
	return step
}

func topicIs(topic string) func(*events.Event) bool {
	return func(evt *events.Event) bool { return evt.Topic.String() == topic }
}

// recordTopics captures the topic of every published event
func recordTopics(publisher *mocks.MockPublisher, topics *[]string) {
	publisher.EXPECT().Publish(mock.Anything, mock.Anything).
		Run(func(_ context.Context, evts ...*events.Event) {
			for _, evt := range evts {
				*topics = append(*topics, evt.Topic.String())
			}
		}).
		Return(nil)
}
