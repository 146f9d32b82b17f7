package application

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/draftea/saga-orchestrator/orchestrator-service/domain"
	"github.com/draftea/saga-orchestrator/orchestrator-service/mocks"
	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestStartSaga_Execute(t *testing.T) {
	tests := []struct {
		name          string
		command       *StartSagaCommand
		setupMocks    func(*mocks.MockSagaRepository, *mocks.MockPublisher)
		expectedError error
		expectedState string
	}{
		{
			name:    "creates saga and dispatches first step",
			command: &StartSagaCommand{SagaType: domain.OrderCheckout, Payload: json.RawMessage(`{"orderId":"ord-1"}`)},
			setupMocks: func(repo *mocks.MockSagaRepository, publisher *mocks.MockPublisher) {
				repo.EXPECT().CreateSaga(mock.Anything, mock.AnythingOfType("*domain.Saga")).Return(nil).Once()
				publisher.EXPECT().Publish(mock.Anything, mock.MatchedBy(topicIs(events.SagaStartedEvent))).Return(nil).Once()
				repo.EXPECT().GetSteps(mock.Anything, mock.Anything).Return(nil, nil).Once()
				repo.EXPECT().CreateStep(mock.Anything, mock.MatchedBy(func(step *domain.StepInstance) bool {
					return step.Sequence == 1 && step.Name == "ReserveInventory" && step.Status == domain.StepStatusPending
				})).Return(nil).Once()
				repo.EXPECT().GetCompletedSteps(mock.Anything, mock.Anything).Return(nil, nil).Once()
				repo.EXPECT().UpdateSaga(mock.Anything, mock.MatchedBy(func(saga *domain.Saga) bool {
					return saga.State == domain.SagaStateInProgress
				})).Return(nil).Once()
				publisher.EXPECT().Publish(mock.Anything, mock.MatchedBy(func(evt *events.Event) bool {
					var cmd events.CommandMessage
					return evt.Topic.String() == "ReserveInventory" &&
						evt.UnmarshalPayload(&cmd) == nil &&
						cmd.IdempotencyKey == domain.IdempotencyKey(cmd.SagaID, 1)
				})).Return(nil).Once()
				repo.EXPECT().MarkStepDispatched(mock.Anything, mock.Anything, 1, mock.Anything).Return(nil).Once()
			},
			expectedState: "IN_PROGRESS",
		},
		{
			name:    "saga is kept when the first command cannot be sent",
			command: &StartSagaCommand{SagaType: domain.OrderCheckout, Payload: json.RawMessage(`{}`)},
			setupMocks: func(repo *mocks.MockSagaRepository, publisher *mocks.MockPublisher) {
				repo.EXPECT().CreateSaga(mock.Anything, mock.Anything).Return(nil).Once()
				publisher.EXPECT().Publish(mock.Anything, mock.MatchedBy(topicIs(events.SagaStartedEvent))).Return(nil).Once()
				repo.EXPECT().GetSteps(mock.Anything, mock.Anything).Return(nil, nil).Once()
				repo.EXPECT().CreateStep(mock.Anything, mock.Anything).Return(nil).Once()
				repo.EXPECT().GetCompletedSteps(mock.Anything, mock.Anything).Return(nil, nil).Once()
				repo.EXPECT().UpdateSaga(mock.Anything, mock.Anything).Return(nil).Once()
				publisher.EXPECT().Publish(mock.Anything, mock.MatchedBy(topicIs("ReserveInventory"))).
					Return(errors.New("broker down")).Once()
			},
			expectedState: "IN_PROGRESS",
		},
		{
			name:    "lost lifecycle event does not fail the request",
			command: &StartSagaCommand{SagaType: domain.OrderCheckout, Payload: json.RawMessage(`{}`)},
			setupMocks: func(repo *mocks.MockSagaRepository, publisher *mocks.MockPublisher) {
				repo.EXPECT().CreateSaga(mock.Anything, mock.Anything).Return(nil).Once()
				publisher.EXPECT().Publish(mock.Anything, mock.MatchedBy(topicIs(events.SagaStartedEvent))).
					Return(errors.New("broker down")).Once()
				repo.EXPECT().GetSteps(mock.Anything, mock.Anything).Return(nil, errors.New("db down")).Once()
			},
			expectedState: "PENDING",
		},
		{
			name:          "missing saga type",
			command:       &StartSagaCommand{Payload: json.RawMessage(`{}`)},
			setupMocks:    func(*mocks.MockSagaRepository, *mocks.MockPublisher) {},
			expectedError: ErrInvalidCommand,
		},
		{
			name:          "missing payload",
			command:       &StartSagaCommand{SagaType: domain.OrderCheckout},
			setupMocks:    func(*mocks.MockSagaRepository, *mocks.MockPublisher) {},
			expectedError: ErrInvalidCommand,
		},
		{
			name:          "payload is not JSON",
			command:       &StartSagaCommand{SagaType: domain.OrderCheckout, Payload: json.RawMessage(`{nope`)},
			setupMocks:    func(*mocks.MockSagaRepository, *mocks.MockPublisher) {},
			expectedError: ErrInvalidCommand,
		},
		{
			name:          "unknown saga type",
			command:       &StartSagaCommand{SagaType: "Nope", Payload: json.RawMessage(`{}`)},
			setupMocks:    func(*mocks.MockSagaRepository, *mocks.MockPublisher) {},
			expectedError: domain.ErrUnknownSagaType,
		},
		{
			name:    "store failure",
			command: &StartSagaCommand{SagaType: domain.OrderCheckout, Payload: json.RawMessage(`{}`)},
			setupMocks: func(repo *mocks.MockSagaRepository, publisher *mocks.MockPublisher) {
				repo.EXPECT().CreateSaga(mock.Anything, mock.Anything).Return(errors.New("db down")).Once()
			},
			expectedError: errors.New("failed to create saga: db down"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := mocks.NewMockSagaRepository(t)
			publisher := mocks.NewMockPublisher(t)
			tt.setupMocks(repo, publisher)

			uc := newUseCases(repo, publisher, domain.DefaultDefinitions())
			result, err := uc.start.Execute(context.Background(), tt.command)

			if tt.expectedError != nil {
				require.Error(t, err)
				if errors.Is(err, tt.expectedError) {
					return
				}
				assert.EqualError(t, err, tt.expectedError.Error())
				return
			}

			require.NoError(t, err)
			assert.NotEmpty(t, result.SagaID)
			assert.Equal(t, tt.expectedState, result.State)
		})
	}
}
