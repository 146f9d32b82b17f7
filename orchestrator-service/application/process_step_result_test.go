package application

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/draftea/saga-orchestrator/orchestrator-service/domain"
	"github.com/draftea/saga-orchestrator/orchestrator-service/mocks"
	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestProcessStepResult_Succeeded(t *testing.T) {
	running := sagaIn(domain.SagaStateInProgress)

	tests := []struct {
		name          string
		msg           events.StepSucceeded
		setupMocks    func(*mocks.MockSagaRepository, *mocks.MockPublisher)
		expectedError string
	}{
		{
			name: "unknown saga is dropped",
			msg:  events.StepSucceeded{SagaID: models.GenerateUUID(), StepSequence: 1},
			setupMocks: func(repo *mocks.MockSagaRepository, _ *mocks.MockPublisher) {
				repo.EXPECT().FindByID(mock.Anything, mock.Anything).
					Return(nil, errors.Wrap(domain.ErrSagaNotFound, "saga")).Once()
			},
		},
		{
			name: "store failure asks for redelivery",
			msg:  events.StepSucceeded{SagaID: running.ID, StepSequence: 1},
			setupMocks: func(repo *mocks.MockSagaRepository, _ *mocks.MockPublisher) {
				repo.EXPECT().FindByID(mock.Anything, running.ID).Return(nil, errors.New("db down")).Once()
			},
			expectedError: "failed to load saga: db down",
		},
		{
			name: "success for a failed step is stale",
			msg:  events.StepSucceeded{SagaID: running.ID, StepSequence: 2},
			setupMocks: func(repo *mocks.MockSagaRepository, _ *mocks.MockPublisher) {
				repo.EXPECT().FindByID(mock.Anything, running.ID).Return(running, nil).Once()
				repo.EXPECT().CompleteStep(mock.Anything, running.ID, 2, json.RawMessage(nil)).
					Return(false, domain.ErrStepConflict).Once()
			},
		},
		{
			name: "success dispatches the next step",
			msg:  events.StepSucceeded{SagaID: running.ID, StepSequence: 1, Result: json.RawMessage(`{"reservationId":"r-1"}`)},
			setupMocks: func(repo *mocks.MockSagaRepository, publisher *mocks.MockPublisher) {
				step1 := completedStep(running.ID, 1, "ReserveInventory")
				repo.EXPECT().FindByID(mock.Anything, running.ID).Return(running, nil).Once()
				repo.EXPECT().CompleteStep(mock.Anything, running.ID, 1, json.RawMessage(`{"reservationId":"r-1"}`)).
					Return(true, nil).Once()
				repo.EXPECT().GetSteps(mock.Anything, running.ID).Return([]*domain.StepInstance{step1}, nil).Once()
				repo.EXPECT().CreateStep(mock.Anything, mock.MatchedBy(func(step *domain.StepInstance) bool {
					return step.Sequence == 2 && step.Name == "ChargePayment"
				})).Return(nil).Once()
				repo.EXPECT().GetCompletedSteps(mock.Anything, running.ID).Return([]*domain.StepInstance{step1}, nil).Once()
				publisher.EXPECT().Publish(mock.Anything, mock.MatchedBy(topicIs("ChargePayment"))).Return(nil).Once()
				repo.EXPECT().MarkStepDispatched(mock.Anything, running.ID, 2, mock.Anything).Return(nil).Once()
			},
		},
		{
			name: "duplicate success does not re-send a dispatched step",
			msg:  events.StepSucceeded{SagaID: running.ID, StepSequence: 1},
			setupMocks: func(repo *mocks.MockSagaRepository, _ *mocks.MockPublisher) {
				step2 := domain.NewStepInstance(running.ID, "ChargePayment", 2)
				step2.DispatchedAt = &step2.CreatedAt
				repo.EXPECT().FindByID(mock.Anything, running.ID).Return(running, nil).Once()
				repo.EXPECT().CompleteStep(mock.Anything, running.ID, 1, mock.Anything).Return(false, nil).Once()
				repo.EXPECT().GetSteps(mock.Anything, running.ID).
					Return([]*domain.StepInstance{completedStep(running.ID, 1, "ReserveInventory"), step2}, nil).Once()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := mocks.NewMockSagaRepository(t)
			publisher := mocks.NewMockPublisher(t)
			tt.setupMocks(repo, publisher)

			uc := newUseCases(repo, publisher, domain.DefaultDefinitions())
			err := uc.listener.Succeeded(context.Background(), tt.msg)

			if tt.expectedError != "" {
				assert.EqualError(t, err, tt.expectedError)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestProcessStepResult_LastStepCompletesSaga(t *testing.T) {
	running := sagaIn(domain.SagaStateInProgress)
	repo := mocks.NewMockSagaRepository(t)
	publisher := mocks.NewMockPublisher(t)

	repo.EXPECT().FindByID(mock.Anything, running.ID).Return(running, nil).Once()
	repo.EXPECT().CompleteStep(mock.Anything, running.ID, 3, mock.Anything).Return(true, nil).Once()
	repo.EXPECT().GetSteps(mock.Anything, running.ID).Return([]*domain.StepInstance{
		completedStep(running.ID, 1, "ReserveInventory"),
		completedStep(running.ID, 2, "ChargePayment"),
		completedStep(running.ID, 3, "ConfirmOrder"),
	}, nil).Once()
	repo.EXPECT().UpdateSaga(mock.Anything, running).Return(nil).Once()
	publisher.EXPECT().Publish(mock.Anything, mock.MatchedBy(topicIs(events.SagaCompletedEvent))).Return(nil).Once()

	uc := newUseCases(repo, publisher, domain.DefaultDefinitions())
	require.NoError(t, uc.listener.Succeeded(context.Background(), events.StepSucceeded{SagaID: running.ID, StepSequence: 3}))

	assert.Equal(t, domain.SagaStateCompleted, running.State)
	assert.NotNil(t, running.CompletedAt)
}

func TestProcessStepResult_Failed(t *testing.T) {
	t.Run("failure compensates completed steps in reverse", func(t *testing.T) {
		running := sagaIn(domain.SagaStateInProgress)
		repo := mocks.NewMockSagaRepository(t)
		publisher := mocks.NewMockPublisher(t)

		var topics []string
		recordTopics(publisher, &topics)
		repo.EXPECT().FindByID(mock.Anything, running.ID).Return(running, nil).Once()
		repo.EXPECT().FailStep(mock.Anything, running.ID, 3, "out of stock").Return(true, nil).Once()
		repo.EXPECT().UpdateSaga(mock.Anything, running).Return(nil).Times(3)
		repo.EXPECT().GetCompletedSteps(mock.Anything, running.ID).Return([]*domain.StepInstance{
			completedStep(running.ID, 1, "ReserveInventory"),
			completedStep(running.ID, 2, "ChargePayment"),
		}, nil).Once()
		repo.EXPECT().CompensateStep(mock.Anything, running.ID, 2).Return(true, nil).Once()
		repo.EXPECT().CompensateStep(mock.Anything, running.ID, 1).Return(true, nil).Once()

		uc := newUseCases(repo, publisher, domain.DefaultDefinitions())
		err := uc.listener.Failed(context.Background(), events.StepFailed{SagaID: running.ID, StepSequence: 3, Error: "out of stock"})

		require.NoError(t, err)
		assert.Equal(t, domain.SagaStateCompensated, running.State)
		assert.Equal(t, []string{
			events.SagaFailedEvent,
			"RefundPayment",
			"ReleaseInventory",
			events.SagaCompensatedEvent,
		}, topics)
	})

	t.Run("failure for a completed step is dropped", func(t *testing.T) {
		running := sagaIn(domain.SagaStateInProgress)
		repo := mocks.NewMockSagaRepository(t)
		publisher := mocks.NewMockPublisher(t)

		repo.EXPECT().FindByID(mock.Anything, running.ID).Return(running, nil).Once()
		repo.EXPECT().FailStep(mock.Anything, running.ID, 1, "late").
			Return(false, errors.Wrap(domain.ErrStepConflict, "step 1")).Once()

		uc := newUseCases(repo, publisher, domain.DefaultDefinitions())
		err := uc.listener.Failed(context.Background(), events.StepFailed{SagaID: running.ID, StepSequence: 1, Error: "late"})

		require.NoError(t, err)
		assert.Equal(t, domain.SagaStateInProgress, running.State)
	})

	t.Run("duplicate failure of a compensated saga is a no-op", func(t *testing.T) {
		done := sagaIn(domain.SagaStateCompensated)
		repo := mocks.NewMockSagaRepository(t)
		publisher := mocks.NewMockPublisher(t)

		repo.EXPECT().FindByID(mock.Anything, done.ID).Return(done, nil).Once()
		repo.EXPECT().FailStep(mock.Anything, done.ID, 2, "declined").Return(false, nil).Once()

		uc := newUseCases(repo, publisher, domain.DefaultDefinitions())
		require.NoError(t, uc.listener.Failed(context.Background(), events.StepFailed{SagaID: done.ID, StepSequence: 2, Error: "declined"}))
	})

	t.Run("store failure asks for redelivery", func(t *testing.T) {
		running := sagaIn(domain.SagaStateInProgress)
		repo := mocks.NewMockSagaRepository(t)
		publisher := mocks.NewMockPublisher(t)

		repo.EXPECT().FindByID(mock.Anything, running.ID).Return(running, nil).Once()
		repo.EXPECT().FailStep(mock.Anything, running.ID, 1, "declined").Return(false, errors.New("db down")).Once()

		uc := newUseCases(repo, publisher, domain.DefaultDefinitions())
		err := uc.listener.Failed(context.Background(), events.StepFailed{SagaID: running.ID, StepSequence: 1, Error: "declined"})
		assert.EqualError(t, err, "failed to record outcome of step 1: db down")
	})
}
