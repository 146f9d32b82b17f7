package application

import (
	"context"
	"testing"

	"github.com/draftea/saga-orchestrator/orchestrator-service/domain"
	"github.com/draftea/saga-orchestrator/orchestrator-service/mocks"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestDispatchStep_Execute(t *testing.T) {
	step2 := domain.StepDefinition{Name: "ChargePayment", Compensation: "RefundPayment"}

	tests := []struct {
		name          string
		setupMocks    func(*domain.Saga, *mocks.MockSagaRepository, *mocks.MockPublisher)
		expectedError string
	}{
		{
			name: "existing undispatched step is re-sent",
			setupMocks: func(saga *domain.Saga, repo *mocks.MockSagaRepository, publisher *mocks.MockPublisher) {
				step1 := completedStep(saga.ID, 1, "ReserveInventory")
				repo.EXPECT().CreateStep(mock.Anything, mock.Anything).Return(domain.ErrStepExists).Once()
				repo.EXPECT().GetSteps(mock.Anything, saga.ID).
					Return([]*domain.StepInstance{step1, domain.NewStepInstance(saga.ID, "ChargePayment", 2)}, nil).Once()
				repo.EXPECT().GetCompletedSteps(mock.Anything, saga.ID).Return([]*domain.StepInstance{step1}, nil).Once()
				publisher.EXPECT().Publish(mock.Anything, mock.MatchedBy(topicIs("ChargePayment"))).Return(nil).Once()
				repo.EXPECT().MarkStepDispatched(mock.Anything, saga.ID, 2, mock.Anything).Return(nil).Once()
			},
		},
		{
			name: "another pending step blocks the dispatch",
			setupMocks: func(saga *domain.Saga, repo *mocks.MockSagaRepository, _ *mocks.MockPublisher) {
				repo.EXPECT().CreateStep(mock.Anything, mock.Anything).Return(domain.ErrStepExists).Once()
				repo.EXPECT().GetSteps(mock.Anything, saga.ID).
					Return([]*domain.StepInstance{domain.NewStepInstance(saga.ID, "ReserveInventory", 1)}, nil).Once()
			},
		},
		{
			name: "transport failure leaves the step undispatched",
			setupMocks: func(saga *domain.Saga, repo *mocks.MockSagaRepository, publisher *mocks.MockPublisher) {
				repo.EXPECT().CreateStep(mock.Anything, mock.Anything).Return(nil).Once()
				repo.EXPECT().GetCompletedSteps(mock.Anything, saga.ID).Return(nil, nil).Once()
				publisher.EXPECT().Publish(mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()
			},
			expectedError: "failed to dispatch ChargePayment: broker down",
		},
		{
			name: "previous step not completed",
			setupMocks: func(_ *domain.Saga, repo *mocks.MockSagaRepository, _ *mocks.MockPublisher) {
				repo.EXPECT().CreateStep(mock.Anything, mock.Anything).Return(domain.ErrInvalidTransition).Once()
			},
			expectedError: "failed to create step 2: invalid saga transition",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			saga := sagaIn(domain.SagaStateInProgress)
			repo := mocks.NewMockSagaRepository(t)
			publisher := mocks.NewMockPublisher(t)
			tt.setupMocks(saga, repo, publisher)

			uc := newUseCases(repo, publisher, domain.DefaultDefinitions())
			err := uc.dispatcher.Execute(context.Background(), saga, step2, 2)

			if tt.expectedError != "" {
				assert.EqualError(t, err, tt.expectedError)
				return
			}
			assert.NoError(t, err)
		})
	}
}
