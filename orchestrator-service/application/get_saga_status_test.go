package application

import (
	"context"
	"testing"

	"github.com/draftea/saga-orchestrator/orchestrator-service/domain"
	"github.com/draftea/saga-orchestrator/orchestrator-service/mocks"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestGetSagaStatus_Execute(t *testing.T) {
	saga := sagaIn(domain.SagaStateCompensated)
	failedStep := domain.NewStepInstance(saga.ID, "ChargePayment", 2)
	_, _ = failedStep.Fail("card declined", failedStep.CreatedAt)

	tests := []struct {
		name          string
		sagaID        string
		setupMocks    func(*mocks.MockSagaRepository)
		expectedError error
		expected      *SagaStatusResponse
	}{
		{
			name:   "saga with failed step",
			sagaID: saga.ID.String(),
			setupMocks: func(repo *mocks.MockSagaRepository) {
				compensated := completedStep(saga.ID, 1, "ReserveInventory")
				_, _ = compensated.Compensate(compensated.CreatedAt)
				repo.EXPECT().FindByID(mock.Anything, saga.ID).Return(saga, nil).Once()
				repo.EXPECT().GetSteps(mock.Anything, saga.ID).Return([]*domain.StepInstance{compensated, failedStep}, nil).Once()
			},
			expected: &SagaStatusResponse{
				SagaID:    saga.ID.String(),
				SagaType:  domain.OrderCheckout,
				State:     "COMPENSATED",
				StartedAt: saga.StartedAt,
				Steps: []StepStatusResponse{
					{Name: "ReserveInventory", Sequence: 1, Status: "COMPENSATED"},
					{Name: "ChargePayment", Sequence: 2, Status: "FAILED", Error: "card declined"},
				},
			},
		},
		{
			name:          "invalid saga ID",
			sagaID:        "invalid-uuid",
			setupMocks:    func(*mocks.MockSagaRepository) {},
			expectedError: ErrInvalidCommand,
		},
		{
			name:   "saga not found",
			sagaID: saga.ID.String(),
			setupMocks: func(repo *mocks.MockSagaRepository) {
				repo.EXPECT().FindByID(mock.Anything, saga.ID).Return(nil, domain.ErrSagaNotFound).Once()
			},
			expectedError: domain.ErrSagaNotFound,
		},
		{
			name:   "step store failure",
			sagaID: saga.ID.String(),
			setupMocks: func(repo *mocks.MockSagaRepository) {
				repo.EXPECT().FindByID(mock.Anything, saga.ID).Return(saga, nil).Once()
				repo.EXPECT().GetSteps(mock.Anything, saga.ID).Return(nil, errors.New("db down")).Once()
			},
			expectedError: errors.New("failed to get steps: db down"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := mocks.NewMockSagaRepository(t)
			tt.setupMocks(repo)

			uc := newUseCases(repo, mocks.NewMockPublisher(t), domain.DefaultDefinitions())
			result, err := uc.status.Execute(context.Background(), &GetSagaStatusQuery{SagaID: tt.sagaID})

			if tt.expectedError != nil {
				require.Error(t, err)
				if !errors.Is(err, tt.expectedError) {
					assert.EqualError(t, err, tt.expectedError.Error())
				}
				assert.Nil(t, result)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}
