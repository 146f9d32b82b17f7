package application

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/draftea/saga-orchestrator/orchestrator-service/domain"
	"github.com/draftea/saga-orchestrator/orchestrator-service/infrastructure"
	"github.com/draftea/saga-orchestrator/orchestrator-service/mocks"
	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestReconcileSagas_Execute(t *testing.T) {
	t.Run("re-drives each saga by state and counts failures", func(t *testing.T) {
		fresh := sagaIn(domain.SagaStatePending)
		waiting := sagaIn(domain.SagaStateInProgress)
		broken := sagaIn(domain.SagaStateInProgress)
		failed := sagaIn(domain.SagaStateFailed)

		dispatched := domain.NewStepInstance(waiting.ID, "ReserveInventory", 1)
		dispatched.DispatchedAt = &dispatched.CreatedAt

		repo := mocks.NewMockSagaRepository(t)
		publisher := mocks.NewMockPublisher(t)

		repo.EXPECT().FindStalled(mock.Anything, reconcilableStates, mock.Anything, 500).
			Return([]*domain.Saga{fresh, waiting, broken, failed}, nil).Once()

		// PENDING without steps: first step goes out
		repo.EXPECT().GetSteps(mock.Anything, fresh.ID).Return(nil, nil).Once()
		repo.EXPECT().CreateStep(mock.Anything, mock.MatchedBy(func(step *domain.StepInstance) bool {
			return step.SagaID == fresh.ID && step.Sequence == 1
		})).Return(nil).Once()
		repo.EXPECT().GetCompletedSteps(mock.Anything, fresh.ID).Return(nil, nil).Once()
		repo.EXPECT().UpdateSaga(mock.Anything, fresh).Return(nil).Once()
		publisher.EXPECT().Publish(mock.Anything, mock.MatchedBy(func(evt *events.Event) bool {
			return evt.AggregateID == fresh.ID && evt.Topic.String() == "ReserveInventory"
		})).Return(nil).Once()
		repo.EXPECT().MarkStepDispatched(mock.Anything, fresh.ID, 1, mock.Anything).Return(nil).Once()

		// dispatched and waiting on a participant: untouched
		repo.EXPECT().GetSteps(mock.Anything, waiting.ID).Return([]*domain.StepInstance{dispatched}, nil).Once()

		repo.EXPECT().GetSteps(mock.Anything, broken.ID).Return(nil, errors.New("db down")).Once()

		// FAILED with nothing completed: straight to COMPENSATED
		repo.EXPECT().UpdateSaga(mock.Anything, failed).Return(nil).Twice()
		repo.EXPECT().GetCompletedSteps(mock.Anything, failed.ID).Return(nil, nil).Once()
		publisher.EXPECT().Publish(mock.Anything, mock.MatchedBy(func(evt *events.Event) bool {
			return evt.AggregateID == failed.ID && evt.Topic.String() == events.SagaCompensatedEvent
		})).Return(nil).Once()

		uc := newUseCases(repo, publisher, domain.DefaultDefinitions())
		result, err := uc.reconcile.Execute(context.Background())

		require.NoError(t, err)
		assert.Equal(t, ReconcileResult{Scanned: 4, Failed: 1}, result)
		assert.Equal(t, domain.SagaStateInProgress, fresh.State)
		assert.Equal(t, domain.SagaStateCompensated, failed.State)
	})

	t.Run("listing failure is returned", func(t *testing.T) {
		repo := mocks.NewMockSagaRepository(t)
		repo.EXPECT().FindStalled(mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("db down")).Once()

		uc := newUseCases(repo, mocks.NewMockPublisher(t), domain.DefaultDefinitions())
		_, err := uc.reconcile.Execute(context.Background())
		assert.EqualError(t, err, "failed to list unfinished sagas: db down")
	})
}

func TestReconcileSagas_RunStopsWithContext(t *testing.T) {
	repo := mocks.NewMockSagaRepository(t)
	repo.EXPECT().FindStalled(mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)

	uc := newUseCases(repo, mocks.NewMockPublisher(t), domain.DefaultDefinitions())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		uc.reconcile.Run(ctx, time.Millisecond)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop")
	}
	repo.AssertCalled(t, "FindStalled", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcileSagas_WaitingSagasDoNotStarveTheBatch(t *testing.T) {
	ctx := context.Background()
	repo := infrastructure.NewMemorySagaRepository()
	now := time.Now().UTC()

	// older saga waiting on a participant
	waiting := sagaIn(domain.SagaStateInProgress)
	waiting.Timestamps.UpdatedAt = now.Add(-2 * time.Minute)
	require.NoError(t, repo.CreateSaga(ctx, waiting))
	require.NoError(t, repo.CreateStep(ctx, domain.NewStepInstance(waiting.ID, "ReserveInventory", 1)))
	require.NoError(t, repo.MarkStepDispatched(ctx, waiting.ID, 1, now.Add(-2*time.Minute)))

	// newer saga whose compensation was interrupted
	compensating := sagaIn(domain.SagaStateCompensating)
	compensating.Timestamps.UpdatedAt = now.Add(-time.Minute)
	require.NoError(t, repo.CreateSaga(ctx, compensating))
	require.NoError(t, repo.CreateStep(ctx, domain.NewStepInstance(compensating.ID, "ReserveInventory", 1)))
	_, err := repo.CompleteStep(ctx, compensating.ID, 1, json.RawMessage(`{"reservationId":"res-1"}`))
	require.NoError(t, err)

	tests := []struct {
		name            string
		gracePeriod     time.Duration
		expectedScanned int
		expectedState   domain.SagaState
	}{
		{"recently active sagas are left alone", time.Hour, 0, domain.SagaStateCompensating},
		{"compensation is re-driven past the waiting saga", 0, 1, domain.SagaStateCompensated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var topics []string
			publisher := mocks.NewMockPublisher(t)
			publisher.EXPECT().Publish(mock.Anything, mock.Anything).
				Run(func(_ context.Context, evts ...*events.Event) {
					for _, evt := range evts {
						topics = append(topics, evt.Topic.String())
					}
				}).
				Return(nil).Maybe()

			definitions := domain.DefaultDefinitions()
			dispatcher := NewDispatchStep(repo, publisher, noRetry, nil)
			compensator := NewCompensateSaga(repo, publisher, definitions, noRetry, nil)
			advancer := NewAdvanceSaga(repo, publisher, definitions, dispatcher, compensator, noRetry, nil)
			reconciler := NewReconcileSagas(repo, publisher, advancer, compensator, noRetry,
				ReconcileOptions{BatchSize: 1, GracePeriod: tt.gracePeriod}, nil)

			result, err := reconciler.Execute(ctx)
			require.NoError(t, err)
			assert.Equal(t, ReconcileResult{Scanned: tt.expectedScanned}, result)

			stored, err := repo.FindByID(ctx, compensating.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedState, stored.State)

			untouched, err := repo.FindByID(ctx, waiting.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.SagaStateInProgress, untouched.State)
			assert.NotContains(t, topics, "ReserveInventory")
		})
	}
}
