package infrastructure

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitIdle(t *testing.T, bus *MemoryBus) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, bus.WaitIdle(ctx))
}

func TestMemoryBus_DeliversByPattern(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	var mu sync.Mutex
	var got []string
	record := events.EventHandlerFunc(func(_ context.Context, event *events.Event) error {
		mu.Lock()
		got = append(got, event.Topic.String())
		mu.Unlock()
		return nil
	})

	require.NoError(t, bus.Subscribe(context.Background(), "saga.step.*", record))

	sagaID := models.GenerateUUID()
	require.NoError(t, bus.Publish(context.Background(),
		events.NewStepSucceededEvent(events.StepSucceeded{SagaID: sagaID, StepSequence: 1}),
		testCommandEvent(sagaID, 1),
		events.NewStepFailedEvent(events.StepFailed{SagaID: sagaID, StepSequence: 2}),
	))
	waitIdle(t, bus)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{events.StepSucceededTopic, events.StepFailedTopic}, got)
	assert.Len(t, bus.History(), 3)
	assert.Len(t, bus.HistoryFor("ReserveInventory"), 1)
}

func TestMemoryBus_RedeliversFailedHandler(t *testing.T) {
	bus := NewMemoryBus(WithMemoryRedelivery(3, time.Millisecond))
	defer bus.Close()

	var mu sync.Mutex
	attempts := 0
	require.NoError(t, bus.Subscribe(context.Background(), "#", events.EventHandlerFunc(func(context.Context, *events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 3 {
			return assert.AnError
		}
		return nil
	})))

	require.NoError(t, bus.Publish(context.Background(), testCommandEvent(models.GenerateUUID(), 1)))
	waitIdle(t, bus)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, attempts)
}

func TestMemoryBus_HandlerCanPublishIntoItsOwnPartition(t *testing.T) {
	bus := NewMemoryBus(WithMemoryWorkers(1))
	defer bus.Close()

	sagaID := models.GenerateUUID()
	var mu sync.Mutex
	var sequences []int

	require.NoError(t, bus.Subscribe(context.Background(), "ReserveInventory", events.EventHandlerFunc(func(ctx context.Context, event *events.Event) error {
		var cmd events.CommandMessage
		require.NoError(t, event.UnmarshalPayload(&cmd))

		mu.Lock()
		sequences = append(sequences, cmd.StepSequence)
		mu.Unlock()

		if cmd.StepSequence < 20 {
			return bus.Publish(ctx, testCommandEvent(sagaID, cmd.StepSequence+1))
		}
		return nil
	})))

	require.NoError(t, bus.Publish(context.Background(), testCommandEvent(sagaID, 1)))
	waitIdle(t, bus)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, sequences, 20)
	assert.Equal(t, 20, sequences[19])
}

func TestMemoryBus_PublishAfterClose(t *testing.T) {
	bus := NewMemoryBus()
	require.NoError(t, bus.Close())
	assert.Error(t, bus.Publish(context.Background(), testCommandEvent(models.GenerateUUID(), 1)))
}
