package saga

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []*events.Event
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, evts ...*events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, evts...)
	return nil
}

func (p *capturePublisher) published() []*events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*events.Event(nil), p.events...)
}

func reserveCommand(sagaID models.ID) *events.Event {
	return events.NewCommandEvent(events.CommandMessage{
		SagaID:         sagaID,
		StepSequence:   1,
		Command:        "ReserveInventory",
		IdempotencyKey: "key-1",
		Payload:        events.CommandPayload{Input: json.RawMessage(`{"productId":"prod-1","quantity":2}`)},
	})
}

func newInventoryExecutor(publisher events.Publisher, action StepAction, compensate CompensationAction) *StepExecutor {
	return NewStepExecutor("inventory", publisher, NewMemoryIdempotencyStore(), nil).Register(Step{
		Command:      "ReserveInventory",
		Event:        "InventoryReserved",
		Action:       action,
		Compensation: "ReleaseInventory",
		Compensate:   compensate,
	})
}

func TestStepExecutor_Command(t *testing.T) {
	sagaID := models.GenerateUUID()

	tests := []struct {
		name          string
		action        StepAction
		deliveries    int
		expectedCalls int
		expectedTopic string
		expectedError bool
		assertEvent   func(t *testing.T, event *events.Event)
	}{
		{
			name: "success emits one succeeded event with the result",
			action: func(_ context.Context, cmd events.CommandMessage) (interface{}, error) {
				return map[string]string{"reservation_id": "res-" + cmd.SagaID.String()}, nil
			},
			deliveries:    1,
			expectedCalls: 1,
			expectedTopic: events.StepSucceededTopic,
			assertEvent: func(t *testing.T, event *events.Event) {
				var msg events.StepSucceeded
				require.NoError(t, event.UnmarshalPayload(&msg))
				assert.Equal(t, sagaID, msg.SagaID)
				assert.Equal(t, 1, msg.StepSequence)
				assert.Equal(t, "InventoryReserved", msg.Event)
				assert.JSONEq(t, `{"reservation_id":"res-`+sagaID.String()+`"}`, string(msg.Result))
			},
		},
		{
			name: "business error emits one failed event",
			action: func(context.Context, events.CommandMessage) (interface{}, error) {
				return nil, errors.New("out of stock")
			},
			deliveries:    1,
			expectedCalls: 1,
			expectedTopic: events.StepFailedTopic,
			assertEvent: func(t *testing.T, event *events.Event) {
				var msg events.StepFailed
				require.NoError(t, event.UnmarshalPayload(&msg))
				assert.Equal(t, "out of stock", msg.Error)
			},
		},
		{
			name: "duplicate delivery runs the action once",
			action: func(context.Context, events.CommandMessage) (interface{}, error) {
				return nil, nil
			},
			deliveries:    3,
			expectedCalls: 1,
			expectedTopic: events.StepSucceededTopic,
		},
		{
			name: "transient error emits nothing and asks for redelivery",
			action: func(context.Context, events.CommandMessage) (interface{}, error) {
				return nil, Transient(errors.New("db timeout"))
			},
			deliveries:    1,
			expectedCalls: 1,
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			publisher := &capturePublisher{}
			calls := 0
			action := func(ctx context.Context, cmd events.CommandMessage) (interface{}, error) {
				calls++
				return tt.action(ctx, cmd)
			}
			executor := newInventoryExecutor(publisher, action, nil)

			var err error
			for i := 0; i < tt.deliveries; i++ {
				err = executor.Handle(context.Background(), reserveCommand(sagaID))
			}

			assert.Equal(t, tt.expectedCalls, calls)
			if tt.expectedError {
				require.Error(t, err)
				assert.Empty(t, publisher.published())
				return
			}

			require.NoError(t, err)
			published := publisher.published()
			require.Len(t, published, 1)
			assert.Equal(t, tt.expectedTopic, published[0].Topic.String())
			assert.Equal(t, sagaID, published[0].AggregateID)
			if tt.assertEvent != nil {
				tt.assertEvent(t, published[0])
			}
		})
	}
}

func TestStepExecutor_RepublishesRecordedOutcomeAfterPublishFailure(t *testing.T) {
	sagaID := models.GenerateUUID()
	publisher := &capturePublisher{err: errors.New("broker down")}

	calls := 0
	executor := newInventoryExecutor(publisher, func(context.Context, events.CommandMessage) (interface{}, error) {
		calls++
		return map[string]int{"attempt": calls}, nil
	}, nil)

	require.Error(t, executor.Handle(context.Background(), reserveCommand(sagaID)))

	publisher.mu.Lock()
	publisher.err = nil
	publisher.mu.Unlock()

	require.NoError(t, executor.Handle(context.Background(), reserveCommand(sagaID)))
	require.NoError(t, executor.Handle(context.Background(), reserveCommand(sagaID)))

	assert.Equal(t, 1, calls)
	published := publisher.published()
	require.Len(t, published, 1)

	var msg events.StepSucceeded
	require.NoError(t, published[0].UnmarshalPayload(&msg))
	assert.JSONEq(t, `{"attempt":1}`, string(msg.Result))
}

func TestStepExecutor_Compensation(t *testing.T) {
	sagaID := models.GenerateUUID()
	compensation := events.NewCompensationEvent(events.CompensationMessage{
		SagaID:       sagaID,
		StepSequence: 1,
		StepName:     "ReserveInventory",
		Compensation: "ReleaseInventory",
		Payload:      json.RawMessage(`{"reservation_id":"res-1"}`),
	})

	t.Run("runs once per saga", func(t *testing.T) {
		var payloads []string
		executor := newInventoryExecutor(&capturePublisher{}, nil, func(_ context.Context, msg events.CompensationMessage) error {
			payloads = append(payloads, string(msg.Payload))
			return nil
		})

		require.NoError(t, executor.Handle(context.Background(), compensation))
		require.NoError(t, executor.Handle(context.Background(), compensation))

		require.Len(t, payloads, 1)
		assert.JSONEq(t, `{"reservation_id":"res-1"}`, payloads[0])
	})

	t.Run("failure is returned for redelivery and retried", func(t *testing.T) {
		attempts := 0
		executor := newInventoryExecutor(&capturePublisher{}, nil, func(context.Context, events.CompensationMessage) error {
			attempts++
			if attempts == 1 {
				return errors.New("warehouse unavailable")
			}
			return nil
		})

		require.Error(t, executor.Handle(context.Background(), compensation))
		require.NoError(t, executor.Handle(context.Background(), compensation))
		assert.Equal(t, 2, attempts)
	})
}

func TestStepExecutor_Channels(t *testing.T) {
	noop := func(context.Context, events.CommandMessage) (interface{}, error) { return nil, nil }

	executor := NewStepExecutor("payments", &capturePublisher{}, NewMemoryIdempotencyStore(), nil).
		Register(Step{
			Command:      "ChargePayment",
			Action:       noop,
			Compensation: "RefundPayment",
			Compensate:   func(context.Context, events.CompensationMessage) error { return nil },
		}).
		Register(Step{Command: "ConfirmOrder", Action: noop})

	assert.Equal(t, []string{"ChargePayment", "ConfirmOrder", "RefundPayment"}, executor.Channels())
}

func TestStepExecutor_IgnoresNonCommands(t *testing.T) {
	publisher := &capturePublisher{}
	executor := newInventoryExecutor(publisher, nil, nil)

	evt := events.NewStepSucceededEvent(events.StepSucceeded{SagaID: models.GenerateUUID(), StepSequence: 1})
	require.NoError(t, executor.Handle(context.Background(), evt))
	assert.Empty(t, publisher.published())
}
