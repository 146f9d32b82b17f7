package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyPublisher struct {
	failures int
	calls    int
}

func (p *flakyPublisher) Publish(context.Context, ...*events.Event) error {
	p.calls++
	if p.calls <= p.failures {
		return errors.New("transport unavailable")
	}
	return nil
}

var fastPolicy = RetryPolicy{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}

func TestRetryingPublisher_Publish(t *testing.T) {
	tests := []struct {
		name          string
		failures      int
		expectedCalls int
		expectedError string
	}{
		{name: "first attempt succeeds", failures: 0, expectedCalls: 1},
		{name: "recovers after transient failures", failures: 2, expectedCalls: 3},
		{name: "gives up after max retries", failures: 10, expectedCalls: 4, expectedError: "publish failed after 4 attempts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := &flakyPublisher{failures: tt.failures}
			publisher := NewRetryingPublisher(inner, fastPolicy, nil)

			err := publisher.Publish(context.Background(), testCommandEvent(models.GenerateUUID(), 1))

			if tt.expectedError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedError)
				assert.Contains(t, err.Error(), "transport unavailable")
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.expectedCalls, inner.calls)
		})
	}
}

func TestRetryPolicy_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := RetryPolicy{MaxRetries: 5, InitialBackoff: time.Second}.Do(ctx, func(context.Context) error {
		calls++
		return errors.New("store down")
	})

	require.Error(t, err)
	assert.LessOrEqual(t, calls, 1)
}

func TestRetryPolicy_DoUnlessStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("saga not found")

	calls := 0
	err := fastPolicy.DoUnless(context.Background(), func(err error) bool { return errors.Is(err, permanent) }, func(context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("connection reset")
		}
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 2, calls)
}
