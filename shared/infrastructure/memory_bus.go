package infrastructure

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/logger"
)

var _ events.Publisher = (*MemoryBus)(nil)
var _ events.Subscriber = (*MemoryBus)(nil)

// MemoryBus is an in-process transport with the same delivery model as the
// real ones: asynchronous, at-least-once, ordered per partition key. It backs
// local runs and end-to-end tests.
type MemoryBus struct {
	mu      sync.RWMutex
	subs    []*memorySubscription
	history []*events.Event

	pending       atomic.Int64
	workers       int
	maxDeliveries int
	retryDelay    time.Duration
	log           *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type memorySubscription struct {
	pattern events.Topic
	handler events.EventHandler
	queues  []*memoryQueue
}

// MemoryBusOption configures a MemoryBus
type MemoryBusOption func(*MemoryBus)

// WithMemoryWorkers sets the partitioned workers per subscription
func WithMemoryWorkers(n int) MemoryBusOption {
	return func(b *MemoryBus) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithMemoryRedelivery sets how often a failing handler is retried before the message is dropped
func WithMemoryRedelivery(maxDeliveries int, delay time.Duration) MemoryBusOption {
	return func(b *MemoryBus) {
		b.maxDeliveries = maxDeliveries
		b.retryDelay = delay
	}
}

// WithMemoryLogger sets the logger used for dropped messages
func WithMemoryLogger(log *logger.Logger) MemoryBusOption {
	return func(b *MemoryBus) {
		b.log = log
	}
}

// NewMemoryBus creates a running bus; Close stops it
func NewMemoryBus(opts ...MemoryBusOption) *MemoryBus {
	ctx, cancel := context.WithCancel(context.Background())
	b := &MemoryBus{
		workers:       4,
		maxDeliveries: 5,
		retryDelay:    10 * time.Millisecond,
		log:           logger.Nop(),
		ctx:           ctx,
		cancel:        cancel,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe delivers every event whose topic matches pattern to handler
func (b *MemoryBus) Subscribe(_ context.Context, pattern string, handler events.EventHandler) error {
	if pattern == "" {
		pattern = "#"
	}

	sub := &memorySubscription{
		pattern: events.Topic(pattern),
		handler: handler,
		queues:  make([]*memoryQueue, b.workers),
	}

	for i := range sub.queues {
		q := newMemoryQueue()
		sub.queues[i] = q
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.work(sub, q)
		}()
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	return nil
}

// Publish enqueues the events for every matching subscription and returns immediately
func (b *MemoryBus) Publish(ctx context.Context, evts ...*events.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, event := range evts {
		b.history = append(b.history, event.Clone())
		for _, sub := range b.subs {
			if !event.Topic.Matches(sub.pattern) {
				continue
			}
			b.pending.Add(1)
			sub.queues[partitionIndex(event.PartitionKey(), len(sub.queues))].push(event.Clone())
		}
	}

	return nil
}

// History returns every event published so far, in publish order
func (b *MemoryBus) History() []*events.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*events.Event, len(b.history))
	copy(out, b.history)
	return out
}

// HistoryFor returns the published events whose topic matches pattern
func (b *MemoryBus) HistoryFor(pattern string) []*events.Event {
	var out []*events.Event
	for _, event := range b.History() {
		if event.Topic.Matches(events.Topic(pattern)) {
			out = append(out, event)
		}
	}
	return out
}

// WaitIdle blocks until no delivery is queued or running
func (b *MemoryBus) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()

	for b.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Close stops the workers; queued deliveries are discarded
func (b *MemoryBus) Close() error {
	b.cancel()

	b.mu.RLock()
	for _, sub := range b.subs {
		for _, q := range sub.queues {
			q.close()
		}
	}
	b.mu.RUnlock()

	b.wg.Wait()
	return nil
}

func (b *MemoryBus) work(sub *memorySubscription, q *memoryQueue) {
	for {
		event, ok := q.pop()
		if !ok {
			return
		}
		b.deliver(sub, event)
		b.pending.Add(-1)
	}
}

func (b *MemoryBus) deliver(sub *memorySubscription, event *events.Event) {
	var err error
	for attempt := 1; attempt <= b.maxDeliveries; attempt++ {
		if err = sub.handler.Handle(b.ctx, event.Clone()); err == nil {
			return
		}
		if b.ctx.Err() != nil {
			return
		}
		sleep(b.ctx, b.retryDelay)
	}

	b.log.WithError(err).
		WithField("topic", event.Topic.String()).
		WithField("event_id", event.ID.String()).
		Error("dropping message after exhausting redeliveries")
}

// memoryQueue is an unbounded FIFO so a handler can publish into its own partition without blocking
type memoryQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []*events.Event
	closed bool
}

func newMemoryQueue() *memoryQueue {
	q := &memoryQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *memoryQueue) push(event *events.Event) {
	q.mu.Lock()
	q.items = append(q.items, event)
	q.mu.Unlock()
	q.cond.Signal()
}

func (q *memoryQueue) pop() (*events.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed {
		return nil, false
	}

	event := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return event, true
}

func (q *memoryQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}
