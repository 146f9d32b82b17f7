package infrastructure

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/logger"
	"github.com/draftea/saga-orchestrator/shared/telemetry"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
)

const (
	StreamMessageIDKey = "stream_message_id"
	StreamNameKey      = "stream_name"

	streamDataField = "data"
	streamKeyField  = "key"
	dlqSuffix       = ":dlq"
)

var _ events.Publisher = (*RedisStreamPublisher)(nil)
var _ events.Subscriber = (*RedisStreamSubscriber)(nil)

// RedisStreamPublisher publishes every event to the stream named after its topic
type RedisStreamPublisher struct {
	client *redis.Client
	maxLen int64
}

// NewRedisStreamPublisher creates a publisher. maxLen > 0 trims streams approximately to that length.
func NewRedisStreamPublisher(client *redis.Client, maxLen int64) *RedisStreamPublisher {
	return &RedisStreamPublisher{client: client, maxLen: maxLen}
}

// Publish appends the events in one pipeline round trip
func (p *RedisStreamPublisher) Publish(ctx context.Context, evts ...*events.Event) error {
	if len(evts) == 0 {
		return nil
	}

	pipe := p.client.Pipeline()
	for _, event := range evts {
		body, err := encodeEvent(event)
		if err != nil {
			return err
		}

		args := &redis.XAddArgs{
			Stream: event.Topic.String(),
			Values: map[string]interface{}{
				streamDataField: string(body),
				streamKeyField:  event.PartitionKey(),
			},
		}
		if p.maxLen > 0 {
			args.MaxLen = p.maxLen
			args.Approx = true
		}
		pipe.XAdd(ctx, args)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "failed to publish to redis stream")
	}

	for _, event := range evts {
		telemetry.RecordCounter(ctx, "transport_messages_published_total", "Messages published to the transport", 1,
			attribute.String("transport", "redis"),
			attribute.String("channel", event.Topic.String()),
			attribute.String("status", "success"),
		)
	}

	return nil
}

// Close is a no-op; the redis client is owned by the caller
func (p *RedisStreamPublisher) Close() error {
	return nil
}

// StreamConsumerOptions configures a RedisStreamSubscriber
type StreamConsumerOptions struct {
	Workers      int           // partitioned handler goroutines per subscription
	BatchSize    int           // messages per XREADGROUP
	BlockTime    time.Duration // XREADGROUP block
	MaxRetries   int           // deliveries before a message goes to the dead letter stream
	ClaimMinIdle time.Duration // idle time before a pending message is reclaimed
	// PendingCheckInterval is how often pending messages are reclaimed
	PendingCheckInterval time.Duration
}

// DefaultStreamConsumerOptions default options
var DefaultStreamConsumerOptions = StreamConsumerOptions{
	Workers:              16,
	BatchSize:            10,
	BlockTime:            5 * time.Second,
	MaxRetries:           10,
	ClaimMinIdle:         30 * time.Second,
	PendingCheckInterval: 30 * time.Second,
}

// RedisStreamSubscriber consumes streams through a consumer group. Messages
// with the same partition key are handled by the same worker, in stream order.
// A message is acknowledged only after its handler succeeds.
type RedisStreamSubscriber struct {
	client   *redis.Client
	group    string
	consumer string
	opts     StreamConsumerOptions
	log      *logger.Logger

	mux     sync.Mutex
	cancels []context.CancelFunc
	wg      sync.WaitGroup
}

type streamDelivery struct {
	stream  string
	message redis.XMessage
}

// NewRedisStreamSubscriber creates a subscriber. Zero option fields take their defaults.
func NewRedisStreamSubscriber(client *redis.Client, group, consumer string, opts *StreamConsumerOptions, log *logger.Logger) *RedisStreamSubscriber {
	o := DefaultStreamConsumerOptions
	if opts != nil {
		o = mergeStreamOptions(*opts)
	}
	if log == nil {
		log = logger.Nop()
	}

	return &RedisStreamSubscriber{
		client:   client,
		group:    group,
		consumer: consumer,
		opts:     o,
		log:      log.WithField("group", group).WithField("consumer", consumer),
	}
}

func mergeStreamOptions(o StreamConsumerOptions) StreamConsumerOptions {
	d := DefaultStreamConsumerOptions
	if o.Workers <= 0 {
		o.Workers = d.Workers
	}
	if o.BatchSize <= 0 {
		o.BatchSize = d.BatchSize
	}
	if o.BlockTime <= 0 {
		o.BlockTime = d.BlockTime
	}
	if o.ClaimMinIdle <= 0 {
		o.ClaimMinIdle = d.ClaimMinIdle
	}
	if o.PendingCheckInterval <= 0 {
		o.PendingCheckInterval = d.PendingCheckInterval
	}
	return o
}

// Subscribe starts consuming the given streams (comma separated) in the background.
// Unlike SNS/SQS a stream name is a concrete channel, not a pattern.
func (s *RedisStreamSubscriber) Subscribe(ctx context.Context, streams string, handler events.EventHandler) error {
	names := splitStreams(streams)
	if len(names) == 0 {
		return events.ErrInvalidTopic
	}

	for _, stream := range names {
		err := s.client.XGroupCreateMkStream(ctx, stream, s.group, "0").Err()
		if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return errors.Wrapf(err, "failed to create consumer group for %s", stream)
		}
	}

	ctx, cancel := context.WithCancel(ctx)

	s.mux.Lock()
	s.cancels = append(s.cancels, cancel)
	s.mux.Unlock()

	partitions := make([]chan streamDelivery, s.opts.Workers)
	for i := range partitions {
		partitions[i] = make(chan streamDelivery, s.opts.BatchSize)
		ch := partitions[i]
		s.spawn(func() { s.work(ctx, ch, handler) })
	}

	s.spawn(func() { s.read(ctx, names, partitions) })
	s.spawn(func() { s.reclaim(ctx, names, partitions) })

	return nil
}

// Close stops every subscription and waits for in-flight handlers
func (s *RedisStreamSubscriber) Close() error {
	s.mux.Lock()
	cancels := s.cancels
	s.cancels = nil
	s.mux.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	s.wg.Wait()
	return nil
}

func (s *RedisStreamSubscriber) spawn(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

func (s *RedisStreamSubscriber) read(ctx context.Context, streams []string, partitions []chan streamDelivery) {
	args := make([]string, 0, len(streams)*2)
	args = append(args, streams...)
	for range streams {
		args = append(args, ">")
	}

	for ctx.Err() == nil {
		results, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.group,
			Consumer: s.consumer,
			Streams:  args,
			Count:    int64(s.opts.BatchSize),
			Block:    s.opts.BlockTime,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			s.log.WithError(err).Error("failed to read from redis stream")
			sleep(ctx, time.Second)
			continue
		}

		for _, result := range results {
			for _, m := range result.Messages {
				if !s.route(ctx, partitions, streamDelivery{stream: result.Stream, message: m}) {
					return
				}
			}
		}
	}
}

func (s *RedisStreamSubscriber) reclaim(ctx context.Context, streams []string, partitions []chan streamDelivery) {
	ticker := time.NewTicker(s.opts.PendingCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, stream := range streams {
				if err := s.processPending(ctx, stream, partitions); err != nil && ctx.Err() == nil {
					s.log.WithError(err).WithField(StreamNameKey, stream).Warn("failed to reclaim pending messages")
				}
			}
		}
	}
}

// processPending claims messages other consumers (or this one) left unacknowledged
func (s *RedisStreamSubscriber) processPending(ctx context.Context, stream string, partitions []chan streamDelivery) error {
	pending, err := s.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  s.group,
		Start:  "-",
		End:    "+",
		Count:  int64(s.opts.BatchSize),
	}).Result()
	if err != nil {
		return errors.Wrap(err, "xpending")
	}

	if len(pending) == 0 {
		return nil
	}

	ids := make([]string, 0, len(pending))
	exhausted := make(map[string]int64)
	for _, p := range pending {
		if p.Idle < s.opts.ClaimMinIdle {
			continue
		}
		ids = append(ids, p.ID)
		if s.opts.MaxRetries > 0 && p.RetryCount > int64(s.opts.MaxRetries) {
			exhausted[p.ID] = p.RetryCount
		}
	}

	if len(ids) == 0 {
		return nil
	}

	messages, err := s.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   stream,
		Group:    s.group,
		Consumer: s.consumer,
		MinIdle:  s.opts.ClaimMinIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return errors.Wrap(err, "xclaim")
	}

	for _, m := range messages {
		if retries, dead := exhausted[m.ID]; dead {
			if err := s.deadLetter(ctx, stream, m, retries); err != nil {
				s.log.WithError(err).WithField(StreamMessageIDKey, m.ID).Error("failed to dead-letter message")
			}
			continue
		}

		if !s.route(ctx, partitions, streamDelivery{stream: stream, message: m}) {
			return ctx.Err()
		}
	}

	return nil
}

func (s *RedisStreamSubscriber) route(ctx context.Context, partitions []chan streamDelivery, d streamDelivery) bool {
	key, _ := d.message.Values[streamKeyField].(string)
	select {
	case partitions[partitionIndex(key, len(partitions))] <- d:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *RedisStreamSubscriber) work(ctx context.Context, inbound <-chan streamDelivery, handler events.EventHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-inbound:
			s.process(ctx, d, handler)
		}
	}
}

func (s *RedisStreamSubscriber) process(ctx context.Context, d streamDelivery, handler events.EventHandler) {
	log := s.log.WithField(StreamNameKey, d.stream).WithField(StreamMessageIDKey, d.message.ID)

	data, ok := d.message.Values[streamDataField].(string)
	if !ok {
		log.Warn("dropping stream message without data field")
		s.ack(ctx, d)
		return
	}

	event, err := decodeEvent([]byte(data))
	if err != nil {
		log.WithError(err).Warn("dropping malformed stream message")
		s.ack(ctx, d)
		return
	}

	event.Metadata.Set(StreamMessageIDKey, d.message.ID)
	event.Metadata.Set(StreamNameKey, d.stream)

	if err := handler.Handle(ctx, event); err != nil {
		// Stays pending and is reclaimed after ClaimMinIdle
		log.WithError(err).Warn("handler failed, message left pending")
		return
	}

	s.ack(ctx, d)
}

func (s *RedisStreamSubscriber) ack(ctx context.Context, d streamDelivery) {
	if err := s.client.XAck(ctx, d.stream, s.group, d.message.ID).Err(); err != nil && ctx.Err() == nil {
		s.log.WithError(err).WithField(StreamMessageIDKey, d.message.ID).Warn("failed to ack stream message")
	}
}

func (s *RedisStreamSubscriber) deadLetter(ctx context.Context, stream string, m redis.XMessage, retries int64) error {
	_, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream + dlqSuffix,
		Values: map[string]interface{}{
			"stream":        stream,
			"msg_id":        m.ID,
			"retries":       retries,
			streamDataField: m.Values[streamDataField],
			"ts_ms":         time.Now().UnixMilli(),
			"group":         s.group,
		},
	}).Result()
	if err != nil {
		return errors.Wrap(err, "xadd dlq")
	}

	return s.client.XAck(ctx, stream, s.group, m.ID).Err()
}

func splitStreams(streams string) []string {
	var out []string
	for _, name := range strings.Split(streams, ",") {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}
