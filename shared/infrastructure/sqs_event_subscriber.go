package infrastructure

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/cespare/xxhash/v2"
	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/logger"
	"github.com/pkg/errors"
)

const (
	SQSMessageIDKey     = "sqs_message_id"
	SQSReceiptHandleKey = "sqs_receipt_handle"
	ReceiveCountKey     = "receive_count"
)

// SQSAPI is the subset of the SQS client the subscriber needs
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

type sqsMessage struct {
	Message types.Message
	Event   *events.Event
	Err     error
}

// EventHandler wraps the Event Handler interface
type EventHandler interface {
	HandlerID() string
	Handle(ctx context.Context, event *events.Event) error
}

// EventHandlerFunc creates a handler from a function
type EventHandlerFunc struct {
	id string
	fn func(ctx context.Context, event *events.Event) error
}

func NewEventHandlerFunc(id string, fn func(ctx context.Context, event *events.Event) error) *EventHandlerFunc {
	return &EventHandlerFunc{
		id: id,
		fn: fn,
	}
}

func (h *EventHandlerFunc) HandlerID() string {
	return h.id
}

func (h *EventHandlerFunc) Handle(ctx context.Context, event *events.Event) error {
	return h.fn(ctx, event)
}

// SQSEventSubscriber implements event subscription using AWS SQS.
//
// Messages are routed to workers by hashing their partition key, so every
// message of one saga is handled by the same worker goroutine, in the order it
// was read, while different sagas are handled in parallel.
type SQSEventSubscriber struct {
	mux              sync.Mutex
	partitions       []chan *sqsMessage
	outboundMessages chan *sqsMessage
	cancel           context.CancelFunc
	wg               sync.WaitGroup
	running          atomic.Bool
	options          *sqsSubscriberOptions

	client   SQSAPI
	queueURL string
	handler  EventHandler
	log      *logger.Logger
}

type sqsSubscriberOptions struct {
	name                           string
	workers                        int32
	readers                        int32
	cleaners                       int32
	maxNumberOfMessages            int32
	waitTimeSeconds                int32
	visibilityTimeout              int32
	sleepTimeAfterEmptyReceive     time.Duration
	sleepTimeAfterError            time.Duration
	ack                            bool
	extendVisibilityTimeoutOnError bool
	receiveCountRange              int32
	visibilityTimeoutOffset        int32
	maxVisibilityTimeout           int32
	topicPattern                   events.Topic
	log                            *logger.Logger
}

type SQSSubscriberOption func(*sqsSubscriberOptions)

func WithWorkers(workers int32) SQSSubscriberOption {
	return func(o *sqsSubscriberOptions) {
		o.workers = workers
	}
}

func WithReaders(readers int32) SQSSubscriberOption {
	return func(o *sqsSubscriberOptions) {
		o.readers = readers
	}
}

func WithVisibilityTimeout(timeout int32) SQSSubscriberOption {
	return func(o *sqsSubscriberOptions) {
		o.visibilityTimeout = timeout
	}
}

func WithWaitTimeSeconds(seconds int32) SQSSubscriberOption {
	return func(o *sqsSubscriberOptions) {
		o.waitTimeSeconds = seconds
	}
}

func WithSleepTimes(afterEmpty, afterError time.Duration) SQSSubscriberOption {
	return func(o *sqsSubscriberOptions) {
		o.sleepTimeAfterEmptyReceive = afterEmpty
		o.sleepTimeAfterError = afterError
	}
}

// WithTopicPattern acknowledges without handling any message whose topic does not match
func WithTopicPattern(pattern string) SQSSubscriberOption {
	return func(o *sqsSubscriberOptions) {
		o.topicPattern = events.Topic(pattern)
	}
}

func WithLogger(log *logger.Logger) SQSSubscriberOption {
	return func(o *sqsSubscriberOptions) {
		o.log = log
	}
}

// NewSQSEventSubscriber creates a new SQS event subscriber
func NewSQSEventSubscriber(
	client SQSAPI,
	queueURL string,
	handler EventHandler,
	opts ...SQSSubscriberOption,
) *SQSEventSubscriber {
	options := &sqsSubscriberOptions{
		name:                           "sqs",
		workers:                        30,
		readers:                        1,
		cleaners:                       2,
		maxNumberOfMessages:            10,
		waitTimeSeconds:                15,
		visibilityTimeout:              30,
		sleepTimeAfterEmptyReceive:     time.Second,
		sleepTimeAfterError:            20 * time.Second,
		ack:                            true,
		extendVisibilityTimeoutOnError: true,
		receiveCountRange:              3,
		visibilityTimeoutOffset:        30,
		maxVisibilityTimeout:           900, // 15 minutes
		log:                            logger.Nop(),
	}

	for _, opt := range opts {
		opt(options)
	}

	if options.workers < 1 {
		options.workers = 1
	}

	return &SQSEventSubscriber{
		client:   client,
		queueURL: queueURL,
		handler:  handler,
		options:  options,
		log:      options.log.WithField("subscriber", options.name).WithField("handler", handler.HandlerID()),
	}
}

// Start starts the readers, the partitioned workers and the cleaners
func (s *SQSEventSubscriber) Start(ctx context.Context) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	if s.running.Load() {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.partitions = make([]chan *sqsMessage, s.options.workers)
	s.outboundMessages = make(chan *sqsMessage, 10)

	for i := range s.partitions {
		s.partitions[i] = make(chan *sqsMessage, 10)
		s.spawn(func() { s.startWorker(ctx, s.partitions[i]) })
	}

	for i := 0; i < int(s.options.readers); i++ {
		s.spawn(func() { s.startReader(ctx) })
	}

	for i := 0; i < int(s.options.cleaners); i++ {
		s.spawn(func() { s.startCleaner(ctx) })
	}

	s.running.Store(true)

	return nil
}

// Stop cancels every goroutine and waits for them to return
func (s *SQSEventSubscriber) Stop(ctx context.Context) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	if !s.running.Load() {
		return nil
	}

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "timed out waiting for SQS subscriber to stop")
	}

	s.cancel = nil
	s.running.Store(false)

	return nil
}

func (s *SQSEventSubscriber) spawn(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

func (s *SQSEventSubscriber) startWorker(ctx context.Context, inbound <-chan *sqsMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case message := <-inbound:
			s.handle(ctx, message)
		}
	}
}

func (s *SQSEventSubscriber) startReader(ctx context.Context) {
	for ctx.Err() == nil {
		if err := s.read(ctx); err != nil && ctx.Err() == nil {
			s.log.WithError(err).Error("failed to read from SQS")
			sleep(ctx, s.options.sleepTimeAfterError)
		}
	}
}

func (s *SQSEventSubscriber) startCleaner(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case message := <-s.outboundMessages:
			if err := s.clean(ctx, message); err != nil && ctx.Err() == nil {
				s.log.WithError(err).WithField(SQSMessageIDKey, aws.ToString(message.Message.MessageId)).
					Warn("failed to settle SQS message")
			}
		}
	}
}

func (s *SQSEventSubscriber) read(ctx context.Context) error {
	output, err := s.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(s.queueURL),
		MaxNumberOfMessages: s.options.maxNumberOfMessages,
		WaitTimeSeconds:     s.options.waitTimeSeconds,
		VisibilityTimeout:   s.options.visibilityTimeout,
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
			types.MessageSystemAttributeNameApproximateFirstReceiveTimestamp,
			types.MessageSystemAttributeNameMessageGroupId,
		},
		MessageAttributeNames: []string{"All"},
	})
	if err != nil {
		return errors.Wrap(err, "failed to receive message from SQS")
	}

	if len(output.Messages) == 0 {
		sleep(ctx, s.options.sleepTimeAfterEmptyReceive)
		return nil
	}

	for _, message := range output.Messages {
		event, err := decodeEvent([]byte(aws.ToString(message.Body)))
		if err != nil {
			// Left on the queue; the redrive policy moves it to the DLQ
			s.log.WithError(err).WithField(SQSMessageIDKey, aws.ToString(message.MessageId)).
				Warn("skipping malformed SQS message")
			continue
		}

		event.Metadata.Set(SQSMessageIDKey, aws.ToString(message.MessageId))
		if message.ReceiptHandle != nil {
			event.Metadata.Set(SQSReceiptHandleKey, *message.ReceiptHandle)
		}
		if count, ok := message.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
			event.Metadata.Set(ReceiveCountKey, count)
		}

		for k, v := range message.MessageAttributes {
			if v.StringValue != nil && !event.Metadata.Has(k) {
				event.Metadata.Set(k, *v.StringValue)
			}
		}

		select {
		case s.partitionFor(event) <- &sqsMessage{Message: message, Event: event}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

func (s *SQSEventSubscriber) partitionFor(event *events.Event) chan *sqsMessage {
	return s.partitions[partitionIndex(event.PartitionKey(), len(s.partitions))]
}

func (s *SQSEventSubscriber) handle(ctx context.Context, message *sqsMessage) {
	switch {
	case s.options.topicPattern != "" && !message.Event.Topic.Matches(s.options.topicPattern):
		message.Err = nil
	case s.handler == nil:
		message.Err = errors.New("no handler configured")
	default:
		message.Err = s.handler.Handle(ctx, message.Event)
	}

	select {
	case s.outboundMessages <- message:
	case <-ctx.Done():
	}
}

func (s *SQSEventSubscriber) clean(ctx context.Context, message *sqsMessage) error {
	if message.Err != nil {
		s.log.WithError(message.Err).
			WithField(SQSMessageIDKey, aws.ToString(message.Message.MessageId)).
			WithField("topic", message.Event.Topic.String()).
			Warn("handler failed, message will be redelivered")

		if s.options.extendVisibilityTimeoutOnError {
			receiveCount, err := strconv.Atoi(message.Message.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)])
			if err != nil {
				receiveCount = 1
			}

			visibilityTimeout := s.options.visibilityTimeout
			visibilityTimeout += (int32(receiveCount) / s.options.receiveCountRange) * s.options.visibilityTimeoutOffset

			if visibilityTimeout > s.options.maxVisibilityTimeout {
				visibilityTimeout = s.options.maxVisibilityTimeout
			}

			_, err = s.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
				QueueUrl:          &s.queueURL,
				ReceiptHandle:     message.Message.ReceiptHandle,
				VisibilityTimeout: visibilityTimeout,
			})
			if err != nil {
				return errors.Wrap(err, "failed to extend visibility timeout")
			}
		}
		return nil
	}

	if s.options.ack {
		_, err := s.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      &s.queueURL,
			ReceiptHandle: message.Message.ReceiptHandle,
		})
		if err != nil {
			return errors.Wrap(err, "failed to delete message from SQS")
		}
	}

	return nil
}

// partitionIndex maps a partition key onto one of n workers
func partitionIndex(key string, n int) int {
	if n <= 1 {
		return 0
	}
	return int(xxhash.Sum64String(key) % uint64(n))
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
