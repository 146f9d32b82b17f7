package infrastructure

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/pkg/errors"
)

// SQSSubscriberAdapter adapts SQSEventSubscriber to work with events.Subscriber interface
type SQSSubscriberAdapter struct {
	sqsSubscriber *SQSEventSubscriber
	isRunning     bool
	queueURL      string
	awsOptions    AWSOptions
	options       []SQSSubscriberOption
}

// NewSQSSubscriberAdapter creates a new SQS subscriber adapter
func NewSQSSubscriberAdapter(queueURL string, awsOptions AWSOptions, opts ...SQSSubscriberOption) (*SQSSubscriberAdapter, error) {
	if queueURL == "" {
		return nil, errors.New("SQS queue URL is required")
	}

	return &SQSSubscriberAdapter{
		sqsSubscriber: nil, // Will be created when Subscribe is called
		queueURL:      queueURL,
		awsOptions:    awsOptions,
		options:       opts,
	}, nil
}

// eventHandlerAdapter adapts events.EventHandler to work with SQS EventHandler
type eventHandlerAdapter struct {
	handler events.EventHandler
}

func (a *eventHandlerAdapter) HandlerID() string {
	if identified, ok := a.handler.(interface{ HandlerID() string }); ok {
		return identified.HandlerID()
	}
	return "event-handler-adapter"
}

func (a *eventHandlerAdapter) Handle(ctx context.Context, event *events.Event) error {
	return a.handler.Handle(ctx, event)
}

// Subscribe implements events.Subscriber interface
func (s *SQSSubscriberAdapter) Subscribe(ctx context.Context, topicPattern string, handler events.EventHandler) error {
	if s.isRunning {
		return errors.New("subscriber is already running")
	}

	cfg, err := loadAWSConfig(ctx, s.awsOptions)
	if err != nil {
		return err
	}

	sqsClient := sqs.NewFromConfig(cfg, func(o *sqs.Options) {
		if s.awsOptions.Endpoint != "" {
			o.BaseEndpoint = aws.String(s.awsOptions.Endpoint)
		}
	})

	opts := s.options
	if topicPattern != "" {
		opts = append(opts, WithTopicPattern(topicPattern))
	}

	s.sqsSubscriber = NewSQSEventSubscriber(sqsClient, s.queueURL, &eventHandlerAdapter{handler: handler}, opts...)

	if err := s.sqsSubscriber.Start(ctx); err != nil {
		return errors.Wrap(err, "failed to start SQS subscriber")
	}

	s.isRunning = true
	return nil
}

// Close stops the subscriber
func (s *SQSSubscriberAdapter) Close() error {
	if !s.isRunning || s.sqsSubscriber == nil {
		return nil
	}

	ctx := context.Background()
	if err := s.sqsSubscriber.Stop(ctx); err != nil {
		return errors.Wrap(err, "failed to stop SQS subscriber")
	}

	s.isRunning = false
	return nil
}
