package infrastructure

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/pkg/errors"
)

// AWSOptions selects the region and optional endpoint (LocalStack) for AWS clients
type AWSOptions struct {
	Region   string
	Endpoint string
}

func loadAWSConfig(ctx context.Context, opts AWSOptions) (aws.Config, error) {
	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, errors.Wrap(err, "failed to load AWS config")
	}

	return cfg, nil
}

// SNSPublisherAdapter builds an SNSEventPublisher from AWS configuration
type SNSPublisherAdapter struct {
	snsPublisher *SNSEventPublisher
}

// NewSNSPublisherAdapter creates a new SNS publisher adapter
func NewSNSPublisherAdapter(ctx context.Context, topicArn string, opts AWSOptions) (*SNSPublisherAdapter, error) {
	cfg, err := loadAWSConfig(ctx, opts)
	if err != nil {
		return nil, err
	}

	snsClient := sns.NewFromConfig(cfg, func(o *sns.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})

	return &SNSPublisherAdapter{
		snsPublisher: NewSNSEventPublisher(snsClient, topicArn),
	}, nil
}

// Publish implements events.Publisher interface
func (p *SNSPublisherAdapter) Publish(ctx context.Context, events ...*events.Event) error {
	return p.snsPublisher.Publish(ctx, events...)
}

// Close closes the publisher
func (p *SNSPublisherAdapter) Close() error {
	// SNS client doesn't need explicit closing
	return nil
}
