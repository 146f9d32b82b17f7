package infrastructure

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/telemetry"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

var _ events.Publisher = (*SNSEventPublisher)(nil)

const (
	maxBatchSize = 10

	// ChannelAttribute carries the event topic so subscriptions can filter by channel
	ChannelAttribute = "channel"
)

// SNSAPI is the subset of the SNS client the publisher needs
type SNSAPI interface {
	PublishBatch(ctx context.Context, params *sns.PublishBatchInput, optFns ...func(*sns.Options)) (*sns.PublishBatchOutput, error)
}

// SNSEventPublisher implements events.Publisher using AWS SNS.
// On FIFO topics the partition key becomes the message group, so SQS FIFO
// subscriptions deliver one saga's messages in order.
type SNSEventPublisher struct {
	client   SNSAPI
	topicArn string
	fifo     bool
}

// NewSNSEventPublisher creates a new SNSEventPublisher
func NewSNSEventPublisher(client SNSAPI, topicArn string) *SNSEventPublisher {
	return &SNSEventPublisher{
		client:   client,
		topicArn: topicArn,
		fifo:     strings.HasSuffix(topicArn, ".fifo"),
	}
}

// Publish publishes events to SNS. It fails if any entry was rejected.
func (p *SNSEventPublisher) Publish(ctx context.Context, evts ...*events.Event) error {
	if len(evts) == 0 {
		return nil
	}

	batchEvents := splitToChunks(evts, maxBatchSize)

	gr, ctx := errgroup.WithContext(ctx)

	for _, eventBatch := range batchEvents {
		gr.Go(func() error {
			return p.batchPublish(ctx, eventBatch)
		})
	}

	return gr.Wait()
}

func (p *SNSEventPublisher) batchPublish(ctx context.Context, batch []*events.Event) error {
	requests := make([]types.PublishBatchRequestEntry, len(batch))

	for i, event := range batch {
		body, err := encodeEvent(event)
		if err != nil {
			return err
		}

		attrs := map[string]types.MessageAttributeValue{
			ChannelAttribute: {
				DataType:    aws.String("String"),
				StringValue: aws.String(event.Topic.String()),
			},
		}

		for k, v := range publishableMetadata(event.Metadata) {
			// SNS rejects empty attribute values
			if v == "" {
				continue
			}
			attrs[k] = types.MessageAttributeValue{
				DataType:    aws.String("String"),
				StringValue: aws.String(v),
			}
		}

		entry := types.PublishBatchRequestEntry{
			Id:                aws.String(event.ID.String()),
			Message:           aws.String(string(body)),
			MessageAttributes: attrs,
		}

		if p.fifo {
			entry.MessageGroupId = aws.String(event.PartitionKey())
			entry.MessageDeduplicationId = aws.String(deduplicationID(event))
		}

		requests[i] = entry
	}

	res, err := p.client.PublishBatch(
		ctx,
		&sns.PublishBatchInput{
			TopicArn:                   &p.topicArn,
			PublishBatchRequestEntries: requests,
		},
	)
	if err != nil {
		return errors.Wrap(err, "failed to publish batch to SNS")
	}

	for _, event := range batch {
		status := "success"
		for _, entry := range res.Failed {
			if entry.Id != nil && event.ID.String() == *entry.Id {
				status = "error"
				break
			}
		}

		telemetry.RecordCounter(ctx, "transport_messages_published_total", "Messages published to the transport", 1,
			attribute.String("transport", "sns"),
			attribute.String("channel", event.Topic.String()),
			attribute.String("status", status),
		)
	}

	if len(res.Failed) > 0 {
		first := res.Failed[0]
		return errors.Errorf("SNS rejected %d of %d messages: %s", len(res.Failed), len(batch), aws.ToString(first.Message))
	}

	return nil
}

// deduplicationID prefers the idempotency key so a re-sent command collapses
// into the original within the SNS deduplication window.
func deduplicationID(event *events.Event) string {
	if key, ok := event.Metadata.Get(events.MetadataIdempotencyKey); ok && key != "" {
		return key
	}
	return event.ID.String()
}

// splitToChunks splits slice into chunks of specified size
func splitToChunks[T any](slice []T, chunkSize int) [][]T {
	var chunks [][]T
	for i := 0; i < len(slice); i += chunkSize {
		end := i + chunkSize
		if end > len(slice) {
			end = len(slice)
		}
		chunks = append(chunks, slice[i:end])
	}
	return chunks
}
