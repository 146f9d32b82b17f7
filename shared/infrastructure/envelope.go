package infrastructure

import (
	"encoding/json"
	"time"

	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/pkg/errors"
)

// Transport-internal metadata that must not travel with a re-published event
var transportMetadataKeys = map[string]struct{}{
	SQSMessageIDKey:     {},
	SQSReceiptHandleKey: {},
	StreamMessageIDKey:  {},
	StreamNameKey:       {},
	ReceiveCountKey:     {},
}

// wireMessage is the JSON body every transport carries
type wireMessage struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	Topic         string          `json:"topic"`
	Version       string          `json:"version"`
	Metadata      events.Metadata `json:"metadata"`
	Payload       json.RawMessage `json:"payload"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

func encodeEvent(event *events.Event) ([]byte, error) {
	payload, err := event.MarshalPayload()
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal payload")
	}

	message := &wireMessage{
		ID:            event.ID.String(),
		AggregateID:   event.AggregateID.String(),
		Topic:         event.Topic.String(),
		Version:       event.Version,
		Metadata:      publishableMetadata(event.Metadata),
		Payload:       payload,
		Timestamp:     event.Timestamp,
		CorrelationID: event.CorrelationID.String(),
	}

	body, err := json.Marshal(message)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal message")
	}

	return body, nil
}

func decodeEvent(body []byte) (*events.Event, error) {
	var message wireMessage
	if err := json.Unmarshal(body, &message); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal message")
	}

	if message.Topic == "" {
		return nil, events.ErrInvalidTopic
	}

	metadata := message.Metadata
	if metadata == nil {
		metadata = make(events.Metadata)
	}

	return &events.Event{
		ID:            models.ID(message.ID),
		AggregateID:   models.ID(message.AggregateID),
		Topic:         events.Topic(message.Topic),
		EventType:     message.Topic,
		Version:       message.Version,
		Data:          message.Payload,
		Metadata:      metadata,
		Timestamp:     message.Timestamp,
		CorrelationID: models.ID(message.CorrelationID),
	}, nil
}

func publishableMetadata(metadata events.Metadata) events.Metadata {
	out := make(events.Metadata, len(metadata))
	for k, v := range metadata {
		if _, internal := transportMetadataKeys[k]; internal {
			continue
		}
		out[k] = v
	}
	return out
}
