package events

import (
	"encoding/json"
	"strconv"

	"github.com/draftea/saga-orchestrator/shared/models"
)

// Shared channels participants report step outcomes on.
const (
	StepSucceededTopic = "saga.step.succeeded"
	StepFailedTopic    = "saga.step.failed"
)

// Metadata keys set on saga messages so transports can route and deduplicate
// without decoding the payload.
const (
	MetadataSagaID         = "saga_id"
	MetadataStepSequence   = "step_sequence"
	MetadataIdempotencyKey = "idempotency_key"
	MetadataMessageKind    = "message_kind"
)

// Message kinds
const (
	KindCommand      = "command"
	KindCompensation = "compensation"
	KindSucceeded    = "succeeded"
	KindFailed       = "failed"
)

// CommandPayload is the input a step receives: the saga payload plus the
// results of the steps that completed before it, keyed by step name.
type CommandPayload struct {
	Input   json.RawMessage            `json:"input"`
	Results map[string]json.RawMessage `json:"results,omitempty"`
}

// CommandMessage asks a participant to execute one step of a saga
type CommandMessage struct {
	SagaID         models.ID      `json:"saga_id"`
	StepSequence   int            `json:"step_sequence"`
	Command        string         `json:"command"`
	IdempotencyKey string         `json:"idempotency_key"`
	Payload        CommandPayload `json:"payload"`
}

// CompensationMessage asks a participant to undo a completed step
type CompensationMessage struct {
	SagaID       models.ID       `json:"saga_id"`
	StepSequence int             `json:"step_sequence"`
	StepName     string          `json:"step_name"`
	Compensation string          `json:"compensation"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// StepSucceeded is emitted by a participant after executing a command
type StepSucceeded struct {
	SagaID       models.ID       `json:"saga_id"`
	StepSequence int             `json:"step_sequence"`
	Event        string          `json:"event"`
	Result       json.RawMessage `json:"result,omitempty"`
}

// StepFailed is emitted by a participant when a command cannot be executed
type StepFailed struct {
	SagaID       models.ID `json:"saga_id"`
	StepSequence int       `json:"step_sequence"`
	Error        string    `json:"error"`
}

// NewCommandEvent wraps a command in an event on the channel named after the command
func NewCommandEvent(msg CommandMessage) *Event {
	return NewEventWithTopic(msg.SagaID, Topic(msg.Command), msg).
		WithMetadata(MetadataSagaID, msg.SagaID.String()).
		WithMetadata(MetadataStepSequence, strconv.Itoa(msg.StepSequence)).
		WithMetadata(MetadataIdempotencyKey, msg.IdempotencyKey).
		WithMetadata(MetadataMessageKind, KindCommand)
}

// NewCompensationEvent wraps a compensation in an event on the channel named after the compensating action
func NewCompensationEvent(msg CompensationMessage) *Event {
	return NewEventWithTopic(msg.SagaID, Topic(msg.Compensation), msg).
		WithMetadata(MetadataSagaID, msg.SagaID.String()).
		WithMetadata(MetadataStepSequence, strconv.Itoa(msg.StepSequence)).
		WithMetadata(MetadataIdempotencyKey, msg.SagaID.String()+"/"+msg.Compensation).
		WithMetadata(MetadataMessageKind, KindCompensation)
}

// NewStepSucceededEvent wraps a success outcome for the shared events channel
func NewStepSucceededEvent(msg StepSucceeded) *Event {
	return NewEventWithTopic(msg.SagaID, StepSucceededTopic, msg).
		WithMetadata(MetadataSagaID, msg.SagaID.String()).
		WithMetadata(MetadataStepSequence, strconv.Itoa(msg.StepSequence)).
		WithMetadata(MetadataMessageKind, KindSucceeded)
}

// NewStepFailedEvent wraps a failure outcome for the shared failures channel
func NewStepFailedEvent(msg StepFailed) *Event {
	return NewEventWithTopic(msg.SagaID, StepFailedTopic, msg).
		WithMetadata(MetadataSagaID, msg.SagaID.String()).
		WithMetadata(MetadataStepSequence, strconv.Itoa(msg.StepSequence)).
		WithMetadata(MetadataMessageKind, KindFailed)
}
