package saga

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/logger"
	"github.com/draftea/saga-orchestrator/shared/telemetry"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

// StepAction executes a command and returns the step result. Returning an
// error reports a business failure unless it is wrapped with Transient.
type StepAction func(ctx context.Context, cmd events.CommandMessage) (interface{}, error)

// CompensationAction undoes a completed step
type CompensationAction func(ctx context.Context, msg events.CompensationMessage) error

// Step is one participant's side of the step contract
type Step struct {
	Command      string
	Event        string
	Action       StepAction
	Compensation string
	Compensate   CompensationAction
}

type transientError struct {
	err error
}

func (e transientError) Error() string { return e.err.Error() }
func (e transientError) Unwrap() error { return e.err }

// Transient marks an action error as an infrastructure problem: no failure
// event is emitted and the command is left for redelivery.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return transientError{err: err}
}

// IsTransient reports whether err was marked with Transient
func IsTransient(err error) bool {
	var t transientError
	return errors.As(err, &t)
}

// StepExecutor runs registered steps for a participant service. Each command
// is executed at most once per idempotency key and answered with exactly one
// terminal event; compensations are deduplicated per saga and action.
type StepExecutor struct {
	name          string
	publisher     events.Publisher
	store         IdempotencyStore
	log           *logger.Logger
	steps         map[string]Step
	compensations map[string]Step
}

func NewStepExecutor(name string, publisher events.Publisher, store IdempotencyStore, log *logger.Logger) *StepExecutor {
	if log == nil {
		log = logger.Nop()
	}
	return &StepExecutor{
		name:          name,
		publisher:     publisher,
		store:         store,
		log:           log.WithField("participant", name),
		steps:         make(map[string]Step),
		compensations: make(map[string]Step),
	}
}

// Register adds a step; its command and compensation channels are handled by this executor
func (e *StepExecutor) Register(step Step) *StepExecutor {
	e.steps[step.Command] = step
	if step.Compensation != "" && step.Compensate != nil {
		e.compensations[step.Compensation] = step
	}
	return e
}

// Channels lists every channel this executor consumes
func (e *StepExecutor) Channels() []string {
	channels := make([]string, 0, len(e.steps)+len(e.compensations))
	for command := range e.steps {
		channels = append(channels, command)
	}
	for compensation := range e.compensations {
		channels = append(channels, compensation)
	}
	sort.Strings(channels)
	return channels
}

// Subscribe attaches the executor to each of its channels
func (e *StepExecutor) Subscribe(ctx context.Context, subscriber events.Subscriber) error {
	for _, channel := range e.Channels() {
		if err := subscriber.Subscribe(ctx, channel, e); err != nil {
			return errors.Wrapf(err, "failed to subscribe to %s", channel)
		}
	}
	return nil
}

func (e *StepExecutor) HandlerID() string {
	return "step-executor-" + e.name
}

func (e *StepExecutor) Handle(ctx context.Context, event *events.Event) error {
	kind, _ := event.Metadata.Get(events.MetadataMessageKind)
	switch kind {
	case events.KindCommand:
		return e.handleCommand(ctx, event)
	case events.KindCompensation:
		return e.handleCompensation(ctx, event)
	default:
		e.log.WithField("topic", event.Topic.String()).Debug("ignoring message that is not a command")
		return nil
	}
}

func (e *StepExecutor) handleCommand(ctx context.Context, event *events.Event) error {
	var cmd events.CommandMessage
	if err := event.UnmarshalPayload(&cmd); err != nil {
		e.log.WithError(err).WithField("event_id", event.ID.String()).Error("dropping malformed command")
		return nil
	}

	step, ok := e.steps[cmd.Command]
	if !ok {
		return nil
	}

	ctx, span := telemetry.StartSpan(ctx, "participant.execute_step")
	defer span.End()

	key := cmd.IdempotencyKey
	if key == "" {
		key = cmd.SagaID.String() + "/" + strconv.Itoa(cmd.StepSequence)
	}
	log := e.log.WithContext(ctx).WithFields(map[string]interface{}{
		"saga_id":  cmd.SagaID.String(),
		"sequence": cmd.StepSequence,
		"step":     cmd.Command,
	})

	outcome, found, err := e.store.Get(ctx, key)
	if err != nil {
		return errors.Wrap(err, "failed to check idempotency key")
	}

	if found && outcome.Published {
		log.Info("duplicate command ignored")
		e.recordCommand(ctx, cmd.Command, "duplicate")
		return nil
	}

	if !found {
		result, actionErr := step.Action(ctx, cmd)
		if actionErr != nil && IsTransient(actionErr) {
			log.WithError(actionErr).Warn("step action hit a transient error, leaving command for redelivery")
			return actionErr
		}

		outcome = Outcome{Recorded: time.Now().UTC()}
		if actionErr != nil {
			outcome.Error = actionErr.Error()
		} else if outcome.Result, err = marshalResult(result); err != nil {
			outcome.Error = err.Error()
		}

		if outcome, err = e.store.Record(ctx, key, outcome); err != nil {
			return errors.Wrap(err, "failed to record step outcome")
		}
	}

	var terminal *events.Event
	if outcome.Failed() {
		terminal = events.NewStepFailedEvent(events.StepFailed{
			SagaID:       cmd.SagaID,
			StepSequence: cmd.StepSequence,
			Error:        outcome.Error,
		})
	} else {
		terminal = events.NewStepSucceededEvent(events.StepSucceeded{
			SagaID:       cmd.SagaID,
			StepSequence: cmd.StepSequence,
			Event:        step.Event,
			Result:       outcome.Result,
		})
	}

	if err := e.publisher.Publish(ctx, terminal.WithCorrelationID(event.ID)); err != nil {
		return errors.Wrap(err, "failed to publish step outcome")
	}
	if err := e.store.MarkPublished(ctx, key); err != nil {
		return errors.Wrap(err, "failed to mark step outcome as published")
	}

	if outcome.Failed() {
		log.WithField("error", outcome.Error).Warn("step failed")
		e.recordCommand(ctx, cmd.Command, "failed")
	} else {
		log.Info("step succeeded")
		e.recordCommand(ctx, cmd.Command, "succeeded")
	}
	return nil
}

func (e *StepExecutor) handleCompensation(ctx context.Context, event *events.Event) error {
	var msg events.CompensationMessage
	if err := event.UnmarshalPayload(&msg); err != nil {
		e.log.WithError(err).WithField("event_id", event.ID.String()).Error("dropping malformed compensation")
		return nil
	}

	step, ok := e.compensations[msg.Compensation]
	if !ok {
		return nil
	}

	ctx, span := telemetry.StartSpan(ctx, "participant.compensate_step")
	defer span.End()

	key, _ := event.Metadata.Get(events.MetadataIdempotencyKey)
	if key == "" {
		key = msg.SagaID.String() + "/" + msg.Compensation
	}
	log := e.log.WithContext(ctx).WithFields(map[string]interface{}{
		"saga_id":      msg.SagaID.String(),
		"step":         msg.StepName,
		"compensation": msg.Compensation,
	})

	if _, found, err := e.store.Get(ctx, key); err != nil {
		return errors.Wrap(err, "failed to check idempotency key")
	} else if found {
		log.Info("duplicate compensation ignored")
		e.recordCompensation(ctx, msg.Compensation, "duplicate")
		return nil
	}

	if err := step.Compensate(ctx, msg); err != nil {
		log.WithError(err).Error("compensation failed")
		e.recordCompensation(ctx, msg.Compensation, "failed")
		return errors.Wrapf(err, "compensation %s failed", msg.Compensation)
	}

	if _, err := e.store.Record(ctx, key, Outcome{Published: true, Recorded: time.Now().UTC()}); err != nil {
		return errors.Wrap(err, "failed to record compensation")
	}

	log.Info("step compensated")
	e.recordCompensation(ctx, msg.Compensation, "compensated")
	return nil
}

func (e *StepExecutor) recordCommand(ctx context.Context, command, outcome string) {
	telemetry.RecordCounter(ctx, "participant_commands_total", "Commands handled by participant",
		1, attribute.String("command", command), attribute.String("outcome", outcome))
}

func (e *StepExecutor) recordCompensation(ctx context.Context, compensation, outcome string) {
	telemetry.RecordCounter(ctx, "participant_compensations_total", "Compensations handled by participant",
		1, attribute.String("compensation", compensation), attribute.String("outcome", outcome))
}

func marshalResult(result interface{}) (json.RawMessage, error) {
	switch r := result.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return r, nil
	case []byte:
		return json.RawMessage(r), nil
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode step result")
	}
	return raw, nil
}
