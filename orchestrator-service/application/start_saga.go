package application

import (
	"context"
	"encoding/json"

	"github.com/draftea/saga-orchestrator/orchestrator-service/domain"
	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/infrastructure"
	"github.com/draftea/saga-orchestrator/shared/logger"
	"github.com/draftea/saga-orchestrator/shared/telemetry"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

// ErrInvalidCommand marks requests rejected before anything was stored
var ErrInvalidCommand = errors.New("invalid command")

var validate = validator.New()

// StartSagaCommand represents the command to start a saga
type StartSagaCommand struct {
	SagaType string          `json:"saga_type" validate:"required"`
	Payload  json.RawMessage `json:"payload" validate:"required"`
}

// StartSagaResponse represents the response after starting a saga
type StartSagaResponse struct {
	SagaID string `json:"saga_id"`
	State  string `json:"state"`
}

// StartSaga creates a saga instance and dispatches its first step
type StartSaga struct {
	store       *sagaStore
	definitions domain.DefinitionTable
	advancer    *AdvanceSaga
	log         *logger.Logger
}

// NewStartSaga creates a new StartSaga use case
func NewStartSaga(
	repository domain.SagaRepository,
	publisher events.Publisher,
	definitions domain.DefinitionTable,
	advancer *AdvanceSaga,
	retry infrastructure.RetryPolicy,
	log *logger.Logger,
) *StartSaga {
	store := newSagaStore(repository, publisher, retry, log)
	return &StartSaga{store: store, definitions: definitions, advancer: advancer, log: store.log}
}

// Execute returns once the saga is durable. A first command the transport did
// not accept is left to the reconciler, so the saga id is returned either way.
func (uc *StartSaga) Execute(ctx context.Context, cmd *StartSagaCommand) (*StartSagaResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "saga.start")
	defer span.End()

	if err := uc.validateCommand(cmd); err != nil {
		return nil, err
	}

	saga := domain.NewSaga(cmd.SagaType, cmd.Payload)
	if err := uc.store.create(ctx, saga); err != nil {
		return nil, errors.Wrap(err, "failed to create saga")
	}

	telemetry.RecordCounter(ctx, metricSagaStarted, "Sagas created", 1, attribute.String("saga_type", saga.Type))
	uc.log.WithContext(ctx).Infof("saga created", sagaFields(saga))

	if err := uc.advancer.Execute(ctx, saga); err != nil {
		uc.log.WithContext(ctx).WithError(err).Warnf("first step not dispatched, left to reconciler", sagaFields(saga))
	}

	return &StartSagaResponse{
		SagaID: saga.ID.String(),
		State:  string(saga.State),
	}, nil
}

func (uc *StartSaga) validateCommand(cmd *StartSagaCommand) error {
	if cmd == nil {
		return errors.Wrap(ErrInvalidCommand, "command is required")
	}
	if err := validate.Struct(cmd); err != nil {
		return errors.Wrap(ErrInvalidCommand, err.Error())
	}
	if !json.Valid(cmd.Payload) {
		return errors.Wrap(ErrInvalidCommand, "payload must be valid JSON")
	}
	if _, err := uc.definitions.Lookup(cmd.SagaType); err != nil {
		return err
	}
	return nil
}
