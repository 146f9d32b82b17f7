package application

import (
	"context"
	"time"

	"github.com/draftea/saga-orchestrator/orchestrator-service/domain"
	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/infrastructure"
	"github.com/draftea/saga-orchestrator/shared/logger"
	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/pkg/errors"
)

// GetSagaStatusQuery represents the query to get a saga
type GetSagaStatusQuery struct {
	SagaID string `json:"saga_id"`
}

// SagaStatusResponse is the read-only projection of a saga and its steps
type SagaStatusResponse struct {
	SagaID        string               `json:"saga_id"`
	SagaType      string               `json:"saga_type"`
	State         string               `json:"state"`
	StartedAt     time.Time            `json:"started_at"`
	CompletedAt   *time.Time           `json:"completed_at,omitempty"`
	CompensatedAt *time.Time           `json:"compensated_at,omitempty"`
	Steps         []StepStatusResponse `json:"steps"`
}

// StepStatusResponse is one step of SagaStatusResponse
type StepStatusResponse struct {
	Name     string `json:"name"`
	Sequence int    `json:"sequence"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

// GetSagaStatus use case
type GetSagaStatus struct {
	store *sagaStore
}

// NewGetSagaStatus creates a new GetSagaStatus use case
func NewGetSagaStatus(repository domain.SagaRepository, retry infrastructure.RetryPolicy, log *logger.Logger) *GetSagaStatus {
	// read-only, nothing is ever published
	var publisher events.Publisher
	return &GetSagaStatus{store: newSagaStore(repository, publisher, retry, log)}
}

// Execute executes the get saga status use case
func (uc *GetSagaStatus) Execute(ctx context.Context, query *GetSagaStatusQuery) (*SagaStatusResponse, error) {
	sagaID, err := models.NewID(query.SagaID)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidCommand, "invalid saga ID")
	}

	saga, err := uc.store.find(ctx, sagaID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get saga")
	}

	steps, err := uc.store.steps(ctx, sagaID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get steps")
	}

	response := &SagaStatusResponse{
		SagaID:        saga.ID.String(),
		SagaType:      saga.Type,
		State:         string(saga.State),
		StartedAt:     saga.StartedAt,
		CompletedAt:   saga.CompletedAt,
		CompensatedAt: saga.CompensatedAt,
		Steps:         make([]StepStatusResponse, 0, len(steps)),
	}
	for _, step := range steps {
		response.Steps = append(response.Steps, StepStatusResponse{
			Name:     step.Name,
			Sequence: step.Sequence,
			Status:   string(step.Status),
			Error:    step.Error,
		})
	}

	return response, nil
}
