package application

import (
	"context"

	"github.com/draftea/saga-orchestrator/orchestrator-service/domain"
	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/infrastructure"
	"github.com/draftea/saga-orchestrator/shared/logger"
	"github.com/draftea/saga-orchestrator/shared/models"
)

// sagaStore wraps the repository with local backoff for infrastructure errors.
// Domain errors are returned at once since retrying cannot change them.
type sagaStore struct {
	repository domain.SagaRepository
	publisher  events.Publisher
	retry      infrastructure.RetryPolicy
	log        *logger.Logger
}

func newSagaStore(repository domain.SagaRepository, publisher events.Publisher, retry infrastructure.RetryPolicy, log *logger.Logger) *sagaStore {
	if log == nil {
		log = logger.Nop()
	}
	return &sagaStore{repository: repository, publisher: publisher, retry: retry, log: log}
}

func (s *sagaStore) do(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.retry.DoUnless(ctx, domain.IsDomainError, fn)
}

func (s *sagaStore) find(ctx context.Context, id models.ID) (*domain.Saga, error) {
	var saga *domain.Saga
	err := s.do(ctx, func(ctx context.Context) (err error) {
		saga, err = s.repository.FindByID(ctx, id)
		return err
	})
	return saga, err
}

func (s *sagaStore) create(ctx context.Context, saga *domain.Saga) error {
	if err := s.do(ctx, func(ctx context.Context) error { return s.repository.CreateSaga(ctx, saga) }); err != nil {
		return err
	}
	s.publishLifecycle(ctx, saga)
	return nil
}

func (s *sagaStore) save(ctx context.Context, saga *domain.Saga) error {
	if err := s.do(ctx, func(ctx context.Context) error { return s.repository.UpdateSaga(ctx, saga) }); err != nil {
		return err
	}
	s.publishLifecycle(ctx, saga)
	return nil
}

func (s *sagaStore) steps(ctx context.Context, sagaID models.ID) ([]*domain.StepInstance, error) {
	var steps []*domain.StepInstance
	err := s.do(ctx, func(ctx context.Context) (err error) {
		steps, err = s.repository.GetSteps(ctx, sagaID)
		return err
	})
	return steps, err
}

func (s *sagaStore) completedSteps(ctx context.Context, sagaID models.ID) ([]*domain.StepInstance, error) {
	var steps []*domain.StepInstance
	err := s.do(ctx, func(ctx context.Context) (err error) {
		steps, err = s.repository.GetCompletedSteps(ctx, sagaID)
		return err
	})
	return steps, err
}

// publishLifecycle announces saga.* events. Losing one does not affect the
// saga itself, so failures are only logged.
func (s *sagaStore) publishLifecycle(ctx context.Context, saga *domain.Saga) {
	if len(saga.Events()) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, saga.Events()...); err != nil {
		s.log.WithContext(ctx).WithError(err).WithField("saga_id", saga.ID.String()).Warn("failed to publish saga lifecycle events")
	}
	saga.ClearEvents()
}

func sagaFields(saga *domain.Saga) map[string]interface{} {
	return map[string]interface{}{
		"saga_id":   saga.ID.String(),
		"saga_type": saga.Type,
		"state":     string(saga.State),
	}
}
