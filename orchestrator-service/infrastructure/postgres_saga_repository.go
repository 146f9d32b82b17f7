package infrastructure

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/draftea/saga-orchestrator/orchestrator-service/domain"
	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

const uniqueViolation = "23505"

// PostgresSagaRepository implements SagaRepository using PostgreSQL
type PostgresSagaRepository struct {
	db *sqlx.DB
}

var _ domain.SagaRepository = (*PostgresSagaRepository)(nil)

// NewPostgresSagaRepository creates a new PostgresSagaRepository
func NewPostgresSagaRepository(db *sqlx.DB) *PostgresSagaRepository {
	return &PostgresSagaRepository{db: db}
}

// Migrate creates the tables if they do not exist
func (r *PostgresSagaRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return errors.Wrap(err, "failed to apply saga schema")
	}
	return nil
}

// postgresSaga represents saga in database
type postgresSaga struct {
	ID            string     `db:"id"`
	SagaType      string     `db:"saga_type"`
	Payload       []byte     `db:"payload"`
	State         string     `db:"state"`
	Version       int        `db:"version"`
	StartedAt     time.Time  `db:"started_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
	CompletedAt   *time.Time `db:"completed_at"`
	CompensatedAt *time.Time `db:"compensated_at"`
}

// postgresStep represents saga step in database
type postgresStep struct {
	SagaID        string     `db:"saga_id"`
	Sequence      int        `db:"sequence"`
	Name          string     `db:"name"`
	Status        string     `db:"status"`
	Result        []byte     `db:"result"`
	Error         *string    `db:"error"`
	CreatedAt     time.Time  `db:"created_at"`
	DispatchedAt  *time.Time `db:"dispatched_at"`
	CompletedAt   *time.Time `db:"completed_at"`
	FailedAt      *time.Time `db:"failed_at"`
	CompensatedAt *time.Time `db:"compensated_at"`
}

const sagaColumns = `id, saga_type, payload, state, version, started_at, updated_at, completed_at, compensated_at`

const stepColumns = `saga_id, sequence, name, status, result, error, created_at,
			   dispatched_at, completed_at, failed_at, compensated_at`

// CreateSaga inserts a new saga
func (r *PostgresSagaRepository) CreateSaga(ctx context.Context, saga *domain.Saga) error {
	query := `
		INSERT INTO sagas (
			id, saga_type, payload, state, version, started_at, updated_at
		) VALUES (
			:id, :saga_type, :payload, :state, :version, :started_at, :updated_at
		)`

	_, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":         saga.ID.String(),
		"saga_type":  saga.Type,
		"payload":    jsonColumn(saga.Payload, "{}"),
		"state":      string(saga.State),
		"version":    saga.Version.Value,
		"started_at": saga.StartedAt,
		"updated_at": saga.Timestamps.UpdatedAt,
	})
	if err != nil {
		return errors.Wrap(err, "failed to insert saga")
	}

	return nil
}

// UpdateSaga persists the saga state with optimistic locking
func (r *PostgresSagaRepository) UpdateSaga(ctx context.Context, saga *domain.Saga) error {
	query := `
		UPDATE sagas
		SET state = :state, updated_at = :updated_at, version = :version,
			completed_at = :completed_at, compensated_at = :compensated_at
		WHERE id = :id AND version = :old_version`

	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":             saga.ID.String(),
		"state":          string(saga.State),
		"updated_at":     saga.Timestamps.UpdatedAt,
		"version":        saga.Version.Value,
		"completed_at":   saga.CompletedAt,
		"compensated_at": saga.CompensatedAt,
		"old_version":    saga.Version.Previous(),
	})
	if err != nil {
		return errors.Wrap(err, "failed to update saga")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to update saga")
	}
	if rows == 0 {
		return errors.Wrapf(domain.ErrVersionConflict, "saga %s at version %d", saga.ID, saga.Version.Previous())
	}

	return nil
}

// FindByID finds a saga by ID
func (r *PostgresSagaRepository) FindByID(ctx context.Context, id models.ID) (*domain.Saga, error) {
	// the id column is a uuid; anything else cannot name a saga
	if _, err := models.NewID(id.String()); err != nil {
		return nil, errors.Wrapf(domain.ErrSagaNotFound, "saga %q", id)
	}

	query := `SELECT ` + sagaColumns + ` FROM sagas WHERE id = $1`

	var pgSaga postgresSaga
	err := r.db.GetContext(ctx, &pgSaga, query, id.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(domain.ErrSagaNotFound, "saga %s", id)
		}
		return nil, errors.Wrap(err, "failed to find saga")
	}

	return r.sagaToDomain(&pgSaga)
}

// FindStalled returns sagas in any of the given states with nothing in flight, least recently updated first.
// A dispatched PENDING step is left to its participant; at most one exists per saga.
func (r *PostgresSagaRepository) FindStalled(ctx context.Context, states []domain.SagaState, quietSince time.Time, limit int) ([]*domain.Saga, error) {
	query := `
		SELECT s.id, s.saga_type, s.payload, s.state, s.version, s.started_at, s.updated_at,
			   s.completed_at, s.compensated_at
		FROM sagas s
		WHERE s.state = ANY($1)
		  AND s.updated_at <= $2
		  AND NOT EXISTS (
			SELECT 1 FROM saga_steps st
			WHERE st.saga_id = s.id
			  AND ((st.status = $3 AND st.dispatched_at IS NOT NULL)
				OR GREATEST(st.created_at, st.dispatched_at, st.completed_at, st.failed_at, st.compensated_at) > $2)
		  )
		ORDER BY s.updated_at ASC
		LIMIT $4`

	names := make([]string, len(states))
	for i, state := range states {
		names[i] = string(state)
	}

	var pgSagas []postgresSaga
	if err := r.db.SelectContext(ctx, &pgSagas, query,
		pq.Array(names), quietSince, string(domain.StepStatusPending), limit); err != nil {
		return nil, errors.Wrap(err, "failed to find stalled sagas")
	}

	sagas := make([]*domain.Saga, len(pgSagas))
	for i := range pgSagas {
		saga, err := r.sagaToDomain(&pgSagas[i])
		if err != nil {
			return nil, err
		}
		sagas[i] = saga
	}

	return sagas, nil
}

// CreateStep inserts a PENDING step once its predecessor has completed
func (r *PostgresSagaRepository) CreateStep(ctx context.Context, step *domain.StepInstance) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if step.Sequence > 1 {
		var previous string
		err := tx.GetContext(ctx, &previous,
			`SELECT status FROM saga_steps WHERE saga_id = $1 AND sequence = $2 FOR UPDATE`,
			step.SagaID.String(), step.Sequence-1)
		if errors.Is(err, sql.ErrNoRows) {
			return errors.Wrapf(domain.ErrInvalidTransition, "step %d of saga %s does not exist", step.Sequence-1, step.SagaID)
		}
		if err != nil {
			return errors.Wrap(err, "failed to read previous step")
		}
		if domain.StepStatus(previous) != domain.StepStatusCompleted {
			return errors.Wrapf(domain.ErrInvalidTransition, "step %d of saga %s is %s", step.Sequence-1, step.SagaID, previous)
		}
	}

	query := `
		INSERT INTO saga_steps (
			saga_id, sequence, name, status, created_at
		) VALUES (
			:saga_id, :sequence, :name, :status, :created_at
		)`

	if _, err := tx.NamedExecContext(ctx, query, r.stepToPostgres(step)); err != nil {
		if isUniqueViolation(err) {
			return errors.Wrapf(domain.ErrStepExists, "step %d of saga %s", step.Sequence, step.SagaID)
		}
		return errors.Wrap(err, "failed to insert step")
	}

	return errors.Wrap(tx.Commit(), "failed to commit step")
}

// MarkStepDispatched records the first time the transport accepted the step's command
func (r *PostgresSagaRepository) MarkStepDispatched(ctx context.Context, sagaID models.ID, sequence int, at time.Time) error {
	query := `
		UPDATE saga_steps
		SET dispatched_at = $3
		WHERE saga_id = $1 AND sequence = $2 AND dispatched_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, sagaID.String(), sequence, at)
	if err != nil {
		return errors.Wrap(err, "failed to mark step dispatched")
	}

	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		// already dispatched, or missing
		_, err := r.stepStatus(ctx, sagaID, sequence)
		return err
	}

	return nil
}

// CompleteStep applies a success outcome to a PENDING step
func (r *PostgresSagaRepository) CompleteStep(ctx context.Context, sagaID models.ID, sequence int, result json.RawMessage) (bool, error) {
	query := `
		UPDATE saga_steps
		SET status = $3, result = $4, completed_at = $5
		WHERE saga_id = $1 AND sequence = $2 AND status = $6`

	return r.transitionStep(ctx, sagaID, sequence, domain.CompletionOutcome, query,
		string(domain.StepStatusCompleted), jsonColumn(result, ""), time.Now().UTC(), string(domain.StepStatusPending))
}

// FailStep applies a failure outcome to a PENDING step
func (r *PostgresSagaRepository) FailStep(ctx context.Context, sagaID models.ID, sequence int, reason string) (bool, error) {
	query := `
		UPDATE saga_steps
		SET status = $3, error = $4, failed_at = $5
		WHERE saga_id = $1 AND sequence = $2 AND status = $6`

	return r.transitionStep(ctx, sagaID, sequence, domain.FailureOutcome, query,
		string(domain.StepStatusFailed), reason, time.Now().UTC(), string(domain.StepStatusPending))
}

// CompensateStep marks a COMPLETED step as compensated
func (r *PostgresSagaRepository) CompensateStep(ctx context.Context, sagaID models.ID, sequence int) (bool, error) {
	query := `
		UPDATE saga_steps
		SET status = $3, compensated_at = $4
		WHERE saga_id = $1 AND sequence = $2 AND status = $5`

	return r.transitionStep(ctx, sagaID, sequence, domain.CompensationOutcome, query,
		string(domain.StepStatusCompensated), time.Now().UTC(), string(domain.StepStatusCompleted))
}

// transitionStep runs a conditional update; when no row matched, the current
// status decides whether the call was a duplicate or a conflict.
func (r *PostgresSagaRepository) transitionStep(
	ctx context.Context,
	sagaID models.ID,
	sequence int,
	outcome func(domain.StepStatus) (bool, error),
	query string,
	args ...interface{},
) (bool, error) {
	result, err := r.db.ExecContext(ctx, query, append([]interface{}{sagaID.String(), sequence}, args...)...)
	if err != nil {
		return false, errors.Wrap(err, "failed to update step")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to update step")
	}
	if rows == 1 {
		return true, nil
	}

	status, err := r.stepStatus(ctx, sagaID, sequence)
	if err != nil {
		return false, err
	}
	return outcome(status)
}

func (r *PostgresSagaRepository) stepStatus(ctx context.Context, sagaID models.ID, sequence int) (domain.StepStatus, error) {
	var status string
	err := r.db.GetContext(ctx, &status,
		`SELECT status FROM saga_steps WHERE saga_id = $1 AND sequence = $2`, sagaID.String(), sequence)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errors.Wrapf(domain.ErrStepNotFound, "step %d of saga %s", sequence, sagaID)
	}
	if err != nil {
		return "", errors.Wrap(err, "failed to read step status")
	}
	return domain.StepStatus(status), nil
}

// GetSteps returns every step of a saga ordered by sequence
func (r *PostgresSagaRepository) GetSteps(ctx context.Context, sagaID models.ID) ([]*domain.StepInstance, error) {
	query := `
		SELECT ` + stepColumns + `
		FROM saga_steps
		WHERE saga_id = $1
		ORDER BY sequence ASC`

	return r.selectSteps(ctx, query, sagaID.String())
}

// GetCompletedSteps returns the COMPLETED steps of a saga ordered by sequence
func (r *PostgresSagaRepository) GetCompletedSteps(ctx context.Context, sagaID models.ID) ([]*domain.StepInstance, error) {
	query := `
		SELECT ` + stepColumns + `
		FROM saga_steps
		WHERE saga_id = $1 AND status = $2
		ORDER BY sequence ASC`

	return r.selectSteps(ctx, query, sagaID.String(), string(domain.StepStatusCompleted))
}

func (r *PostgresSagaRepository) selectSteps(ctx context.Context, query string, args ...interface{}) ([]*domain.StepInstance, error) {
	var pgSteps []postgresStep
	if err := r.db.SelectContext(ctx, &pgSteps, query, args...); err != nil {
		return nil, errors.Wrap(err, "failed to find steps")
	}

	steps := make([]*domain.StepInstance, len(pgSteps))
	for i := range pgSteps {
		step, err := r.stepToDomain(&pgSteps[i])
		if err != nil {
			return nil, err
		}
		steps[i] = step
	}
	return steps, nil
}

// stepToPostgres converts domain step to postgres model
func (r *PostgresSagaRepository) stepToPostgres(step *domain.StepInstance) *postgresStep {
	var stepError *string
	if step.Error != "" {
		stepError = &step.Error
	}

	return &postgresStep{
		SagaID:        step.SagaID.String(),
		Sequence:      step.Sequence,
		Name:          step.Name,
		Status:        string(step.Status),
		Result:        step.Result,
		Error:         stepError,
		CreatedAt:     step.CreatedAt,
		DispatchedAt:  step.DispatchedAt,
		CompletedAt:   step.CompletedAt,
		FailedAt:      step.FailedAt,
		CompensatedAt: step.CompensatedAt,
	}
}

// sagaToDomain converts postgres model to domain saga
func (r *PostgresSagaRepository) sagaToDomain(pgSaga *postgresSaga) (*domain.Saga, error) {
	id, err := models.NewID(pgSaga.ID)
	if err != nil {
		return nil, errors.Wrap(err, "invalid saga ID")
	}

	return &domain.Saga{
		ID:            id,
		Type:          pgSaga.SagaType,
		Payload:       json.RawMessage(pgSaga.Payload),
		State:         domain.SagaState(pgSaga.State),
		StartedAt:     pgSaga.StartedAt,
		CompletedAt:   pgSaga.CompletedAt,
		CompensatedAt: pgSaga.CompensatedAt,
		Timestamps: models.Timestamps{
			CreatedAt: pgSaga.StartedAt,
			UpdatedAt: pgSaga.UpdatedAt,
		},
		Version: models.Version{Value: pgSaga.Version},
	}, nil
}

// stepToDomain converts postgres model to domain step
func (r *PostgresSagaRepository) stepToDomain(pgStep *postgresStep) (*domain.StepInstance, error) {
	sagaID, err := models.NewID(pgStep.SagaID)
	if err != nil {
		return nil, errors.Wrap(err, "invalid saga ID")
	}

	step := &domain.StepInstance{
		SagaID:        sagaID,
		Sequence:      pgStep.Sequence,
		Name:          pgStep.Name,
		Status:        domain.StepStatus(pgStep.Status),
		CreatedAt:     pgStep.CreatedAt,
		DispatchedAt:  pgStep.DispatchedAt,
		CompletedAt:   pgStep.CompletedAt,
		FailedAt:      pgStep.FailedAt,
		CompensatedAt: pgStep.CompensatedAt,
	}
	if len(pgStep.Result) > 0 {
		step.Result = json.RawMessage(pgStep.Result)
	}
	if pgStep.Error != nil {
		step.Error = *pgStep.Error
	}
	return step, nil
}

// jsonColumn passes JSON as text so lib/pq does not send it as bytea
func jsonColumn(raw json.RawMessage, fallback string) interface{} {
	if len(raw) == 0 {
		if fallback == "" {
			return nil
		}
		return fallback
	}
	return string(raw)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
