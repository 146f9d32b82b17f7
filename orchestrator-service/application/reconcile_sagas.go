package application

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/draftea/saga-orchestrator/orchestrator-service/domain"
	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/infrastructure"
	"github.com/draftea/saga-orchestrator/shared/logger"
	"github.com/draftea/saga-orchestrator/shared/telemetry"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// reconcilableStates are the non-terminal states the sweep can move forward
var reconcilableStates = []domain.SagaState{
	domain.SagaStatePending,
	domain.SagaStateInProgress,
	domain.SagaStateFailed,
	domain.SagaStateCompensating,
}

// ReconcileOptions bound the recovery sweep
type ReconcileOptions struct {
	BatchSize   int
	Concurrency int
	// RatePerSecond caps how many sagas are re-driven per second; zero means unlimited
	RatePerSecond float64
	// GracePeriod skips sagas whose saga or steps changed this recently, leaving
	// them to the listener that is most likely still working on them
	GracePeriod time.Duration
}

// ReconcileResult summarises one sweep
type ReconcileResult struct {
	Scanned int
	Failed  int
}

// ReconcileSagas re-drives sagas a crash left between durable states: the
// saga row and step rows are written, but the follow-up command never left.
// Sagas waiting on a dispatched step are filtered out by the store, so they
// never crowd a batch.
type ReconcileSagas struct {
	store       *sagaStore
	advancer    *AdvanceSaga
	compensator *CompensateSaga
	opts        ReconcileOptions
	limiter     *rate.Limiter
	log         *logger.Logger
}

// NewReconcileSagas creates a new ReconcileSagas use case
func NewReconcileSagas(
	repository domain.SagaRepository,
	publisher events.Publisher,
	advancer *AdvanceSaga,
	compensator *CompensateSaga,
	retry infrastructure.RetryPolicy,
	opts ReconcileOptions,
	log *logger.Logger,
) *ReconcileSagas {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.Concurrency)
	}

	store := newSagaStore(repository, publisher, retry, log)
	return &ReconcileSagas{
		store:       store,
		advancer:    advancer,
		compensator: compensator,
		opts:        opts,
		limiter:     limiter,
		log:         store.log,
	}
}

// Execute runs one sweep. Errors of single sagas are logged and counted; only
// failing to list the sagas is returned.
func (uc *ReconcileSagas) Execute(ctx context.Context) (ReconcileResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "saga.reconcile")
	defer span.End()

	var sagas []*domain.Saga
	err := uc.store.do(ctx, func(ctx context.Context) (err error) {
		quietSince := time.Now().UTC().Add(-uc.opts.GracePeriod)
		sagas, err = uc.store.repository.FindStalled(ctx, reconcilableStates, quietSince, uc.opts.BatchSize)
		return err
	})
	if err != nil {
		return ReconcileResult{}, errors.Wrap(err, "failed to list unfinished sagas")
	}

	var failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.opts.Concurrency)

	for _, saga := range sagas {
		g.Go(func() error {
			if err := uc.limiter.Wait(gctx); err != nil {
				return err
			}
			if err := uc.reconcile(gctx, saga); err != nil {
				failed.Add(1)
				uc.log.WithContext(gctx).WithError(err).Warnf("failed to reconcile saga", sagaFields(saga))
			}
			return nil
		})
	}

	// only a cancelled context ends the group early
	if err := g.Wait(); err != nil {
		return ReconcileResult{Scanned: len(sagas), Failed: int(failed.Load())}, err
	}

	result := ReconcileResult{Scanned: len(sagas), Failed: int(failed.Load())}
	if result.Scanned > 0 {
		uc.log.WithContext(ctx).Infof("reconciliation sweep finished", map[string]interface{}{
			"scanned": result.Scanned,
			"failed":  result.Failed,
		})
	}
	return result, nil
}

// Run sweeps once right away and then every interval until ctx is done
func (uc *ReconcileSagas) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := uc.Execute(ctx); err != nil && ctx.Err() == nil {
			uc.log.WithError(err).Error("reconciliation sweep failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (uc *ReconcileSagas) reconcile(ctx context.Context, saga *domain.Saga) error {
	var err error
	switch saga.State {
	case domain.SagaStatePending, domain.SagaStateInProgress:
		err = uc.advancer.Execute(ctx, saga)
	case domain.SagaStateFailed, domain.SagaStateCompensating:
		err = uc.compensator.Execute(ctx, saga)
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	telemetry.RecordCounter(ctx, metricReconciled, "Sagas visited by the reconciliation sweep", 1,
		attribute.String("state", string(saga.State)), attribute.String("outcome", outcome))
	return err
}
