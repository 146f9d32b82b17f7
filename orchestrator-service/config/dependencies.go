package config

import (
	"context"
	"fmt"
	"os"

	"github.com/draftea/saga-orchestrator/orchestrator-service/application"
	"github.com/draftea/saga-orchestrator/orchestrator-service/domain"
	"github.com/draftea/saga-orchestrator/orchestrator-service/handlers"
	"github.com/draftea/saga-orchestrator/orchestrator-service/infrastructure"
	"github.com/draftea/saga-orchestrator/shared/events"
	sharedinfra "github.com/draftea/saga-orchestrator/shared/infrastructure"
	"github.com/draftea/saga-orchestrator/shared/logger"
	"github.com/draftea/saga-orchestrator/shared/telemetry"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

type Dependencies struct {
	Logger *logger.Logger

	// Database
	DB    *sqlx.DB
	Redis *redis.Client

	// Repositories
	SagaRepository domain.SagaRepository
	Definitions    domain.DefinitionTable

	// Use Cases
	StartSaga         *application.StartSaga
	GetSagaStatus     *application.GetSagaStatus
	DispatchStep      *application.DispatchStep
	CompensateSaga    *application.CompensateSaga
	AdvanceSaga       *application.AdvanceSaga
	ProcessStepResult *application.ProcessStepResult
	ReconcileSagas    *application.ReconcileSagas

	// HTTP Handlers
	SagaHandlers *handlers.SagaHandlers

	// Event Handlers
	SagaEventHandlers *handlers.SagaEventHandlers

	// Infrastructure
	EventPublisher  events.Publisher
	EventSubscriber events.Subscriber
	// ListenPattern selects the participant outcome channels on EventSubscriber
	ListenPattern string

	// Telemetry
	Telemetry         *telemetry.Telemetry
	TelemetryShutdown func()

	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

func BuildDependencies(ctx context.Context, config *Config) (*Dependencies, error) {
	deps := &Dependencies{
		Logger: logger.New(config.ServiceName, os.Stdout).WithLevel(config.LogLevel),
	}

	// Initialize telemetry first
	if config.Telemetry.Enabled {
		telConfig := telemetry.OrchestratorServiceConfig.
			WithOTLPEndpoint(config.Telemetry.OTLPEndpoint).
			WithSampleRatio(config.Telemetry.SampleRatio)
		tel, telemetryShutdown, err := telemetry.InitTelemetry(ctx, telConfig)
		if err != nil {
			// Continue without telemetry rather than failing
			deps.Logger.WithError(err).Warn("failed to initialize telemetry")
		} else {
			deps.Telemetry = tel
			deps.TelemetryShutdown = telemetryShutdown
		}
	}

	definitions, err := config.Definitions()
	if err != nil {
		return nil, fmt.Errorf("failed to load saga definitions: %w", err)
	}
	deps.Definitions = definitions

	if err := deps.buildStore(ctx, config); err != nil {
		deps.Close()
		return nil, err
	}

	if err := deps.buildTransport(ctx, config); err != nil {
		deps.Close()
		return nil, err
	}

	retry := sharedinfra.RetryPolicy{
		MaxRetries:     config.Retry.MaxRetries,
		InitialBackoff: config.Retry.InitialBackoff,
		MaxBackoff:     config.Retry.MaxBackoff,
	}
	publisher := sharedinfra.NewRetryingPublisher(deps.EventPublisher, retry, deps.Logger)
	repo := deps.SagaRepository
	log := deps.Logger

	// Initialize use cases
	deps.DispatchStep = application.NewDispatchStep(repo, publisher, retry, log)
	deps.CompensateSaga = application.NewCompensateSaga(repo, publisher, definitions, retry, log)
	deps.AdvanceSaga = application.NewAdvanceSaga(repo, publisher, definitions, deps.DispatchStep, deps.CompensateSaga, retry, log)
	deps.ProcessStepResult = application.NewProcessStepResult(repo, publisher, deps.AdvanceSaga, deps.CompensateSaga, retry, log)
	deps.StartSaga = application.NewStartSaga(repo, publisher, definitions, deps.AdvanceSaga, retry, log)
	deps.GetSagaStatus = application.NewGetSagaStatus(repo, retry, log)
	deps.ReconcileSagas = application.NewReconcileSagas(repo, publisher, deps.AdvanceSaga, deps.CompensateSaga, retry,
		application.ReconcileOptions{
			BatchSize:     config.Reconciler.BatchSize,
			Concurrency:   config.Reconciler.Concurrency,
			RatePerSecond: config.Reconciler.RatePerSecond,
			GracePeriod:   config.Reconciler.GracePeriod,
		}, log)

	// Initialize handlers
	deps.SagaHandlers = handlers.NewSagaHandlers(deps.StartSaga, deps.GetSagaStatus)
	deps.SagaEventHandlers = handlers.NewSagaEventHandlers(deps.ProcessStepResult, log)

	return deps, nil
}

func (d *Dependencies) buildStore(ctx context.Context, config *Config) error {
	switch config.Store.Driver {
	case StoreDriverMemory:
		d.SagaRepository = infrastructure.NewMemorySagaRepository()
		return nil

	case StoreDriverPostgres:
		db, err := sqlx.ConnectContext(ctx, "postgres", config.GetDatabaseURL())
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return fmt.Errorf("failed to ping database: %w", err)
		}
		d.DB = db
		d.closers = append(d.closers, namedCloser{"database", db.Close})

		repo := infrastructure.NewPostgresSagaRepository(db)
		if config.Database.Migrate {
			if err := repo.Migrate(ctx); err != nil {
				return err
			}
		}
		d.SagaRepository = repo
		return nil
	}

	return fmt.Errorf("unknown store driver %q", config.Store.Driver)
}

func (d *Dependencies) buildTransport(ctx context.Context, config *Config) error {
	switch config.Transport.Driver {
	case TransportDriverAWS:
		publisher, err := sharedinfra.NewSNSPublisherAdapter(ctx, config.AWS.SNSTopicArn, sharedinfra.AWSOptions{
			Region:   config.AWS.Region,
			Endpoint: config.AWS.EndpointSNS,
		})
		if err != nil {
			return fmt.Errorf("failed to create SNS publisher: %w", err)
		}
		subscriber, err := sharedinfra.NewSQSSubscriberAdapter(config.AWS.SQSQueueURL,
			sharedinfra.AWSOptions{Region: config.AWS.Region, Endpoint: config.AWS.EndpointSQS},
			sharedinfra.WithWorkers(int32(config.Listener.Workers)),
			sharedinfra.WithLogger(d.Logger),
		)
		if err != nil {
			return fmt.Errorf("failed to create SQS subscriber: %w", err)
		}
		d.EventPublisher = publisher
		d.EventSubscriber = subscriber
		d.ListenPattern = "saga.step.*"
		d.closers = append(d.closers,
			namedCloser{"event publisher", publisher.Close},
			namedCloser{"event subscriber", subscriber.Close},
		)
		return nil

	case TransportDriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     config.Redis.Addr,
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		subscriber := sharedinfra.NewRedisStreamSubscriber(client, config.Redis.Group, config.Redis.Consumer,
			&sharedinfra.StreamConsumerOptions{Workers: config.Listener.Workers}, d.Logger)

		d.Redis = client
		d.EventPublisher = sharedinfra.NewRedisStreamPublisher(client, config.Redis.MaxLen)
		d.EventSubscriber = subscriber
		d.ListenPattern = events.StepSucceededTopic + "," + events.StepFailedTopic
		d.closers = append(d.closers,
			namedCloser{"redis", client.Close},
			namedCloser{"event subscriber", subscriber.Close},
		)
		return nil

	case TransportDriverMemory:
		bus := sharedinfra.NewMemoryBus(
			sharedinfra.WithMemoryWorkers(config.Listener.Workers),
			sharedinfra.WithMemoryLogger(d.Logger),
		)
		d.EventPublisher = bus
		d.EventSubscriber = bus
		d.ListenPattern = "saga.step.*"
		d.closers = append(d.closers, namedCloser{"memory bus", bus.Close})
		return nil
	}

	return fmt.Errorf("unknown transport driver %q", config.Transport.Driver)
}

// Close closes all dependencies in reverse order of creation, so consumers stop before what they use
func (d *Dependencies) Close() error {
	var errs []error

	for i := len(d.closers) - 1; i >= 0; i-- {
		c := d.closers[i]
		if err := c.close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s: %w", c.name, err))
		}
	}
	d.closers = nil

	if d.TelemetryShutdown != nil {
		d.TelemetryShutdown()
		d.TelemetryShutdown = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing dependencies: %v", errs)
	}

	return nil
}
