package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/draftea/saga-orchestrator/orchestrator-service/application"
	"github.com/draftea/saga-orchestrator/orchestrator-service/config"
	"github.com/draftea/saga-orchestrator/orchestrator-service/domain"
	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/logger"
	"github.com/draftea/saga-orchestrator/shared/saga"
	"github.com/draftea/saga-orchestrator/shared/telemetry"
	"github.com/pkg/errors"
)

// checkoutInput is the OrderCheckout payload; the Decline* flags make a participant refuse the step
type checkoutInput struct {
	OrderID        string  `json:"orderId"`
	Amount         float64 `json:"amount"`
	DeclinePayment bool    `json:"declinePayment,omitempty"`
	DeclineOrder   bool    `json:"declineOrder,omitempty"`
}

func main() {
	cfg, err := config.ReadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	cfg.Store.Driver = config.StoreDriverMemory
	// Every participant subscribes per channel, which a single shared SQS queue cannot route
	if cfg.Transport.Driver == config.TransportDriverAWS {
		cfg.Transport.Driver = config.TransportDriverMemory
	}
	cfg.Reconciler.Enabled = false

	// one process, one telemetry setup: the demo's
	demoTelemetry := cfg.Telemetry
	cfg.Telemetry.Enabled = false

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if demoTelemetry.Enabled {
		tel, shutdown, err := telemetry.InitTelemetry(ctx, telemetry.ParticipantDemoConfig.
			WithOTLPEndpoint(demoTelemetry.OTLPEndpoint).
			WithSampleRatio(demoTelemetry.SampleRatio))
		if err != nil {
			log.Printf("Failed to initialize telemetry: %v", err)
		} else {
			defer shutdown()
			ctx = telemetry.WithTelemetry(ctx, tel)
		}
	}

	deps, err := config.BuildDependencies(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to build dependencies: %v", err)
	}
	defer func() {
		if err := deps.Close(); err != nil {
			log.Printf("Error closing dependencies: %v", err)
		}
	}()

	demoLog := logger.New(telemetry.ParticipantDemoConfig.ServiceName, os.Stdout).WithLevel(cfg.LogLevel)

	if err := deps.EventSubscriber.Subscribe(ctx, deps.ListenPattern, deps.SagaEventHandlers); err != nil {
		log.Fatalf("Failed to start orchestrator listener: %v", err)
	}

	for _, executor := range participants(deps, demoLog) {
		if err := executor.Subscribe(ctx, deps.EventSubscriber); err != nil {
			log.Fatalf("Failed to start participant: %v", err)
		}
	}

	scenarios := []checkoutInput{
		{OrderID: "ord-1001", Amount: 49.90},
		{OrderID: "ord-1002", Amount: 1250, DeclinePayment: true},
		{OrderID: "ord-1003", Amount: 15, DeclineOrder: true},
	}

	for _, input := range scenarios {
		if err := runCheckout(ctx, deps, input, demoLog); err != nil {
			demoLog.WithError(err).WithField("order_id", input.OrderID).Error("checkout did not settle")
		}
	}
}

func participants(deps *config.Dependencies, log *logger.Logger) []*saga.StepExecutor {
	store := func(name string) saga.IdempotencyStore {
		if deps.Redis != nil {
			return saga.NewRedisIdempotencyStore(deps.Redis, "idempotency:"+name, 24*time.Hour)
		}
		return saga.NewMemoryIdempotencyStore()
	}

	inventory := saga.NewStepExecutor("inventory", deps.EventPublisher, store("inventory"), log).
		Register(saga.Step{
			Command: "ReserveInventory",
			Event:   "InventoryReserved",
			Action: func(_ context.Context, cmd events.CommandMessage) (interface{}, error) {
				var in checkoutInput
				if err := json.Unmarshal(cmd.Payload.Input, &in); err != nil {
					return nil, errors.Wrap(err, "invalid checkout payload")
				}
				return map[string]string{"reservationId": "res-" + in.OrderID}, nil
			},
			Compensation: "ReleaseInventory",
			Compensate:   logCompensation(log),
		})

	payments := saga.NewStepExecutor("payments", deps.EventPublisher, store("payments"), log).
		Register(saga.Step{
			Command: "ChargePayment",
			Event:   "PaymentCharged",
			Action: func(_ context.Context, cmd events.CommandMessage) (interface{}, error) {
				var in checkoutInput
				if err := json.Unmarshal(cmd.Payload.Input, &in); err != nil {
					return nil, errors.Wrap(err, "invalid checkout payload")
				}
				if in.DeclinePayment {
					return nil, errors.Errorf("card declined for %.2f", in.Amount)
				}
				return map[string]interface{}{"chargeId": "ch-" + in.OrderID, "amount": in.Amount}, nil
			},
			Compensation: "RefundPayment",
			Compensate:   logCompensation(log),
		})

	orders := saga.NewStepExecutor("orders", deps.EventPublisher, store("orders"), log).
		Register(saga.Step{
			Command: "ConfirmOrder",
			Event:   "OrderConfirmed",
			Action: func(_ context.Context, cmd events.CommandMessage) (interface{}, error) {
				var in checkoutInput
				if err := json.Unmarshal(cmd.Payload.Input, &in); err != nil {
					return nil, errors.Wrap(err, "invalid checkout payload")
				}
				if in.DeclineOrder {
					return nil, errors.New("order is no longer confirmable")
				}
				return map[string]string{"orderId": in.OrderID, "status": "confirmed"}, nil
			},
			Compensation: "CancelOrder",
			Compensate:   logCompensation(log),
		})

	return []*saga.StepExecutor{inventory, payments, orders}
}

func logCompensation(log *logger.Logger) saga.CompensationAction {
	return func(_ context.Context, msg events.CompensationMessage) error {
		log.WithField("saga_id", msg.SagaID.String()).
			WithField("step", msg.StepName).
			WithField("compensation", msg.Compensation).
			Info("compensation applied")
		return nil
	}
}

func runCheckout(ctx context.Context, deps *config.Dependencies, input checkoutInput, log *logger.Logger) error {
	payload, err := json.Marshal(input)
	if err != nil {
		return err
	}

	started, err := deps.StartSaga.Execute(ctx, &application.StartSagaCommand{
		SagaType: domain.OrderCheckout,
		Payload:  payload,
	})
	if err != nil {
		return errors.Wrap(err, "failed to start saga")
	}

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		status, err := deps.GetSagaStatus.Execute(waitCtx, &application.GetSagaStatusQuery{SagaID: started.SagaID})
		if err != nil {
			return err
		}
		if domain.SagaState(status.State).IsTerminal() {
			out, _ := json.MarshalIndent(status, "", "  ")
			fmt.Println(string(out))
			log.WithField("saga_id", status.SagaID).WithField("state", status.State).Info("checkout settled")
			return nil
		}

		select {
		case <-waitCtx.Done():
			return waitCtx.Err()
		case <-ticker.C:
		}
	}
}
