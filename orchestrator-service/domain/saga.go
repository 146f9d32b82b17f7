package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/pkg/errors"
	"github.com/qmuntal/stateless"
)

// SagaState is the overall state of a saga instance
type SagaState string

const (
	SagaStatePending      SagaState = "PENDING"
	SagaStateInProgress   SagaState = "IN_PROGRESS"
	SagaStateCompleted    SagaState = "COMPLETED"
	SagaStateFailed       SagaState = "FAILED"
	SagaStateCompensating SagaState = "COMPENSATING"
	SagaStateCompensated  SagaState = "COMPENSATED"
)

// IsTerminal reports whether no further transition is possible
func (s SagaState) IsTerminal() bool {
	return s == SagaStateCompleted || s == SagaStateCompensated
}

type sagaTrigger string

const (
	triggerStart              sagaTrigger = "start"
	triggerComplete           sagaTrigger = "complete"
	triggerFail               sagaTrigger = "fail"
	triggerBeginCompensation  sagaTrigger = "begin_compensation"
	triggerFinishCompensation sagaTrigger = "finish_compensation"
)

// Saga is one instance of a business transaction
type Saga struct {
	ID            models.ID
	Type          string
	Payload       json.RawMessage
	State         SagaState
	StartedAt     time.Time
	CompletedAt   *time.Time
	CompensatedAt *time.Time
	Timestamps    models.Timestamps
	Version       models.Version

	events []*events.Event
}

// NewSaga creates a PENDING saga of the given type
func NewSaga(sagaType string, payload json.RawMessage) *Saga {
	timestamps := models.NewTimestamps()
	saga := &Saga{
		ID:         models.GenerateUUID(),
		Type:       sagaType,
		Payload:    payload,
		State:      SagaStatePending,
		StartedAt:  timestamps.CreatedAt,
		Timestamps: timestamps,
		Version:    models.NewVersion(),
	}

	saga.recordEvent(events.NewEvent(saga.ID, events.SagaStartedEvent, SagaStartedData{
		SagaID:   saga.ID,
		SagaType: saga.Type,
	}))
	return saga
}

// Start moves the saga to IN_PROGRESS once its first command is out
func (s *Saga) Start() error {
	return s.fire(triggerStart)
}

// Complete marks every step as done
func (s *Saga) Complete() error {
	if err := s.fire(triggerComplete); err != nil {
		return err
	}

	now := s.Timestamps.UpdatedAt
	s.CompletedAt = &now
	s.recordEvent(events.NewEvent(s.ID, events.SagaCompletedEvent, SagaFinishedData{
		SagaID:   s.ID,
		SagaType: s.Type,
		State:    s.State,
		At:       now,
	}))
	return nil
}

// Fail records that a step failed and compensation is due
func (s *Saga) Fail(sequence int, reason string) error {
	if err := s.fire(triggerFail); err != nil {
		return err
	}

	s.recordEvent(events.NewEvent(s.ID, events.SagaFailedEvent, SagaFailedData{
		SagaID:   s.ID,
		SagaType: s.Type,
		Sequence: sequence,
		Reason:   reason,
	}))
	return nil
}

// BeginCompensation moves a FAILED saga to COMPENSATING
func (s *Saga) BeginCompensation() error {
	return s.fire(triggerBeginCompensation)
}

// FinishCompensation marks the saga unwound
func (s *Saga) FinishCompensation() error {
	if err := s.fire(triggerFinishCompensation); err != nil {
		return err
	}

	now := s.Timestamps.UpdatedAt
	s.CompensatedAt = &now
	s.recordEvent(events.NewEvent(s.ID, events.SagaCompensatedEvent, SagaFinishedData{
		SagaID:   s.ID,
		SagaType: s.Type,
		State:    s.State,
		At:       now,
	}))
	return nil
}

// Duration is the time from start until the saga reached a terminal state
func (s *Saga) Duration() time.Duration {
	switch {
	case s.CompletedAt != nil:
		return s.CompletedAt.Sub(s.StartedAt)
	case s.CompensatedAt != nil:
		return s.CompensatedAt.Sub(s.StartedAt)
	}
	return 0
}

func (s *Saga) fire(trigger sagaTrigger) error {
	from := s.State
	if err := s.machine().Fire(trigger); err != nil {
		return errors.Wrapf(ErrInvalidTransition, "%s from %s", trigger, from)
	}

	s.Timestamps = s.Timestamps.Update()
	s.Version = s.Version.Update()
	return nil
}

// machine binds the saga lifecycle to the State field. The only backward-looking
// branch is FAILED -> COMPENSATING -> COMPENSATED; nothing re-enters PENDING or IN_PROGRESS.
func (s *Saga) machine() *stateless.StateMachine {
	sm := stateless.NewStateMachineWithExternalStorage(
		func(context.Context) (stateless.State, error) { return s.State, nil },
		func(_ context.Context, state stateless.State) error {
			s.State = state.(SagaState)
			return nil
		},
		stateless.FiringImmediate,
	)

	sm.Configure(SagaStatePending).
		Permit(triggerStart, SagaStateInProgress).
		Permit(triggerFail, SagaStateFailed)

	sm.Configure(SagaStateInProgress).
		Permit(triggerComplete, SagaStateCompleted).
		Permit(triggerFail, SagaStateFailed)

	sm.Configure(SagaStateFailed).
		Permit(triggerBeginCompensation, SagaStateCompensating)

	sm.Configure(SagaStateCompensating).
		Permit(triggerFinishCompensation, SagaStateCompensated)

	sm.Configure(SagaStateCompleted)
	sm.Configure(SagaStateCompensated)

	return sm
}

// Events returns domain events
func (s *Saga) Events() []*events.Event {
	return s.events
}

// ClearEvents clears domain events
func (s *Saga) ClearEvents() {
	s.events = make([]*events.Event, 0)
}

func (s *Saga) recordEvent(event *events.Event) {
	s.events = append(s.events, event)
}

// Event Data Structures
type SagaStartedData struct {
	SagaID   models.ID `json:"saga_id"`
	SagaType string    `json:"saga_type"`
}

type SagaFailedData struct {
	SagaID   models.ID `json:"saga_id"`
	SagaType string    `json:"saga_type"`
	Sequence int       `json:"sequence"`
	Reason   string    `json:"reason"`
}

type SagaFinishedData struct {
	SagaID   models.ID `json:"saga_id"`
	SagaType string    `json:"saga_type"`
	State    SagaState `json:"state"`
	At       time.Time `json:"at"`
}
