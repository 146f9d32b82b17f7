package domain

import (
	"sort"
	"strconv"

	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const OrderCheckout = "OrderCheckout"

// StepDefinition names a step and the action that undoes it. An empty
// Compensation means the step has nothing to undo.
type StepDefinition struct {
	Name         string `json:"name" mapstructure:"name"`
	Compensation string `json:"compensation" mapstructure:"compensation"`
}

// Definition is the ordered step list of one saga type
type Definition struct {
	Type  string
	Steps []StepDefinition
}

// NextStep returns the step at index currentStepCount, or false when the saga is complete
func (d Definition) NextStep(currentStepCount int) (StepDefinition, bool) {
	if currentStepCount < 0 || currentStepCount >= len(d.Steps) {
		return StepDefinition{}, false
	}
	return d.Steps[currentStepCount], true
}

// StepAt returns the step with the given 1-based sequence
func (d Definition) StepAt(sequence int) (StepDefinition, bool) {
	return d.NextStep(sequence - 1)
}

func (d Definition) validate() error {
	if d.Type == "" {
		return errors.Wrap(ErrInvalidDefinitions, "saga type is required")
	}
	if len(d.Steps) == 0 {
		return errors.Wrapf(ErrInvalidDefinitions, "%s has no steps", d.Type)
	}

	seen := make(map[string]bool, len(d.Steps))
	for _, step := range d.Steps {
		if step.Name == "" {
			return errors.Wrapf(ErrInvalidDefinitions, "%s has a step without a name", d.Type)
		}
		if seen[step.Name] {
			return errors.Wrapf(ErrInvalidDefinitions, "%s lists %s twice", d.Type, step.Name)
		}
		seen[step.Name] = true
	}
	return nil
}

// DefinitionTable maps saga type to its ordered step list
type DefinitionTable map[string]Definition

// DefaultDefinitions returns the built-in saga types
func DefaultDefinitions() DefinitionTable {
	return DefinitionTable{
		OrderCheckout: {
			Type: OrderCheckout,
			Steps: []StepDefinition{
				{Name: "ReserveInventory", Compensation: "ReleaseInventory"},
				{Name: "ChargePayment", Compensation: "RefundPayment"},
				{Name: "ConfirmOrder", Compensation: "CancelOrder"},
			},
		},
	}
}

// NewDefinitionTable validates definitions and layers them over the built-in ones
func NewDefinitionTable(extra map[string][]StepDefinition) (DefinitionTable, error) {
	table := DefaultDefinitions()
	for sagaType, steps := range extra {
		definition := Definition{Type: sagaType, Steps: steps}
		if err := definition.validate(); err != nil {
			return nil, err
		}
		table[sagaType] = definition
	}
	return table, nil
}

// Lookup returns the definition for a saga type
func (t DefinitionTable) Lookup(sagaType string) (Definition, error) {
	definition, ok := t[sagaType]
	if !ok {
		return Definition{}, errors.Wrapf(ErrUnknownSagaType, "%q", sagaType)
	}
	return definition, nil
}

// NextStep is the step sequencer: the step at index currentStepCount of the
// saga type's list, or false once every step has run.
func (t DefinitionTable) NextStep(sagaType string, currentStepCount int) (StepDefinition, bool, error) {
	definition, err := t.Lookup(sagaType)
	if err != nil {
		return StepDefinition{}, false, err
	}
	step, ok := definition.NextStep(currentStepCount)
	return step, ok, nil
}

// Types lists the registered saga types in name order
func (t DefinitionTable) Types() []string {
	types := make([]string, 0, len(t))
	for sagaType := range t {
		types = append(types, sagaType)
	}
	sort.Strings(types)
	return types
}

// Channels lists every command and compensation channel the table uses
func (t DefinitionTable) Channels() []string {
	seen := make(map[string]bool)
	var channels []string
	for _, sagaType := range t.Types() {
		for _, step := range t[sagaType].Steps {
			for _, channel := range []string{step.Name, step.Compensation} {
				if channel != "" && !seen[channel] {
					seen[channel] = true
					channels = append(channels, channel)
				}
			}
		}
	}
	return channels
}

var idempotencyNamespace = uuid.MustParse("6f1c2b9e-5d34-4f0a-9a8e-3c7d1e2f4b60")

// IdempotencyKey derives the key a participant uses to deduplicate a command.
// It depends only on the saga id and step sequence.
func IdempotencyKey(sagaID models.ID, sequence int) string {
	return models.NameBasedID(idempotencyNamespace, sagaID.String()+"/"+strconv.Itoa(sequence)).String()
}
