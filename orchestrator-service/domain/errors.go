package domain

import "github.com/pkg/errors"

var (
	ErrSagaNotFound       = errors.New("saga not found")
	ErrStepNotFound       = errors.New("step not found")
	ErrStepExists         = errors.New("step already exists")
	ErrStepConflict       = errors.New("step already reached a different outcome")
	ErrVersionConflict    = errors.New("saga was modified concurrently")
	ErrUnknownSagaType    = errors.New("unknown saga type")
	ErrInvalidTransition  = errors.New("invalid saga transition")
	ErrInvalidDefinitions = errors.New("invalid saga definition")
)

// IsNotFound reports whether err means the saga or step does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSagaNotFound) || errors.Is(err, ErrStepNotFound)
}

// IsDomainError reports whether err is one of the sentinel errors above.
// Those are final answers from the state store; anything else is infrastructure
// trouble worth retrying.
func IsDomainError(err error) bool {
	for _, target := range []error{
		ErrSagaNotFound, ErrStepNotFound, ErrStepExists, ErrStepConflict,
		ErrVersionConflict, ErrUnknownSagaType, ErrInvalidTransition, ErrInvalidDefinitions,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
