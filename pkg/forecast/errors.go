package forecast

import (
	"errors"
	"fmt"
)

var (
	// ErrModelUnavailable is returned when no model was loaded at startup.
	// History is never touched in that case.
	ErrModelUnavailable = errors.New("model not loaded")

	// ErrInvalidTimestamp is returned when a supplied timestamp cannot be parsed.
	ErrInvalidTimestamp = errors.New("invalid timestamp")

	// ErrInvalidPayload is returned when a required numeric field is missing
	// or has the wrong type. The wrapped error names the field.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrPredictor wraps any error raised by the model. It is never retried
	// and aborts the whole operation.
	ErrPredictor = errors.New("predictor failure")
)

func invalidPayload(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidPayload, fmt.Sprintf(format, args...))
}
