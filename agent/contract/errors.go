package contract

import "errors"

var (
	ErrModelInvoke     = errors.New("model invoke failed")
	ErrSchemaViolation = errors.New("model response violates schema")
	ErrPromptMissing   = errors.New("required prompt is missing")
	ErrValidation      = errors.New("validation failed")
	ErrUnknownRoute    = errors.New("unknown route")
	ErrTurnInProgress  = errors.New("another turn is in progress for this session")
	ErrStreamClosed    = errors.New("step stream closed by consumer")
)
