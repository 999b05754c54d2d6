package inference

import (
	"errors"
	"fmt"
)

var (
	ErrConfig       = errors.New("invalid generation config")
	ErrTokenization = errors.New("tokenization failed")
	ErrInference    = errors.New("inference failed")
	ErrSink         = errors.New("stream sink failed")
	ErrEngineBusy   = errors.New("engine is already generating")
)

// ConfigError names the offending GenerationConfig field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%v: %s %s", ErrConfig, e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfig }

// StepError is a failure inside the decode loop. Kind is ErrInference or
// ErrSink.
type StepError struct {
	Kind error
	Step int
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%v at step %d: %v", e.Kind, e.Step, e.Err)
}

func (e *StepError) Unwrap() []error { return []error{e.Kind, e.Err} }

func tokenizationError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTokenization, op, err)
}
