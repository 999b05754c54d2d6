package inference

import (
	"fmt"

	"github.com/samcharles93/logtrains/internal/logits"
)

const (
	DefaultMaxContextTokens     = 4096
	DefaultGenerationReserve    = 512
	DefaultSystemPreserveTokens = 150
	DefaultTemperature          = 0.7
	DefaultTopP                 = 0.9
)

// GenerationConfig is fixed for the duration of a run.
type GenerationConfig struct {
	MaxContextTokens     int
	GenerationReserve    int
	SystemPreserveTokens int
	Temperature          float32
	TopP                 float32
	Seed                 uint64
}

func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		MaxContextTokens:     DefaultMaxContextTokens,
		GenerationReserve:    DefaultGenerationReserve,
		SystemPreserveTokens: DefaultSystemPreserveTokens,
		Temperature:          DefaultTemperature,
		TopP:                 DefaultTopP,
		Seed:                 logits.DefaultSeed,
	}
}

// InputBudget is the number of prompt tokens allowed before decoding.
func (c GenerationConfig) InputBudget() int {
	return c.MaxContextTokens - c.GenerationReserve
}

// validateWindow checks only what truncation depends on.
func (c GenerationConfig) validateWindow() error {
	switch {
	case c.MaxContextTokens <= 0:
		return &ConfigError{Field: "max_context_tokens", Reason: fmt.Sprintf("must be positive, got %d", c.MaxContextTokens)}
	case c.GenerationReserve <= 0:
		return &ConfigError{Field: "generation_reserve", Reason: fmt.Sprintf("must be positive, got %d", c.GenerationReserve)}
	case c.InputBudget() <= 0:
		return &ConfigError{Field: "generation_reserve", Reason: fmt.Sprintf("(%d) must be smaller than max_context_tokens (%d)", c.GenerationReserve, c.MaxContextTokens)}
	case c.SystemPreserveTokens < 0:
		return &ConfigError{Field: "system_preserve_tokens", Reason: fmt.Sprintf("must not be negative, got %d", c.SystemPreserveTokens)}
	case c.SystemPreserveTokens >= c.InputBudget():
		return &ConfigError{Field: "system_preserve_tokens", Reason: fmt.Sprintf("(%d) must be smaller than the input budget (%d)", c.SystemPreserveTokens, c.InputBudget())}
	}
	return nil
}

// Validate checks the whole config.
func (c GenerationConfig) Validate() error {
	if err := c.validateWindow(); err != nil {
		return err
	}
	if err := c.SamplerConfig().Validate(); err != nil {
		return &ConfigError{Field: "sampler", Reason: err.Error()}
	}
	return nil
}

func (c GenerationConfig) SamplerConfig() logits.SamplerConfig {
	return logits.SamplerConfig{
		Seed:        c.Seed,
		Temperature: c.Temperature,
		TopP:        c.TopP,
	}
}
