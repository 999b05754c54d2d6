package inference

import (
	"context"
	"time"

	"github.com/samcharles93/logtrains/internal/tokenizer"
)

// Provider runs the forward pass. It owns whatever cache makes the
// single-token steps cheap; startPos is the number of tokens it has
// already processed for this generation.
type Provider interface {
	Forward(ctx context.Context, window []uint32, startPos int) ([]float32, error)
	VocabSize() int
	Close() error
}

// Resetter is implemented by providers that must clear their cache before
// a new generation starts at position zero.
type Resetter interface {
	Reset() error
}

// Tokenizer is the tokenizer contract the engine consumes.
type Tokenizer = tokenizer.Tokenizer

// PieceDecoder renders a single token as it appears inside running text.
// When a tokenizer does not implement it, Decode([]uint32{id}) is used.
type PieceDecoder interface {
	DecodePiece(id uint32) (string, error)
}

// Sink receives generated text, one call per emitted token, in order.
// Returning an error aborts generation.
type Sink interface {
	Emit(token string) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(token string) error

func (f SinkFunc) Emit(token string) error { return f(token) }

type Stats struct {
	TokensGenerated int
	PromptTokens    int
	Prefill         time.Duration
	Duration        time.Duration
	TPS             float64
}

// Result describes a finished or aborted generation. On error it still
// carries everything emitted before the failure.
type Result struct {
	Text      string
	Tokens    []uint32
	Stop      StopSignal
	Truncated bool
	Stats     Stats
}
