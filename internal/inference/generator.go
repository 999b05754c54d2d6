package inference

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/samcharles93/logtrains/internal/logger"
	"github.com/samcharles93/logtrains/internal/logits"
)

// Generator runs one autoregressive decode over an already bounded prompt.
type Generator struct {
	Provider  Provider
	Tokenizer Tokenizer
	Sampler   *logits.Sampler
	EOS       uint32
	Reserve   int
	Log       logger.Logger
}

// Run prefills the whole prompt on the first step and then feeds back one
// token per step. It returns the partial result alongside any error.
func (g *Generator) Run(ctx context.Context, prompt []uint32, sink Sink) (Result, error) {
	log := g.Log
	if log == nil {
		log = logger.Discard()
	}
	res := Result{Stats: Stats{PromptTokens: len(prompt)}}
	all := make([]uint32, 0, len(prompt)+g.Reserve)
	all = append(all, prompt...)

	var text strings.Builder
	start := time.Now()
	finish := func() {
		res.Text = text.String()
		res.Tokens = append([]uint32(nil), all[len(prompt):]...)
		res.Stats.TokensGenerated = len(res.Tokens)
		res.Stats.Duration = time.Since(start)
		if decode := res.Stats.Duration - res.Stats.Prefill; decode > 0 && res.Stats.TokensGenerated > 0 {
			res.Stats.TPS = float64(res.Stats.TokensGenerated) / decode.Seconds()
		}
	}

	vocab := g.Provider.VocabSize()
	step := 0
	for step < g.Reserve {
		if err := ctx.Err(); err != nil {
			finish()
			return res, fmt.Errorf("generation cancelled at step %d: %w", step, err)
		}

		window := all
		if step > 0 {
			window = all[len(all)-1:]
		}
		startPos := len(all) - len(window)

		raw, err := g.forward(ctx, window, startPos)
		if err != nil {
			finish()
			return res, &StepError{Kind: ErrInference, Step: step, Err: err}
		}
		if step == 0 {
			res.Stats.Prefill = time.Since(start)
			log.Debug("prefill complete", "tokens", len(window), "elapsed", res.Stats.Prefill)
		}
		row, err := logits.FinalRow(raw, vocab)
		if err != nil {
			finish()
			return res, &StepError{Kind: ErrInference, Step: step, Err: err}
		}
		next, err := g.Sampler.Sample(row)
		if err != nil {
			finish()
			return res, &StepError{Kind: ErrInference, Step: step, Err: err}
		}

		if next == g.EOS {
			res.Stop = StopSignal{Kind: StopEOS}
			finish()
			return res, nil
		}
		if piece, ok := g.Tokenizer.IDToToken(next); ok {
			if s, hit := matchSentinel(piece); hit {
				res.Stop = StopSignal{Kind: StopSentinel, Sentinel: s}
				finish()
				return res, nil
			}
		}

		all = append(all, next)
		step++

		surface, err := g.surface(next)
		if err != nil {
			finish()
			return res, &StepError{Kind: ErrInference, Step: step - 1, Err: err}
		}
		text.WriteString(surface)
		if err := sink.Emit(surface); err != nil {
			finish()
			return res, &StepError{Kind: ErrSink, Step: step - 1, Err: err}
		}
	}

	res.Stop = StopSignal{Kind: StopReserveExhausted}
	finish()
	return res, nil
}

func (g *Generator) forward(ctx context.Context, window []uint32, startPos int) (out []float32, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("provider panic: %v", r)
		}
	}()
	return g.Provider.Forward(ctx, window, startPos)
}

func (g *Generator) surface(id uint32) (s string, err error) {
	defer func() {
		if r := recover(); r != nil {
			s = ""
			err = tokenizationError("decode", fmt.Errorf("panic: %v", r))
		}
	}()
	if pd, ok := g.Tokenizer.(PieceDecoder); ok {
		s, err = pd.DecodePiece(id)
	} else {
		s, err = g.Tokenizer.Decode([]uint32{id})
	}
	if err != nil {
		return "", tokenizationError("decode", err)
	}
	return s, nil
}
