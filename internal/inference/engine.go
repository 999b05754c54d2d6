package inference

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/samcharles93/logtrains/internal/backend"
	"github.com/samcharles93/logtrains/internal/logger"
	"github.com/samcharles93/logtrains/internal/logits"
)

// Engine owns a tokenizer and a provider for the lifetime of the process.
// It runs one generation at a time.
type Engine struct {
	tok      Tokenizer
	provider Provider
	device   backend.Device
	cfg      GenerationConfig
	eos      uint32
	log      logger.Logger

	busy atomic.Bool
}

// NewEngine validates cfg and takes ownership of provider.
func NewEngine(tok Tokenizer, provider Provider, device backend.Device, cfg GenerationConfig, log logger.Logger) (*Engine, error) {
	if tok == nil || provider == nil {
		return nil, errors.New("engine requires a tokenizer and a provider")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Engine{
		tok:      tok,
		provider: provider,
		device:   device,
		cfg:      cfg,
		eos:      ResolveEOS(tok),
		log:      log,
	}, nil
}

func (e *Engine) Device() backend.Device   { return e.device }
func (e *Engine) Config() GenerationConfig { return e.cfg }
func (e *Engine) Tokenizer() Tokenizer     { return e.tok }

// Explain builds the prompt for logText and generates an explanation.
func (e *Engine) Explain(ctx context.Context, logText string, template *string, sink Sink) (Result, error) {
	return e.Generate(ctx, BuildPrompt(logText, template), sink)
}

// Generate encodes prompt, bounds it to the input budget and streams the
// continuation to sink.
func (e *Engine) Generate(ctx context.Context, prompt string, sink Sink) (Result, error) {
	if !e.busy.CompareAndSwap(false, true) {
		return Result{}, ErrEngineBusy
	}
	defer e.busy.Store(false)

	if sink == nil {
		sink = SinkFunc(func(string) error { return nil })
	}

	ids, err := e.safeEncode(prompt)
	if err != nil {
		return Result{}, err
	}
	bounded, err := BoundTokens(ids, e.cfg, e.log)
	if err != nil {
		return Result{}, err
	}
	if err := e.safeReset(); err != nil {
		return Result{}, &StepError{Kind: ErrInference, Step: 0, Err: err}
	}

	gen := &Generator{
		Provider:  e.provider,
		Tokenizer: e.tok,
		Sampler:   logits.NewSampler(e.cfg.SamplerConfig()),
		EOS:       e.eos,
		Reserve:   e.cfg.GenerationReserve,
		Log:       e.log,
	}
	start := time.Now()
	res, err := gen.Run(ctx, bounded, sink)
	res.Truncated = len(bounded) != len(ids)
	if err != nil {
		return res, err
	}
	e.log.Debug("generation finished",
		"stop", res.Stop.String(),
		"tokens", res.Stats.TokensGenerated,
		"elapsed", time.Since(start),
		"tps", fmt.Sprintf("%.2f", res.Stats.TPS),
	)
	return res, nil
}

// Close releases the provider.
func (e *Engine) Close() error {
	if e.provider == nil {
		return nil
	}
	return e.provider.Close()
}

func (e *Engine) safeEncode(prompt string) (ids []uint32, err error) {
	defer func() {
		if r := recover(); r != nil {
			ids = nil
			err = tokenizationError("encode", fmt.Errorf("panic: %v", r))
		}
	}()
	ids, err = e.tok.Encode(prompt)
	if err != nil {
		return nil, tokenizationError("encode", err)
	}
	if len(ids) == 0 {
		return nil, tokenizationError("encode", errors.New("prompt produced no tokens"))
	}
	return ids, nil
}

func (e *Engine) safeReset() (err error) {
	r, ok := e.provider.(Resetter)
	if !ok {
		return nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("reset panic: %v", rec)
		}
	}()
	return r.Reset()
}
