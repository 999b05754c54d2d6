package logits

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
)

// DefaultSeed keeps runs reproducible when the caller does not choose one.
const DefaultSeed uint64 = 299792458

// SamplerConfig configures the behaviour of a Sampler.
type SamplerConfig struct {
	Seed uint64
	// Temperature divides the logits before softmax. Zero selects greedy
	// argmax decoding.
	Temperature float32
	// TopP is the nucleus mass in (0, 1]. One disables the cut.
	TopP float32
}

// Validate rejects settings that cannot describe a distribution.
func (c SamplerConfig) Validate() error {
	if c.Temperature < 0 || math.IsNaN(float64(c.Temperature)) {
		return fmt.Errorf("temperature must be >= 0, got %v", c.Temperature)
	}
	if !(c.TopP > 0 && c.TopP <= 1) {
		return fmt.Errorf("top-p must be in (0, 1], got %v", c.TopP)
	}
	return nil
}

// ErrNoCandidates is returned when every logit is -Inf or NaN.
var ErrNoCandidates = errors.New("no finite logits to sample from")

// Sampler is a seeded temperature + nucleus sampler. A single Sampler is
// reused for a whole generation so the random stream is never re-seeded.
type Sampler struct {
	rng    *rand.Rand
	cfg    SamplerConfig
	greedy bool
	idx    []int
	prob   []float64
}

// NewSampler returns a new sampler with the provided configuration.
// Out-of-range TopP is clamped to 1.
func NewSampler(cfg SamplerConfig) *Sampler {
	if !(cfg.TopP > 0 && cfg.TopP <= 1) {
		cfg.TopP = 1
	}
	return &Sampler{
		rng:    rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		cfg:    cfg,
		greedy: cfg.Temperature <= 0,
	}
}

// Sample draws a token id from a single row of logits:
//
//  1. scale by 1/Temperature and softmax (max-subtracted);
//  2. order candidates by descending probability, ties by lower id;
//  3. keep the shortest prefix whose cumulative mass reaches TopP;
//  4. draw uniformly within the kept mass.
func (s *Sampler) Sample(logits []float32) (uint32, error) {
	if len(logits) == 0 {
		return 0, errors.New("empty logits")
	}
	best, ok := argmax(logits)
	if !ok {
		return 0, ErrNoCandidates
	}
	if s.greedy {
		return uint32(best), nil
	}

	invTemp := 1 / float64(s.cfg.Temperature)
	maxv := float64(logits[best]) * invTemp

	s.idx = s.idx[:0]
	if cap(s.prob) < len(logits) {
		s.prob = make([]float64, len(logits))
	}
	prob := s.prob[:len(logits)]
	var sum float64
	for i, l := range logits {
		v := float64(l)
		if math.IsNaN(v) || math.IsInf(v, -1) {
			prob[i] = 0
			continue
		}
		e := math.Exp(v*invTemp - maxv)
		prob[i] = e
		sum += e
		if e > 0 {
			s.idx = append(s.idx, i)
		}
	}
	if sum == 0 || len(s.idx) == 0 {
		return uint32(best), nil
	}
	for _, i := range s.idx {
		prob[i] /= sum
	}

	slices.SortStableFunc(s.idx, func(a, b int) int {
		switch {
		case prob[a] > prob[b]:
			return -1
		case prob[a] < prob[b]:
			return 1
		default:
			return a - b
		}
	})

	cut := len(s.idx)
	var kept float64
	for n, i := range s.idx {
		kept += prob[i]
		if kept >= float64(s.cfg.TopP) {
			cut = n + 1
			break
		}
	}
	if cut == len(s.idx) {
		kept = 0
		for _, i := range s.idx {
			kept += prob[i]
		}
	}

	r := s.rng.Float64() * kept
	var c float64
	for _, i := range s.idx[:cut] {
		c += prob[i]
		if r < c {
			return uint32(i), nil
		}
	}
	return uint32(s.idx[cut-1]), nil
}

// argmax returns the index of the largest finite value.
func argmax(x []float32) (int, bool) {
	bestI := -1
	var bestV float32
	for i, v := range x {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), -1) {
			continue
		}
		if bestI < 0 || v > bestV {
			bestI, bestV = i, v
		}
	}
	return bestI, bestI >= 0
}

// FinalRow returns the logits of the last position when a provider hands
// back one row per input position. A single row is returned unchanged.
func FinalRow(logits []float32, vocab int) ([]float32, error) {
	if vocab <= 0 || len(logits) == vocab {
		return logits, nil
	}
	if len(logits) < vocab || len(logits)%vocab != 0 {
		return nil, fmt.Errorf("logits length %d is not a multiple of vocab size %d", len(logits), vocab)
	}
	return logits[len(logits)-vocab:], nil
}
