package logits

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func drawN(t *testing.T, s *Sampler, logs []float32, n int) []uint32 {
	t.Helper()
	out := make([]uint32, n)
	for i := range out {
		id, err := s.Sample(logs)
		if err != nil {
			t.Fatalf("sample %d: %v", i, err)
		}
		out[i] = id
	}
	return out
}

// Two samplers with the same seed must replay the same stream across
// many draws, which also proves the generator is not re-seeded per call.
func TestSamplerDeterministicReplay(t *testing.T) {
	t.Parallel()
	logs := []float32{0, 1, 2, 3, 4, 5}
	cfg := SamplerConfig{Seed: DefaultSeed, Temperature: 0.7, TopP: 0.9}
	a := drawN(t, NewSampler(cfg), logs, 64)
	b := drawN(t, NewSampler(cfg), logs, 64)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("replay mismatch (-a +b):\n%s", diff)
	}
	distinct := map[uint32]bool{}
	for _, id := range a {
		distinct[id] = true
	}
	if len(distinct) < 2 {
		t.Fatalf("expected the stream to advance between draws, got %v", a)
	}
}

func TestSamplerGreedy(t *testing.T) {
	t.Parallel()
	s := NewSampler(SamplerConfig{Seed: 99, Temperature: 0, TopP: 1})
	id, err := s.Sample([]float32{-1, 5, 3, 7, 2})
	if err != nil || id != 3 {
		t.Fatalf("expected greedy index 3, got %d (%v)", id, err)
	}
}

// With p=0.5 and one dominant logit the nucleus holds a single candidate.
func TestSamplerNucleusCut(t *testing.T) {
	t.Parallel()
	s := NewSampler(SamplerConfig{Seed: 7, Temperature: 1, TopP: 0.5})
	for _, id := range drawN(t, s, []float32{0, 0, 10, 0, 0}, 50) {
		if id != 2 {
			t.Fatalf("nucleus sampling returned unexpected index %d", id)
		}
	}
}

// Probabilities 0.5/0.3/0.2 with p=0.75 keep exactly the first two.
func TestSamplerNucleusExcludesTail(t *testing.T) {
	t.Parallel()
	logs := []float32{
		float32(math.Log(0.5)),
		float32(math.Log(0.3)),
		float32(math.Log(0.2)),
	}
	s := NewSampler(SamplerConfig{Seed: 1, Temperature: 1, TopP: 0.75})
	seen := map[uint32]int{}
	for _, id := range drawN(t, s, logs, 500) {
		seen[id]++
	}
	if seen[2] != 0 {
		t.Fatalf("tail token sampled %d times", seen[2])
	}
	if seen[0] == 0 || seen[1] == 0 {
		t.Fatalf("expected both nucleus tokens, got %v", seen)
	}
}

// Probabilities 0.8/0.2 with p=0.9 keep both tokens at T=1. At T=0.5 the
// scaled distribution is 0.94/0.06, so the nucleus holds only the first.
func TestSamplerTemperatureNarrowsNucleus(t *testing.T) {
	t.Parallel()
	logs := []float32{float32(math.Log(0.8)), float32(math.Log(0.2))}

	warm := map[uint32]int{}
	for _, id := range drawN(t, NewSampler(SamplerConfig{Seed: 5, Temperature: 1, TopP: 0.9}), logs, 500) {
		warm[id]++
	}
	if warm[0] == 0 || warm[1] == 0 {
		t.Fatalf("T=1: expected both tokens, got %v", warm)
	}

	cool := map[uint32]int{}
	for _, id := range drawN(t, NewSampler(SamplerConfig{Seed: 5, Temperature: 0.5, TopP: 0.9}), logs, 500) {
		cool[id]++
	}
	if diff := cmp.Diff(map[uint32]int{0: 500}, cool); diff != "" {
		t.Fatalf("T=0.5 draws (-want +got):\n%s", diff)
	}
}

// With no nucleus cut, 0.6/0.4 becomes 0.69/0.31 at T=0.5 and 0.55/0.45 at
// T=2.
func TestSamplerTemperatureSharpens(t *testing.T) {
	t.Parallel()
	logs := []float32{float32(math.Log(0.6)), float32(math.Log(0.4))}
	const n = 2000
	share := func(temp float32) float64 {
		hits := 0
		for _, id := range drawN(t, NewSampler(SamplerConfig{Seed: 11, Temperature: temp, TopP: 1}), logs, n) {
			if id == 0 {
				hits++
			}
		}
		return float64(hits) / n
	}
	cold, hot := share(0.5), share(2)
	if math.Abs(cold-0.692) > 0.05 {
		t.Fatalf("T=0.5 share of top token = %.3f, want about 0.692", cold)
	}
	if math.Abs(hot-0.550) > 0.05 {
		t.Fatalf("T=2 share of top token = %.3f, want about 0.550", hot)
	}
	if cold <= hot {
		t.Fatalf("lower temperature should sharpen: T=0.5 %.3f, T=2 %.3f", cold, hot)
	}
}

func TestSamplerSkipsNonFinite(t *testing.T) {
	t.Parallel()
	negInf := float32(math.Inf(-1))
	s := NewSampler(SamplerConfig{Seed: 3, Temperature: 0.7, TopP: 0.9})
	for _, id := range drawN(t, s, []float32{negInf, float32(math.NaN()), 1}, 20) {
		if id != 2 {
			t.Fatalf("expected only the finite logit, got %d", id)
		}
	}
	if _, err := s.Sample([]float32{negInf, negInf}); !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("expected ErrNoCandidates, got %v", err)
	}
	if _, err := s.Sample(nil); err == nil {
		t.Fatal("expected error for empty logits")
	}
}

func TestSamplerConfigValidate(t *testing.T) {
	t.Parallel()
	for _, cfg := range []SamplerConfig{
		{Temperature: -1, TopP: 0.9},
		{Temperature: 0.7, TopP: 0},
		{Temperature: 0.7, TopP: 1.5},
	} {
		if err := cfg.Validate(); err == nil {
			t.Errorf("expected %+v to be rejected", cfg)
		}
	}
	if err := (SamplerConfig{Temperature: 0.7, TopP: 0.9}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFinalRow(t *testing.T) {
	t.Parallel()
	single := []float32{1, 2, 3}
	got, err := FinalRow(single, 3)
	if err != nil || len(got) != 3 {
		t.Fatalf("single row: %v %v", got, err)
	}
	got, err = FinalRow([]float32{1, 2, 3, 4, 5, 6, 7, 8, 9}, 3)
	if err != nil {
		t.Fatalf("multi row: %v", err)
	}
	if diff := cmp.Diff([]float32{7, 8, 9}, got); diff != "" {
		t.Fatalf("final row (-want +got):\n%s", diff)
	}
	if _, err := FinalRow([]float32{1, 2, 3, 4}, 3); err == nil {
		t.Fatal("expected ragged logits to fail")
	}
}
