package inference

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
)

// fakeVocab: 0 <unk>, 1 <s>, 2 </s>, 3 a, 4 b, 5 <|user|>, 6 x</s>, 7 c
var fakeVocab = []string{"<unk>", "<s>", "</s>", "a", "b", "<|user|>", "x</s>", "c"}

type fakeTokenizer struct {
	mu        sync.Mutex
	lastText  string
	encodeErr error
	panics    bool
}

func (f *fakeTokenizer) Encode(text string) ([]uint32, error) {
	if f.panics {
		panic("boom")
	}
	if f.encodeErr != nil {
		return nil, f.encodeErr
	}
	f.mu.Lock()
	f.lastText = text
	f.mu.Unlock()
	ids := []uint32{1}
	for _, r := range text {
		switch r {
		case 'a':
			ids = append(ids, 3)
		case 'b':
			ids = append(ids, 4)
		default:
			ids = append(ids, 7)
		}
	}
	return ids, nil
}

func (f *fakeTokenizer) Decode(ids []uint32) (string, error) {
	var b strings.Builder
	for _, id := range ids {
		if int(id) >= len(fakeVocab) {
			return "", errors.New("id out of range")
		}
		b.WriteString(fakeVocab[id])
	}
	return b.String(), nil
}

func (f *fakeTokenizer) IDToToken(id uint32) (string, bool) {
	if int(id) >= len(fakeVocab) {
		return "", false
	}
	return fakeVocab[id], true
}

func (f *fakeTokenizer) TokenToID(token string) (uint32, bool) {
	for i, v := range fakeVocab {
		if v == token {
			return uint32(i), true
		}
	}
	return 0, false
}

func (f *fakeTokenizer) prompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastText
}

type forwardCall struct {
	WindowLen int
	StartPos  int
	First     uint32
}

// scriptedProvider returns one-hot logits selecting script[i] on call i.
// Multi-token windows get one row per position with the script on the last.
type scriptedProvider struct {
	script []uint32
	vocab  int
	calls  []forwardCall
	err    error
	panics bool
	resets int
	closed bool

	entered chan struct{}
	release chan struct{}
}

func newScripted(script ...uint32) *scriptedProvider {
	return &scriptedProvider{script: script, vocab: len(fakeVocab)}
}

func (p *scriptedProvider) Forward(ctx context.Context, window []uint32, startPos int) ([]float32, error) {
	if p.entered != nil {
		close(p.entered)
		p.entered = nil
		<-p.release
	}
	if p.panics {
		panic("kernel fault")
	}
	if p.err != nil {
		return nil, p.err
	}
	p.calls = append(p.calls, forwardCall{WindowLen: len(window), StartPos: startPos, First: window[0]})
	next := uint32(3)
	if i := len(p.calls) - 1; i < len(p.script) {
		next = p.script[i]
	}
	out := make([]float32, p.vocab*len(window))
	row := out[len(out)-p.vocab:]
	row[next] = 20
	return out, nil
}

func (p *scriptedProvider) VocabSize() int { return p.vocab }
func (p *scriptedProvider) Reset() error   { p.resets++; return nil }
func (p *scriptedProvider) Close() error   { p.closed = true; return nil }

// flatProvider returns the same spread of logits every step, with the stop
// tokens masked out, so sampling draws from several candidates.
type flatProvider struct{}

func (flatProvider) Forward(context.Context, []uint32, int) ([]float32, error) {
	ninf := float32(math.Inf(-1))
	return []float32{ninf, ninf, ninf, 1.0, 0.8, ninf, ninf, 0.9}, nil
}
func (flatProvider) VocabSize() int { return len(fakeVocab) }
func (flatProvider) Close() error   { return nil }

type recordingSink struct {
	pieces []string
	failAt int
	onEmit func(n int)
}

func (s *recordingSink) Emit(token string) error {
	s.pieces = append(s.pieces, token)
	if s.onEmit != nil {
		s.onEmit(len(s.pieces))
	}
	if s.failAt > 0 && len(s.pieces) == s.failAt {
		return errors.New("broken pipe")
	}
	return nil
}

func greedyConfig() GenerationConfig {
	cfg := DefaultGenerationConfig()
	cfg.Temperature = 0
	return cfg
}
