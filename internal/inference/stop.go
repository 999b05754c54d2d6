package inference

import (
	"fmt"
	"strings"
)

// FallbackEOS is used when the vocabulary has no "</s>" entry.
const FallbackEOS uint32 = 2

// Sentinels end generation when they appear inside a sampled token's raw
// vocabulary string. They cover role tags the model might start to emit.
var Sentinels = []string{"</s>", "<|user|>", "<|system|>"}

type StopKind int

const (
	StopNone StopKind = iota
	StopEOS
	StopSentinel
	StopReserveExhausted
)

func (k StopKind) String() string {
	switch k {
	case StopEOS:
		return "eos"
	case StopSentinel:
		return "sentinel"
	case StopReserveExhausted:
		return "reserve_exhausted"
	default:
		return "none"
	}
}

// StopSignal records why generation ended. Sentinel is set for StopSentinel.
type StopSignal struct {
	Kind     StopKind
	Sentinel string
}

func (s StopSignal) String() string {
	if s.Kind == StopSentinel {
		return fmt.Sprintf("%s(%q)", s.Kind, s.Sentinel)
	}
	return s.Kind.String()
}

// EOSConfigured is implemented by tokenizers that were told their EOS token
// by a tokenizer config.
type EOSConfigured interface {
	EOSID() (uint32, bool)
}

// ResolveEOS returns the end-of-sequence id for tok: the configured id,
// then the "</s>" entry, then FallbackEOS.
func ResolveEOS(tok Tokenizer) uint32 {
	if c, ok := tok.(EOSConfigured); ok {
		if id, ok := c.EOSID(); ok {
			return id
		}
	}
	if id, ok := tok.TokenToID("</s>"); ok {
		return id
	}
	return FallbackEOS
}

func matchSentinel(raw string) (string, bool) {
	for _, s := range Sentinels {
		if strings.Contains(raw, s) {
			return s, true
		}
	}
	return "", false
}
