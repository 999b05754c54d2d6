// Package tokenizer implements Hugging Face tokenizer.json BPE models in
// both flavours logtrains meets in practice: byte-level (GPT-2 family) and
// metaspace with byte fallback (Llama/SentencePiece family).
package tokenizer

import (
	"errors"
	"os"
)

// Tokenizer is the contract the generation loop depends on.
type Tokenizer interface {
	Encode(text string) ([]uint32, error)
	Decode(ids []uint32) (string, error)
	IDToToken(id uint32) (string, bool)
	TokenToID(token string) (uint32, bool)
}

// ErrMalformed is wrapped by every load failure caused by the artifact
// itself rather than I/O.
var ErrMalformed = errors.New("malformed tokenizer")

// Load reads a tokenizer.json file. tokConfig is an optional
// tokenizer_config.json path and may be empty.
func Load(tokJSON, tokConfig string) (*HFTokenizer, error) {
	data, err := os.ReadFile(tokJSON)
	if err != nil {
		return nil, err
	}
	var cfg []byte
	if tokConfig != "" {
		if raw, err := os.ReadFile(tokConfig); err == nil {
			cfg = raw
		}
	}
	return LoadBytes(data, cfg)
}
