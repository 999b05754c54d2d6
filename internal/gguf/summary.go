package gguf

// Summary is the subset of metadata shown by `logtrains inspect` and used to
// sanity check a resolved weight file.
type Summary struct {
	Path          string
	Version       uint32
	TensorCount   uint64
	KVCount       uint64
	Architecture  string
	Name          string
	ContextLength uint64
	VocabSize     int
	TokenizerKind string
	BOSID         int64
	EOSID         int64
}

// Summarize extracts well-known keys. Missing ids are reported as -1.
func (f *File) Summarize() Summary {
	s := Summary{
		Path:        f.Path,
		Version:     f.Header.Version,
		TensorCount: f.Header.TensorCount,
		KVCount:     f.Header.KVCount,
		BOSID:       -1,
		EOSID:       -1,
	}
	s.Architecture, _ = GetString(f.KV, "general.architecture")
	s.Name, _ = GetString(f.KV, "general.name")
	s.TokenizerKind, _ = GetString(f.KV, "tokenizer.ggml.model")
	if s.Architecture != "" {
		s.ContextLength, _ = GetUint64(f.KV, s.Architecture+".context_length")
	}
	s.VocabSize, _ = ArrayLen(f.KV, "tokenizer.ggml.tokens")
	if v, ok := GetUint64(f.KV, "tokenizer.ggml.bos_token_id"); ok {
		s.BOSID = int64(v)
	}
	if v, ok := GetUint64(f.KV, "tokenizer.ggml.eos_token_id"); ok {
		s.EOSID = int64(v)
	}
	return s
}
