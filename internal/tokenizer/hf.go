package tokenizer

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/goccy/go-json"
)

// Mode is the pre-tokenization scheme of a BPE model.
type Mode int

const (
	// ModeByteLevel maps every input byte to a printable rune before BPE.
	ModeByteLevel Mode = iota
	// ModeMetaspace replaces spaces with "▁" and falls back to <0xXX>
	// byte tokens for symbols outside the vocabulary.
	ModeMetaspace
)

const metaspace = "▁"

func (m Mode) String() string {
	if m == ModeMetaspace {
		return "metaspace"
	}
	return "byte-level"
}

type HFTokenizer struct {
	mode         Mode
	encoder      map[string]uint32
	decoder      []string
	bpeRanks     map[Pair]int
	cache        map[string][]string
	byteEncoder  map[byte]string
	byteDecoder  map[rune]byte
	pattern      *regexp.Regexp
	prepend      string
	byteFallback bool
	addBOS       bool
	addEOS       bool
	bosID        int64
	eosID        int64
	unkID        int64
	ignoreMerges bool
	special      []string
	specialSet   map[string]struct{}
}

type hfPreTokenizer struct {
	Type          string `json:"type"`
	Replacement   string `json:"replacement"`
	PrependScheme string `json:"prepend_scheme"`
	AddPrefix     *bool  `json:"add_prefix_space"`
	Pattern       struct {
		Regex string `json:"Regex"`
	} `json:"pattern"`
	Pretokenizers []hfPreTokenizer `json:"pretokenizers"`
}

type hfNormalizer struct {
	Type        string         `json:"type"`
	Prepend     string         `json:"prepend"`
	Normalizers []hfNormalizer `json:"normalizers"`
}

type hfTemplatePiece struct {
	SpecialToken *struct {
		ID string `json:"id"`
	} `json:"SpecialToken"`
}

type hfSpecialTokens map[string]struct {
	IDs []int64 `json:"ids"`
}

type hfPostProcessor struct {
	Type          string            `json:"type"`
	Single        []hfTemplatePiece `json:"single"`
	SpecialTokens hfSpecialTokens   `json:"special_tokens"`
	Processors    []hfPostProcessor `json:"processors"`
}

type hfTokenizerJSON struct {
	Model struct {
		Type         string            `json:"type"`
		Vocab        map[string]uint32 `json:"vocab"`
		Merges       []any             `json:"merges"`
		IgnoreMerges bool              `json:"ignore_merges"`
		ByteFallback bool              `json:"byte_fallback"`
		UnkToken     *string           `json:"unk_token"`
	} `json:"model"`
	Normalizer    *hfNormalizer    `json:"normalizer"`
	PreTokenizer  *hfPreTokenizer  `json:"pre_tokenizer"`
	PostProcessor *hfPostProcessor `json:"post_processor"`
	AddedTokens   []struct {
		ID      uint32 `json:"id"`
		Content string `json:"content"`
		Special bool   `json:"special"`
	} `json:"added_tokens"`
}

type hfTokenizerConfig struct {
	AddBOS *bool           `json:"add_bos_token"`
	AddEOS *bool           `json:"add_eos_token"`
	BOS    json.RawMessage `json:"bos_token"`
	EOS    json.RawMessage `json:"eos_token"`
}

// tokenName accepts both "<s>" and {"content":"<s>",...} spellings.
func tokenName(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Content
	}
	return ""
}

// LoadBytes parses tokenizer.json contents and an optional
// tokenizer_config.json.
func LoadBytes(tokJSON []byte, tokConfig []byte) (*HFTokenizer, error) {
	var tj hfTokenizerJSON
	if err := json.Unmarshal(tokJSON, &tj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if strings.ToUpper(tj.Model.Type) != "BPE" {
		return nil, fmt.Errorf("%w: unsupported tokenizer model %q", ErrMalformed, tj.Model.Type)
	}
	if len(tj.Model.Vocab) == 0 {
		return nil, fmt.Errorf("%w: empty vocabulary", ErrMalformed)
	}

	encoder := make(map[string]uint32, len(tj.Model.Vocab)+len(tj.AddedTokens))
	maxID := uint32(0)
	for tok, id := range tj.Model.Vocab {
		encoder[tok] = id
		maxID = max(maxID, id)
	}
	for _, at := range tj.AddedTokens {
		encoder[at.Content] = at.ID
		maxID = max(maxID, at.ID)
	}
	decoder := make([]string, maxID+1)
	for tok, id := range encoder {
		decoder[id] = tok
	}

	bpeRanks := make(map[Pair]int, len(tj.Model.Merges))
	rank := 0
	for _, raw := range tj.Model.Merges {
		var a, b string
		switch v := raw.(type) {
		case string:
			left, right, ok := strings.Cut(strings.TrimSpace(v), " ")
			if !ok {
				continue
			}
			a, b = left, right
		case []any:
			if len(v) != 2 {
				continue
			}
			left, lok := v[0].(string)
			right, rok := v[1].(string)
			if !lok || !rok {
				continue
			}
			a, b = left, right
		default:
			continue
		}
		p := Pair{A: a, B: b}
		if _, ok := bpeRanks[p]; !ok {
			bpeRanks[p] = rank
			rank++
		}
	}

	t := &HFTokenizer{
		encoder:      encoder,
		decoder:      decoder,
		bpeRanks:     bpeRanks,
		cache:        make(map[string][]string),
		ignoreMerges: tj.Model.IgnoreMerges,
		byteFallback: tj.Model.ByteFallback,
		bosID:        -1,
		eosID:        -1,
		unkID:        -1,
		specialSet:   make(map[string]struct{}),
	}
	t.mode, t.prepend = detectMode(tj)
	if t.mode == ModeByteLevel {
		t.byteEncoder, t.byteDecoder = bytesToUnicode()
		t.pattern = buildHFPattern(tj.PreTokenizer)
	}

	var specials []string
	for _, at := range tj.AddedTokens {
		specials = append(specials, at.Content)
		if at.Special {
			t.specialSet[at.Content] = struct{}{}
		}
	}
	for _, tok := range decoder {
		if isChatMarker(tok) {
			specials = append(specials, tok)
			t.specialSet[tok] = struct{}{}
		}
	}
	t.special = sortSpecials(specials)

	if tj.Model.UnkToken != nil {
		if id, ok := encoder[*tj.Model.UnkToken]; ok {
			t.unkID = int64(id)
		}
	}
	if tj.PostProcessor != nil {
		t.applyPostProcessor(*tj.PostProcessor)
	}

	if len(tokConfig) > 0 {
		var cfg hfTokenizerConfig
		if err := json.Unmarshal(tokConfig, &cfg); err != nil {
			return nil, fmt.Errorf("%w: tokenizer config: %v", ErrMalformed, err)
		}
		if cfg.AddBOS != nil {
			t.addBOS = *cfg.AddBOS
		}
		if cfg.AddEOS != nil {
			t.addEOS = *cfg.AddEOS
		}
		if id, ok := encoder[tokenName(cfg.BOS)]; ok {
			t.bosID = int64(id)
		}
		if id, ok := encoder[tokenName(cfg.EOS)]; ok {
			t.eosID = int64(id)
		}
	}
	return t, nil
}

// detectMode picks metaspace when any stage of the pipeline speaks "▁".
func detectMode(tj hfTokenizerJSON) (Mode, string) {
	if pre := tj.PreTokenizer; pre != nil {
		for _, p := range append([]hfPreTokenizer{*pre}, pre.Pretokenizers...) {
			if p.Type != "Metaspace" {
				continue
			}
			scheme := p.PrependScheme
			if scheme == "" {
				scheme = "always"
				if p.AddPrefix != nil && !*p.AddPrefix {
					scheme = "never"
				}
			}
			if scheme == "never" {
				return ModeMetaspace, ""
			}
			return ModeMetaspace, metaspace
		}
	}
	if n := tj.Normalizer; n != nil {
		for _, nn := range append([]hfNormalizer{*n}, n.Normalizers...) {
			if nn.Type == "Prepend" {
				return ModeMetaspace, nn.Prepend
			}
		}
	}
	if tj.Model.ByteFallback {
		return ModeMetaspace, ""
	}
	return ModeByteLevel, ""
}

func (t *HFTokenizer) applyPostProcessor(pp hfPostProcessor) {
	if pp.Type == "TemplateProcessing" {
		if len(pp.Single) > 0 && pp.Single[0].SpecialToken != nil {
			if spec, ok := pp.SpecialTokens[pp.Single[0].SpecialToken.ID]; ok && len(spec.IDs) > 0 {
				t.bosID = spec.IDs[0]
				t.addBOS = true
			}
		} else if len(pp.Single) == 0 {
			for _, spec := range pp.SpecialTokens {
				if len(spec.IDs) > 0 {
					t.bosID = spec.IDs[0]
					t.addBOS = true
					break
				}
			}
		}
	}
	for _, p := range pp.Processors {
		t.applyPostProcessor(p)
	}
}

func (t *HFTokenizer) Encode(text string) ([]uint32, error) {
	var ids []uint32
	if t.addBOS && t.bosID >= 0 {
		ids = append(ids, uint32(t.bosID))
	}
	for _, part := range splitSpecials(text, t.special) {
		if part.isSpecial {
			ids = append(ids, t.encoder[part.text])
			continue
		}
		var err error
		if t.mode == ModeMetaspace {
			ids, err = t.encodeMetaspace(ids, part.text)
		} else {
			ids, err = t.encodeByteLevel(ids, part.text)
		}
		if err != nil {
			return nil, err
		}
	}
	if t.addEOS && t.eosID >= 0 {
		ids = append(ids, uint32(t.eosID))
	}
	return ids, nil
}

var metaspaceWord = regexp.MustCompile(`▁*[^▁]+|▁+`)

func (t *HFTokenizer) encodeMetaspace(ids []uint32, text string) ([]uint32, error) {
	normalized := t.prepend + strings.ReplaceAll(text, " ", metaspace)
	for _, word := range metaspaceWord.FindAllString(normalized, -1) {
		for _, sym := range t.bpe(word) {
			if id, ok := t.encoder[sym]; ok {
				ids = append(ids, id)
				continue
			}
			if t.byteFallback {
				if byteIDs, ok := t.byteIDs(sym); ok {
					ids = append(ids, byteIDs...)
					continue
				}
			}
			if t.unkID >= 0 {
				ids = append(ids, uint32(t.unkID))
				continue
			}
			return nil, fmt.Errorf("unknown symbol %q and no unk token", sym)
		}
	}
	return ids, nil
}

func (t *HFTokenizer) byteIDs(sym string) ([]uint32, bool) {
	out := make([]uint32, 0, len(sym))
	for _, b := range []byte(sym) {
		id, ok := t.encoder[byteToken(b)]
		if !ok {
			return nil, false
		}
		out = append(out, id)
	}
	return out, true
}

func (t *HFTokenizer) encodeByteLevel(ids []uint32, text string) ([]uint32, error) {
	for _, chunk := range t.pattern.FindAllString(text, -1) {
		var b strings.Builder
		for _, by := range []byte(chunk) {
			b.WriteString(t.byteEncoder[by])
		}
		for _, sym := range t.bpe(b.String()) {
			id, ok := t.encoder[sym]
			if !ok {
				if t.unkID >= 0 {
					ids = append(ids, uint32(t.unkID))
					continue
				}
				return nil, fmt.Errorf("unknown symbol %q and no unk token", sym)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Decode renders ids as text. Metaspace tokenizers drop the single leading
// space introduced by the prepended "▁".
func (t *HFTokenizer) Decode(ids []uint32) (string, error) {
	var b []byte
	for _, id := range ids {
		piece, err := t.appendPiece(nil, id)
		if err != nil {
			return "", err
		}
		b = append(b, piece...)
	}
	if t.mode == ModeMetaspace && t.prepend != "" && len(b) > 0 && b[0] == ' ' {
		b = b[1:]
	}
	return string(b), nil
}

// DecodePiece renders one token as it appears inside running text, keeping
// its leading space. Byte-fallback tokens may yield partial UTF-8.
func (t *HFTokenizer) DecodePiece(id uint32) (string, error) {
	b, err := t.appendPiece(nil, id)
	return string(b), err
}

func (t *HFTokenizer) appendPiece(b []byte, id uint32) ([]byte, error) {
	if int(id) >= len(t.decoder) {
		return nil, fmt.Errorf("token id out of range: %d", id)
	}
	tok := t.decoder[id]
	if _, ok := t.specialSet[tok]; ok {
		return append(b, tok...), nil
	}
	if t.mode == ModeMetaspace {
		if by, ok := parseByteToken(tok); ok {
			return append(b, by), nil
		}
		return append(b, strings.ReplaceAll(tok, metaspace, " ")...), nil
	}
	for _, r := range tok {
		if by, ok := t.byteDecoder[r]; ok {
			b = append(b, by)
		} else {
			b = append(b, string(r)...)
		}
	}
	return b, nil
}

func (t *HFTokenizer) IDToToken(id uint32) (string, bool) {
	if int(id) >= len(t.decoder) || t.decoder[id] == "" {
		return "", false
	}
	return t.decoder[id], true
}

func (t *HFTokenizer) TokenToID(token string) (uint32, bool) {
	id, ok := t.encoder[token]
	return id, ok
}

func (t *HFTokenizer) Mode() Mode     { return t.mode }
func (t *HFTokenizer) VocabSize() int { return len(t.decoder) }

// EOSID returns the configured end-of-sequence id when tokenizer_config.json
// named one.
func (t *HFTokenizer) EOSID() (uint32, bool) {
	return uint32(t.eosID), t.eosID >= 0
}

func (t *HFTokenizer) bpe(token string) []string {
	if v, ok := t.cache[token]; ok {
		return v
	}
	if t.ignoreMerges {
		if _, ok := t.encoder[token]; ok {
			out := []string{token}
			t.cache[token] = out
			return out
		}
	}
	word := splitRunes(token)
	for len(word) > 1 {
		bestRank := math.MaxInt
		bestPair := Pair{}
		for i := 0; i+1 < len(word); i++ {
			p := Pair{A: word[i], B: word[i+1]}
			if rank, ok := t.bpeRanks[p]; ok && rank < bestRank {
				bestRank, bestPair = rank, p
			}
		}
		if bestRank == math.MaxInt {
			break
		}
		word = mergePair(word, bestPair)
	}
	t.cache[token] = word
	return word
}

func buildHFPattern(pre *hfPreTokenizer) *regexp.Regexp {
	pat := `'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+`
	if pre != nil {
		for _, p := range append([]hfPreTokenizer{*pre}, pre.Pretokenizers...) {
			if p.Type == "Split" && p.Pattern.Regex != "" {
				pat = p.Pattern.Regex
				break
			}
		}
	}
	// Go regexp has no lookahead; swap Llama 3 style patterns for the
	// llama.cpp equivalent.
	if strings.Contains(pat, `(?!\S)`) || strings.Contains(pat, "(?i:") {
		pat = `(?:'[sS]|'[tT]|'[rR][eE]|'[vV][eE]|'[mM]|'[lL][lL]|'[dD])|[^\r\n\p{L}\p{N}]?\p{L}+|\p{N}{1,3}| ?[^\s\p{L}\p{N}]+[\r\n]*|\s*[\r\n]+|\s+`
	}
	re, err := regexp.Compile(pat)
	if err != nil {
		return regexp.MustCompile(`'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+`)
	}
	return re
}
