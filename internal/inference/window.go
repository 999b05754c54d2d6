package inference

import "github.com/samcharles93/logtrains/internal/logger"

// BoundTokens enforces the input budget by dropping the middle of an
// over-long prompt: the first SystemPreserveTokens and the most recent
// tail are kept, and the result is exactly InputBudget long. Prompts within
// budget are returned unchanged. The input slice is never modified.
func BoundTokens(tokens []uint32, cfg GenerationConfig, log logger.Logger) ([]uint32, error) {
	if err := cfg.validateWindow(); err != nil {
		return nil, err
	}
	budget := cfg.InputBudget()
	if len(tokens) <= budget {
		return tokens, nil
	}
	keepTail := budget - cfg.SystemPreserveTokens
	out := make([]uint32, 0, budget)
	out = append(out, tokens[:cfg.SystemPreserveTokens]...)
	out = append(out, tokens[len(tokens)-keepTail:]...)
	if log != nil {
		log.Warn("input truncated", "original", len(tokens), "truncated", len(out))
	}
	return out, nil
}
