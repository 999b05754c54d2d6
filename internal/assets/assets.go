// Package assets resolves the model weight file and a tokenizer for it.
package assets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samcharles93/logtrains/internal/fallback"
	"github.com/samcharles93/logtrains/internal/logger"
)

const (
	DefaultRepo       = "TheBloke/TinyLlama-1.1B-Chat-v1.0-GGUF"
	DefaultWeightFile = "tinyllama-1.1b-chat-v1.0.Q4_K_M.gguf"
	TokenizerFile     = "tokenizer.json"
	// TokenizerConfigFile carries the BOS/EOS names; it is optional.
	TokenizerConfigFile = "tokenizer_config.json"
)

var (
	// ErrNotFound is returned by a Fetcher when the source does not carry
	// the requested file.
	ErrNotFound = errors.New("asset not found")
	// ErrNetwork is returned by a Fetcher for transport failures.
	ErrNetwork = errors.New("asset fetch failed")
	// ErrAssetResolution marks every error returned by Resolver.Resolve.
	ErrAssetResolution = errors.New("asset resolution failed")
)

// Fetcher obtains a single file from a registry source and returns its
// local path.
type Fetcher interface {
	Fetch(ctx context.Context, registryID, fileName string) (string, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, registryID, fileName string) (string, error)

func (f FetcherFunc) Fetch(ctx context.Context, registryID, fileName string) (string, error) {
	return f(ctx, registryID, fileName)
}

// ModelAssetSpec names where the weights live and where a tokenizer may be
// found when the weight repository has none.
type ModelAssetSpec struct {
	RegistryID             string
	WeightFileName         string
	TokenizerFileName      string
	TokenizerFallbackChain []string
}

// ResolvedAssets are local paths owned by the engine built from them.
type ResolvedAssets struct {
	WeightFilePath    string
	TokenizerFilePath string
	// TokenizerSource is the registry id that supplied the tokenizer.
	TokenizerSource string
	// TokenizerConfigPath is empty when the source has no tokenizer_config.json.
	TokenizerConfigPath string
}

// ResolutionError describes which file could not be obtained.
type ResolutionError struct {
	RegistryID string
	File       string
	Err        error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s from %s: %v", e.File, e.RegistryID, e.Err)
}

func (e *ResolutionError) Unwrap() []error { return []error{ErrAssetResolution, e.Err} }

// DefaultTokenizerFallbacks returns the base repository whose tokenizer
// matches the quantised repo family.
func DefaultTokenizerFallbacks(registryID string) []string {
	if strings.Contains(strings.ToLower(registryID), "mistral") {
		return []string{"mistralai/Mistral-7B-Instruct-v0.2"}
	}
	return []string{"TinyLlama/TinyLlama-1.1B-Chat-v1.0"}
}

// Resolver turns a ModelAssetSpec into local files.
type Resolver struct {
	Fetcher Fetcher
	Log     logger.Logger
	// Validate, when set, checks the weight file after it is fetched.
	Validate func(path string) error
}

// Resolve fetches the weight file, then the tokenizer from the primary
// repository, then from each fallback in order. Every source is tried once.
func (r *Resolver) Resolve(ctx context.Context, spec ModelAssetSpec) (ResolvedAssets, error) {
	log := r.Log
	if log == nil {
		log = logger.Discard()
	}
	if r.Fetcher == nil {
		return ResolvedAssets{}, &ResolutionError{RegistryID: spec.RegistryID, File: spec.WeightFileName, Err: errors.New("no fetcher configured")}
	}
	if strings.TrimSpace(spec.RegistryID) == "" || strings.TrimSpace(spec.WeightFileName) == "" {
		return ResolvedAssets{}, &ResolutionError{RegistryID: spec.RegistryID, File: spec.WeightFileName, Err: errors.New("registry id and weight file are required")}
	}
	tokFile := spec.TokenizerFileName
	if tokFile == "" {
		tokFile = TokenizerFile
	}

	log.Info("locating model", "repo", spec.RegistryID, "file", spec.WeightFileName)
	weights, err := r.Fetcher.Fetch(ctx, spec.RegistryID, spec.WeightFileName)
	if err != nil {
		return ResolvedAssets{}, &ResolutionError{RegistryID: spec.RegistryID, File: spec.WeightFileName, Err: err}
	}
	if r.Validate != nil {
		if err := r.Validate(weights); err != nil {
			return ResolvedAssets{}, &ResolutionError{RegistryID: spec.RegistryID, File: spec.WeightFileName, Err: err}
		}
	}

	sources := append([]string{spec.RegistryID}, spec.TokenizerFallbackChain...)
	attempts := make([]fallback.Attempt[string], 0, len(sources))
	for _, src := range sources {
		attempts = append(attempts, fallback.Attempt[string]{
			Name: src,
			Run: func(ctx context.Context) (string, error) {
				return r.Fetcher.Fetch(ctx, src, tokFile)
			},
		})
	}
	tokPath, idx, err := fallback.First(ctx, attempts, func(name string, err error) {
		log.Info("tokenizer not found, trying fallback", "repo", name, "err", err)
	})
	if err != nil {
		return ResolvedAssets{}, &ResolutionError{RegistryID: strings.Join(sources, ","), File: tokFile, Err: err}
	}
	if idx > 0 {
		log.Info("using fallback tokenizer", "repo", sources[idx])
	}
	resolved := ResolvedAssets{
		WeightFilePath:    weights,
		TokenizerFilePath: tokPath,
		TokenizerSource:   sources[idx],
	}
	if tokFile == TokenizerFile {
		cfgPath, err := r.Fetcher.Fetch(ctx, sources[idx], TokenizerConfigFile)
		if err != nil {
			log.Debug("no tokenizer config", "repo", sources[idx], "err", err)
		} else {
			resolved.TokenizerConfigPath = cfgPath
		}
	}
	return resolved, nil
}
