package assets

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type fakeFetcher struct {
	files map[string]string
	errs  map[string]error
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, registryID, fileName string) (string, error) {
	key := registryID + "/" + fileName
	f.calls = append(f.calls, key)
	if err, ok := f.errs[key]; ok {
		return "", err
	}
	if p, ok := f.files[key]; ok {
		return p, nil
	}
	return "", ErrNotFound
}

func TestResolveFromPrimary(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{files: map[string]string{
		"org/model-GGUF/model.gguf":            "/cache/model.gguf",
		"org/model-GGUF/tokenizer.json":        "/cache/tokenizer.json",
		"org/model-GGUF/tokenizer_config.json": "/cache/tokenizer_config.json",
	}}
	r := &Resolver{Fetcher: f}
	got, err := r.Resolve(context.Background(), ModelAssetSpec{
		RegistryID:             "org/model-GGUF",
		WeightFileName:         "model.gguf",
		TokenizerFallbackChain: []string{"org/base"},
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := ResolvedAssets{
		WeightFilePath:      "/cache/model.gguf",
		TokenizerFilePath:   "/cache/tokenizer.json",
		TokenizerSource:     "org/model-GGUF",
		TokenizerConfigPath: "/cache/tokenizer_config.json",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("resolved assets (-want +got):\n%s", diff)
	}
	wantCalls := []string{"org/model-GGUF/model.gguf", "org/model-GGUF/tokenizer.json", "org/model-GGUF/tokenizer_config.json"}
	if diff := cmp.Diff(wantCalls, f.calls); diff != "" {
		t.Fatalf("fetch calls (-want +got):\n%s", diff)
	}
}

func TestResolveWalksFallbackChainOnce(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{
		files: map[string]string{
			"org/model-GGUF/model.gguf": "/cache/model.gguf",
			"org/second/tokenizer.json": "/cache/second/tokenizer.json",
			"org/third/tokenizer.json":  "/cache/third/tokenizer.json",
		},
		errs: map[string]error{"org/first/tokenizer.json": ErrNetwork},
	}
	r := &Resolver{Fetcher: f}
	got, err := r.Resolve(context.Background(), ModelAssetSpec{
		RegistryID:             "org/model-GGUF",
		WeightFileName:         "model.gguf",
		TokenizerFallbackChain: []string{"org/first", "org/second", "org/third"},
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.TokenizerFilePath != "/cache/second/tokenizer.json" || got.TokenizerSource != "org/second" {
		t.Fatalf("unexpected tokenizer: %+v", got)
	}
	if got.TokenizerConfigPath != "" {
		t.Fatalf("missing tokenizer config should leave the path empty, got %q", got.TokenizerConfigPath)
	}
	wantCalls := []string{
		"org/model-GGUF/model.gguf",
		"org/model-GGUF/tokenizer.json",
		"org/first/tokenizer.json",
		"org/second/tokenizer.json",
		"org/second/tokenizer_config.json",
	}
	if diff := cmp.Diff(wantCalls, f.calls); diff != "" {
		t.Fatalf("fetch calls (-want +got):\n%s", diff)
	}
}

func TestResolveWeightMissing(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{}
	r := &Resolver{Fetcher: f}
	_, err := r.Resolve(context.Background(), ModelAssetSpec{RegistryID: "org/m", WeightFileName: "m.gguf"})
	if !errors.Is(err, ErrAssetResolution) || !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected resolution + not found error, got %v", err)
	}
	var re *ResolutionError
	if !errors.As(err, &re) || re.File != "m.gguf" {
		t.Fatalf("expected ResolutionError for weight file, got %#v", err)
	}
	if len(f.calls) != 1 {
		t.Fatalf("tokenizer must not be fetched when weights fail, calls=%v", f.calls)
	}
}

func TestResolveTokenizerChainExhausted(t *testing.T) {
	t.Parallel()
	f := &fakeFetcher{files: map[string]string{"org/m/m.gguf": "/cache/m.gguf"}}
	r := &Resolver{Fetcher: f}
	_, err := r.Resolve(context.Background(), ModelAssetSpec{
		RegistryID:             "org/m",
		WeightFileName:         "m.gguf",
		TokenizerFallbackChain: []string{"org/a", "org/b"},
	})
	if !errors.Is(err, ErrAssetResolution) {
		t.Fatalf("expected resolution error, got %v", err)
	}
	if len(f.calls) != 4 {
		t.Fatalf("expected each source tried once, calls=%v", f.calls)
	}
}

func TestResolveValidatesWeights(t *testing.T) {
	t.Parallel()
	bad := errors.New("not a gguf file")
	f := &fakeFetcher{files: map[string]string{
		"org/m/m.gguf":         "/cache/m.gguf",
		"org/m/tokenizer.json": "/cache/tokenizer.json",
	}}
	r := &Resolver{Fetcher: f, Validate: func(string) error { return bad }}
	_, err := r.Resolve(context.Background(), ModelAssetSpec{RegistryID: "org/m", WeightFileName: "m.gguf"})
	if !errors.Is(err, bad) || !errors.Is(err, ErrAssetResolution) {
		t.Fatalf("expected validation failure, got %v", err)
	}
}

func TestDefaultTokenizerFallbacks(t *testing.T) {
	t.Parallel()
	if got := DefaultTokenizerFallbacks("TheBloke/Mistral-7B-Instruct-v0.2-GGUF"); got[0] != "mistralai/Mistral-7B-Instruct-v0.2" {
		t.Fatalf("unexpected mistral fallback: %v", got)
	}
	if got := DefaultTokenizerFallbacks(DefaultRepo); got[0] != "TinyLlama/TinyLlama-1.1B-Chat-v1.0" {
		t.Fatalf("unexpected default fallback: %v", got)
	}
}

func TestCachePathRejectsTraversal(t *testing.T) {
	t.Parallel()
	h := &HubFetcher{CacheDir: "/tmp/cache"}
	if _, err := h.CachePath("org/../etc", "passwd"); err == nil {
		t.Fatal("expected traversal to be rejected")
	}
	got, err := h.CachePath("org/repo", "tokenizer.json")
	if err != nil {
		t.Fatalf("cache path: %v", err)
	}
	if got != filepath.Join("/tmp/cache", "org", "repo", "tokenizer.json") {
		t.Fatalf("unexpected cache path %q", got)
	}
}
