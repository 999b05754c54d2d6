package inference

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/samcharles93/logtrains/internal/assets"
	"github.com/samcharles93/logtrains/internal/backend"
)

const loaderTokenizerJSON = `{
	"normalizer": {"type": "Prepend", "prepend": "▁"},
	"added_tokens": [
		{"id": 0, "content": "<unk>", "special": true},
		{"id": 1, "content": "<s>", "special": true},
		{"id": 2, "content": "</s>", "special": true}
	],
	"model": {
		"type": "BPE",
		"byte_fallback": true,
		"unk_token": "<unk>",
		"vocab": {"<unk>": 0, "<s>": 1, "</s>": 2, "▁": 3, "h": 4, "i": 5},
		"merges": []
	}
}`

type fakeFactory struct {
	initErr  error
	inits    []backend.Device
	openedOn backend.Device
	provider *scriptedProvider
}

func (f *fakeFactory) InitDevice(dev backend.Device) error {
	f.inits = append(f.inits, dev)
	return f.initErr
}

func (f *fakeFactory) Open(_ context.Context, _ string, dev backend.Device, _ GenerationConfig) (Provider, error) {
	f.openedOn = dev
	return f.provider, nil
}

func writeAssets(t *testing.T) assets.Fetcher {
	t.Helper()
	dir := t.TempDir()
	return assets.FetcherFunc(func(_ context.Context, repo, file string) (string, error) {
		path := filepath.Join(dir, file)
		body := "weights"
		switch file {
		case assets.TokenizerFile:
			body = loaderTokenizerJSON
		case assets.TokenizerConfigFile:
			body = `{"eos_token": {"content": "i"}}`
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			return "", err
		}
		return path, nil
	})
}

func TestLoaderLoad(t *testing.T) {
	t.Parallel()
	factory := &fakeFactory{initErr: errors.New("no driver"), provider: newScripted(2)}
	l := Loader{
		Resolver: &assets.Resolver{Fetcher: writeAssets(t)},
		Factory:  factory,
		Platform: backend.Platform{CUDA: true},
	}
	eng, resolved, err := l.Load(context.Background(), LoadRequest{
		Assets: assets.ModelAssetSpec{RegistryID: "org/model-GGUF", WeightFileName: "m.gguf"},
		Device: "auto",
		Config: DefaultGenerationConfig(),
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	defer eng.Close()

	if eng.Device() != backend.CPU || factory.openedOn != backend.CPU {
		t.Fatalf("expected cpu fallback, got %s", eng.Device())
	}
	if len(factory.inits) != 1 || factory.inits[0] != backend.CUDA {
		t.Fatalf("expected one cuda init attempt, got %v", factory.inits)
	}
	if resolved.TokenizerSource != "org/model-GGUF" {
		t.Fatalf("unexpected tokenizer source %q", resolved.TokenizerSource)
	}
	if resolved.TokenizerConfigPath == "" || eng.eos != 5 {
		t.Fatalf("tokenizer config not applied: path=%q eos=%d", resolved.TokenizerConfigPath, eng.eos)
	}
	if _, err := eng.Generate(context.Background(), "hi", nil); err != nil {
		t.Fatalf("generate: %v", err)
	}
}

func TestLoaderConfigErrorBeforeFetch(t *testing.T) {
	t.Parallel()
	fetches := 0
	fetcher := assets.FetcherFunc(func(context.Context, string, string) (string, error) {
		fetches++
		return "", assets.ErrNotFound
	})
	l := Loader{Resolver: &assets.Resolver{Fetcher: fetcher}, Factory: &fakeFactory{}}

	cfg := DefaultGenerationConfig()
	cfg.SystemPreserveTokens = cfg.InputBudget()
	_, _, err := l.Load(context.Background(), LoadRequest{Device: "cpu", Config: cfg})
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
	_, _, err = l.Load(context.Background(), LoadRequest{Device: "tpu", Config: DefaultGenerationConfig()})
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for unknown device, got %v", err)
	}
	if fetches != 0 {
		t.Fatalf("fetcher called %d times before config validation", fetches)
	}
}

func TestLoaderAssetFailure(t *testing.T) {
	t.Parallel()
	fetcher := assets.FetcherFunc(func(context.Context, string, string) (string, error) {
		return "", assets.ErrNetwork
	})
	l := Loader{Resolver: &assets.Resolver{Fetcher: fetcher}, Factory: &fakeFactory{}}
	_, _, err := l.Load(context.Background(), LoadRequest{
		Assets: assets.ModelAssetSpec{RegistryID: "org/model", WeightFileName: "m.gguf"},
		Device: "cpu",
		Config: DefaultGenerationConfig(),
	})
	if !errors.Is(err, assets.ErrAssetResolution) || !errors.Is(err, assets.ErrNetwork) {
		t.Fatalf("expected asset resolution error, got %v", err)
	}
}
