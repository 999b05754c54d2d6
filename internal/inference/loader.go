package inference

import (
	"context"
	"errors"
	"fmt"

	"github.com/samcharles93/logtrains/internal/assets"
	"github.com/samcharles93/logtrains/internal/backend"
	"github.com/samcharles93/logtrains/internal/logger"
	"github.com/samcharles93/logtrains/internal/tokenizer"
)

// ProviderFactory opens a model on a device.
type ProviderFactory interface {
	// InitDevice is tried for each accelerator during device selection.
	InitDevice(dev backend.Device) error
	Open(ctx context.Context, weightPath string, dev backend.Device, cfg GenerationConfig) (Provider, error)
}

// Loader resolves assets, loads the tokenizer, selects a device and opens
// the provider.
type Loader struct {
	Resolver *assets.Resolver
	Factory  ProviderFactory
	Platform backend.Platform
	Log      logger.Logger
}

type LoadRequest struct {
	Assets assets.ModelAssetSpec
	Device string
	Config GenerationConfig
}

func (l Loader) Load(ctx context.Context, req LoadRequest) (*Engine, assets.ResolvedAssets, error) {
	log := l.Log
	if log == nil {
		log = logger.Discard()
	}
	if l.Resolver == nil || l.Factory == nil {
		return nil, assets.ResolvedAssets{}, errors.New("loader requires a resolver and a provider factory")
	}
	// Configuration errors surface before any network or model work.
	if err := req.Config.Validate(); err != nil {
		return nil, assets.ResolvedAssets{}, err
	}
	prefs, err := backend.Preferences(req.Device)
	if err != nil {
		return nil, assets.ResolvedAssets{}, &ConfigError{Field: "device", Reason: err.Error()}
	}

	resolved, err := l.Resolver.Resolve(ctx, req.Assets)
	if err != nil {
		return nil, resolved, err
	}

	tok, err := tokenizer.Load(resolved.TokenizerFilePath, resolved.TokenizerConfigPath)
	if err != nil {
		return nil, resolved, tokenizationError("load "+resolved.TokenizerFilePath, err)
	}
	log.Debug("tokenizer loaded", "source", resolved.TokenizerSource, "mode", tok.Mode().String(), "vocab", tok.VocabSize())

	dev := backend.Select(log, prefs, l.Platform, l.Factory.InitDevice)

	provider, err := l.Factory.Open(ctx, resolved.WeightFilePath, dev, req.Config)
	if err != nil {
		return nil, resolved, fmt.Errorf("%w: open model: %w", ErrInference, err)
	}
	eng, err := NewEngine(tok, provider, dev, req.Config, log)
	if err != nil {
		return nil, resolved, errors.Join(err, provider.Close())
	}
	return eng, resolved, nil
}
