package main

import (
	"context"
	"io"

	"github.com/samcharles93/logtrains/internal/assets"
	"github.com/samcharles93/logtrains/internal/backend"
	"github.com/samcharles93/logtrains/internal/gguf"
	"github.com/samcharles93/logtrains/internal/inference"
	"github.com/samcharles93/logtrains/internal/logger"
	"github.com/samcharles93/logtrains/internal/provider/llamacpp"
)

func newFetcher(o *options, log logger.Logger, progress io.Writer) *assets.HubFetcher {
	f := &assets.HubFetcher{
		Endpoint: o.hfEndpoint,
		CacheDir: o.cacheDir,
		Token:    o.hfToken,
		Force:    o.updateModel,
		Offline:  o.offline,
		Log:      log,
	}
	if progress != nil {
		f.Progress = newProgressPrinter(progress).Update
	}
	return f
}

// loadEngine resolves the model files and opens an engine on the best
// available device.
func loadEngine(ctx context.Context, o *options, progress io.Writer) (*inference.Engine, assets.ResolvedAssets, error) {
	log := logger.FromContext(ctx)
	libPath := o.llamaLib
	if libPath == "" {
		libPath = llamacpp.DefaultLibPath()
	}
	loader := inference.Loader{
		Resolver: &assets.Resolver{
			Fetcher:  newFetcher(o, log, progress),
			Log:      log,
			Validate: gguf.Validate,
		},
		Factory:  &llamacpp.Factory{LibPath: libPath, Log: log},
		Platform: backend.DetectPlatform(),
		Log:      log,
	}
	return loader.Load(ctx, inference.LoadRequest{
		Assets: o.assetSpec(),
		Device: o.device,
		Config: o.generationConfig(),
	})
}

func loadTemplate(o *options) (*string, error) {
	return inference.LoadTemplate(o.templatePath)
}
