package main

import (
	"github.com/samcharles93/logtrains/internal/assets"
	"github.com/samcharles93/logtrains/internal/inference"
	"github.com/samcharles93/logtrains/internal/logits"
)

// options holds every setting after flags, environment and the config
// file have been layered.
type options struct {
	modelRepo          string
	weightFile         string
	tokenizerFile      string
	tokenizerFallbacks []string
	cacheDir           string
	updateModel        bool
	offline            bool
	hfToken            string
	hfEndpoint         string
	llamaLib           string

	device       string
	templatePath string

	maxContext  int64
	genReserve  int64
	sysPreserve int64
	temperature float64
	topP        float64
	seed        uint64

	render    string
	noHistory bool
	historyDB string

	logLevel  string
	logFormat string
	debug     bool

	serveAddr  string
	rateLimit  float64
	rateBurst  int64
	configPath string
}

func defaultOptions() options {
	return options{
		modelRepo:     assets.DefaultRepo,
		weightFile:    assets.DefaultWeightFile,
		tokenizerFile: assets.TokenizerFile,
		device:        "auto",
		maxContext:    inference.DefaultMaxContextTokens,
		genReserve:    inference.DefaultGenerationReserve,
		sysPreserve:   inference.DefaultSystemPreserveTokens,
		temperature:   inference.DefaultTemperature,
		topP:          inference.DefaultTopP,
		seed:          logits.DefaultSeed,
		render:        renderAuto,
		logLevel:      "warn",
		logFormat:     "pretty",
		serveAddr:     "127.0.0.1:8080",
		rateLimit:     2,
		rateBurst:     4,
	}
}

func (o *options) generationConfig() inference.GenerationConfig {
	return inference.GenerationConfig{
		MaxContextTokens:     int(o.maxContext),
		GenerationReserve:    int(o.genReserve),
		SystemPreserveTokens: int(o.sysPreserve),
		Temperature:          float32(o.temperature),
		TopP:                 float32(o.topP),
		Seed:                 o.seed,
	}
}

func (o *options) assetSpec() assets.ModelAssetSpec {
	fallbacks := o.tokenizerFallbacks
	if len(fallbacks) == 0 {
		fallbacks = assets.DefaultTokenizerFallbacks(o.modelRepo)
	}
	return assets.ModelAssetSpec{
		RegistryID:             o.modelRepo,
		WeightFileName:         o.weightFile,
		TokenizerFileName:      o.tokenizerFile,
		TokenizerFallbackChain: fallbacks,
	}
}

func (o *options) effectiveLogLevel() string {
	if o.debug {
		return "debug"
	}
	return o.logLevel
}
