package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the logtrains configuration file (~/.config/logtrains/config.yaml).
// Every field is optional; flags set on the command line win.
type Config struct {
	ModelRepo          string   `yaml:"model_repo"`
	WeightFile         string   `yaml:"weight_file"`
	TokenizerFallbacks []string `yaml:"tokenizer_fallbacks"`
	CacheDir           string   `yaml:"cache_dir"`
	Offline            *bool    `yaml:"offline"`
	LlamaLib           string   `yaml:"llama_lib"`

	Device   string `yaml:"device"`
	Template string `yaml:"template"`

	MaxContext  *int64   `yaml:"max_context"`
	Reserve     *int64   `yaml:"reserve"`
	Preserve    *int64   `yaml:"preserve"`
	Temperature *float64 `yaml:"temperature"`
	TopP        *float64 `yaml:"top_p"`
	Seed        *uint64  `yaml:"seed"`

	Render    string `yaml:"render"`
	NoHistory *bool  `yaml:"no_history"`
	HistoryDB string `yaml:"history_db"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	Serve ServeConfig `yaml:"serve"`
}

type ServeConfig struct {
	Address   string   `yaml:"address"`
	RateLimit *float64 `yaml:"rate_limit"`
	RateBurst *int64   `yaml:"rate_burst"`
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "logtrains", "config.yaml")
}

// LoadConfig reads the config file. A missing file yields a zero Config and
// no error; a file that exists but does not parse is an error.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		path = defaultConfigPath()
	}
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// applyConfig copies config file values into o for every flag the user did
// not set explicitly.
func applyConfig(o *options, cfg Config, isSet func(name string) bool) {
	unset := func(names ...string) bool {
		for _, n := range names {
			if isSet(n) {
				return false
			}
		}
		return true
	}
	if cfg.ModelRepo != "" && unset("model-repo") {
		o.modelRepo = cfg.ModelRepo
	}
	if cfg.WeightFile != "" && unset("weight-file") {
		o.weightFile = cfg.WeightFile
	}
	if len(cfg.TokenizerFallbacks) > 0 && unset("tokenizer-fallback") {
		o.tokenizerFallbacks = cfg.TokenizerFallbacks
	}
	if cfg.CacheDir != "" && unset("cache-dir") {
		o.cacheDir = cfg.CacheDir
	}
	if cfg.Offline != nil && unset("offline") {
		o.offline = *cfg.Offline
	}
	if cfg.LlamaLib != "" && unset("llama-lib") {
		o.llamaLib = cfg.LlamaLib
	}
	if cfg.Device != "" && unset("device") {
		o.device = cfg.Device
	}
	if cfg.Template != "" && unset("template") {
		o.templatePath = cfg.Template
	}
	if cfg.MaxContext != nil && unset("max-context", "ctx") {
		o.maxContext = *cfg.MaxContext
	}
	if cfg.Reserve != nil && unset("reserve") {
		o.genReserve = *cfg.Reserve
	}
	if cfg.Preserve != nil && unset("preserve") {
		o.sysPreserve = *cfg.Preserve
	}
	if cfg.Temperature != nil && unset("temperature", "temp") {
		o.temperature = *cfg.Temperature
	}
	if cfg.TopP != nil && unset("top-p") {
		o.topP = *cfg.TopP
	}
	if cfg.Seed != nil && unset("seed") {
		o.seed = *cfg.Seed
	}
	if cfg.Render != "" && unset("render") {
		o.render = cfg.Render
	}
	if cfg.NoHistory != nil && unset("no-history") {
		o.noHistory = *cfg.NoHistory
	}
	if cfg.HistoryDB != "" && unset("history-db") {
		o.historyDB = cfg.HistoryDB
	}
	if cfg.LogLevel != "" && unset("log-level") {
		o.logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && unset("log-format") {
		o.logFormat = cfg.LogFormat
	}
	if cfg.Serve.Address != "" && unset("addr") {
		o.serveAddr = cfg.Serve.Address
	}
	if cfg.Serve.RateLimit != nil && unset("rate-limit") {
		o.rateLimit = *cfg.Serve.RateLimit
	}
	if cfg.Serve.RateBurst != nil && unset("rate-burst") {
		o.rateBurst = *cfg.Serve.RateBurst
	}
}
