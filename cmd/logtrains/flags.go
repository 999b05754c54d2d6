package main

import "github.com/urfave/cli/v3"

var opts = defaultOptions()

func modelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "model-repo",
			Usage:       "registry repository holding the GGUF weights",
			Value:       opts.modelRepo,
			Sources:     cli.EnvVars("LOGTRAINS_MODEL_REPO"),
			Destination: &opts.modelRepo,
		},
		&cli.StringFlag{
			Name:        "weight-file",
			Usage:       "weight file name inside the repository",
			Value:       opts.weightFile,
			Sources:     cli.EnvVars("LOGTRAINS_WEIGHT_FILE"),
			Destination: &opts.weightFile,
		},
		&cli.StringFlag{
			Name:        "tokenizer-file",
			Usage:       "tokenizer file name to look for",
			Value:       opts.tokenizerFile,
			Destination: &opts.tokenizerFile,
		},
		&cli.StringSliceFlag{
			Name:        "tokenizer-fallback",
			Usage:       "repository to try for the tokenizer when the weight repo has none (repeatable)",
			Destination: &opts.tokenizerFallbacks,
		},
		&cli.StringFlag{
			Name:        "cache-dir",
			Usage:       "model cache directory",
			Sources:     cli.EnvVars("LOGTRAINS_CACHE"),
			Destination: &opts.cacheDir,
		},
		&cli.BoolFlag{
			Name:        "update-model",
			Usage:       "force a fresh download of the model files",
			Destination: &opts.updateModel,
		},
		&cli.BoolFlag{
			Name:        "offline",
			Usage:       "never touch the network; use cached files only",
			Sources:     cli.EnvVars("LOGTRAINS_OFFLINE"),
			Destination: &opts.offline,
		},
		&cli.StringFlag{
			Name:        "hf-token",
			Usage:       "bearer token for the model registry",
			Sources:     cli.EnvVars("HF_TOKEN"),
			Destination: &opts.hfToken,
		},
		&cli.StringFlag{
			Name:        "hf-endpoint",
			Usage:       "model registry base URL",
			Sources:     cli.EnvVars("HF_ENDPOINT"),
			Destination: &opts.hfEndpoint,
		},
		&cli.StringFlag{
			Name:        "llama-lib",
			Usage:       "directory containing the llama.cpp shared libraries",
			Sources:     cli.EnvVars("LOGTRAINS_LIB"),
			Destination: &opts.llamaLib,
		},
		&cli.StringFlag{
			Name:        "device",
			Usage:       "execution device (auto, cpu, cuda, metal)",
			Value:       opts.device,
			Sources:     cli.EnvVars("LOGTRAINS_DEVICE"),
			Destination: &opts.device,
		},
	}
}

func generationFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "template",
			Usage:       "prompt template file containing {{LOG_TEXT}}",
			Destination: &opts.templatePath,
		},
		&cli.Int64Flag{
			Name:        "max-context",
			Aliases:     []string{"ctx"},
			Usage:       "total context window in tokens",
			Value:       opts.maxContext,
			Destination: &opts.maxContext,
		},
		&cli.Int64Flag{
			Name:        "reserve",
			Usage:       "tokens reserved for the explanation",
			Value:       opts.genReserve,
			Destination: &opts.genReserve,
		},
		&cli.Int64Flag{
			Name:        "preserve",
			Usage:       "prompt tokens always kept from the start when truncating",
			Value:       opts.sysPreserve,
			Destination: &opts.sysPreserve,
		},
		&cli.Float64Flag{
			Name:        "temperature",
			Aliases:     []string{"temp"},
			Usage:       "sampling temperature (0 = greedy)",
			Value:       opts.temperature,
			Destination: &opts.temperature,
		},
		&cli.Float64Flag{
			Name:        "top-p",
			Usage:       "nucleus sampling mass",
			Value:       opts.topP,
			Destination: &opts.topP,
		},
		&cli.Uint64Flag{
			Name:        "seed",
			Usage:       "sampling seed",
			Value:       opts.seed,
			Destination: &opts.seed,
		},
	}
}

func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "render",
			Usage:       "render the explanation as Markdown (auto, always, never)",
			Value:       opts.render,
			Destination: &opts.render,
		},
		&cli.BoolFlag{
			Name:        "no-history",
			Usage:       "do not record this run in the history database",
			Destination: &opts.noHistory,
		},
		&cli.StringFlag{
			Name:        "history-db",
			Usage:       "history database path",
			Sources:     cli.EnvVars("LOGTRAINS_HISTORY"),
			Destination: &opts.historyDB,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       opts.logLevel,
			Sources:     cli.EnvVars("LOGTRAINS_LOG_LEVEL"),
			Destination: &opts.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       opts.logFormat,
			Destination: &opts.logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &opts.debug,
		},
		&cli.StringFlag{
			Name:        "config",
			Usage:       "config file path",
			Sources:     cli.EnvVars("LOGTRAINS_CONFIG"),
			Destination: &opts.configPath,
		},
	}
}

func rootFlags() []cli.Flag {
	var flags []cli.Flag
	flags = append(flags, modelFlags()...)
	flags = append(flags, generationFlags()...)
	flags = append(flags, outputFlags()...)
	flags = append(flags, loggingFlags()...)
	return flags
}
