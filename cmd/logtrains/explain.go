package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samcharles93/logtrains/internal/history"
	"github.com/samcharles93/logtrains/internal/inference"
	"github.com/samcharles93/logtrains/internal/logger"
	"github.com/samcharles93/logtrains/internal/ux"
	"github.com/urfave/cli/v3"
)

// stdinIsTTY is a seam for tests.
var stdinIsTTY = func() bool { return ux.IsTerminal(os.Stdin) }

func explainAction(ctx context.Context, cmd *cli.Command) error {
	log := logger.FromContext(ctx)
	if err := validRenderMode(opts.render); err != nil {
		return cli.Exit(err.Error(), 2)
	}
	status := ux.NewPrinter(os.Stderr)
	out := ux.NewPrinter(os.Stdout)

	logText, source, err := readInput(cmd.Args().First(), os.Stdin, stdinIsTTY(), func() {
		status.Notice("Listening on stdin... (Ctrl+D to finish)")
	})
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	template, err := loadTemplate(&opts)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	status.Status("LogTrains: Initializing... (First run requires ~1GB download)")
	eng, resolved, err := loadEngine(ctx, &opts, os.Stderr)
	if err != nil {
		status.Failure("Failed to load model:", err)
		var cfgErr *inference.ConfigError
		if !errors.As(err, &cfgErr) {
			status.Dim("Check your internet connection or model name.")
		}
		return cli.Exit("", 1)
	}
	defer func() {
		if err := eng.Close(); err != nil {
			log.Warn("engine close failed", "err", err)
		}
	}()
	log.Debug("model ready", "weights", resolved.WeightFilePath, "tokenizer", resolved.TokenizerSource, "device", eng.Device().String())

	status.Status("LogTrains: Analyzing input...")
	out.OpenBanner()
	sink := NewTerminalSink(os.Stdout, shouldRender(opts.render, ux.IsTerminal(os.Stdout)), ux.WrapWidth(os.Stdout))
	start := time.Now()
	res, runErr := eng.Explain(ctx, logText, template, sink)
	elapsed := time.Since(start)
	if err := sink.Finish(); err != nil {
		log.Warn("write explanation failed", "err", err)
	}
	out.CloseBanner()

	if res.Truncated {
		status.Dim("input was truncated to fit the context window")
	}
	recordHistory(ctx, log, history.Record{
		CreatedAt:   start,
		Source:      source,
		Excerpt:     history.Excerpt(logText, 80),
		Model:       opts.modelRepo + "/" + opts.weightFile,
		Device:      eng.Device().String(),
		InputBytes:  len(logText),
		Truncated:   res.Truncated,
		PromptToks:  res.Stats.PromptTokens,
		OutputToks:  res.Stats.TokensGenerated,
		Stop:        res.Stop.String(),
		Explanation: res.Text,
		Duration:    elapsed,
	}, runErr)

	if runErr != nil {
		status.Failure("Inference failed:", runErr)
		return cli.Exit("", 1)
	}
	log.Info("explanation complete",
		"tokens", res.Stats.TokensGenerated,
		"stop", res.Stop.String(),
		"tps", res.Stats.TPS,
	)
	return nil
}

func historyPath() string {
	if opts.historyDB != "" {
		return opts.historyDB
	}
	return history.DefaultPath()
}

// recordHistory stores the run. History is best effort and never fails the
// command.
func recordHistory(ctx context.Context, log logger.Logger, r history.Record, runErr error) {
	if opts.noHistory {
		return
	}
	if runErr != nil {
		r.Err = runErr.Error()
	}
	store, err := history.Open(historyPath())
	if err != nil {
		log.Warn("history unavailable", "err", err)
		return
	}
	defer store.Close()
	if _, err := store.Add(context.WithoutCancel(ctx), r); err != nil {
		log.Warn("history write failed", "err", err)
	}
}
