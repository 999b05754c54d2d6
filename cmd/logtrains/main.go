package main

import (
	"context"
	"fmt"
	"os"

	"github.com/samcharles93/logtrains/internal/logger"
	"github.com/samcharles93/logtrains/internal/version"
	"github.com/urfave/cli/v3"
)

func main() {
	app := &cli.Command{
		Name:      "logtrains",
		Usage:     "Explain failing command output with a local language model",
		ArgsUsage: "[FILE]",
		Version:   version.String(),
		Description: "Reads a log from FILE or stdin and streams a short explanation\n" +
			"of the error and a suggested fix.\n\n" +
			"  make 2>&1 | logtrains\n" +
			"  logtrains build.log",
		Flags:  rootFlags(),
		Action: prepared(explainAction),
		Commands: []*cli.Command{
			withPrepare(serveCmd()),
			withPrepare(inspectCmd()),
			withPrepare(historyCmd()),
			versionCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// prepare layers the config file under the flags and installs the logger.
// It runs inside each action so flags given after a subcommand name are
// already parsed.
func prepare(ctx context.Context, cmd *cli.Command) context.Context {
	cfg, cfgErr := LoadConfig(opts.configPath)
	applyConfig(&opts, cfg, cmd.IsSet)
	log := logger.Open(os.Stderr, opts.logFormat, opts.effectiveLogLevel())
	if cfgErr != nil {
		log.Warn("ignoring config file", "err", cfgErr)
	}
	return logger.WithContext(ctx, log)
}

func prepared(fn cli.ActionFunc) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		return fn(prepare(ctx, cmd), cmd)
	}
}

func withPrepare(c *cli.Command) *cli.Command {
	if c.Action != nil {
		c.Action = prepared(c.Action)
	}
	for _, sub := range c.Commands {
		withPrepare(sub)
	}
	return c
}
