package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/samcharles93/logtrains/internal/gguf"
	"github.com/samcharles93/logtrains/internal/logger"
	"github.com/samcharles93/logtrains/internal/ux"
	"github.com/urfave/cli/v3"
)

func inspectCmd() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Show GGUF metadata for a weight file (the configured model when no path is given)",
		ArgsUsage: "[FILE.gguf]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				f := newFetcher(&opts, logger.FromContext(ctx), os.Stderr)
				p, err := f.Fetch(ctx, opts.modelRepo, opts.weightFile)
				if err != nil {
					return fmt.Errorf("locate weights: %w", err)
				}
				path = p
			}
			f, err := gguf.Open(path)
			if err != nil {
				return err
			}
			printSummary(ux.NewPrinter(os.Stdout), f.Summarize())
			return nil
		},
	}
}

func printSummary(p *ux.Printer, s gguf.Summary) {
	id := func(v int64) string {
		if v < 0 {
			return "-"
		}
		return strconv.FormatInt(v, 10)
	}
	p.Table([]string{"key", "value"}, [][]string{
		{"path", s.Path},
		{"gguf version", strconv.FormatUint(uint64(s.Version), 10)},
		{"name", s.Name},
		{"architecture", s.Architecture},
		{"context length", strconv.FormatUint(s.ContextLength, 10)},
		{"tokenizer", s.TokenizerKind},
		{"vocab size", strconv.Itoa(s.VocabSize)},
		{"bos id", id(s.BOSID)},
		{"eos id", id(s.EOSID)},
		{"tensors", strconv.FormatUint(s.TensorCount, 10)},
		{"metadata keys", strconv.FormatUint(s.KVCount, 10)},
	})
}
