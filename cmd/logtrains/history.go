package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/samcharles93/logtrains/internal/history"
	"github.com/samcharles93/logtrains/internal/ux"
	"github.com/urfave/cli/v3"
)

func historyCmd() *cli.Command {
	var limit int64
	return &cli.Command{
		Name:  "history",
		Usage: "List or show past explanations",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:        "limit",
				Aliases:     []string{"n"},
				Usage:       "number of entries to list",
				Value:       20,
				Destination: &limit,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withHistory(func(s *history.Store) error {
				recs, err := s.Recent(ctx, int(limit))
				if err != nil {
					return err
				}
				if len(recs) == 0 {
					fmt.Fprintln(os.Stderr, "no history yet")
					return nil
				}
				ux.NewPrinter(os.Stdout).Table(historyHeader, historyRows(recs))
				return nil
			})
		},
		Commands: []*cli.Command{
			{
				Name:      "show",
				Usage:     "Print a stored explanation",
				ArgsUsage: "ID",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id := cmd.Args().First()
					if id == "" {
						return cli.Exit("history show requires an ID", 2)
					}
					return withHistory(func(s *history.Store) error {
						r, err := s.Get(ctx, id)
						if errors.Is(err, history.ErrNotFound) {
							return cli.Exit(fmt.Sprintf("no history entry %q", id), 1)
						}
						if err != nil {
							return err
						}
						showRecord(r)
						return nil
					})
				},
			},
		},
	}
}

func withHistory(fn func(*history.Store) error) error {
	s, err := history.Open(historyPath())
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

var historyHeader = []string{"id", "when", "source", "stop", "tokens", "input"}

func historyRows(recs []history.Record) [][]string {
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		stop := r.Stop
		if r.Err != "" {
			stop = "error"
		}
		rows = append(rows, []string{
			shortID(r.ID),
			r.CreatedAt.Local().Format(time.DateTime),
			r.Source,
			stop,
			strconv.Itoa(r.OutputToks),
			r.Excerpt,
		})
	}
	return rows
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func showRecord(r history.Record) {
	status := ux.NewPrinter(os.Stderr)
	status.Dim("%s  %s  %s  %s  %d tokens in %s", r.ID, r.CreatedAt.Local().Format(time.DateTime), r.Source, r.Device, r.OutputToks, r.Duration.Round(time.Millisecond))
	out := ux.NewPrinter(os.Stdout)
	out.OpenBanner()
	sink := NewTerminalSink(os.Stdout, shouldRender(opts.render, ux.IsTerminal(os.Stdout)), ux.WrapWidth(os.Stdout))
	_ = sink.Emit(r.Explanation)
	_ = sink.Finish()
	out.CloseBanner()
	if r.Err != "" {
		status.Failure("Inference failed:", errors.New(r.Err))
	}
}
