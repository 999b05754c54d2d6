package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/samcharles93/logtrains/internal/api"
	"github.com/samcharles93/logtrains/internal/history"
	"github.com/samcharles93/logtrains/internal/logger"
	"github.com/urfave/cli/v3"
)

func serveCmd() *cli.Command {
	var maxBody int64
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve explanations over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       opts.serveAddr,
				Sources:     cli.EnvVars("LOGTRAINS_ADDR"),
				Destination: &opts.serveAddr,
			},
			&cli.Float64Flag{
				Name:        "rate-limit",
				Usage:       "requests per second accepted by the server (0 disables)",
				Value:       opts.rateLimit,
				Destination: &opts.rateLimit,
			},
			&cli.Int64Flag{
				Name:        "rate-burst",
				Usage:       "burst size for the rate limiter",
				Value:       opts.rateBurst,
				Destination: &opts.rateBurst,
			},
			&cli.Int64Flag{
				Name:        "max-body",
				Usage:       "maximum request body in bytes",
				Value:       4 << 20,
				Destination: &maxBody,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			eng, resolved, err := loadEngine(ctx, &opts, os.Stderr)
			if err != nil {
				return fmt.Errorf("load model: %w", err)
			}
			defer eng.Close()
			log.Info("model ready", "weights", resolved.WeightFilePath, "device", eng.Device().String())

			var store api.HistoryStore
			if !opts.noHistory {
				h, err := history.Open(historyPath())
				if err != nil {
					log.Warn("history unavailable", "err", err)
				} else {
					defer h.Close()
					store = h
				}
			}

			server := api.NewServer(api.Config{
				Engine:       eng,
				History:      store,
				Log:          log,
				Model:        opts.modelRepo + "/" + opts.weightFile,
				MaxBodyBytes: maxBody,
			})
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			e.Use(api.RateLimit(opts.rateLimit, int(opts.rateBurst)))
			server.Register(e)

			log.Info("starting server", "address", opts.serveAddr)
			sc := echo.StartConfig{
				Address: opts.serveAddr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = 10 * time.Second
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
