package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/logtrains/internal/backend"
	"github.com/samcharles93/logtrains/internal/history"
	"github.com/samcharles93/logtrains/internal/inference"
	"github.com/samcharles93/logtrains/internal/logger"
	"github.com/samcharles93/logtrains/internal/version"
)

const defaultMaxBody = 8 << 20

// Explainer is the part of *inference.Engine the server needs.
type Explainer interface {
	Explain(ctx context.Context, logText string, template *string, sink inference.Sink) (inference.Result, error)
	Device() backend.Device
}

type HistoryStore interface {
	Add(ctx context.Context, r history.Record) (history.Record, error)
	Recent(ctx context.Context, limit int) ([]history.Record, error)
	Get(ctx context.Context, id string) (history.Record, error)
}

type Config struct {
	Engine Explainer
	// History is optional.
	History HistoryStore
	Log     logger.Logger
	// Model is recorded with each explanation.
	Model        string
	MaxBodyBytes int64
}

type Server struct {
	engine  Explainer
	history HistoryStore
	log     logger.Logger
	model   string
	maxBody int64
	clock   func() time.Time
}

func NewServer(cfg Config) *Server {
	log := cfg.Log
	if log == nil {
		log = logger.Discard()
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}
	return &Server{
		engine:  cfg.Engine,
		history: cfg.History,
		log:     log,
		model:   cfg.Model,
		maxBody: maxBody,
		clock:   time.Now,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	e.POST("/v1/explain", s.handleExplain)
	e.GET("/v1/history", s.handleHistoryList)
	e.GET("/v1/history/:id", s.handleHistoryGet)
}

func (s *Server) handleHealth(c *echo.Context) error {
	device := ""
	if s.engine != nil {
		device = s.engine.Device().String()
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Device: device, Version: version.String()})
}

func (s *Server) handleExplain(c *echo.Context) error {
	if s.engine == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "engine not configured")
	}
	req, err := decodeJSON[ExplainRequest](c.Request().Body, s.maxBody)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if strings.TrimSpace(req.Log) == "" {
		return writeBadRequest(c, "log is required")
	}

	id := newExplanationID()
	log := s.log.With("id", id)
	ctx := c.Request().Context()
	start := s.clock()

	var sink inference.Sink
	var writer *SSEStreamWriter
	if req.Stream {
		writer, err = NewSSEStreamWriter(c, id)
		if err != nil {
			return writeBadRequest(c, err.Error())
		}
		sink = writer
	}

	res, err := s.engine.Explain(ctx, req.Log, req.Template, sink)
	elapsed := s.clock().Sub(start)
	if err != nil {
		status, errType := classify(err)
		if errors.Is(err, context.Canceled) {
			log.Info("explain cancelled", "tokens", res.Stats.TokensGenerated)
		} else {
			log.Error("explain failed", "err", err, "status", status)
		}
		if len(res.Tokens) > 0 {
			s.record(ctx, id, req.Log, res, elapsed, err)
		}
		if writer != nil && writer.Started() {
			_ = writer.Failed(errType, err, res.Text)
			return nil
		}
		return writeError(c, status, errType, err.Error())
	}

	s.record(ctx, id, req.Log, res, elapsed, nil)
	resp := ExplainResponse{
		ID:          id,
		Object:      "explanation",
		CreatedAt:   start.Unix(),
		Explanation: res.Text,
		Stop:        res.Stop.String(),
		Truncated:   res.Truncated,
		Device:      s.engine.Device().String(),
		Usage: Usage{
			PromptTokens:     res.Stats.PromptTokens,
			CompletionTokens: res.Stats.TokensGenerated,
		},
		DurationMS: elapsed.Milliseconds(),
		TPS:        res.Stats.TPS,
	}
	log.Info("explained", "stop", resp.Stop, "tokens", resp.Usage.CompletionTokens, "elapsed", elapsed)
	if writer != nil {
		return writer.Done(resp)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) record(ctx context.Context, id, logText string, res inference.Result, elapsed time.Duration, runErr error) {
	if s.history == nil {
		return
	}
	r := history.Record{
		ID:          id,
		CreatedAt:   s.clock(),
		Source:      "api",
		Excerpt:     history.Excerpt(logText, 80),
		Model:       s.model,
		Device:      s.engine.Device().String(),
		InputBytes:  len(logText),
		Truncated:   res.Truncated,
		PromptToks:  res.Stats.PromptTokens,
		OutputToks:  res.Stats.TokensGenerated,
		Stop:        res.Stop.String(),
		Explanation: res.Text,
		Duration:    elapsed,
	}
	if runErr != nil {
		r.Err = runErr.Error()
	}
	// The request context may already be cancelled.
	if _, err := s.history.Add(context.WithoutCancel(ctx), r); err != nil {
		s.log.Warn("history write failed", "id", id, "err", err)
	}
}

func (s *Server) handleHistoryList(c *echo.Context) error {
	if s.history == nil {
		return writeNotFound(c, "history is disabled")
	}
	limit, err := queryInt(c, "limit", 20, 200)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	records, err := s.history.Recent(c.Request().Context(), limit)
	if err != nil {
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
	}
	out := HistoryList{Object: "list", Data: make([]HistoryItem, 0, len(records))}
	for _, r := range records {
		item := toHistoryItem(r)
		item.Explanation = ""
		out.Data = append(out.Data, item)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleHistoryGet(c *echo.Context) error {
	if s.history == nil {
		return writeNotFound(c, "history is disabled")
	}
	r, err := s.history.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, history.ErrNotFound) {
		return writeNotFound(c, "no history entry "+c.Param("id"))
	}
	if err != nil {
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
	}
	return c.JSON(http.StatusOK, toHistoryItem(r))
}

func toHistoryItem(r history.Record) HistoryItem {
	return HistoryItem{
		ID:          r.ID,
		CreatedAt:   r.CreatedAt.Unix(),
		Source:      r.Source,
		Excerpt:     r.Excerpt,
		Model:       r.Model,
		Stop:        r.Stop,
		OutputToks:  r.OutputToks,
		Explanation: r.Explanation,
		Error:       r.Err,
	}
}
