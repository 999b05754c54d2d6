package api

import (
	"fmt"
	"net/http"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
)

// SSEStreamWriter sends generation progress as server-sent events:
// "token" for each piece of text, then "done" or "error". It implements
// inference.Sink.
type SSEStreamWriter struct {
	w       http.ResponseWriter
	flusher func()
	id      string
	seq     int
	pending []byte
	begun   bool
}

func NewSSEStreamWriter(c *echo.Context, id string) (*SSEStreamWriter, error) {
	res := c.Response()
	flusher, ok := res.(interface{ Flush() })
	if !ok {
		return nil, fmt.Errorf("streaming unsupported")
	}
	return &SSEStreamWriter{
		w:       res,
		flusher: flusher.Flush,
		id:      id,
	}, nil
}

func (s *SSEStreamWriter) begin() {
	if s.begun {
		return
	}
	s.begun = true
	h := s.w.Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	s.w.WriteHeader(http.StatusOK)
}

func (s *SSEStreamWriter) Started() bool {
	return s.begun
}

// Emit holds back bytes until they form complete UTF-8, since byte
// fallback tokens can split a character across several pieces.
func (s *SSEStreamWriter) Emit(token string) error {
	s.pending = append(s.pending, token...)
	n := validPrefix(s.pending)
	if n == 0 {
		return nil
	}
	delta := string(s.pending[:n])
	s.pending = append(s.pending[:0], s.pending[n:]...)
	return s.send("token", map[string]any{
		"id":    s.id,
		"delta": delta,
	})
}

func (s *SSEStreamWriter) Done(resp ExplainResponse) error {
	if len(s.pending) > 0 {
		if err := s.send("token", map[string]any{"id": s.id, "delta": string(s.pending)}); err != nil {
			return err
		}
		s.pending = nil
	}
	return s.send("done", resp)
}

func (s *SSEStreamWriter) Failed(errType string, err error, partial string) error {
	return s.send("error", map[string]any{
		"id":      s.id,
		"error":   ResponseError{Message: err.Error(), Type: errType},
		"partial": partial,
	})
}

func (s *SSEStreamWriter) send(event string, payload any) error {
	s.begin()
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	s.seq++
	if _, err := fmt.Fprintf(s.w, "event: %s\nid: %d\ndata: %s\n\n", event, s.seq, b); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher()
	}
	return nil
}

// validPrefix returns the length of the longest prefix of b that does not
// end inside a multi-byte sequence. Invalid bytes are passed through.
func validPrefix(b []byte) int {
	if utf8.Valid(b) {
		return len(b)
	}
	for cut := len(b) - 1; cut >= 0 && cut >= len(b)-utf8.UTFMax; cut-- {
		if utf8.RuneStart(b[cut]) {
			if !utf8.FullRune(b[cut:]) {
				return cut
			}
			break
		}
	}
	return len(b)
}
