package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/logtrains/internal/backend"
	"github.com/samcharles93/logtrains/internal/history"
	"github.com/samcharles93/logtrains/internal/inference"
)

type fakeExplainer struct {
	pieces  []string
	err     error
	gotLog  string
	gotTmpl *string
}

func (f *fakeExplainer) Explain(ctx context.Context, logText string, template *string, sink inference.Sink) (inference.Result, error) {
	f.gotLog, f.gotTmpl = logText, template
	res := inference.Result{Stats: inference.Stats{PromptTokens: 12}}
	var text strings.Builder
	for i, p := range f.pieces {
		if sink != nil {
			if err := sink.Emit(p); err != nil {
				return res, err
			}
		}
		text.WriteString(p)
		res.Tokens = append(res.Tokens, uint32(i))
	}
	res.Text = text.String()
	res.Stats.TokensGenerated = len(res.Tokens)
	if f.err != nil {
		return res, f.err
	}
	res.Stop = inference.StopSignal{Kind: inference.StopEOS}
	return res, nil
}

func (f *fakeExplainer) Device() backend.Device { return backend.CPU }

func newTestEcho(t *testing.T, eng Explainer, store HistoryStore) *echo.Echo {
	t.Helper()
	e := echo.New()
	NewServer(Config{Engine: eng, History: store, Model: "test/model"}).Register(e)
	return e
}

func openStore(t *testing.T) *history.Store {
	t.Helper()
	s, err := history.Open(filepath.Join(t.TempDir(), "h.db"))
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestExplainJSON(t *testing.T) {
	t.Parallel()
	eng := &fakeExplainer{pieces: []string{"## ", "Missing", " semicolon"}}
	store := openStore(t)
	e := newTestEcho(t, eng, store)

	rec := doJSON(t, e, http.MethodPost, "/v1/explain", `{"log":"error: expected ;","template":"Q {{LOG_TEXT}}"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body=%s", rec.Code, rec.Body.String())
	}
	var resp ExplainResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Explanation != "## Missing semicolon" || resp.Stop != "eos" || resp.Usage.CompletionTokens != 3 || resp.Usage.PromptTokens != 12 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if !strings.HasPrefix(resp.ID, "exp_") || resp.Device != "cpu" {
		t.Fatalf("unexpected id/device: %+v", resp)
	}
	if eng.gotLog != "error: expected ;" || eng.gotTmpl == nil || *eng.gotTmpl != "Q {{LOG_TEXT}}" {
		t.Fatalf("engine got log=%q tmpl=%v", eng.gotLog, eng.gotTmpl)
	}

	saved, err := store.Get(context.Background(), resp.ID)
	if err != nil {
		t.Fatalf("history get: %v", err)
	}
	if saved.Explanation != resp.Explanation || saved.Source != "api" || saved.Model != "test/model" {
		t.Fatalf("unexpected history record: %+v", saved)
	}
}

func TestExplainRejectsBadInput(t *testing.T) {
	t.Parallel()
	e := newTestEcho(t, &fakeExplainer{}, nil)
	for name, body := range map[string]string{
		"empty log":    `{"log":"   "}`,
		"invalid json": `{"log":`,
	} {
		rec := doJSON(t, e, http.MethodPost, "/v1/explain", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, rec.Code)
		}
	}
}

func TestExplainErrorStatus(t *testing.T) {
	t.Parallel()
	cases := []struct {
		err    error
		status int
		typ    string
	}{
		{inference.ErrEngineBusy, http.StatusTooManyRequests, "engine_busy"},
		{&inference.ConfigError{Field: "top_p", Reason: "bad"}, http.StatusBadRequest, "config_error"},
		{fmt.Errorf("%w: encode", inference.ErrTokenization), http.StatusBadRequest, "tokenization_error"},
		{&inference.StepError{Kind: inference.ErrInference, Step: 0, Err: errors.New("oom")}, http.StatusInternalServerError, "server_error"},
	}
	for _, tc := range cases {
		e := newTestEcho(t, &fakeExplainer{err: tc.err}, nil)
		rec := doJSON(t, e, http.MethodPost, "/v1/explain", `{"log":"x"}`)
		if rec.Code != tc.status || !strings.Contains(rec.Body.String(), tc.typ) {
			t.Fatalf("%v: got %d %s", tc.err, rec.Code, rec.Body.String())
		}
	}
}

type sseEvent struct {
	Name string
	Data string
}

func parseSSE(body string) []sseEvent {
	var out []sseEvent
	for _, block := range strings.Split(strings.TrimSpace(body), "\n\n") {
		var ev sseEvent
		for _, line := range strings.Split(block, "\n") {
			if v, ok := strings.CutPrefix(line, "event: "); ok {
				ev.Name = v
			}
			if v, ok := strings.CutPrefix(line, "data: "); ok {
				ev.Data = v
			}
		}
		out = append(out, ev)
	}
	return out
}

func TestExplainStream(t *testing.T) {
	t.Parallel()
	// "€" split across two byte-fallback pieces.
	e := newTestEcho(t, &fakeExplainer{pieces: []string{"cost ", "\xe2\x82", "\xac", "!"}}, nil)
	rec := doJSON(t, e, http.MethodPost, "/v1/explain", `{"log":"x","stream":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "text/event-stream" {
		t.Fatalf("content type %q", ct)
	}
	events := parseSSE(rec.Body.String())
	var names, deltas []string
	for _, ev := range events {
		names = append(names, ev.Name)
		if ev.Name == "token" {
			var p struct {
				Delta string `json:"delta"`
			}
			if err := json.Unmarshal([]byte(ev.Data), &p); err != nil {
				t.Fatalf("decode token: %v", err)
			}
			deltas = append(deltas, p.Delta)
		}
	}
	if diff := cmp.Diff([]string{"token", "token", "token", "done"}, names); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"cost ", "€", "!"}, deltas); diff != "" {
		t.Fatalf("deltas (-want +got):\n%s", diff)
	}
}

func TestExplainStreamFailureAfterTokens(t *testing.T) {
	t.Parallel()
	stepErr := &inference.StepError{Kind: inference.ErrInference, Step: 1, Err: errors.New("device lost")}
	store := openStore(t)
	e := newTestEcho(t, &fakeExplainer{pieces: []string{"par", "tial"}, err: stepErr}, store)
	rec := doJSON(t, e, http.MethodPost, "/v1/explain", `{"log":"x","stream":true}`)

	events := parseSSE(rec.Body.String())
	last := events[len(events)-1]
	if last.Name != "error" || !strings.Contains(last.Data, `"partial":"partial"`) || !strings.Contains(last.Data, "device lost") {
		t.Fatalf("unexpected final event: %+v", last)
	}
	recent, err := store.Recent(context.Background(), 5)
	if err != nil || len(recent) != 1 || recent[0].Err == "" {
		t.Fatalf("partial run not recorded: %+v %v", recent, err)
	}
}

func TestHistoryEndpoints(t *testing.T) {
	t.Parallel()
	store := openStore(t)
	saved, err := store.Add(context.Background(), history.Record{Source: "build.log", Excerpt: "E0308", Stop: "eos", Explanation: "types differ"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	e := newTestEcho(t, &fakeExplainer{}, store)

	rec := doJSON(t, e, http.MethodGet, "/v1/history?limit=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status %d", rec.Code)
	}
	var list HistoryList
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Data) != 1 || list.Data[0].ID != saved.ID || list.Data[0].Explanation != "" {
		t.Fatalf("unexpected list: %+v", list)
	}

	rec = doJSON(t, e, http.MethodGet, "/v1/history/"+saved.ID, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "types differ") {
		t.Fatalf("get: %d %s", rec.Code, rec.Body.String())
	}
	if rec := doJSON(t, e, http.MethodGet, "/v1/history/missing", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := doJSON(t, e, http.MethodGet, "/v1/history?limit=abc", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHistoryDisabled(t *testing.T) {
	t.Parallel()
	e := newTestEcho(t, &fakeExplainer{}, nil)
	if rec := doJSON(t, e, http.MethodGet, "/v1/history", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()
	e := newTestEcho(t, &fakeExplainer{}, nil)
	rec := doJSON(t, e, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"device":"cpu"`) {
		t.Fatalf("health: %d %s", rec.Code, rec.Body.String())
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()
	e := echo.New()
	e.Use(RateLimit(0.001, 1))
	NewServer(Config{Engine: &fakeExplainer{}}).Register(e)

	if rec := doJSON(t, e, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("first request: %d", rec.Code)
	}
	if rec := doJSON(t, e, http.MethodGet, "/healthz", ""); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", rec.Code)
	}
}

func TestValidPrefix(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   []byte
		want int
	}{
		{[]byte("abc"), 3},
		{[]byte("a\xe2\x82"), 1},
		{[]byte("\xe2"), 0},
		{[]byte("a\xff"), 2},
	}
	for _, tc := range cases {
		if got := validPrefix(tc.in); got != tc.want {
			t.Fatalf("validPrefix(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
