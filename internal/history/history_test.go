package history

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddAndGet(t *testing.T) {
	t.Parallel()
	s := openTemp(t)
	ctx := context.Background()

	in := Record{
		CreatedAt:   time.UnixMilli(1_700_000_000_123),
		Source:      "build.log",
		Excerpt:     "error[E0425]: cannot find value",
		Model:       "TheBloke/TinyLlama-1.1B-Chat-v1.0-GGUF",
		Device:      "cpu",
		InputBytes:  2048,
		Truncated:   true,
		PromptToks:  3584,
		OutputToks:  42,
		Stop:        "eos",
		Explanation: "## Summary\nmissing import",
		Duration:    1500 * time.Millisecond,
	}
	saved, err := s.Add(ctx, in)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if saved.ID == "" {
		t.Fatalf("expected generated id")
	}
	got, err := s.Get(ctx, saved.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff(saved, got); diff != "" {
		t.Fatalf("record (-want +got):\n%s", diff)
	}

	byPrefix, err := s.Get(ctx, saved.ID[:8])
	if err != nil || byPrefix.ID != saved.ID {
		t.Fatalf("prefix lookup: %v %v", byPrefix.ID, err)
	}
}

func TestGetMissing(t *testing.T) {
	t.Parallel()
	s := openTemp(t)
	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetPrefixIsLiteral(t *testing.T) {
	t.Parallel()
	s := openTemp(t)
	ctx := context.Background()
	for _, id := range []string{"abc-1", "abd-2"} {
		if _, err := s.Add(ctx, Record{ID: id, Source: "stdin"}); err != nil {
			t.Fatalf("add %s: %v", id, err)
		}
	}
	for _, q := range []string{"%", "_", "ab_", "a%"} {
		if _, err := s.Get(ctx, q); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get(%q): expected ErrNotFound, got %v", q, err)
		}
	}
	got, err := s.Get(ctx, "abd")
	if err != nil || got.ID != "abd-2" {
		t.Fatalf("Get(abd) = %q, %v", got.ID, err)
	}
	if _, err := s.Get(ctx, "ab"); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(ab): expected ambiguity error, got %v", err)
	}
}

func TestRecentNewestFirst(t *testing.T) {
	t.Parallel()
	s := openTemp(t)
	ctx := context.Background()
	base := time.Now()
	for i, src := range []string{"a.log", "b.log", "c.log"} {
		if _, err := s.Add(ctx, Record{Source: src, CreatedAt: base.Add(time.Duration(i) * time.Second), Stop: "eos"}); err != nil {
			t.Fatalf("add %s: %v", src, err)
		}
	}
	got, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	var sources []string
	for _, r := range got {
		sources = append(sources, r.Source)
	}
	if diff := cmp.Diff([]string{"c.log", "b.log"}, sources); diff != "" {
		t.Fatalf("sources (-want +got):\n%s", diff)
	}
	if _, err := s.Recent(ctx, 0); err == nil {
		t.Fatalf("expected error for zero limit")
	}
}

func TestFailedRunKeepsPartialText(t *testing.T) {
	t.Parallel()
	s := openTemp(t)
	ctx := context.Background()
	saved, err := s.Add(ctx, Record{Source: "stdin", Explanation: "partial", Err: "stream sink failed at step 3: broken pipe"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	got, err := s.Get(ctx, saved.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Explanation != "partial" || !strings.Contains(got.Err, "broken pipe") {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestDefaultPathEnv(t *testing.T) {
	t.Setenv("LOGTRAINS_HISTORY", "/tmp/h.db")
	if got := DefaultPath(); got != "/tmp/h.db" {
		t.Fatalf("got %q", got)
	}
}

func TestExcerpt(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"\n  panic: runtime error\nstack", 40, "panic: runtime error"},
		{"héllo wörld", 5, "héllo..."},
		{"", 10, ""},
	}
	for _, tc := range cases {
		if got := Excerpt(tc.in, tc.n); got != tc.want {
			t.Fatalf("Excerpt(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
	}
}
