package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/samcharles93/logtrains/internal/ux"
)

const (
	renderAuto   = "auto"
	renderAlways = "always"
	renderNever  = "never"
)

func validRenderMode(mode string) error {
	switch mode {
	case renderAuto, renderAlways, renderNever:
		return nil
	}
	return fmt.Errorf("unknown render mode %q (want auto, always or never)", mode)
}

// shouldRender resolves the render mode against whether stdout is a terminal.
func shouldRender(mode string, tty bool) bool {
	switch mode {
	case renderAlways:
		return true
	case renderNever:
		return false
	}
	return tty
}

// TerminalSink receives explanation fragments. In streaming mode each
// fragment is written and flushed as it arrives; in render mode the text is
// accumulated and rendered as Markdown by Finish.
type TerminalSink struct {
	out    *bufio.Writer
	render bool
	width  int

	mu  sync.Mutex
	acc strings.Builder
}

func NewTerminalSink(w io.Writer, render bool, width int) *TerminalSink {
	return &TerminalSink{
		out:    bufio.NewWriterSize(w, 4096),
		render: render,
		width:  width,
	}
}

func (s *TerminalSink) Emit(fragment string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acc.WriteString(fragment)
	if s.render {
		return nil
	}
	if _, err := s.out.WriteString(fragment); err != nil {
		return err
	}
	return s.out.Flush()
}

// Text is everything emitted so far.
func (s *TerminalSink) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acc.String()
}

// Finish writes any buffered output. A rendering failure falls back to the
// raw text so the explanation is never lost.
func (s *TerminalSink) Finish() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	text := s.acc.String()
	if s.render {
		out, err := ux.RenderMarkdown(text, s.width)
		if err != nil {
			out = text
		}
		if _, err := s.out.WriteString(out); err != nil {
			return err
		}
	} else if text != "" && !strings.HasSuffix(text, "\n") {
		if err := s.out.WriteByte('\n'); err != nil {
			return err
		}
	}
	return s.out.Flush()
}

// progressPrinter draws a single updating download line.
type progressPrinter struct {
	w        io.Writer
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	file string
	last time.Time
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w, interval: 100 * time.Millisecond, now: time.Now}
}

func (p *progressPrinter) Update(file string, current, total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	done := total > 0 && current >= total
	t := p.now()
	if file == p.file && !done && t.Sub(p.last) < p.interval {
		return
	}
	p.file = file
	p.last = t
	if total > 0 {
		fmt.Fprintf(p.w, "\rdownloading %s %s / %s (%d%%)", file, humanBytes(current), humanBytes(total), current*100/total)
	} else {
		fmt.Fprintf(p.w, "\rdownloading %s %s", file, humanBytes(current))
	}
	if done {
		fmt.Fprintln(p.w)
	}
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
