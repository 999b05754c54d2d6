// Package ux holds the terminal presentation used by the CLI: status
// lines, the explanation banners and Markdown rendering.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

const (
	ExplanationTitle = "=== Explanation ==="
	ExplanationRule  = "==================="
)

// Printer writes styled status lines. Colour is decided by the renderer
// from the writer, so piped output stays plain.
type Printer struct {
	w      io.Writer
	notice lipgloss.Style
	status lipgloss.Style
	banner lipgloss.Style
	fail   lipgloss.Style
	dim    lipgloss.Style
}

func NewPrinter(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:      w,
		notice: r.NewStyle().Foreground(lipgloss.Color("11")),
		status: r.NewStyle().Foreground(lipgloss.Color("14")).Bold(true),
		banner: r.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		fail:   r.NewStyle().Foreground(lipgloss.Color("9")),
		dim:    r.NewStyle().Faint(true),
	}
}

func (p *Printer) Notice(format string, args ...any) {
	fmt.Fprintln(p.w, p.notice.Render(fmt.Sprintf(format, args...)))
}

func (p *Printer) Status(format string, args ...any) {
	fmt.Fprintln(p.w, p.status.Render(fmt.Sprintf(format, args...)))
}

// Failure prints a red label followed by the plain error text.
func (p *Printer) Failure(label string, err error) {
	fmt.Fprintln(p.w, p.fail.Render(label), err)
}

func (p *Printer) Dim(format string, args ...any) {
	fmt.Fprintln(p.w, p.dim.Render(fmt.Sprintf(format, args...)))
}

func (p *Printer) OpenBanner() {
	fmt.Fprintln(p.w)
	fmt.Fprintln(p.w, p.banner.Render(ExplanationTitle))
}

func (p *Printer) CloseBanner() {
	fmt.Fprintln(p.w, p.banner.Render(ExplanationRule))
}

// Table prints rows with columns padded to the widest cell.
func (p *Printer) Table(header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i := range min(len(row), len(widths)) {
			widths[i] = max(widths[i], lipgloss.Width(row[i]))
		}
	}
	line := func(cells []string) string {
		var b strings.Builder
		for i, c := range cells {
			if i > 0 {
				b.WriteString("  ")
			}
			if i == len(cells)-1 {
				b.WriteString(c)
				break
			}
			b.WriteString(c)
			b.WriteString(strings.Repeat(" ", widths[i]-lipgloss.Width(c)))
		}
		return b.String()
	}
	fmt.Fprintln(p.w, p.dim.Render(line(header)))
	for _, row := range rows {
		fmt.Fprintln(p.w, line(row))
	}
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
