package ux

import (
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
)

const defaultWrap = 80

// RenderMarkdown renders md for a terminal of the given width. A
// non-positive width selects the default wrap.
func RenderMarkdown(md string, width int) (string, error) {
	if width <= 0 {
		width = defaultWrap
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	out, err := r.Render(md)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(out, "\n") + "\n", nil
}

// WrapWidth is the terminal width of f less a margin, or the default wrap.
func WrapWidth(f *os.File) int {
	if w, ok := termWidth(f); ok && w > 20 {
		return min(w-4, 120)
	}
	return defaultWrap
}
