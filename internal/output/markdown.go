package output

import (
	"os"
	"strconv"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// TerminalWidth returns the current terminal width, or 80 if it cannot be
// determined.
func TerminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	// COLUMNS is set by some shells even when stdout is not a tty
	if cols := os.Getenv("COLUMNS"); cols != "" {
		if w, err := strconv.Atoi(cols); err == nil && w > 0 {
			return w
		}
	}
	return 80
}

// RenderMarkdown renders markdown for the terminal at the current terminal
// width. On render failure the raw markdown is returned unchanged.
func RenderMarkdown(md string) string {
	return RenderMarkdownWithWidth(md, TerminalWidth())
}

// RenderMarkdownWithWidth renders markdown wrapped to the given width.
func RenderMarkdownWithWidth(md string, width int) string {
	if width < 20 {
		width = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}
