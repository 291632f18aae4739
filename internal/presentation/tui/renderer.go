package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// Renderer turns markdown into terminal output.
type Renderer func(markdown string) (string, error)

// NewRenderer returns a glamour renderer wrapping at width columns (0 keeps glamour's default).
// It falls back to the raw markdown when glamour cannot be initialized.
func NewRenderer(width int) Renderer {
	opts := []glamour.TermRendererOption{glamour.WithAutoStyle()}
	if width > 0 {
		opts = append(opts, glamour.WithWordWrap(width))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return PlainRenderer
	}
	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}
}

// PlainRenderer returns the markdown unchanged.
func PlainRenderer(markdown string) (string, error) {
	return strings.TrimRight(markdown, "\n") + "\n", nil
}
