package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// minMarkdownWrap is the narrowest wrap width handed to glamour.
const minMarkdownWrap = 24

// markdownRenderer renders BRD, TAP and story documents, rebuilding the glamour renderer when the wrap width changes.
type markdownRenderer struct {
	wrap     int
	renderer *glamour.TermRenderer
}

// render converts markdown into styled terminal text; on renderer failure the raw document is returned.
func (r *markdownRenderer) render(doc string, width int) string {
	doc = strings.TrimSpace(doc)
	if doc == "" {
		return ""
	}
	if r == nil {
		return doc
	}
	wrap := max(width, minMarkdownWrap)
	if r.renderer == nil || r.wrap != wrap {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(wrap),
		)
		if err != nil {
			return doc
		}
		r.renderer, r.wrap = renderer, wrap
	}
	out, err := r.renderer.Render(doc)
	if err != nil {
		return doc
	}
	return strings.TrimRight(out, "\n")
}
