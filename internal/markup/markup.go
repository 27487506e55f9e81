// Package markup turns raw assistant text into display markup. Renderers are pure: they re-render the whole
// text on every call, so feeding them a growing prefix of a streamed message is always safe.
package markup

import (
	"bytes"
	"html"

	chromahtml "github.com/alecthomas/chroma/formatters/html"
	"github.com/charmbracelet/glamour"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

// Renderer converts raw text into display markup. Render is applied to assistant content; Literal is applied
// to user content and to anything that must be shown verbatim. When the markup engine is unavailable, Render
// degrades to Literal instead of failing.
type Renderer interface {
	Render(raw string) string
	Literal(raw string) string
}

// HTML renders markdown into sanitized HTML. Raw HTML in the input is never passed through, and the output
// only carries the elements and classes the sanitizer policy allows.
type HTML struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

// Terminal renders markdown for an ANSI terminal.
type Terminal struct {
	tr *glamour.TermRenderer
}

// Plain shows everything verbatim. It is the degraded mode of every other renderer.
type Plain struct{}

// NewHTML creates an HTML renderer with GitHub flavored markdown and class-based syntax highlighting of code
// fences.
func NewHTML() HTML {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle("github"),
				highlighting.WithFormatOptions(chromahtml.WithClasses(true)),
			),
		),
		goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
	)

	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class").OnElements("pre", "code", "span", "div")

	return HTML{
		md:     md,
		policy: policy,
	}
}

// Render implements Renderer.
func (h HTML) Render(raw string) string {
	if h.md == nil || h.policy == nil {
		return h.Literal(raw)
	}

	var buf bytes.Buffer
	if err := h.md.Convert([]byte(raw), &buf); err != nil {
		return h.Literal(raw)
	}
	return h.policy.Sanitize(buf.String())
}

// Literal implements Renderer by escaping the text.
func (h HTML) Literal(raw string) string {
	return html.EscapeString(raw)
}

// NewTerminal creates a terminal renderer wrapping at width columns. Style "auto" picks a style from the
// terminal background; any other value names a glamour standard style ("dark", "light", "notty", ...). If
// the renderer cannot be built, the returned Terminal renders verbatim.
func NewTerminal(style string, width int) Terminal {
	styleOpt := glamour.WithStandardStyle(style)
	if style == "" || style == "auto" {
		styleOpt = glamour.WithAutoStyle()
	}

	tr, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(width))
	if err != nil {
		return Terminal{}
	}
	return Terminal{tr: tr}
}

// Render implements Renderer.
func (t Terminal) Render(raw string) string {
	if t.tr == nil {
		return raw
	}

	out, err := t.tr.Render(raw)
	if err != nil {
		return raw
	}
	return out
}

// Literal implements Renderer.
func (t Terminal) Literal(raw string) string {
	return raw
}

// Render implements Renderer.
func (Plain) Render(raw string) string {
	return raw
}

// Literal implements Renderer.
func (Plain) Literal(raw string) string {
	return raw
}
