// Package markdown renders translated chapter markdown for delivery and
// strips markup from source chapters before chunking.
package markdown

import (
	"fmt"
	"html"
	"strings"

	"github.com/gomarkdown/markdown"
	gmhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// ToHTML renders a markdown fragment to an HTML fragment.
func ToHTML(md []byte) string {
	opts := gmhtml.RendererOptions{
		Flags: gmhtml.CommonFlags | gmhtml.HrefTargetBlank,
	}
	renderer := gmhtml.NewRenderer(opts)
	ext := parser.CommonExtensions | parser.Attributes
	p := parser.NewWithExtensions(ext)
	doc := p.Parse(md)
	return string(markdown.Render(doc, renderer))
}

// RenderPage wraps a rendered chapter in a minimal standalone HTML page.
func RenderPage(title string, md []byte) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	b.WriteString("<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", html.EscapeString(title))
	b.WriteString("</head>\n<body>\n")
	b.WriteString(ToHTML(md))
	b.WriteString("</body>\n</html>\n")
	return b.String()
}

// ToPlainText strips all markdown and HTML markup, leaving the prose that
// the translation pipeline should actually see.
func ToPlainText(md []byte) string {
	return StripHTMLTags(ToHTML(md))
}

// StripHTMLTags removes anything between < and >. Good enough for the
// HTML this package itself produces.
func StripHTMLTags(htmlContent string) string {
	var b strings.Builder
	b.Grow(len(htmlContent))
	inTag := false
	for _, ch := range htmlContent {
		switch ch {
		case '<':
			inTag = true
		case '>':
			inTag = false
		default:
			if !inTag {
				b.WriteRune(ch)
			}
		}
	}
	return b.String()
}
