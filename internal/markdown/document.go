// Package markdown reads post sources: frontmatter, title and image
// references. Rendering lives in render.go.
package markdown

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"github.com/starford/scribe/internal/editor"
	"github.com/starford/scribe/internal/models"
)

// Document is a parsed markdown source.
type Document struct {
	Frontmatter map[string]any
	Body        string
	Title       string
	// TitleFromHeading is set when Title came from the first H1 rather than
	// from frontmatter.
	TitleFromHeading bool
}

// Image is one ![alt](url) reference.
type Image struct {
	Alt string `json:"alt"`
	URL string `json:"url"`
}

// Pending reports whether the image still points at an upload in progress.
func (i Image) Pending() bool { return strings.HasPrefix(i.URL, editor.PlaceholderScheme) }

// Parse splits frontmatter from the body and derives a title.
func Parse(data []byte) *Document {
	fm, body := splitFrontmatter(data)
	title, fromHeading := deriveTitle(fm, body)
	return &Document{Frontmatter: fm, Body: body, Title: title, TitleFromHeading: fromHeading}
}

// Draft converts the document into a composer draft. A title taken from the
// leading H1 is removed from the body so it is not shown twice.
func (d *Document) Draft() models.Draft {
	body := d.Body
	if d.TitleFromHeading {
		body = dropFirstHeading(body)
	}
	return models.Draft{Title: d.Title, Body: body}
}

// splitFrontmatter separates YAML frontmatter (between leading --- lines)
// from the body. Without a closing delimiter, or with invalid YAML, the
// whole input is body.
func splitFrontmatter(data []byte) (map[string]any, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data)
	}
	block := rest[:idx]
	body := strings.TrimLeft(string(rest[idx+1+len(delim):]), "\n\r")

	var fm map[string]any
	if err := yaml.Unmarshal(block, &fm); err != nil {
		return nil, string(data)
	}
	return fm, body
}

// deriveTitle prefers the frontmatter "title", then the first H1.
func deriveTitle(fm map[string]any, body string) (string, bool) {
	if s, ok := fm["title"].(string); ok && s != "" {
		return s, false
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:]), true
		}
	}
	return "", false
}

func dropFirstHeading(body string) string {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "# ") {
			out := append(lines[:i:i], lines[i+1:]...)
			return strings.TrimLeft(strings.Join(out, "\n"), "\n")
		}
	}
	return body
}

// Images lists the image references in body in document order.
func Images(body string) []Image {
	src := []byte(body)
	doc := goldmark.DefaultParser().Parse(text.NewReader(src))
	var out []Image
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if img, ok := n.(*ast.Image); ok {
			out = append(out, Image{Alt: altText(img, src), URL: string(img.Destination)})
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return out
}

func altText(n ast.Node, src []byte) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			b.Write(t.Segment.Value(src))
			continue
		}
		b.WriteString(altText(c, src))
	}
	return b.String()
}
