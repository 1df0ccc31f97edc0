// Package extract pulls visible text, titles, and same-host links out of
// rendered HTML. Parsing happens host-side on the DOM snapshot the browser
// returns; nothing is evaluated inside the page.
package extract

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// PageContent is the readable content of one rendered page.
type PageContent struct {
	URL   string
	Title string
	Text  string
}

// noiseAtoms are elements whose subtree never carries readable content.
var noiseAtoms = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Nav:      true,
	atom.Footer:   true,
	atom.Header:   true,
	atom.Aside:    true,
	atom.Template: true,
	atom.Iframe:   true,
}

// blockAtoms force a line break when their subtree ends, so that text from
// adjacent blocks does not run together.
var blockAtoms = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Section: true, atom.Article: true,
	atom.Main: true, atom.Li: true, atom.Tr: true, atom.Br: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true,
	atom.H5: true, atom.H6: true, atom.Ul: true, atom.Ol: true,
	atom.Table: true, atom.Blockquote: true, atom.Pre: true,
}

// Page parses src and returns its title and normalized visible text.
func Page(src []byte, pageURL string) (*PageContent, error) {
	doc, err := html.Parse(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("extract: parse html: %w", err)
	}

	var sb strings.Builder
	collectText(doc, &sb)

	return &PageContent{
		URL:   pageURL,
		Title: findTitle(doc),
		Text:  CleanText(sb.String()),
	}, nil
}

// CleanHTML returns src with noise elements (scripts, styles, navigation
// chrome) removed, re-serialized. Feed the result to a Markdown converter.
func CleanHTML(src []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(src))
	if err != nil {
		return "", fmt.Errorf("extract: parse html: %w", err)
	}
	prune(doc)

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return "", fmt.Errorf("extract: render html: %w", err)
	}
	return buf.String(), nil
}

// CleanText collapses runs of spaces within lines and runs of blank lines
// down to a single blank line, trimming the edges.
func CleanText(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := true // swallow leading blanks
	for _, ln := range lines {
		ln = strings.Join(strings.Fields(ln), " ")
		if ln == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, ln)
		blank = false
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}

func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode {
		if noiseAtoms[n.DataAtom] || n.DataAtom == atom.Head {
			return
		}
	}
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
	if n.Type == html.ElementNode && blockAtoms[n.DataAtom] {
		sb.WriteByte('\n')
	}
}

func prune(n *html.Node) {
	var next *html.Node
	for c := n.FirstChild; c != nil; c = next {
		next = c.NextSibling
		if c.Type == html.ElementNode && noiseAtoms[c.DataAtom] {
			n.RemoveChild(c)
			continue
		}
		prune(c)
	}
}

// findTitle prefers the document <title>, then falls back to the first h1.
func findTitle(doc *html.Node) string {
	if t := firstText(doc, atom.Title); t != "" {
		return t
	}
	return firstText(doc, atom.H1)
}

func firstText(n *html.Node, a atom.Atom) string {
	if n.Type == html.ElementNode && n.DataAtom == a {
		var sb strings.Builder
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				sb.WriteString(c.Data)
			}
		}
		return strings.TrimSpace(sb.String())
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := firstText(c, a); t != "" {
			return t
		}
	}
	return ""
}
