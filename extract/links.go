package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// assetExts are path extensions that never lead to crawlable pages.
var assetExts = map[string]bool{
	".pdf": true, ".jpg": true, ".jpeg": true, ".png": true,
	".gif": true, ".css": true, ".js": true, ".ico": true,
}

// Links returns the crawlable same-host links found in src, resolved against
// base, fragment-stripped, and deduplicated in document order. Anchors that
// point off-host, at asset files, or under /api/ or /admin/ are dropped.
func Links(src []byte, base *url.URL) ([]string, error) {
	doc, err := html.Parse(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("extract: parse html: %w", err)
	}

	seen := make(map[string]bool)
	var out []string

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			if link, ok := crawlable(href(n), base); ok && !seen[link] {
				seen[link] = true
				out = append(out, link)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return out, nil
}

func href(n *html.Node) string {
	for _, a := range n.Attr {
		if a.Key == "href" {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func crawlable(raw string, base *url.URL) (string, bool) {
	if raw == "" ||
		strings.HasPrefix(raw, "#") ||
		strings.HasPrefix(raw, "mailto:") ||
		strings.HasPrefix(raw, "tel:") ||
		strings.HasPrefix(raw, "javascript:") {
		return "", false
	}

	u, err := base.Parse(raw)
	if err != nil {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if !strings.EqualFold(u.Hostname(), base.Hostname()) {
		return "", false
	}

	p := strings.ToLower(u.Path)
	if assetExts[path.Ext(p)] {
		return "", false
	}
	if strings.Contains(p, "/api/") || strings.Contains(p, "/admin/") {
		return "", false
	}

	u.Fragment = ""
	return u.String(), true
}
