package ingest

import (
	"net/url"
	"strings"
)

// SourceType classifies a URL for extraction.
type SourceType string

const (
	TypePDF      SourceType = "pdf"
	TypeGitHub   SourceType = "github"
	TypeMarkdown SourceType = "markdown"
	TypeWebsite  SourceType = "website"
)

// DetectSourceType classifies rawURL by shape alone. Rules apply in order:
// .pdf path suffix, github.com host, .md/.markdown path suffix, and
// everything else is a website. Never fails; unparseable URLs fall through
// to TypeWebsite and error during extraction instead.
func DetectSourceType(rawURL string) SourceType {
	p := strings.ToLower(rawURL)
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		p = strings.ToLower(u.Path)
	}

	switch {
	case strings.HasSuffix(p, ".pdf"):
		return TypePDF
	case strings.Contains(strings.ToLower(rawURL), "github.com"):
		return TypeGitHub
	case strings.HasSuffix(p, ".md") || strings.HasSuffix(p, ".markdown"):
		return TypeMarkdown
	default:
		return TypeWebsite
	}
}
