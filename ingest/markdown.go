package ingest

import (
	"bytes"
	"context"
	"fmt"
	stdhtml "html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"

	"github.com/hazyhaar/corpus/extract"
)

const markdownFallbackTitle = "Untitled document"

// extractMarkdown fetches a Markdown file and reduces it to plain text by
// rendering to HTML and stripping every tag. Rendering first (instead of
// regex-scrubbing the source) keeps link text, list items, and table cells.
func (s *Service) extractMarkdown(ctx context.Context, rawURL string) ([]pageDoc, error) {
	res, err := s.fetcher.Get(ctx, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("download markdown: %w", err)
	}

	text, err := markdownToText(res.Body)
	if err != nil {
		return nil, fmt.Errorf("render markdown %s: %w", rawURL, err)
	}
	if text == "" {
		return nil, fmt.Errorf("%w: markdown %s is empty", ErrEmptyContent, rawURL)
	}

	title := markdownTitle(res.Body)
	if title == "" {
		title = markdownFallbackTitle
	}

	return []pageDoc{{URL: rawURL, Title: title, Text: text}}, nil
}

func markdownToText(src []byte) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert(src, &buf); err != nil {
		return "", err
	}
	stripped := bluemonday.StrictPolicy().Sanitize(buf.String())
	return extract.CleanText(stdhtml.UnescapeString(stripped)), nil
}

// markdownTitle returns the first top-level heading, if any.
func markdownTitle(src []byte) string {
	for _, line := range strings.Split(string(src), "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, "# "); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}
