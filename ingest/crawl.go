package ingest

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"

	"github.com/hazyhaar/corpus/extract"
	"github.com/hazyhaar/corpus/safeurl"
)

const (
	maxCrawlContent = 5000 // runes of Markdown per result
	maxCrawlLinks   = 50
)

// CrawlResult is a single-page snapshot: Markdown content plus the same-host
// links found on the page. Nothing is embedded or persisted.
type CrawlResult struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Links     []string  `json:"links"`
	Timestamp time.Time `json:"timestamp"`
}

// Crawl renders one page and returns its content as Markdown, truncated,
// with up to maxCrawlLinks discovered links.
func (s *Service) Crawl(ctx context.Context, rawURL string) (*CrawlResult, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidURL, rawURL)
	}
	if err := safeurl.Validate(rawURL); err != nil {
		return nil, fmt.Errorf("crawl %s: %w", rawURL, err)
	}

	htmlSrc, err := s.renderer.Render(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", rawURL, err)
	}

	pc, err := extract.Page([]byte(htmlSrc), rawURL)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", rawURL, err)
	}

	links, err := extract.Links([]byte(htmlSrc), u)
	if err != nil {
		s.logger.Warn("link extraction failed", "url", rawURL, "error", err)
	}
	if len(links) > maxCrawlLinks {
		links = links[:maxCrawlLinks]
	}

	return &CrawlResult{
		URL:       rawURL,
		Title:     pc.Title,
		Content:   truncateText(s.pageMarkdown(htmlSrc, rawURL, pc.Text), maxCrawlContent),
		Links:     links,
		Timestamp: time.Now(),
	}, nil
}

// pageMarkdown converts noise-stripped page HTML to Markdown, falling back
// to the plain extracted text when conversion produces nothing useful.
func (s *Service) pageMarkdown(htmlSrc, pageURL, fallback string) string {
	cleaned, err := extract.CleanHTML([]byte(htmlSrc))
	if err != nil {
		return fallback
	}
	md, err := s.mdConv.ConvertString(cleaned, converter.WithDomain(pageURL))
	if err != nil || strings.TrimSpace(md) == "" {
		s.logger.Warn("markdown conversion fell back to plain text",
			"url", pageURL, "error", err)
		return fallback
	}
	return strings.TrimSpace(md)
}
