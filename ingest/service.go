// Package ingest orchestrates the content pipeline: source-type detection,
// format-specific extraction, sentence chunking, embedding, and idempotent
// persistence, plus the browser-based crawl operations.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	gh "github.com/google/go-github/v80/github"
	"golang.org/x/time/rate"

	"github.com/hazyhaar/corpus/chunk"
	"github.com/hazyhaar/corpus/embed"
	"github.com/hazyhaar/corpus/fetch"
	"github.com/hazyhaar/corpus/idgen"
	"github.com/hazyhaar/corpus/store"
	"github.com/hazyhaar/corpus/threads"
)

// Renderer loads a URL in a headless browser and returns the rendered HTML.
// Satisfied by browser.Manager.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// ThreadSource provides Slack thread documents for ingestion.
// Satisfied by threads.Service.
type ThreadSource interface {
	Get(ctx context.Context, channelID, threadTS string) (*threads.Document, error)
}

// Config tunes the ingestion pipeline.
type Config struct {
	// MaxPages caps a website crawl (seed included). Default: 10.
	MaxPages int

	// ChunkSize for web, PDF, and Markdown sources. Default: 1000.
	ChunkSize int

	// RepoChunkSize for GitHub repository documents. Default: 1500.
	RepoChunkSize int

	// MinPageText is the minimum normalized text length for a crawled page
	// beyond the seed to be kept. Default: 100.
	MinPageText int

	// PDFMaxBytes caps PDF downloads. Default: 50MB.
	PDFMaxBytes int64

	// PDFTimeout bounds the PDF download. Default: 60s.
	PDFTimeout time.Duration

	// CrawlDelay is the pause between page visits in a site crawl. Default: 1s.
	CrawlDelay time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.MaxPages <= 0 {
		c.MaxPages = 10
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = chunk.DefaultMaxSize
	}
	if c.RepoChunkSize <= 0 {
		c.RepoChunkSize = 1500
	}
	if c.MinPageText <= 0 {
		c.MinPageText = 100
	}
	if c.PDFMaxBytes <= 0 {
		c.PDFMaxBytes = 50 * 1024 * 1024
	}
	if c.PDFTimeout <= 0 {
		c.PDFTimeout = 60 * time.Second
	}
	if c.CrawlDelay <= 0 {
		c.CrawlDelay = time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Deps are the collaborators a Service needs. GitHub and Threads are
// optional: a nil GitHub client becomes an unauthenticated one, and thread
// ingestion errors without a ThreadSource.
type Deps struct {
	Fetcher  *fetch.Fetcher
	Renderer Renderer
	Gateway  *embed.Gateway
	Store    *store.Store
	GitHub   *gh.Client
	Threads  ThreadSource
}

// Service runs ingestions and crawls.
type Service struct {
	cfg      Config
	fetcher  *fetch.Fetcher
	renderer Renderer
	gateway  *embed.Gateway
	store    *store.Store
	github   *gh.Client
	threads  ThreadSource
	mdConv   *converter.Converter
	limiter  *rate.Limiter
	jobs     *jobTable
	newJobID idgen.Generator
	logger   *slog.Logger
}

// New creates a Service.
func New(cfg Config, deps Deps) (*Service, error) {
	cfg.defaults()
	if deps.Fetcher == nil || deps.Renderer == nil || deps.Gateway == nil || deps.Store == nil {
		return nil, fmt.Errorf("ingest: fetcher, renderer, gateway, and store are required")
	}
	if deps.GitHub == nil {
		deps.GitHub = gh.NewClient(nil)
	}
	return &Service{
		cfg:      cfg,
		fetcher:  deps.Fetcher,
		renderer: deps.Renderer,
		gateway:  deps.Gateway,
		store:    deps.Store,
		github:   deps.GitHub,
		threads:  deps.Threads,
		mdConv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		limiter:  rate.NewLimiter(rate.Every(cfg.CrawlDelay), 1),
		jobs:     newJobTable(),
		newJobID: idgen.Prefixed("job_", idgen.Default),
		logger:   cfg.Logger,
	}, nil
}

// Summary reports one completed ingestion.
type Summary struct {
	SourceURL       string     `json:"source_url"`
	SourceType      SourceType `json:"source_type"`
	Title           string     `json:"title"`
	PageCount       int        `json:"page_count"`
	ChunkCount      int        `json:"chunk_count"`
	ExecutionTimeMs int64      `json:"execution_time_ms"`
}

// pageDoc is one extracted unit of text headed for chunking. Websites yield
// one per crawled page; other sources yield exactly one.
type pageDoc struct {
	URL       string
	Title     string
	Text      string
	ChunkSize int // 0 = Config.ChunkSize
}

// Ingest runs the full pipeline for rawURL: detect the source type, extract
// text, chunk, embed, and persist (replacing prior records for the same
// source URLs). maxPages <= 0 uses the configured default and only applies
// to website sources.
func (s *Service) Ingest(ctx context.Context, rawURL string, maxPages int) (*Summary, error) {
	start := time.Now()
	if maxPages <= 0 {
		maxPages = s.cfg.MaxPages
	}

	srcType := DetectSourceType(rawURL)
	log := s.logger.With("url", rawURL, "source_type", string(srcType))
	log.Info("ingest started")

	var pages []pageDoc
	var err error
	switch srcType {
	case TypePDF:
		pages, err = s.extractPDF(ctx, rawURL)
	case TypeGitHub:
		pages, err = s.extractGitHub(ctx, rawURL)
	case TypeMarkdown:
		pages, err = s.extractMarkdown(ctx, rawURL)
	default:
		pages, err = s.crawlSite(ctx, rawURL, maxPages)
	}
	if err != nil {
		log.Error("ingest failed", "error", err)
		return nil, err
	}

	summary, err := s.persist(ctx, pages)
	if err != nil {
		log.Error("ingest persist failed", "error", err)
		return nil, err
	}
	summary.SourceURL = rawURL
	summary.SourceType = srcType
	summary.ExecutionTimeMs = time.Since(start).Milliseconds()

	log.Info("ingest finished",
		"pages", summary.PageCount,
		"chunks", summary.ChunkCount,
		"elapsed_ms", summary.ExecutionTimeMs)
	return summary, nil
}

// IngestDocument pushes pre-extracted text through the chunk/embed/persist
// tail of the pipeline under the given source URL.
func (s *Service) IngestDocument(ctx context.Context, sourceURL, title, text string, chunkSize int) (*Summary, error) {
	start := time.Now()
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: %s", ErrEmptyContent, sourceURL)
	}
	summary, err := s.persist(ctx, []pageDoc{{URL: sourceURL, Title: title, Text: text, ChunkSize: chunkSize}})
	if err != nil {
		return nil, err
	}
	summary.SourceURL = sourceURL
	summary.SourceType = TypeWebsite
	summary.ExecutionTimeMs = time.Since(start).Milliseconds()
	return summary, nil
}

// IngestThread ingests a Slack thread under its slack:// source URL.
func (s *Service) IngestThread(ctx context.Context, channelID, threadTS string) (*Summary, error) {
	if s.threads == nil {
		return nil, fmt.Errorf("ingest: thread source not configured")
	}
	doc, err := s.threads.Get(ctx, channelID, threadTS)
	if err != nil {
		return nil, err
	}
	return s.IngestDocument(ctx, doc.SourceURL(), doc.Title, doc.Text, 0)
}

// persist deletes any existing records for the pages' URLs, then chunks,
// embeds, and inserts new ones in a single batch.
func (s *Service) persist(ctx context.Context, pages []pageDoc) (*Summary, error) {
	urls := make([]string, 0, len(pages))
	seen := make(map[string]bool, len(pages))
	for _, p := range pages {
		if !seen[p.URL] {
			seen[p.URL] = true
			urls = append(urls, p.URL)
		}
	}

	if _, err := s.store.DeleteBySourceURLs(ctx, urls); err != nil {
		return nil, fmt.Errorf("clear previous records: %w", err)
	}

	var records []*store.Record
	for pageIdx, p := range pages {
		size := p.ChunkSize
		if size <= 0 {
			size = s.cfg.ChunkSize
		}
		for i, c := range chunk.Split(p.Text, size) {
			vec, placeholder := s.gateway.Embed(ctx, c)
			records = append(records, &store.Record{
				SourceURL:   p.URL,
				Title:       p.Title,
				Content:     c,
				Embedding:   vec,
				Placeholder: placeholder,
				ChunkIndex:  i,
				PageIndex:   pageIdx,
			})
		}
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: nothing to persist", ErrEmptyContent)
	}

	if err := s.store.InsertRecords(ctx, records); err != nil {
		return nil, fmt.Errorf("persist records: %w", err)
	}

	return &Summary{
		Title:      pages[0].Title,
		PageCount:  len(pages),
		ChunkCount: len(records),
	}, nil
}

// truncateText caps s at max runes, appending "..." when cut.
func truncateText(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
