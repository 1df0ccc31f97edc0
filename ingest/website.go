package ingest

import (
	"context"
	"fmt"
	"net/url"

	"github.com/hazyhaar/corpus/extract"
	"github.com/hazyhaar/corpus/safeurl"
)

// crawlSite renders the seed page, then breadth-walks its same-host links
// until maxPages pages are collected. Seed failures abort; per-link failures
// and thin pages are skipped. Visits are paced by the service limiter.
func (s *Service) crawlSite(ctx context.Context, seed string, maxPages int) ([]pageDoc, error) {
	seedURL, err := url.Parse(seed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidURL, seed)
	}
	if err := safeurl.Validate(seed); err != nil {
		return nil, fmt.Errorf("crawl %s: %w", seed, err)
	}
	log := s.logger.With("seed", seed)

	htmlSrc, err := s.renderer.Render(ctx, seed)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", seed, err)
	}
	pc, err := extract.Page([]byte(htmlSrc), seed)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", seed, err)
	}

	links, err := extract.Links([]byte(htmlSrc), seedURL)
	if err != nil {
		log.Warn("link extraction failed", "error", err)
	}

	pages := []pageDoc{{URL: seed, Title: pc.Title, Text: pc.Text}}
	visited := map[string]bool{seed: true}

	for _, link := range links {
		if len(pages) >= maxPages {
			break
		}
		if visited[link] {
			continue
		}
		visited[link] = true

		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("crawl interrupted: %w", err)
		}
		if err := safeurl.Validate(link); err != nil {
			log.Debug("link blocked", "url", link, "error", err)
			continue
		}

		src, err := s.renderer.Render(ctx, link)
		if err != nil {
			log.Warn("page render failed, skipping", "url", link, "error", err)
			continue
		}
		lp, err := extract.Page([]byte(src), link)
		if err != nil {
			log.Warn("page extraction failed, skipping", "url", link, "error", err)
			continue
		}
		if len(lp.Text) < s.cfg.MinPageText {
			log.Debug("page below content threshold, skipping",
				"url", link, "chars", len(lp.Text))
			continue
		}

		pages = append(pages, pageDoc{URL: link, Title: lp.Title, Text: lp.Text})
	}

	log.Info("site crawl collected pages", "pages", len(pages), "links_seen", len(links))
	return pages, nil
}
