package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func waitForJob(t *testing.T, svc *Service, id string) *Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := svc.JobStatus(id)
		if err != nil {
			t.Fatalf("JobStatus: %v", err)
		}
		if job.Status != StatusRunning {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("batch job did not finish in time")
	return nil
}

func TestCrawl(t *testing.T) {
	pageURL := "https://docs.test/"
	env := newTestEnv(t, Config{}, Deps{
		Renderer: &fakeRenderer{pages: map[string]string{pageURL: seedHTML}},
	})

	res, err := env.svc.Crawl(context.Background(), pageURL)
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if res.Title != "Docs Home" {
		t.Errorf("title = %q", res.Title)
	}
	if !strings.Contains(res.Content, "documentation portal") {
		t.Errorf("content missing page text:\n%s", res.Content)
	}
	// The admin link is excluded; guide, thin, and broken survive.
	if len(res.Links) != 3 {
		t.Errorf("links = %v, want 3 same-host links", res.Links)
	}
	if res.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}

	// Crawl never persists.
	if n, _ := env.st.CountBySourceURL(context.Background(), pageURL); n != 0 {
		t.Errorf("crawl persisted %d records", n)
	}
}

func TestCrawl_ContentCap(t *testing.T) {
	pageURL := "https://docs.test/long"
	var sb strings.Builder
	sb.WriteString("<html><head><title>Long</title></head><body><p>")
	for i := 0; i < 2000; i++ {
		sb.WriteString("padding sentence with several words. ")
	}
	sb.WriteString("</p></body></html>")

	env := newTestEnv(t, Config{}, Deps{
		Renderer: &fakeRenderer{pages: map[string]string{pageURL: sb.String()}},
	})

	res, err := env.svc.Crawl(context.Background(), pageURL)
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if got := len([]rune(res.Content)); got > maxCrawlContent+3 {
		t.Errorf("content length = %d runes, want <= %d plus ellipsis", got, maxCrawlContent)
	}
	if !strings.HasSuffix(res.Content, "...") {
		t.Error("truncated content missing ellipsis")
	}
}

func TestBatchCrawl(t *testing.T) {
	env := newTestEnv(t, Config{}, Deps{
		Renderer: &fakeRenderer{pages: map[string]string{
			"https://docs.test/":      seedHTML,
			"https://docs.test/guide": guideHTML,
		}},
	})

	urls := []string{"https://docs.test/", "https://docs.test/missing", "https://docs.test/guide"}
	id, err := env.svc.BatchCrawl(context.Background(), urls)
	if err != nil {
		t.Fatalf("BatchCrawl: %v", err)
	}
	if id == "" {
		t.Fatal("empty job id")
	}

	job := waitForJob(t, env.svc, id)
	if job.Status != StatusCompleted {
		t.Errorf("status = %q, want completed (error: %s)", job.Status, job.Error)
	}
	if job.Total != 3 {
		t.Errorf("total = %d, want 3", job.Total)
	}
	// Completed counts attempted URLs, including the failed one.
	if job.Completed != 3 {
		t.Errorf("completed = %d, want 3", job.Completed)
	}

	results, err := env.svc.JobResults(id)
	if err != nil {
		t.Fatalf("JobResults: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 (failed URL yields none)", len(results))
	}
	if results[0].URL != "https://docs.test/" || results[1].URL != "https://docs.test/guide" {
		t.Errorf("results out of order: %q, %q", results[0].URL, results[1].URL)
	}
}

func TestBatchCrawl_Empty(t *testing.T) {
	env := newTestEnv(t, Config{}, Deps{})
	if _, err := env.svc.BatchCrawl(context.Background(), nil); !errors.Is(err, ErrInvalidURL) {
		t.Fatalf("err = %v, want ErrInvalidURL", err)
	}
}

func TestJobStatus_Unknown(t *testing.T) {
	env := newTestEnv(t, Config{}, Deps{})
	if _, err := env.svc.JobStatus("job_nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("JobStatus err = %v, want ErrNotFound", err)
	}
	if _, err := env.svc.JobResults("job_nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("JobResults err = %v, want ErrNotFound", err)
	}
}
