package ingest

import (
	"context"
	"fmt"
	"sync"
)

// JobStatus is the lifecycle state of a batch-crawl job.
type JobStatus string

const (
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// Job is a point-in-time view of a batch-crawl job. Completed counts
// attempted URLs, successful or not; failures are visible as the gap
// between Completed and the number of results.
type Job struct {
	ID        string    `json:"id"`
	Status    JobStatus `json:"status"`
	Total     int       `json:"total"`
	Completed int       `json:"completed"`
	Error     string    `json:"error,omitempty"`
}

// jobTable tracks batch-crawl jobs in memory for the process lifetime.
type jobTable struct {
	mu   sync.Mutex
	jobs map[string]*jobState
}

type jobState struct {
	job     Job
	results []CrawlResult
}

func newJobTable() *jobTable {
	return &jobTable{jobs: make(map[string]*jobState)}
}

func (t *jobTable) create(id string, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs[id] = &jobState{job: Job{ID: id, Status: StatusRunning, Total: total}}
}

func (t *jobTable) markAttempted(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.jobs[id]; ok {
		st.job.Completed++
	}
}

func (t *jobTable) addResult(id string, r CrawlResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.jobs[id]; ok {
		st.results = append(st.results, r)
	}
}

func (t *jobTable) finish(id string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.jobs[id]
	if !ok {
		return
	}
	if err != nil {
		st.job.Status = StatusFailed
		st.job.Error = err.Error()
		return
	}
	st.job.Status = StatusCompleted
}

func (t *jobTable) status(id string) (Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.jobs[id]
	if !ok {
		return Job{}, false
	}
	return st.job, true
}

func (t *jobTable) results(id string) ([]CrawlResult, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.jobs[id]
	if !ok {
		return nil, false
	}
	out := make([]CrawlResult, len(st.results))
	copy(out, st.results)
	return out, true
}

// BatchCrawl starts a background job crawling urls sequentially and returns
// its ID immediately. The job outlives the request context.
func (s *Service) BatchCrawl(ctx context.Context, urls []string) (string, error) {
	if len(urls) == 0 {
		return "", fmt.Errorf("%w: batch needs at least one URL", ErrInvalidURL)
	}
	id := s.newJobID()
	s.jobs.create(id, len(urls))
	go s.runBatch(context.WithoutCancel(ctx), id, urls)
	return id, nil
}

func (s *Service) runBatch(ctx context.Context, id string, urls []string) {
	log := s.logger.With("job_id", id)
	log.Info("batch crawl started", "urls", len(urls))

	for _, u := range urls {
		if ctx.Err() != nil {
			s.jobs.finish(id, ctx.Err())
			log.Error("batch crawl aborted", "error", ctx.Err())
			return
		}
		res, err := s.Crawl(ctx, u)
		s.jobs.markAttempted(id)
		if err != nil {
			log.Warn("batch crawl url failed", "url", u, "error", err)
			continue
		}
		s.jobs.addResult(id, *res)
	}

	s.jobs.finish(id, nil)
	log.Info("batch crawl finished")
}

// JobStatus returns the current state of a batch-crawl job.
func (s *Service) JobStatus(id string) (*Job, error) {
	job, ok := s.jobs.status(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return &job, nil
}

// JobResults returns the results collected so far for a batch-crawl job.
func (s *Service) JobResults(id string) ([]CrawlResult, error) {
	results, ok := s.jobs.results(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return results, nil
}
