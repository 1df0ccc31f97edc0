package ingest

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	gh "github.com/google/go-github/v80/github"
)

const (
	maxRepoFiles = 20
	maxFileChars = 2000
	repoBlockSep = "\n\n---\n\n"

	githubRetries  = 3
	githubMaxDelay = 30 * time.Second
)

// repoFileExts are the source and doc extensions worth embedding.
var repoFileExts = map[string]bool{
	".md": true, ".py": true, ".js": true, ".ts": true,
	".java": true, ".cpp": true, ".c": true, ".go": true, ".rs": true,
}

// ParseRepoURL extracts owner and repo from a github.com URL. Extra path
// segments (tree/blob refs) are tolerated; a trailing .git is stripped.
func ParseRepoURL(rawURL string) (owner, repo string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidURL, rawURL)
	}
	host := strings.ToLower(u.Hostname())
	if host != "github.com" && host != "www.github.com" {
		return "", "", fmt.Errorf("%w: %s is not a github.com URL", ErrInvalidURL, rawURL)
	}

	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segs) < 2 || segs[0] == "" || segs[1] == "" {
		return "", "", fmt.Errorf("%w: %s needs github.com/<owner>/<repo>", ErrInvalidURL, rawURL)
	}
	return segs[0], strings.TrimSuffix(segs[1], ".git"), nil
}

// extractGitHub builds one document from a repository: metadata, README,
// and up to maxRepoFiles allow-listed files from the default branch tree,
// each truncated and labeled with its path.
func (s *Service) extractGitHub(ctx context.Context, rawURL string) ([]pageDoc, error) {
	owner, repo, err := ParseRepoURL(rawURL)
	if err != nil {
		return nil, err
	}
	log := s.logger.With("owner", owner, "repo", repo)

	var repoInfo *gh.Repository
	err = s.withGitHubRetry(ctx, func() error {
		var err error
		repoInfo, _, err = s.github.Repositories.Get(ctx, owner, repo)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("github repo %s/%s: %w", owner, repo, err)
	}

	title := repoInfo.GetFullName()
	var blocks []string
	if desc := repoInfo.GetDescription(); desc != "" {
		blocks = append(blocks, "Repository: "+title+"\n"+desc)
	} else {
		blocks = append(blocks, "Repository: "+title)
	}

	// README is a bonus, not a requirement.
	readme, _, err := s.github.Repositories.GetReadme(ctx, owner, repo, nil)
	if err != nil {
		log.Warn("github readme unavailable", "error", err)
	} else if content, err := readme.GetContent(); err == nil && content != "" {
		blocks = append(blocks, readme.GetPath()+":\n"+truncateText(content, maxFileChars))
	}

	branch := repoInfo.GetDefaultBranch()
	if branch == "" {
		branch = "main"
	}

	var tree *gh.Tree
	err = s.withGitHubRetry(ctx, func() error {
		var err error
		tree, _, err = s.github.Git.GetTree(ctx, owner, repo, branch, true)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("github tree %s/%s@%s: %w", owner, repo, branch, err)
	}

	for _, entry := range selectRepoFiles(tree.Entries) {
		content, err := s.fetchBlobText(ctx, owner, repo, entry.GetSHA())
		if err != nil {
			log.Warn("github blob fetch failed", "path", entry.GetPath(), "error", err)
			continue
		}
		if strings.TrimSpace(content) == "" {
			continue
		}
		blocks = append(blocks, entry.GetPath()+":\n"+truncateText(content, maxFileChars))
	}

	text := strings.Join(blocks, repoBlockSep)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: repository %s/%s", ErrEmptyContent, owner, repo)
	}

	return []pageDoc{{URL: rawURL, Title: title, Text: text, ChunkSize: s.cfg.RepoChunkSize}}, nil
}

// selectRepoFiles keeps allow-listed blobs in tree order, at most
// maxRepoFiles of them.
func selectRepoFiles(entries []*gh.TreeEntry) []*gh.TreeEntry {
	var out []*gh.TreeEntry
	for _, e := range entries {
		if e.GetType() != "blob" {
			continue
		}
		if !wantRepoFile(e.GetPath()) {
			continue
		}
		out = append(out, e)
		if len(out) == maxRepoFiles {
			break
		}
	}
	return out
}

func wantRepoFile(p string) bool {
	if repoFileExts[strings.ToLower(path.Ext(p))] {
		return true
	}
	upper := strings.ToUpper(p)
	return strings.Contains(upper, "README") ||
		strings.Contains(upper, "CHANGELOG") ||
		strings.Contains(upper, "LICENSE")
}

func (s *Service) fetchBlobText(ctx context.Context, owner, repo, sha string) (string, error) {
	var blob *gh.Blob
	err := s.withGitHubRetry(ctx, func() error {
		var err error
		blob, _, err = s.github.Git.GetBlob(ctx, owner, repo, sha)
		return err
	})
	if err != nil {
		return "", err
	}

	content := blob.GetContent()
	if blob.GetEncoding() != "base64" {
		return content, nil
	}
	// The API wraps base64 payloads in newlines.
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(content, "\n", ""))
	if err != nil {
		return "", fmt.Errorf("decode blob %s: %w", sha, err)
	}
	return string(decoded), nil
}

// withGitHubRetry retries fn on GitHub rate-limit errors with the wait the
// API asks for (capped), and fails through on anything else.
func (s *Service) withGitHubRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= githubRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		delay, rateLimited := rateLimitDelay(lastErr)
		if !rateLimited || attempt == githubRetries {
			return lastErr
		}
		if delay > githubMaxDelay {
			delay = githubMaxDelay
		}
		s.logger.Warn("github rate limited, backing off",
			"delay", delay, "attempt", attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

func rateLimitDelay(err error) (time.Duration, bool) {
	var rle *gh.RateLimitError
	if errors.As(err, &rle) {
		d := time.Until(rle.Rate.Reset.Time)
		if d <= 0 {
			d = time.Second
		}
		return d, true
	}
	var abuse *gh.AbuseRateLimitError
	if errors.As(err, &abuse) {
		if abuse.RetryAfter != nil {
			return *abuse.RetryAfter, true
		}
		return 5 * time.Second, true
	}
	return 0, false
}
