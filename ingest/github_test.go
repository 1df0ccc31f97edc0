package ingest

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	gh "github.com/google/go-github/v80/github"
)

func TestParseRepoURL(t *testing.T) {
	tests := []struct {
		url         string
		owner, repo string
		wantErr     bool
	}{
		{"https://github.com/golang/go", "golang", "go", false},
		{"https://github.com/golang/go.git", "golang", "go", false},
		{"https://www.github.com/owner/repo", "owner", "repo", false},
		{"https://github.com/owner/repo/tree/main/docs", "owner", "repo", false},
		{"https://GITHUB.COM/owner/repo", "owner", "repo", false},
		{"https://github.com/justowner", "", "", true},
		{"https://github.com/", "", "", true},
		{"https://gitlab.com/owner/repo", "", "", true},
	}
	for _, tt := range tests {
		owner, repo, err := ParseRepoURL(tt.url)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidURL) {
				t.Errorf("ParseRepoURL(%q) err = %v, want ErrInvalidURL", tt.url, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseRepoURL(%q): %v", tt.url, err)
			continue
		}
		if owner != tt.owner || repo != tt.repo {
			t.Errorf("ParseRepoURL(%q) = %q/%q, want %q/%q",
				tt.url, owner, repo, tt.owner, tt.repo)
		}
	}
}

func TestWantRepoFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"main.go", true},
		{"src/lib.rs", true},
		{"docs/intro.md", true},
		{"scripts/setup.PY", true},
		{"README", true},
		{"ChangeLog.txt", true},
		{"LICENSE", true},
		{"assets/logo.png", false},
		{"config.yaml", false},
		{"Makefile", false},
	}
	for _, tt := range tests {
		if got := wantRepoFile(tt.path); got != tt.want {
			t.Errorf("wantRepoFile(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestSelectRepoFiles(t *testing.T) {
	var entries []*gh.TreeEntry
	entries = append(entries, &gh.TreeEntry{
		Path: gh.Ptr("src"), Type: gh.Ptr("tree"),
	})
	for i := 0; i < maxRepoFiles+5; i++ {
		entries = append(entries, &gh.TreeEntry{
			Path: gh.Ptr(fmt.Sprintf("pkg/file%02d.go", i)),
			Type: gh.Ptr("blob"),
		})
	}
	entries = append(entries, &gh.TreeEntry{
		Path: gh.Ptr("logo.png"), Type: gh.Ptr("blob"),
	})

	got := selectRepoFiles(entries)
	if len(got) != maxRepoFiles {
		t.Fatalf("selected %d files, want cap of %d", len(got), maxRepoFiles)
	}
	if got[0].GetPath() != "pkg/file00.go" {
		t.Errorf("tree order not preserved: first = %q", got[0].GetPath())
	}
	for _, e := range got {
		if !strings.HasSuffix(e.GetPath(), ".go") {
			t.Errorf("unexpected selection %q", e.GetPath())
		}
	}
}

// fakeGitHub stands up an httptest server speaking just enough of the REST
// API for one repository ingestion.
func fakeGitHub(t *testing.T) *gh.Client {
	t.Helper()
	b64 := func(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/demo", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":1,"full_name":"octo/demo","description":"Demo repository","default_branch":"main"}`)
	})
	mux.HandleFunc("/repos/octo/demo/readme", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"type":"file","path":"README.md","encoding":"base64","content":%q}`,
			b64("# demo\n\nA repository used in tests."))
	})
	mux.HandleFunc("/repos/octo/demo/git/trees/main", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"sha":"t1","tree":[
			{"path":"main.go","type":"blob","sha":"b1"},
			{"path":"logo.png","type":"blob","sha":"b2"},
			{"path":"pkg","type":"tree","sha":"t2"}
		]}`)
	})
	mux.HandleFunc("/repos/octo/demo/git/blobs/b1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"sha":"b1","encoding":"base64","content":%q}`,
			b64("package main\n\nfunc main() {}\n"))
	})
	mux.HandleFunc("/repos/octo/demo/git/blobs/b2", func(w http.ResponseWriter, r *http.Request) {
		t.Error("fetched blob for a file outside the allowlist")
		http.NotFound(w, r)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := gh.NewClient(nil)
	client.BaseURL, _ = url.Parse(srv.URL + "/")
	return client
}

func TestIngest_GitHub(t *testing.T) {
	env := newTestEnv(t, Config{}, Deps{GitHub: fakeGitHub(t)})
	ctx := context.Background()

	summary, err := env.svc.Ingest(ctx, "https://github.com/octo/demo", 0)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if summary.SourceType != TypeGitHub {
		t.Errorf("source type = %q", summary.SourceType)
	}
	if summary.Title != "octo/demo" {
		t.Errorf("title = %q", summary.Title)
	}
	if summary.PageCount != 1 {
		t.Errorf("page count = %d, want 1 (repos are a single document)", summary.PageCount)
	}

	n, err := env.st.CountBySourceURL(ctx, "https://github.com/octo/demo")
	if err != nil {
		t.Fatalf("CountBySourceURL: %v", err)
	}
	if n == 0 {
		t.Error("repository produced no records")
	}
}

func TestRateLimitDelay(t *testing.T) {
	if _, ok := rateLimitDelay(errors.New("boom")); ok {
		t.Error("plain error treated as rate limit")
	}
	if d, ok := rateLimitDelay(&gh.AbuseRateLimitError{}); !ok || d <= 0 {
		t.Errorf("abuse error: delay=%v ok=%v", d, ok)
	}
	if d, ok := rateLimitDelay(&gh.RateLimitError{}); !ok || d <= 0 {
		t.Errorf("rate limit error with past reset: delay=%v ok=%v", d, ok)
	}
}
