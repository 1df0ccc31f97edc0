// corpusd is the knowledge-base server: URL ingestion, semantic search,
// browser-based crawling, and Slack thread ingestion over HTTP, with an
// optional MCP tool surface on /mcp.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	gh "github.com/google/go-github/v80/github"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/oauth2"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/corpus/browser"
	"github.com/hazyhaar/corpus/dbopen"
	"github.com/hazyhaar/corpus/embed"
	"github.com/hazyhaar/corpus/fetch"
	"github.com/hazyhaar/corpus/ingest"
	"github.com/hazyhaar/corpus/safeurl"
	"github.com/hazyhaar/corpus/store"
	"github.com/hazyhaar/corpus/threads"
)

// fileConfig is the optional YAML config (CONFIG_FILE). Environment
// variables override whatever the file sets.
type fileConfig struct {
	Port     string `yaml:"port"`
	DBPath   string `yaml:"db_path"`
	LogLevel string `yaml:"log_level"`

	Embedding struct {
		Endpoint  string `yaml:"endpoint"`
		Model     string `yaml:"model"`
		Dimension int    `yaml:"dimension"`
	} `yaml:"embedding"`

	Browser struct {
		RemoteURL string `yaml:"remote_url"`
	} `yaml:"browser"`

	Crawl struct {
		MaxPages int `yaml:"max_pages"`
		DelayMs  int `yaml:"delay_ms"`
	} `yaml:"crawl"`

	GitHubToken string `yaml:"github_token"`
	MCPEnabled  bool   `yaml:"mcp_enabled"`
}

func loadFileConfig(path string) (*fileConfig, error) {
	var fc fileConfig
	if path == "" {
		return &fc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &fc, nil
}

func main() {
	fc, err := loadFileConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		slog.Error("config file", "error", err)
		os.Exit(1)
	}

	port := env("PORT", or(fc.Port, "8086"))
	dbPath := env("DB_PATH", or(fc.DBPath, "db/corpus.db"))
	logLevel := env("LOG_LEVEL", or(fc.LogLevel, "info"))
	embedEndpoint := env("EMBEDDING_ENDPOINT", fc.Embedding.Endpoint)
	embedModel := env("EMBEDDING_MODEL", fc.Embedding.Model)
	browserURL := env("BROWSER_URL", fc.Browser.RemoteURL)
	githubToken := env("GITHUB_TOKEN", fc.GitHubToken)
	mcpEnabled := env("MCP_ENABLED", "") == "true" || fc.MCPEnabled

	// Logging.
	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Database.
	db, err := dbopen.Open(dbPath,
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(store.Schema),
		dbopen.WithSchema(threads.Schema))
	if err != nil {
		slog.Error("open db", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	st := store.New(db)
	threadSvc := threads.New(db)

	// Embeddings. Without an endpoint the embedder is a static stub and every
	// record is flagged as a placeholder candidate for later re-embedding.
	embedder := embed.New(embed.Config{
		Endpoint:  embedEndpoint,
		Model:     embedModel,
		Dimension: fc.Embedding.Dimension,
		Logger:    logger,
	})
	if embedEndpoint == "" {
		slog.Warn("no embedding endpoint configured, vectors will be static")
	}
	gateway := embed.NewGateway(embedder, fc.Embedding.Dimension, logger)

	// Headless browser, launched on first use.
	mgr := browser.NewManager(browser.Config{RemoteURL: browserURL, Logger: logger})
	defer mgr.Close()

	// GitHub client, authenticated when a token is available.
	var ghClient *gh.Client
	if githubToken != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: githubToken})
		ghClient = gh.NewClient(oauth2.NewClient(ctx, ts))
	}

	svc, err := ingest.New(ingest.Config{
		MaxPages:   fc.Crawl.MaxPages,
		CrawlDelay: time.Duration(fc.Crawl.DelayMs) * time.Millisecond,
		Logger:     logger,
	}, ingest.Deps{
		Fetcher:  fetch.New(fetch.Config{}),
		Renderer: mgr,
		Gateway:  gateway,
		Store:    st,
		GitHub:   ghClient,
		Threads:  threadSvc,
	})
	if err != nil {
		slog.Error("ingest service", "error", err)
		os.Exit(1)
	}

	// Router.
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Post("/api/ingest", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			URL      string `json:"url"`
			MaxPages int    `json:"max_pages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, 400, err)
			return
		}
		if req.URL == "" {
			writeError(w, 400, fmt.Errorf("url is required"))
			return
		}
		summary, err := svc.Ingest(r.Context(), req.URL, req.MaxPages)
		if err != nil {
			writeError(w, errStatus(err), err)
			return
		}
		writeJSON(w, 200, summary)
	})

	r.Get("/api/documents", func(w http.ResponseWriter, r *http.Request) {
		docs, err := st.Documents(r.Context())
		if err != nil {
			writeError(w, 500, err)
			return
		}
		if docs == nil {
			docs = []store.DocumentInfo{}
		}
		writeJSON(w, 200, docs)
	})

	r.Delete("/api/documents", func(w http.ResponseWriter, r *http.Request) {
		url := r.URL.Query().Get("url")
		if url == "" {
			writeError(w, 400, fmt.Errorf("url query parameter is required"))
			return
		}
		n, err := st.DeleteBySourceURLs(r.Context(), []string{url})
		if err != nil {
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, map[string]any{"deleted": n})
	})

	r.Get("/api/search", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		if q == "" {
			writeError(w, 400, fmt.Errorf("q query parameter is required"))
			return
		}
		vec, err := embedder.Embed(r.Context(), q)
		if err != nil {
			writeError(w, 502, fmt.Errorf("embed query: %w", err))
			return
		}
		results, err := st.NearestNeighbors(r.Context(), vec, queryInt(r, "limit", 10))
		if err != nil {
			writeError(w, 500, err)
			return
		}
		out := make([]map[string]any, len(results))
		for i, res := range results {
			out[i] = map[string]any{
				"source_url":  res.Record.SourceURL,
				"title":       res.Record.Title,
				"content":     res.Record.Content,
				"similarity":  res.Similarity,
				"placeholder": res.Record.Placeholder,
			}
		}
		writeJSON(w, 200, map[string]any{"results": out, "count": len(out)})
	})

	r.Post("/api/crawl", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			URL string `json:"url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, 400, err)
			return
		}
		if req.URL == "" {
			writeError(w, 400, fmt.Errorf("url is required"))
			return
		}
		res, err := svc.Crawl(r.Context(), req.URL)
		if err != nil {
			writeError(w, errStatus(err), err)
			return
		}
		writeJSON(w, 200, res)
	})

	r.Post("/api/crawl/batch", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			URLs []string `json:"urls"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, 400, err)
			return
		}
		id, err := svc.BatchCrawl(r.Context(), req.URLs)
		if err != nil {
			writeError(w, errStatus(err), err)
			return
		}
		writeJSON(w, 202, map[string]string{"job_id": id, "status": string(ingest.StatusRunning)})
	})

	r.Get("/api/crawl/status/{jobID}", func(w http.ResponseWriter, r *http.Request) {
		job, err := svc.JobStatus(chi.URLParam(r, "jobID"))
		if err != nil {
			writeError(w, errStatus(err), err)
			return
		}
		writeJSON(w, 200, job)
	})

	r.Get("/api/crawl/results/{jobID}", func(w http.ResponseWriter, r *http.Request) {
		results, err := svc.JobResults(chi.URLParam(r, "jobID"))
		if err != nil {
			writeError(w, errStatus(err), err)
			return
		}
		if results == nil {
			results = []ingest.CrawlResult{}
		}
		writeJSON(w, 200, map[string]any{"results": results, "count": len(results)})
	})

	r.Get("/api/threads", func(w http.ResponseWriter, r *http.Request) {
		groups, err := threadSvc.ListGroups(r.Context(), queryInt(r, "limit", 50), queryInt(r, "offset", 0))
		if err != nil {
			writeError(w, 500, err)
			return
		}
		if groups == nil {
			groups = []threads.Group{}
		}
		writeJSON(w, 200, groups)
	})

	r.Get("/api/threads/{channelID}/{threadTS}", func(w http.ResponseWriter, r *http.Request) {
		doc, err := threadSvc.Get(r.Context(), chi.URLParam(r, "channelID"), chi.URLParam(r, "threadTS"))
		if err != nil {
			writeError(w, errStatus(err), err)
			return
		}
		writeJSON(w, 200, doc)
	})

	r.Post("/api/threads/{channelID}/{threadTS}/ingest", func(w http.ResponseWriter, r *http.Request) {
		summary, err := svc.IngestThread(r.Context(), chi.URLParam(r, "channelID"), chi.URLParam(r, "threadTS"))
		if err != nil {
			writeError(w, errStatus(err), err)
			return
		}
		writeJSON(w, 200, summary)
	})

	// Optional MCP surface on the same listener.
	if mcpEnabled {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "corpus",
			Version: "1.0.0",
		}, nil)
		svc.RegisterMCP(mcpSrv, embedder)
		handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
			return mcpSrv
		}, nil)
		r.Handle("/mcp", handler)
		r.Handle("/mcp/*", handler)
		slog.Info("MCP tools mounted", "path", "/mcp")
	}

	// HTTP server.
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second, // ingestion requests crawl synchronously
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

// --- Helpers ---

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func or(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func errStatus(err error) int {
	switch {
	case errors.Is(err, ingest.ErrNotFound),
		errors.Is(err, threads.ErrThreadNotFound):
		return 404
	case errors.Is(err, ingest.ErrInvalidURL),
		errors.Is(err, safeurl.ErrPrivateAddress),
		errors.Is(err, safeurl.ErrUnsafeScheme):
		return 400
	case errors.Is(err, ingest.ErrEmptyContent),
		errors.Is(err, ingest.ErrUnsupportedContent):
		return 422
	default:
		return 500
	}
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
