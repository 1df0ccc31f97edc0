package ingest

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/corpus/embed"
	"github.com/hazyhaar/corpus/kit"
)

// RegisterMCP registers the corpus tools on an MCP server. emb is the real
// embedder used for query vectors; search must not degrade to placeholders.
func (s *Service) RegisterMCP(srv *mcp.Server, emb embed.Embedder) {
	s.registerIngestTool(srv)
	s.registerSearchTool(srv, emb)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	sc := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		sc["required"] = required
	}
	return sc
}

// --- ingest ---

type ingestReq struct {
	URL      string `json:"url"`
	MaxPages int    `json:"max_pages,omitempty"`
}

func (s *Service) registerIngestTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "corpus_ingest",
		Description: "Ingest a URL (website, PDF, Markdown file, or GitHub repository) into the searchable knowledge base.",
		InputSchema: inputSchema(map[string]any{
			"url":       map[string]any{"type": "string", "description": "Source URL to ingest"},
			"max_pages": map[string]any{"type": "integer", "description": "Page cap for website crawls (default: 10)"},
		}, []string{"url"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*ingestReq)
		return s.Ingest(ctx, r.URL, r.MaxPages)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r ingestReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- search ---

type searchReq struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

func (s *Service) registerSearchTool(srv *mcp.Server, emb embed.Embedder) {
	tool := &mcp.Tool{
		Name:        "corpus_search",
		Description: "Search ingested content by semantic similarity and return the best-matching chunks.",
		InputSchema: inputSchema(map[string]any{
			"query": map[string]any{"type": "string", "description": "Natural-language query"},
			"limit": map[string]any{"type": "integer", "description": "Number of results (default: 10)"},
		}, []string{"query"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*searchReq)
		vec, err := emb.Embed(ctx, r.Query)
		if err != nil {
			return nil, err
		}
		results, err := s.store.NearestNeighbors(ctx, vec, r.Limit)
		if err != nil {
			return nil, err
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
		return map[string]any{"results": out, "count": len(out)}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r searchReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
