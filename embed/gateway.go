package embed

import (
	"context"
	"log/slog"
	"math/rand/v2"
)

// Gateway wraps an Embedder with the ingestion pipeline's availability
// policy: a provider failure degrades to a random placeholder vector
// instead of failing the whole ingestion. Records built from placeholders
// are flagged so they can be re-embedded later.
type Gateway struct {
	emb    Embedder
	dim    int
	logger *slog.Logger
}

// NewGateway wraps emb. fallbackDim is used for placeholder vectors when the
// provider never reported a dimension; 0 means DefaultDimension.
func NewGateway(emb Embedder, fallbackDim int, logger *slog.Logger) *Gateway {
	if fallbackDim <= 0 {
		fallbackDim = DefaultDimension
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{emb: emb, dim: fallbackDim, logger: logger}
}

// Embed returns the embedding for text, or a placeholder vector when the
// provider fails. The second return value reports whether the vector is a
// placeholder.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, bool) {
	vec, err := g.emb.Embed(ctx, text)
	if err == nil {
		return vec, false
	}
	g.logger.Warn("embedding provider failed, storing placeholder vector",
		"error", err, "text_len", len(text))
	return g.placeholder(), true
}

// EmbedBatch embeds texts, substituting placeholders for the whole batch on
// provider failure. The bool slice marks placeholder positions.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, []bool) {
	flags := make([]bool, len(texts))
	vecs, err := g.emb.EmbedBatch(ctx, texts)
	if err == nil {
		return vecs, flags
	}
	g.logger.Warn("embedding provider failed, storing placeholder vectors",
		"error", err, "batch", len(texts))
	vecs = make([][]float32, len(texts))
	for i := range vecs {
		vecs[i] = g.placeholder()
		flags[i] = true
	}
	return vecs, flags
}

func (g *Gateway) placeholder() []float32 {
	dim := g.emb.Dimension()
	if dim <= 0 {
		dim = g.dim
	}
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = rand.Float32()*2 - 1
	}
	return vec
}
