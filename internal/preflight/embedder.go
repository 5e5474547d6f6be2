package preflight

import (
	"context"
	"fmt"
)

// CheckEmbedder probes the configured embedder. The check never blocks
// startup: search degrades to lexical ranking when embeddings are
// unavailable, so every outcome short of "ready" is a warning.
func (c *Checker) CheckEmbedder(ctx context.Context) CheckResult {
	result := CheckResult{
		Name:     "embedder",
		Required: false,
	}

	if c.embedder == nil {
		result.Status = StatusWarn
		result.Message = "no embedder configured (lexical search only)"
		return result
	}

	name := c.embedder.ModelName()
	dims := c.embedder.Dimensions()

	if name == "static" {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("static embeddings active (%d dims)", dims)
		result.Details = "Install Ollama and pull an embedding model for semantic ranking"
		return result
	}

	if !c.embedder.Available(ctx) {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s not responding", name)
		result.Details = "Queries fall back to keyword ranking until the embedder recovers"
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s ready (%d dims)", name, dims)
	return result
}
