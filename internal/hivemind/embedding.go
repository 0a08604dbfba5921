package hivemind

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GenAIEmbedder implements EmbeddingEngine against Google's genai embedding
// model, grounded on theRebelliousNerd-codenerd's internal/embedding/genai.go
// client wrapper.
type GenAIEmbedder struct {
	client *genai.Client
	model  string
}

// NewGenAIEmbedder constructs a GenAIEmbedder using the given client and
// embedding model name (e.g. "text-embedding-004", which emits 384-d
// vectors when requested with an explicit output dimensionality).
func NewGenAIEmbedder(client *genai.Client, model string) *GenAIEmbedder {
	if model == "" {
		model = "text-embedding-004"
	}
	return &GenAIEmbedder{client: client, model: model}
}

// Embed returns the 384-d embedding for text.
func (e *GenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	dims := int32(embeddingDims)
	resp, err := e.client.Models.EmbedContent(ctx, e.model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		&genai.EmbedContentConfig{OutputDimensionality: &dims})
	if err != nil {
		return nil, fmt.Errorf("genai embed content: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("genai embed content: empty response")
	}
	return resp.Embeddings[0].Values, nil
}
