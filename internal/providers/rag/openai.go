package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const (
	e5QueryPrefix   = "query: "
	e5PassagePrefix = "passage: "
)

// OpenAIEncoder calls any OpenAI compatible /embeddings endpoint
// (OpenAI, Ollama, llama.cpp server, vLLM).
type OpenAIEncoder struct {
	client *openai.Client
	model  string
	prefix bool
}

func NewOpenAIEncoder(baseURL, apiKey, model string) *OpenAIEncoder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}

	return &OpenAIEncoder{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		// e5 family models are trained with role prefixes
		prefix: strings.Contains(strings.ToLower(model), "e5"),
	}
}

func (o *OpenAIEncoder) EncodeQuery(ctx context.Context, text string) ([]float32, error) {
	if o.prefix {
		text = e5QueryPrefix + text
	}
	return o.embed(ctx, text)
}

func (o *OpenAIEncoder) EncodePassage(ctx context.Context, text string) ([]float32, error) {
	if o.prefix {
		text = e5PassagePrefix + text
	}
	return o.embed(ctx, text)
}

func (o *OpenAIEncoder) embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: []string{text},
		Model: openai.EmbeddingModel(o.model),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embedding response is empty")
	}
	return resp.Data[0].Embedding, nil
}
