package config

import (
	"context"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/kaidesk/pkg/log"
)

type RAGConfig struct {
	Enabled bool `env:"RAG_ENABLED" envDefault:"true"`

	ChunkSize    int `env:"CHUNK_SIZE" envDefault:"500"`
	ChunkOverlap int `env:"CHUNK_OVERLAP" envDefault:"50"`
	ChunkMin     int `env:"CHUNK_MIN" envDefault:"50"`
	TopK         int `env:"RAG_TOP_K" envDefault:"3"`

	EmbeddingBaseURL string        `env:"EMBEDDING_BASE_URL" envDefault:"http://localhost:11434/v1"`
	EmbeddingAPIKey  string        `env:"EMBEDDING_API_KEY" redact:"true"`
	EmbeddingModel   string        `env:"EMBEDDING_MODEL" envDefault:"nomic-embed-text"`
	EmbeddingTimeout time.Duration `env:"EMBEDDING_TIMEOUT" envDefault:"20s"`
	EmbeddingWorkers int           `env:"EMBEDDING_WORKERS" envDefault:"4"`

	// ContextTokenBudget caps retrieved text injected into the final prompt.
	ContextTokenBudget int `env:"CONTEXT_TOKEN_BUDGET" envDefault:"1500"`
}

func NewRAGConfig(ctx context.Context) *RAGConfig {
	cfg := &RAGConfig{}
	if err := env.Parse(cfg); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse RAG config")
	}
	return cfg
}
