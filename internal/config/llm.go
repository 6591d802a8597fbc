package config

import (
	"context"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/kaidesk/pkg/log"
)

type LLMConfig struct {
	Provider string `env:"LLM_PROVIDER" envDefault:"openrouter"`
	Model    string `env:"LLM_MODEL" envDefault:"google/gemma-3-27b-it:free"`

	OpenAIAPIKey        string `env:"OPENAI_API_KEY" redact:"true"`
	OpenRouterAPIKey    string `env:"OPENROUTER_API_KEY" redact:"true"`
	AnthropicAPIKey     string `env:"ANTHROPIC_API_KEY" redact:"true"`
	GeminiAPIKey        string `env:"GEMINI_API_KEY" redact:"true"`
	OllamaBaseURL       string `env:"OLLAMA_BASE_URL" envDefault:"http://localhost:11434"`
	OllamaAPIKey        string `env:"OLLAMA_API_KEY" redact:"true"`
	CustomOpenAIBaseURL string `env:"CUSTOM_OPENAI_BASE_URL"`
	CustomOpenAIAPIKey  string `env:"CUSTOM_OPENAI_API_KEY" redact:"true"`

	// Organization is named in the assistant persona.
	Organization string `env:"KAI_ORGANIZATION" envDefault:"the university"`

	// HistoryTurns is how many recent turns are rendered into each prompt.
	HistoryTurns int `env:"LLM_HISTORY_TURNS" envDefault:"6"`
}

func NewLLMConfig(ctx context.Context) *LLMConfig {
	c := &LLMConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse LLM config")
	}
	return c
}

func (c LLMConfig) GetProvider() string {
	return c.Provider
}

func (c LLMConfig) GetModel() string {
	return c.Model
}
