package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/kaidesk/pkg/log"
)

type AppConfig struct {
	RuntimePath string `env:"KAI_RUNTIME_PATH" envDefault:".kaidesk"`

	// Transport Flags
	EnableHTTP     bool   `env:"ENABLE_HTTP" envDefault:"true"`
	EnableTelegram bool   `env:"ENABLE_TELEGRAM" envDefault:"false"`
	HTTPAddr       string `env:"HTTP_ADDR" envDefault:":8080"`

	AdminAPIKey     string        `env:"ADMIN_API_KEY" redact:"true"`
	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"30s"`
}

func NewAppConfig(ctx context.Context) *AppConfig {
	c := &AppConfig{RuntimePath: GetRuntimePath()}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse App config")
	}
	c.RuntimePath = absRuntimePath(c.RuntimePath)
	return c
}

func (c AppConfig) GetRuntimePath() string {
	return c.RuntimePath
}

func (c AppConfig) GetKnowledgePath() string {
	return filepath.Join(c.RuntimePath, "knowledge")
}

func (c AppConfig) GetSourcesPath() string {
	return filepath.Join(c.RuntimePath, "knowledge", "files")
}

func (c AppConfig) GetDatabasePath() string {
	return filepath.Join(c.RuntimePath, "records.db")
}

func (c AppConfig) IsTelegramSelected() bool {
	return c.EnableTelegram
}
