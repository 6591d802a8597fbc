package config

import (
	"context"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/kaidesk/pkg/log"
)

type AuthConfig struct {
	JWTSecret  string        `env:"JWT_SECRET,required,notEmpty" redact:"true"`
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"24h"`

	// Step-up verification gates the sensitive field tier.
	StepUpTTL               time.Duration `env:"STEP_UP_TTL" envDefault:"10m"`
	StepUpAttemptsPerMinute int           `env:"STEP_UP_ATTEMPTS_PER_MINUTE" envDefault:"5"`
}

func NewAuthConfig(ctx context.Context) *AuthConfig {
	c := &AuthConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Auth config")
	}
	return c
}
