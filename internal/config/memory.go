package config

import (
	"context"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/kaidesk/pkg/log"
)

const (
	StateBackendMemory = "memory"
	StateBackendRedis  = "redis"
)

type MemoryConfig struct {
	TurnLimit   int           `env:"CONVERSATION_TURN_LIMIT" envDefault:"12"`
	IdleTTL     time.Duration `env:"CONVERSATION_IDLE_TTL" envDefault:"2h"`
	MaxSessions int           `env:"CONVERSATION_MAX_SESSIONS" envDefault:"10000"`

	StateBackend  string `env:"STATE_BACKEND" envDefault:"memory"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" redact:"true"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
}

func NewMemoryConfig(ctx context.Context) *MemoryConfig {
	c := &MemoryConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Memory config")
	}
	return c
}
