package config

import (
	"context"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/kaidesk/pkg/log"
)

type RecordsConfig struct {
	// DSN is the record store location; empty means <runtime>/records.db.
	DSN     string        `env:"RECORD_STORE_DSN"`
	Timeout time.Duration `env:"RECORD_TIMEOUT" envDefault:"5s"`

	// SchemaMapping overrides canonical field -> source column pairs,
	// e.g. "name=FULL_NAME,gender=SEX".
	SchemaMapping map[string]string `env:"SCHEMA_MAPPING" envKeyValSeparator:"="`

	// StatsBreakdown lists canonical fields aggregated for statistics questions.
	StatsBreakdown []string `env:"STATS_BREAKDOWN" envDefault:"gender,nationality"`
}

func NewRecordsConfig(ctx context.Context, app *AppConfig) *RecordsConfig {
	c := &RecordsConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Records config")
	}
	if c.DSN == "" {
		c.DSN = app.GetDatabasePath()
	}
	return c
}
