package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/sandevgo/kaidesk/internal/config"
	"github.com/sandevgo/kaidesk/internal/core"
	"github.com/sandevgo/kaidesk/internal/providers/llm"
	"github.com/sandevgo/kaidesk/internal/providers/rag"
	"github.com/sandevgo/kaidesk/internal/service/command"
	"github.com/sandevgo/kaidesk/internal/service/feedback"
	"github.com/sandevgo/kaidesk/internal/service/identity"
	"github.com/sandevgo/kaidesk/internal/service/memory"
	"github.com/sandevgo/kaidesk/internal/service/orchestrator"
	"github.com/sandevgo/kaidesk/internal/service/policy"
	"github.com/sandevgo/kaidesk/internal/storage/sqlite"
	"github.com/sandevgo/kaidesk/internal/storage/state"
	"github.com/sandevgo/kaidesk/internal/storage/vecindex"
	"github.com/sandevgo/kaidesk/internal/transport/api"
	"github.com/sandevgo/kaidesk/internal/transport/telegram"
	"github.com/sandevgo/kaidesk/pkg/log"
	"github.com/sandevgo/kaidesk/pkg/srv"
)

func NewServices(ctx context.Context) []srv.Service {
	logger := log.FromCtx(ctx)
	services := make([]srv.Service, 0)

	// init env
	err := initEnv(ctx, config.GetRuntimePath())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init env")
	}

	// 1. Configuration
	appCfg := config.NewAppConfig(ctx)
	authCfg := config.NewAuthConfig(ctx)
	llmCfg := config.NewLLMConfig(ctx)
	memCfg := config.NewMemoryConfig(ctx)
	ragCfg := config.NewRAGConfig(ctx)
	recCfg := config.NewRecordsConfig(ctx, appCfg)

	// 2. Record store
	db, err := sqlite.NewDB(ctx, recCfg.DSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize record store")
	}
	services = append(services, srv.NewCleanup(db.Close))

	subjects := sqlite.NewSubjects(db, recCfg.Timeout)
	feedbackRepo := sqlite.NewFeedback(db)
	issues := sqlite.NewIssues(db)

	// 3. Privacy policy
	pol, err := initPolicy(ctx, recCfg, subjects)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to resolve schema mapping")
	}

	// 4. Shared state
	store, closeStore, err := initStateStore(ctx, memCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize state store")
	}
	services = append(services, srv.NewCleanup(closeStore))

	// 5. Identity and memory
	ident, err := identity.New(subjects, store, identity.Config{
		Secret:            []byte(authCfg.JWTSecret),
		SessionTTL:        authCfg.SessionTTL,
		StepUpTTL:         authCfg.StepUpTTL,
		AttemptsPerMinute: authCfg.StepUpAttemptsPerMinute,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize identity manager")
	}
	mem := memory.New(store, memCfg.TurnLimit, memCfg.IdleTTL)

	// 6. Knowledge
	engine, library, err := initKnowledge(ctx, appCfg, ragCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize knowledge index")
	}

	// 7. Reasoning
	provider, err := llm.NewProvider(ctx, llmCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize LLM provider")
	}
	reasoner := llm.NewReasoner(provider, llm.ReasonerOptions{
		Organization: llmCfg.Organization,
		HistoryTurns: llmCfg.HistoryTurns,
		Timeout:      appCfg.UpstreamTimeout,
	})

	// 8. Orchestration
	orc := orchestrator.New(reasoner, mem, ident, subjects, pol, engine, issues, orchestrator.Options{
		StatsBreakdown:     recCfg.StatsBreakdown,
		TopK:               ragCfg.TopK,
		ContextTokenBudget: ragCfg.ContextTokenBudget,
	})
	fb := feedback.NewService(feedbackRepo, issues)

	// 9. Transports
	if appCfg.EnableHTTP {
		if appCfg.AdminAPIKey == "" {
			logger.Warn().Msg("ADMIN_API_KEY is empty, admin routes are disabled")
		}
		router := api.NewRouter(ctx, api.Deps{
			Auth:     ident,
			Chat:     orc,
			Feedback: fb,
			Library:  library,
			AdminKey: appCfg.AdminAPIKey,
		})
		services = append(services, api.NewServer(appCfg.HTTPAddr, router))
	}

	if appCfg.IsTelegramSelected() {
		tgCfg := config.NewTelegramConfig(ctx)
		book := command.NewSessionBook(store, ident, authCfg.SessionTTL)
		router := command.New(command.NewCommands(ident, book, mem))

		bot, err := telegram.NewBot(ctx, tgCfg, orc, router, book)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize telegram bot")
		}
		services = append(services, bot)
	}

	return services
}

// initPolicy resolves the schema mapping against the stored records. An
// empty store is accepted so records can be imported later.
func initPolicy(ctx context.Context, cfg *config.RecordsConfig, subjects *sqlite.Subjects) (*policy.Policy, error) {
	logger := log.FromCtx(ctx)

	pol, err := policy.New(policy.DefaultFieldPolicy(), policy.SchemaMapping(cfg.SchemaMapping))
	if err != nil {
		return nil, err
	}

	columns, err := subjects.Columns(ctx)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		logger.Warn().Msg("record store is empty, skipping schema resolution")
		return pol, nil
	}

	disabled, err := pol.Resolve(columns)
	if err != nil {
		return nil, err
	}
	if len(disabled) > 0 {
		logger.Info().Strs("fields", disabled).Msg("policy fields without a record column are disabled")
	}
	return pol, nil
}

func initStateStore(ctx context.Context, cfg *config.MemoryConfig) (core.StateStore, func() error, error) {
	switch cfg.StateBackend {
	case config.StateBackendRedis:
		client, err := state.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		log.FromCtx(ctx).Info().Str("addr", cfg.RedisAddr).Msg("using redis state store")
		return state.NewRedis(client, cfg.IdleTTL), client.Close, nil
	case config.StateBackendMemory, "":
		// only conversation logs count against the cap; grants and chat
		// sessions live until their own TTL
		store, err := state.NewMemory(cfg.IdleTTL, cfg.MaxSessions, memory.KeyPrefix)
		if err != nil {
			return nil, nil, err
		}
		return store, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown state backend: %s", cfg.StateBackend)
	}
}

func initKnowledge(ctx context.Context, appCfg *config.AppConfig, cfg *config.RAGConfig) (*rag.Engine, *rag.Library, error) {
	index, err := vecindex.Open(ctx, appCfg.GetKnowledgePath(), 0)
	if err != nil {
		return nil, nil, err
	}

	encoder := rag.NewOpenAIEncoder(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModel)
	embedder := rag.NewEmbedder(encoder, cfg.EmbeddingTimeout, cfg.EmbeddingWorkers)

	engine := rag.NewEngine(index, embedder, rag.Options{
		Enabled: cfg.Enabled,
		Chunker: rag.ChunkerConfig{
			Size:    cfg.ChunkSize,
			Overlap: cfg.ChunkOverlap,
			Min:     cfg.ChunkMin,
		},
		TopK: cfg.TopK,
	})

	library, err := rag.NewLibrary(appCfg.GetSourcesPath(), engine)
	if err != nil {
		return nil, nil, err
	}
	return engine, library, nil
}

func openRecordStore(ctx context.Context) (*sql.DB, *config.RecordsConfig, error) {
	if err := initEnv(ctx, config.GetRuntimePath()); err != nil {
		return nil, nil, err
	}
	appCfg := config.NewAppConfig(ctx)
	recCfg := config.NewRecordsConfig(ctx, appCfg)

	db, err := sqlite.NewDB(ctx, recCfg.DSN)
	if err != nil {
		return nil, nil, err
	}
	return db, recCfg, nil
}

func initEnv(ctx context.Context, runtimePath string) error {
	logger := log.FromCtx(ctx)
	envFile := filepath.Join(runtimePath, ".env")

	if _, err := os.Stat(envFile); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := godotenv.Load(envFile); err != nil {
		logger.Warn().Err(err).Str("path", envFile).Msg("failed to load .env file")
		return err
	}

	logger.Debug().Str("path", envFile).Msg("loaded .env file")
	return nil
}
