package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/gosuda/deskchat/internal/chat"
	"github.com/gosuda/deskchat/internal/config"
	"github.com/gosuda/deskchat/internal/domain"
	"github.com/gosuda/deskchat/internal/llm"
	"github.com/gosuda/deskchat/internal/llm/providers"
	"github.com/gosuda/deskchat/internal/notify"
	"github.com/gosuda/deskchat/internal/server"
	"github.com/gosuda/deskchat/internal/server/middleware"
	"github.com/gosuda/deskchat/internal/store/postgres"
	redisstore "github.com/gosuda/deskchat/internal/store/redis"
	"github.com/gosuda/deskchat/internal/store/sqlite"
	"github.com/gosuda/deskchat/internal/telemetry"
)

var version = "dev" //nolint:gochecknoglobals // set via -ldflags

type migratingStore interface {
	domain.Store
	Migrate(ctx context.Context) error
}

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

func run() error {
	// Initialize structured logging from environment.
	level, parseErr := zerolog.ParseLevel(os.Getenv("DESKCHAT_LOG_LEVEL"))
	if parseErr != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if os.Getenv("DESKCHAT_LOG_FORMAT") == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	zerolog.DefaultContextLogger = &log.Logger

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	tracing, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if shutdownErr := tracing.Shutdown(flushCtx); shutdownErr != nil {
			log.Warn().Err(shutdownErr).Msg("tracing shutdown")
		}
	}()

	store, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return err
	}

	var (
		generalCounter, messageCounter middleware.Counter
		chatOpts                       []chat.Option
		subscriber                     *redisstore.PubSub
	)

	if cfg.Redis.Enabled() {
		rdb, redisErr := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if redisErr != nil {
			return redisErr
		}
		defer rdb.Close()

		subscriber = redisstore.NewPubSub(rdb)
		chatOpts = append(chatOpts, chat.WithPublisher(subscriber))
		generalCounter = redisstore.NewWindowCounter(rdb, "general", cfg.RateLimit.Window)
		messageCounter = redisstore.NewWindowCounter(rdb, "message", cfg.RateLimit.Window)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("redis enabled")
	} else {
		generalCounter = middleware.NewMemoryCounter(ctx, cfg.RateLimit.Window)
		messageCounter = middleware.NewMemoryCounter(ctx, cfg.RateLimit.Window)
	}

	completer, err := newCompleter(cfg)
	if err != nil {
		return err
	}

	if cfg.Slack.Enabled() {
		chatOpts = append(chatOpts, chat.WithAlerter(
			notify.NewSlackAlerterFromToken(cfg.Slack.BotToken, cfg.Slack.AlertChannel, cfg.Slack.AlertCooldown),
		))
		log.Info().Str("channel", cfg.Slack.AlertChannel).Msg("slack alerts enabled")
	} else {
		chatOpts = append(chatOpts, chat.WithAlerter(notify.LogAlerter{}))
	}

	chatOpts = append(chatOpts,
		chat.WithMaxMessageLength(cfg.Chat.MaxMessageLength),
		chat.WithWindow(cfg.Chat.HistoryWindow),
	)
	orchestrator := chat.NewOrchestrator(store.Conversations(), store.Messages(), completer, chatOpts...)

	deps := server.Deps{
		Chat:           orchestrator,
		Provider:       completer,
		GeneralCounter: generalCounter,
		MessageCounter: messageCounter,
	}
	if subscriber != nil {
		deps.Subscriber = subscriber
	}
	srv := server.New(cfg, deps)

	go func() {
		log.Info().
			Str("addr", cfg.Server.Addr).
			Str("provider", completer.ProviderName()).
			Str("database", cfg.Database.Driver).
			Msg("starting server")
		if startErr := srv.Start(ctx); startErr != nil {
			log.Error().Err(startErr).Msg("server error")
			cancel()
		}
	}()

	// Block until shutdown signal.
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		return shutdownErr
	}

	log.Info().Msg("stopped")
	return nil
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (migratingStore, error) {
	switch cfg.Driver {
	case "postgres":
		if cfg.MaxConns < 0 || cfg.MaxConns > math.MaxInt32 {
			return nil, fmt.Errorf("database max_conns %d out of int32 range", cfg.MaxConns)
		}
		store, err := postgres.New(ctx, cfg.DSN(), int32(cfg.MaxConns)) //nolint:gosec // bounds checked above
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		store, err := sqlite.New(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

func newCompleter(cfg *config.Config) (*llm.Client, error) {
	registry := llm.NewRegistry()
	providers.RegisterAll(registry)

	provider, err := registry.Create(cfg.LLM.Provider, llm.ProviderConfig{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("llm provider %q (available: %v): %w", cfg.LLM.Provider, registry.Available(), err)
	}

	opts := []llm.Option{}
	if cfg.LLM.RPS > 0 {
		opts = append(opts, llm.WithLimiter(rate.NewLimiter(rate.Limit(cfg.LLM.RPS), 1)))
	}

	return llm.NewClient(provider, llm.Config{
		Model:          cfg.LLM.Model,
		SystemPrompt:   cfg.Chat.SystemPrompt,
		MaxTokens:      int64(cfg.LLM.MaxTokens),
		Temperature:    cfg.LLM.Temperature,
		AttemptTimeout: cfg.LLM.AttemptTimeout,
		Retry: llm.RetryPolicy{
			Retries:  cfg.Retry.Retries,
			MinDelay: cfg.Retry.MinDelay,
			MaxDelay: cfg.Retry.MaxDelay,
			Factor:   cfg.Retry.Factor,
		},
	}, opts...), nil
}
