package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chatterbox/chatterbox-api/internal/api"
	"github.com/chatterbox/chatterbox-api/internal/auth"
	"github.com/chatterbox/chatterbox-api/internal/config"
	"github.com/chatterbox/chatterbox-api/internal/core"
	"github.com/chatterbox/chatterbox-api/internal/logger"
	"github.com/chatterbox/chatterbox-api/internal/realtime"
	"github.com/chatterbox/chatterbox-api/internal/scheduler"
	"github.com/chatterbox/chatterbox-api/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	migrateOnly := flag.Bool("migrate-only", false, "Apply database migrations and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log, *migrateOnly); err != nil {
		log.Fatal("server exited with error", zap.Error(err))
	}
	log.Info("server exiting gracefully")
}

func run(cfg *config.Config, log *zap.Logger, migrateOnly bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Opening the store applies pending migrations.
	db, err := store.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL, cfg.DatabaseMaxConns, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()
	if migrateOnly {
		log.Info("migrations applied", zap.String("driver", cfg.DatabaseDriver))
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)

	var broker realtime.Broker = realtime.NewLocalBroker()
	if cfg.RedisURL != "" {
		rb, err := realtime.NewRedisBroker(ctx, cfg.RedisURL, log)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer rb.Close()
		g.Go(func() error { return rb.Run(gctx) })
		broker = rb
		log.Info("realtime fan-out via redis")
	}
	hub := realtime.NewHub(broker, log)

	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTExpiresIn)
	users := core.NewUserService(db, tokens, hub, log)
	chats := core.NewChatService(db, hub, log)
	uploads, err := core.NewUploadService(cfg.UploadDir, cfg.UploadMaxBytes, db, log)
	if err != nil {
		return fmt.Errorf("failed to prepare upload directory: %w", err)
	}

	completers, err := buildCompleters(ctx, cfg, log)
	if err != nil {
		return err
	}
	ai := core.NewAIService(chats, completers, cfg.AITimeout, log)
	defer ai.Close()

	handler := api.NewAPIHandler(api.Services{
		Users:       users,
		Chats:       chats,
		Activity:    core.NewActivityService(db, users, log),
		Notes:       core.NewNoteService(db, log),
		Uploads:     uploads,
		AI:          ai,
		StreamChunk: cfg.AIStreamChunk,
	}, log)
	socket := realtime.NewSocketHandler(hub, chats, users, cfg.AllowedOrigins(), log)
	router := api.NewRouter(handler, socket, cfg.AllowedOrigins(), log)

	jobs, err := scheduler.New(log)
	if err != nil {
		return err
	}
	defer func() {
		if err := jobs.Stop(); err != nil {
			log.Warn("scheduler stop failed", zap.Error(err))
		}
	}()
	err = jobs.RegisterMaintenance(scheduler.Schedules{
		PurgeSessions: cfg.SessionPurgeSchedule,
		SweepUploads:  cfg.UploadSweepSchedule,
	}, users, uploads)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// AI replies can take a while; streamed ones longer still.
		WriteTimeout: cfg.AITimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g.Go(func() error {
		log.Info("starting server", zap.String("addr", srv.Addr), zap.String("driver", cfg.DatabaseDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("could not listen on %s: %w", srv.Addr, err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		hub.CloseAll()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// buildCompleters wires a circuit-broken client for every vendor with a key.
// Vendors without a key stay nil and answer as unconfigured.
func buildCompleters(ctx context.Context, cfg *config.Config, log *zap.Logger) (map[string]core.Completer, error) {
	completers := make(map[string]core.Completer)
	if cfg.OpenAIAPIKey != "" {
		completers[core.ProviderGPT] = core.WithBreaker(core.ProviderGPT,
			core.NewOpenAICompleter(cfg.OpenAIAPIKey, "", cfg.OpenAIModel), log)
	}
	if cfg.DeepSeekAPIKey != "" {
		completers[core.ProviderDeepSeek] = core.WithBreaker(core.ProviderDeepSeek,
			core.NewOpenAICompleter(cfg.DeepSeekAPIKey, cfg.DeepSeekBaseURL, cfg.DeepSeekModel), log)
	}
	if cfg.GeminiAPIKey != "" {
		gemini, err := core.NewGeminiCompleter(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini client: %w", err)
		}
		completers[core.ProviderGemini] = core.WithBreaker(core.ProviderGemini, gemini, log)
	}
	for name := range completers {
		log.Info("ai provider enabled", zap.String("provider", name))
	}
	return completers, nil
}
