// Package setup assembles the application: configuration, logging, storage,
// the moderation engine, and the Discord client.
package setup

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/wardenlabs/warden/internal/automod"
	"github.com/wardenlabs/warden/internal/automod/enforce"
	"github.com/wardenlabs/warden/internal/automod/exemption"
	"github.com/wardenlabs/warden/internal/automod/recovery"
	"github.com/wardenlabs/warden/internal/automod/rules"
	"github.com/wardenlabs/warden/internal/automod/window"
	"github.com/wardenlabs/warden/internal/bot"
	"github.com/wardenlabs/warden/internal/database"
	"github.com/wardenlabs/warden/internal/redis"
	"github.com/wardenlabs/warden/internal/setup/config"
)

// Number of messages processed concurrently by the engine.
const engineWorkers = 64

// App contains all the common application components.
type App struct {
	Config       *config.Config
	Logger       *zap.Logger
	DBLogger     *zap.Logger
	DB           database.Client
	RedisManager *redis.Manager
	Counters     window.Store
	Engine       *automod.Engine
	Bot          *bot.Bot

	configCache *automod.ConfigCache
	recovery    *recovery.Scheduler
	memCounters *window.MemoryStore
	metricsSrv  *http.Server
}

// InitializeApp performs common setup tasks and returns an App.
func InitializeApp(ctx context.Context, logDir string) (*App, error) {
	cfg, configPath, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	logger, dbLogger, err := GetLoggers(logDir, cfg.Common.Debug.LogLevel, cfg.Common.Debug.MaxLogsToKeep)
	if err != nil {
		return nil, err
	}

	logger.Info("Loaded configuration", zap.String("configPath", configPath))

	db, err := database.NewConnection(ctx, &cfg.Common.PostgreSQL, dbLogger)
	if err != nil {
		logger.Error("Failed to connect to database", zap.Error(err))
		return nil, err
	}

	app := &App{
		Config:   cfg,
		Logger:   logger,
		DBLogger: dbLogger,
		DB:       db,
	}

	// The in-memory store is the default; Redis-backed counters are only
	// needed when several bot processes share enforcement state.
	if cfg.Common.Redis.SharedCounters {
		app.RedisManager = redis.NewManager(&cfg.Common.Redis, logger)

		client, err := app.RedisManager.GetClient(redis.CounterDBIndex)
		if err != nil {
			return nil, fmt.Errorf("failed to create counter redis client: %w", err)
		}

		app.Counters = window.NewRedisStore(client)
	} else {
		app.memCounters = window.NewMemoryStore()
		app.Counters = app.memCounters
	}

	requestTimeout := time.Duration(cfg.Bot.RequestTimeout) * time.Millisecond
	if requestTimeout <= 0 {
		requestTimeout = 5 * time.Second
	}

	automodCfg := cfg.Common.Automod

	app.configCache = automod.NewConfigCache(
		db.Guild(), time.Duration(automodCfg.ConfigCacheTTL)*time.Second, logger)
	app.recovery = recovery.NewScheduler(requestTimeout, logger)
	guard := exemption.NewGuard(logger)

	discordBot, err := bot.New(cfg.Bot.Token, logger)
	if err != nil {
		return nil, err
	}

	executor := bot.NewExecutor(discordBot.Client(), logger)
	resetter := automod.NewFilterResetter(db.Guild(), app.configCache, app.Counters, logger)

	coordinator := enforce.NewCoordinator(
		app.Counters, guard, executor, resetter, app.recovery,
		automodCfg, requestTimeout, logger)

	evaluators := rules.NewSet(rules.Deps{
		Counters: app.Counters,
		Defaults: automodCfg,
		Logger:   logger,
	})

	app.Engine = automod.NewEngine(
		app.configCache, evaluators, coordinator, app.Counters,
		app.recovery, engineWorkers, logger)

	discordBot.AttachEngine(app.Engine)
	app.Bot = discordBot

	if cfg.Common.Debug.EnablePprof {
		app.startDebugServer(cfg.Common.Debug.MetricsPort)
	}

	return app, nil
}

// startDebugServer exposes prometheus metrics and pprof on the debug port.
func (a *App) startDebugServer(port int) {
	if port == 0 {
		port = 6060
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	a.metricsSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := a.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.Error("Debug server stopped", zap.Error(err))
		}
	}()

	a.Logger.Info("Debug server listening", zap.Int("port", port))
}

// CleanupApp performs cleanup tasks.
func (a *App) CleanupApp() {
	a.recovery.Close()
	a.configCache.Close()

	if a.memCounters != nil {
		a.memCounters.Close()
	}

	if a.RedisManager != nil {
		a.RedisManager.Close()
	}

	if a.metricsSrv != nil {
		_ = a.metricsSrv.Close()
	}

	if err := a.DB.Close(); err != nil {
		a.Logger.Error("Failed to close database connection", zap.Error(err))
	}

	_ = a.Logger.Sync()
	_ = a.DBLogger.Sync()
}
