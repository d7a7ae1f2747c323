package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/npezzotti/gochat-engine/internal/api"
	"github.com/npezzotti/gochat-engine/internal/config"
	"github.com/npezzotti/gochat-engine/internal/database"
	"github.com/npezzotti/gochat-engine/internal/identity"
	"github.com/npezzotti/gochat-engine/internal/logging"
	"github.com/npezzotti/gochat-engine/internal/messages"
	"github.com/npezzotti/gochat-engine/internal/presence"
	"github.com/npezzotti/gochat-engine/internal/rooms"
	"github.com/npezzotti/gochat-engine/internal/server"
	"github.com/npezzotti/gochat-engine/internal/stats"
	"github.com/rs/zerolog"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

func main() {
	config.LoadEnv()

	var (
		cfg            config.Config
		allowedOrigins stringSliceFlag
	)
	flag.StringVar(&cfg.ServerAddr, "addr", config.GetEnv("CHAT_ADDR", "localhost:8000"), "server address")
	flag.StringVar(&cfg.DatabaseDSN, "dsn", config.GetEnv("DATABASE_DSN", ""), "postgres connection string, empty keeps identities in memory")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS and websocket upgrades")
	flag.IntVar(&cfg.HistoryCap, "history-cap", config.GetEnvInt("HISTORY_CAP", messages.DefaultCapacity), "messages kept per room")
	flag.IntVar(&cfg.SnapshotLimit, "snapshot-limit", config.GetEnvInt("SNAPSHOT_LIMIT", server.DefaultSnapshotLimit), "messages sent with room_joined")
	flag.DurationVar(&cfg.IdentityTimeout, "identity-timeout", config.GetEnvDuration("IDENTITY_TIMEOUT", identity.DefaultTimeout), "timeout for identity store calls")
	flag.StringVar(&cfg.MetricsBackend, "metrics", config.GetEnv("METRICS_BACKEND", config.MetricsExpvar), "metrics backend: expvar or prometheus")
	flag.StringVar(&cfg.Env, "env", config.GetEnv("APP_ENV", "dev"), "environment, dev enables console logging")
	flag.Float64Var(&cfg.RateLimit, "rate-limit", config.GetEnvFloat("RATE_LIMIT", 20), "REST requests per second per client, 0 disables")
	flag.IntVar(&cfg.RateBurst, "rate-burst", config.GetEnvInt("RATE_BURST", 40), "REST request burst per client")
	flag.StringVar(&cfg.LogLevel, "log-level", config.GetEnv("LOG_LEVEL", "info"), "log level")
	flag.Parse()

	if len(allowedOrigins) == 0 {
		if env := config.GetEnv("ALLOWED_ORIGINS", ""); env != "" {
			allowedOrigins.Set(env)
		}
	}
	cfg.AllowedOrigins = allowedOrigins

	logger := logging.New(os.Stderr, cfg.Env, cfg.LogLevel)

	conf, err := config.NewConfig(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("config")
	}

	repo, err := openIdentityRepository(conf, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("identity store")
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Error().Err(err).Msg("identity store close")
		}
	}()

	mux := http.NewServeMux()

	var (
		su         stats.StatsProvider
		instrument func(http.Handler) http.Handler
	)
	switch conf.MetricsBackend {
	case config.MetricsPrometheus:
		ps := stats.NewPrometheusStats(mux)
		su, instrument = ps, ps.Instrument
	default:
		su = stats.NewStatsUpdater(mux)
	}

	reg := presence.NewRegistry()
	idSvc := identity.NewService(repo, conf.IdentityTimeout, logger, identity.WithObserver(reg.Observe))
	dir := rooms.NewDirectory(reg)
	msgLog := messages.NewLog(messages.WithCapacity(conf.HistoryCap))
	router := server.NewRouter(logger, reg, dir, msgLog, idSvc, su,
		server.WithSnapshotLimit(conf.SnapshotLimit),
		server.WithCallTimeout(conf.IdentityTimeout),
	)
	hub := server.NewHub(logger, router, su)

	su.RegisterGaugeFunc("OnlineUsers", func() float64 { return float64(reg.OnlineCount()) })
	su.RegisterGaugeFunc("Rooms", func() float64 { return float64(dir.Len()) })

	srv := api.NewGoChatApp(mux, logger, api.Deps{
		Hub:        hub,
		Rooms:      dir,
		Messages:   msgLog,
		Identity:   idSvc,
		Presence:   reg,
		Stats:      su,
		Instrument: instrument,
	}, conf)

	su.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info().Str("signal", sig.String()).Msg("received signal")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("server")
		}
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown")
	}

	logger.Info().Msg("shutting down chat hub")
	if err := hub.Shutdown(shutDownCtx); err != nil {
		logger.Error().Err(err).Msg("chat hub shutdown")
	}

	logger.Info().Msg("shutdown complete")
}

// openIdentityRepository connects to Postgres and applies migrations when a
// DSN is configured, and falls back to the in-memory store otherwise.
func openIdentityRepository(cfg *config.Config, logger zerolog.Logger) (database.IdentityRepository, error) {
	if cfg.InMemory() {
		logger.Warn().Msg("no database DSN configured, identities are kept in memory")
		return database.NewMemoryIdentityRepository(), nil
	}

	if err := database.Migrate(cfg.DatabaseDSN); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.IdentityTimeout)
	defer cancel()

	repo, err := database.NewPgIdentityRepository(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	logger.Info().Msg("connected to postgres identity store")

	return repo, nil
}
