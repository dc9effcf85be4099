package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/skillsync/session-server/internal/auth"
	"github.com/skillsync/session-server/internal/config"
	"github.com/skillsync/session-server/internal/database"
	"github.com/skillsync/session-server/internal/handler"
	"github.com/skillsync/session-server/internal/jobs"
	"github.com/skillsync/session-server/internal/meeting"
	"github.com/skillsync/session-server/internal/middleware"
	"github.com/skillsync/session-server/internal/realtime"
	"github.com/skillsync/session-server/internal/redis"
	"github.com/skillsync/session-server/internal/repository"
	"github.com/skillsync/session-server/internal/service"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	applied, err := db.Migrate()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}
	log.Info().Int("applied", applied).Msg("migrations complete")

	var redisClient *redis.Client
	var limiter middleware.Limiter
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		limiter = middleware.NewRedisRateLimiter(redisClient.Client)
		log.Info().Msg("redis connected")
	} else {
		limiter = middleware.NewRateLimiter()
		log.Warn().Msg("REDIS_URL is empty: real-time events stay on this instance")
	}

	userRepo := repository.NewUserRepository(db.DB)
	sessionRepo := repository.NewSessionRepository(db.DB)

	broker := realtime.NewBroker(redisClient)
	defer broker.Close()

	issuer := meeting.NewIssuer(meeting.Config{
		Domain:   cfg.JitsiDomain,
		AppID:    cfg.JitsiAppID,
		Secret:   cfg.JitsiAppSecret,
		TokenTTL: cfg.MeetingTokenTTL(),
	})

	sessionService := service.NewSessionService(sessionRepo, userRepo, issuer, broker, service.SessionServiceConfig{
		StoreTimeout: cfg.StoreTimeout(),
		HistoryLimit: cfg.HistoryLimit,
	})

	authMiddleware := middleware.NewAuthMiddleware(auth.NewVerifier(cfg.AuthTokenSecret))
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(limiter, config.DefaultRateLimitPerMin)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)

	sessionHandler := handler.NewSessionHandler(sessionService)
	eventsHandler := handler.NewEventsHandler(broker)
	socketHandler := handler.NewSocketHandler(broker, sessionService, cfg.AllowedOrigins)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(middleware.Metrics)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":           "ok",
			"timestamp":        time.Now().UnixMilli(),
			"realtimeChannels": broker.TotalClients(),
		})
	})
	r.Handle("/metrics", promhttp.Handler())

	// Long-lived channels stay outside the request timeout.
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handler)
		r.Get("/v1/events", eventsHandler.ServeHTTP)
		r.Get("/v1/ws", socketHandler.ServeHTTP)
	})

	r.Route("/v1/sessions", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
		r.Use(securityHeadersMiddleware.Handler)
		r.Use(bodyLimitMiddleware.Handler)
		r.Use(authMiddleware.Handler)
		r.Use(rateLimitMiddleware.Handler)
		r.Mount("/", sessionHandler.Routes())
	})

	sweepJob := jobs.NewSweepJob(sessionService, cfg.MaxSessionAge(), cfg.SweepInterval())
	sweepJob.Start()
	defer sweepJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().
			Str("addr", cfg.Addr()).
			Bool("fallbackMeetings", cfg.FallbackMeetings()).
			Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	// Hijacked websockets are not tracked by Shutdown; closing the broker
	// releases them and the SSE streams.
	broker.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
