package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"server/internal/http/handlers"
	httpapi "server/internal/http/httpapi"
	"server/internal/identity"
	"server/internal/imagegen"
	"server/internal/infra"
	"server/internal/infra/geoip"
	"server/internal/middleware"
	"server/internal/moderation"
	"server/internal/orchestrator"
	"server/internal/quota"
	"server/internal/ratelimit"
)

func main() {
	// optional .env for local development
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	redisClient, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}
	defer redisClient.Close()

	runner := infra.NewSQLRunner(dbpool, logger)

	resolver := identity.NewResolver(identity.Options{VerifyURL: cfg.AuthVerifyURL})
	limiter := ratelimit.New(ratelimit.NewRedisStore(redisClient), cfg.RateLimitMax, cfg.RateLimitWindow)
	classifier := moderation.NewClassifier(moderation.Options{
		BaseURL: cfg.ModerationBaseURL,
		APIKey:  cfg.ModerationAPIKey,
		Model:   cfg.ModerationModel,
	})
	quotaManager := quota.NewManager(runner, cfg.FreeWeeklyCap)
	recorder := quota.NewRecorder(runner, logger)
	jobs := imagegen.NewClient(imagegen.Options{
		BaseURL: cfg.GenBaseURL,
		APIKey:  cfg.GenAPIKey,
		Model:   cfg.GenModel,
	})

	pipeline := orchestrator.New(orchestrator.Deps{
		Identity:     resolver,
		Limiter:      limiter,
		Moderator:    classifier,
		Quota:        quotaManager,
		Jobs:         jobs,
		Recorder:     recorder,
		Logger:       logger,
		PollInterval: cfg.PollInterval,
		PollDeadline: cfg.PollDeadline,
	})

	var lookup middleware.CountryLookup
	geoResolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	} else if geoResolver != nil {
		lookup = geoResolver.CountryCode
	}

	app := handlers.NewApp(runner, pipeline, resolver, quotaManager, cfg, logger)
	router := httpapi.NewRouter(app, cfg, logger, lookup)

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
