package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"inkwell/api/internal/app"
	"inkwell/api/internal/config"
	"inkwell/api/internal/email"
	"inkwell/api/internal/logging"
	"inkwell/api/internal/metrics"
	"inkwell/api/internal/publish"
	"inkwell/api/internal/ratelimit"
	"inkwell/api/internal/search"
	"inkwell/api/internal/store"
)

func main() {
	logger := logging.NewLoggerWithService("inkwell-api")
	config.LoadEnv(logger)
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.WithError(err).Fatal("database connection failed")
	}
	defer db.Close()

	applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
	if err != nil {
		logger.WithError(err).Fatal("migrations failed")
	}
	if len(applied) > 0 {
		logger.WithField("versions", applied).Info("migrations applied")
	}

	dataStore := store.NewPostgresStore(db)

	var limiter ratelimit.Limiter = ratelimit.NewMemoryLimiter()
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisLimiter, err := ratelimit.NewRedisLimiterFromURL(ctx, cfg.RedisURL)
		if err != nil {
			logger.WithError(err).Fatal("redis connection failed")
		}
		defer redisLimiter.Close()
		limiter = redisLimiter
		logger.Info("using redis for share rate limiting")
	} else {
		logger.Info("using in-process share rate limiting")
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, search.NewPostgres(db), logger)
	go searchService.ReindexAll(ctx)

	platforms := publish.NewDefaultRegistry(dataStore, cfg.TwitterAPIURL, cfg.LinkedInAPIURL, publish.ClientOptions{
		Timeout: cfg.PlatformTimeout,
		Logger:  logger,
		Sandbox: cfg.SandboxMode,
	})

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if !mailer.IsConfigured() {
		logger.Info("SMTP not configured, invite emails disabled")
	}

	service := app.New(cfg, app.Deps{
		Store:     dataStore,
		Platforms: platforms,
		Limiter:   limiter,
		Search:    searchService,
		Mailer:    mailer,
		Metrics:   metrics.New("inkwell-api"),
		Logger:    logger,
	})
	if cfg.SandboxMode {
		logger.Warn("sandbox mode enabled, dev-connect endpoint is live")
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Publishing waits on the platform adapters.
		WriteTimeout: cfg.PlatformTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.Addr).Info("Inkwell API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown error")
	}
}
