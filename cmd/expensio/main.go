package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"expensio/internal/api"
	"expensio/internal/backend"
	"expensio/internal/cli"
	"expensio/internal/config"
	apphttp "expensio/internal/http"
	"expensio/internal/log"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).Validate)

	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendConfig)
	if err != nil {
		logger.Error("Failed to initialize session backend",
			log.FieldError, err,
			log.FieldBackend, cfg.SessionBackend)
		os.Exit(1)
	}

	srv, err := apphttp.NewServer(apphttp.Options{
		Addr:          ":" + cfg.Port,
		API:           api.New(cfg.APIBaseURL, cfg.APITimeout),
		Sessions:      res.Provider,
		Events:        res.Events,
		Ping:          res.Ping,
		Purge:         res.Purge,
		SessionTTL:    cfg.SessionTTL,
		CookieSecure:  cfg.CookieSecure,
		AuthRateLimit: cfg.AuthRateLimit,
		Logger:        logger,
	})
	if err != nil {
		logger.Error("Failed to create HTTP server", log.FieldError, err)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if res.Cleanup != nil {
			if err := res.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", log.FieldError, err)
			}
		}
	})

	logger.Info("Starting expensio server",
		"port", cfg.Port,
		"api_base_url", cfg.APIBaseURL,
		log.FieldBackend, cfg.SessionBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
