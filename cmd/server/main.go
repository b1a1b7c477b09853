package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"inkshelf/internal/app"
	"inkshelf/internal/config"
	"inkshelf/internal/ratelimit"
	"inkshelf/internal/server"
	"inkshelf/internal/util"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	trustedProxies, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		log.Fatalf("failed to parse trusted proxy cidrs: %v", err)
	}

	globalLimiter, err := ratelimit.NewRedisFixedWindowLimiter(
		cfg.RedisAddr, cfg.RedisPassword, "inkshelf:ratelimit:global",
		cfg.GlobalRateLimit, cfg.RateWindow(),
	)
	if err != nil {
		log.Fatalf("failed to init global rate limiter: %v", err)
	}
	authLimiter, err := ratelimit.NewRedisFixedWindowLimiter(
		cfg.RedisAddr, cfg.RedisPassword, "inkshelf:ratelimit:auth",
		cfg.AuthRateLimit, cfg.RateWindow(),
	)
	if err != nil {
		log.Fatalf("failed to init auth rate limiter: %v", err)
	}

	appCfg, err := app.FromFileConfig(cfg)
	if err != nil {
		log.Fatalf("failed to map config: %v", err)
	}
	appCore, err := app.New(appCfg)
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer := server.New(server.Config{
		App:                  appCore,
		GlobalLimiter:        globalLimiter,
		AuthLimiter:          authLimiter,
		ClientOrigin:         cfg.ClientOrigin,
		TrustedProxies:       trustedProxies,
		MaxUploadBytes:       cfg.MaxUploadBytes,
		MaxProfileImageBytes: cfg.MaxProfileImageBytes,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("inkshelf server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
