package main

import (
	"carchat/backend/internal/api/handler"
	"carchat/backend/internal/auth"
	"carchat/backend/internal/chathub"
	"carchat/backend/internal/config"
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		os.Stderr.WriteString("warning: error loading .env file: " + err.Error() + "\n")
	}

	cfg := config.HubFromEnv()
	logger := config.NewLogger(os.Stderr)
	logger.Info().Str("addr", cfg.Addr).Msg("starting carchat hub")

	hub := chathub.NewHub(logger)

	var bridge *chathub.RedisBridge
	if cfg.Redis.Enabled() {
		bridge = chathub.NewRedisBridge(cfg.Redis, hub, logger)
		if err := bridge.Start(); err != nil {
			logger.Warn().Err(err).Msg("redis bridge unavailable, running single-instance")
			bridge.Stop()
			bridge = nil
		} else {
			hub.SetBridge(bridge)
		}
	}

	go hub.Run()

	var verifier *auth.Verifier
	if cfg.JWTSecret != "" {
		verifier = auth.NewVerifier([]byte(cfg.JWTSecret))
	} else {
		logger.Warn().Msg("CHAT_JWT_SECRET not set, connections are not authenticated")
	}

	r := gin.New()
	r.Use(gin.Recovery())
	h := handler.NewHandler(hub, verifier, cfg.SendBuffer, logger)
	h.Register(r, config.DefaultHubPath)

	server := &http.Server{
		Addr:           cfg.Addr,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	hub.Stop()
	if bridge != nil {
		if err := bridge.Stop(); err != nil {
			logger.Error().Err(err).Msg("redis bridge shutdown")
		}
	}
}
