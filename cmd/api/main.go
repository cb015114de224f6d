package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"fairtrain/internal/config"
	"fairtrain/internal/experiment"
	"fairtrain/pkg/utils"
)

func main() {
	logger := utils.Logger()
	defer logger.Sync()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	ds, err := experiment.LoadDataset(cfg.Data)
	if err != nil {
		logger.Fatal("Failed to load dataset", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := experiment.Execute(ctx, cfg, ds, logger)
	if err != nil {
		logger.Fatal("Training failed", zap.Error(err))
	}

	s := newServer(res, os.Getenv("API_KEY"), logger)
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{Addr: ":" + port, Handler: s.routes(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Info("Listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Shutdown incomplete", zap.Error(err))
	}
}
