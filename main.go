package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"fibo_store/app"
	"fibo_store/config"
	"fibo_store/logging"
	"fibo_store/routes"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	envFiles := []string{".env"}
	if err := config.LoadEnv(envFiles...); err != nil {
		fmt.Fprintln(os.Stderr, "load env:", err)
		os.Exit(1)
	}
	cfg := app.LoadConfig()

	log, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}
	if !strings.EqualFold(cfg.Env, "dev") {
		gin.SetMode(gin.ReleaseMode)
	}

	application := app.MustNew(cfg, log)
	defer application.Close()

	routes.RegisterRoutes(application.Router, application)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	application.WatchReload(ctx, envFiles...)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           application.Router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	go func() {
		log.Info("listening", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", zap.Error(err))
	}
}
