package main

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/onnwee/eloward-bot/config"
	"github.com/onnwee/eloward-bot/supervisor"
	"github.com/onnwee/eloward-bot/telemetry"

	"os/signal"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing("eloward-bot", "1.0.0")
	if err != nil {
		slog.Warn("tracing disabled", "error", err)
	} else {
		defer shutdownTracing()
	}

	slog.Info("starting eloward-bot", "region", cfg.Region)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sup := supervisor.New(cfg)
	if err := sup.Boot(ctx); err != nil {
		slog.Error("boot failed", "error", err)
		os.Exit(1)
	}

	if err := sup.Run(ctx); err != nil {
		slog.Error("run exited with error", "error", err)
		os.Exit(1)
	}
}

func setupLogging() {
	level := slog.LevelInfo
	switch strings.ToUpper(os.Getenv("LOG_LEVEL")) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToUpper(os.Getenv("LOG_FORMAT")) == "JSON" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
