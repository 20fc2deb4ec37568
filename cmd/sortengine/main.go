// Package main implements the entry point for the sortengine daemon,
// the parcel sortation engine: it correlates parcel-blind DWS readings
// with detected parcels, decides chutes by rule matching and tracks
// every parcel's lifecycle until the sorter reports a terminal outcome.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/zakyip/sortengine/config"
	"github.com/zakyip/sortengine/engine"
)

const (
	Version = "0.1.0"
	appName = "sortengine"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath      string
		logLevel        string
		logFormat       string
		shutdownTimeout time.Duration
		showVersion     bool
		validate        bool
	)
	flag.StringVar(&configPath, "config",
		getEnv("SORTENGINE_CONFIG", ""),
		"Path to configuration file, empty for defaults (env: SORTENGINE_CONFIG)")
	flag.StringVar(&logLevel, "log-level",
		getEnv("SORTENGINE_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: SORTENGINE_LOG_LEVEL)")
	flag.StringVar(&logFormat, "log-format",
		getEnv("SORTENGINE_LOG_FORMAT", "json"),
		"Log format: json, text (env: SORTENGINE_LOG_FORMAT)")
	flag.DurationVar(&shutdownTimeout, "shutdown-timeout", 30*time.Second,
		"Graceful shutdown timeout")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.BoolVar(&validate, "validate", false, "Validate configuration and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}

	logger := setupLogger(logLevel, logFormat)
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if validate {
		slog.Info("Configuration is valid", "config_path", configPath)
		return nil
	}

	slog.Info("Starting sortation engine",
		"version", Version,
		"config_path", configPath,
		"mode", cfg.Sorting.Mode,
		"nats_url", cfg.NATS.URL)

	eng, err := engine.New(cfg, engine.WithLogger(logger))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := eng.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	slog.Info("Shutdown signal received", "timeout", shutdownTimeout)
	return eng.Stop(shutdownTimeout)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
