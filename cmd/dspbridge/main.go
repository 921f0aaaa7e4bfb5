package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"dspbridge/config"
	"dspbridge/internal/api"
	"dspbridge/internal/application"
	"dspbridge/internal/camilla"
	"dspbridge/internal/confsync"
	"dspbridge/internal/devices"
	"dspbridge/internal/engineconf"
	"dspbridge/internal/engineproc"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// Optional .env for secrets referenced by ${VAR} in the config file.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	pollInterval := parseDuration(cfg.Control.PollInterval, 2*time.Second, "poll_interval", logger)
	connectTimeout := parseDuration(cfg.Control.ConnectTimeout, 5*time.Second, "connect_timeout", logger)
	requestTimeout := parseDuration(cfg.Control.RequestTimeout, 5*time.Second, "request_timeout", logger)

	deviceStatuses, err := devices.Scan()
	if err != nil {
		logger.Warn("device scan unavailable", "error", err)
	}

	topology := engineconf.DeviceTopology{
		CaptureDevice:  cfg.Devices.Capture,
		PlaybackDevice: cfg.Devices.Playback,
		Channels:       cfg.Devices.Channels,
		ChunkSize:      cfg.Devices.ChunkSize,
	}

	var (
		syncer application.ConfigSyncer
		runner *engineproc.Runner
		wsHost = cfg.Engine.Host
	)
	switch cfg.Engine.Mode {
	case "local":
		syncer = confsync.NewFileSyncer(cfg.Engine.ConfigPath)
		runner = engineproc.NewRunner(cfg.Engine.Binary, cfg.Engine.ConfigPath, cfg.Engine.Port, logger)
		wsHost = "127.0.0.1"
	case "remote":
		syncer = confsync.NewSSHSyncer(cfg.Engine.Host, cfg.SSH.Port, cfg.SSH.User, cfg.SSH.Password, cfg.Engine.ConfigPath, logger)
	default:
		logger.Error("unknown engine mode", "mode", cfg.Engine.Mode)
		os.Exit(1)
	}

	transport := camilla.NewClient(camilla.Options{
		URL:            fmt.Sprintf("ws://%s:%d", wsHost, cfg.Engine.Port),
		ConnectTimeout: connectTimeout,
		RequestTimeout: requestTimeout,
	}, logger)
	defer transport.Close()

	if runner != nil {
		if err := runner.Start(ctx); err != nil {
			logger.Error("starting local engine", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := runner.Stop(); err != nil {
				logger.Warn("stopping local engine", "error", err)
			}
		}()
	}

	// Best effort: the reconciler re-dials on every poll until this sticks.
	if err := transport.Connect(ctx); err != nil {
		logger.Warn("initial engine connect failed", "error", err)
	}

	controller := application.NewController(transport, syncer, topology, deviceStatuses, logger)

	reconciler := application.NewReconciler(transport, controller, pollInterval, logger)
	reconciler.Start(ctx)

	server := api.NewServer(cfg.Control.APIAddr, cfg.Control.AuthToken, controller, logger)
	if err := server.Start(ctx); err != nil {
		logger.Error("starting control API", "error", err)
		os.Exit(1)
	}

	logger.Info("dspbridge ready",
		"engine_mode", cfg.Engine.Mode,
		"engine_host", wsHost,
		"durable_target", syncer.Target(),
	)

	<-ctx.Done()

	if err := server.Stop(); err != nil {
		logger.Warn("stopping control API", "error", err)
	}
}

func parseDuration(value string, fallback time.Duration, name string, logger *slog.Logger) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		logger.Warn("invalid duration, using default", "setting", name, "value", value, "default", fallback)
		return fallback
	}
	return d
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
