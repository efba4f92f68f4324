package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/Thalpy/stoat-ai-interface/internal/bridge"
	"github.com/Thalpy/stoat-ai-interface/internal/config"
	"github.com/Thalpy/stoat-ai-interface/internal/dispatch"
	"github.com/Thalpy/stoat-ai-interface/internal/platform/stoat"
	"github.com/Thalpy/stoat-ai-interface/internal/settings"
	"github.com/Thalpy/stoat-ai-interface/pkg/protocol"
)

func runBridge() {
	// Setup structured logging
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Platform.Token == "" {
		slog.Error("no bot token configured (set STOAT_BOT_TOKEN)")
		os.Exit(1)
	}

	store, err := settings.Open(cfg.SettingsPath())
	if err != nil {
		slog.Error("failed to open settings store", "path", cfg.SettingsPath(), "error", err)
		os.Exit(1)
	}

	platformClient := stoat.New(cfg.Platform)
	gatewayClient := dispatch.NewGatewayClient(cfg.Gateway)
	br := bridge.New(platformClient, gatewayClient, store, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("stoat-bridge starting",
		"version", Version,
		"protocol", protocol.ProtocolVersion,
		"gateway", cfg.Gateway.URL,
		"agent", cfg.Gateway.Agent,
	)

	if err := gatewayClient.Connect(ctx); err != nil {
		slog.Error("gateway connect failed", "url", cfg.Gateway.URL, "error", err)
		os.Exit(1)
	}

	// Platform connect failure is fatal: no retry, exit non-zero.
	if err := br.Start(ctx); err != nil {
		slog.Error("bridge start failed", "error", err)
		gatewayClient.Close()
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("graceful shutdown initiated")
		br.Stop()
		return gatewayClient.Close()
	})

	if err := g.Wait(); err != nil {
		slog.Warn("shutdown", "error", err)
	}
}
