// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cytonlink/cytonlink/pkg/bridge"
	"github.com/cytonlink/cytonlink/pkg/config"
	"github.com/cytonlink/cytonlink/pkg/cyton"
	"github.com/cytonlink/cytonlink/pkg/metrics"
	"github.com/cytonlink/cytonlink/pkg/server"
	"github.com/cytonlink/cytonlink/pkg/stream"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the board bridge with REST, status and sample streams",
	Long: `Run a Cyton board session and expose it to the network.

  REST API          http.address:http.port (board info, commands, stream setup)
  Status websocket  status.address:status.port (JSON events)
  TCP stream        framed samples, raw or JSON, optionally batched by latency
  UDP stream        one framed sample per datagram
  MQTT              framed samples published to stream.mqtt.topic
  Capture           every emitted packet appended to a CBOR file

The sample rate from the configuration is applied at startup.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := initLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("Service starting",
		slog.String("version", Version),
		slog.String("config_path", configPath),
		slog.String("source", cfg.Board.Source),
		slog.Int("sample_rate", cfg.Board.SampleRate),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appMetrics := metrics.NewMetrics()

	src, err := openSource(ctx, cfg.Board)
	if err != nil {
		return err
	}
	defer src.Close()
	logger.Info("Board source ready", slog.String("connection", src.info))

	tcp := stream.NewTCPSender(logger)
	defer tcp.Close()
	if cfg.Stream.TCP.Configured() {
		if err := tcp.Connect(ctx, stream.SettingsFromConfig(cfg.Stream.TCP)); err != nil {
			logger.Warn("TCP stream not connected", slog.String("error", err.Error()))
		}
	}

	udp := stream.NewUDPSender(logger)
	defer udp.Close()
	if cfg.Stream.UDP.Configured() {
		endpoint := stream.Endpoint{IP: cfg.Stream.UDP.Address, Port: cfg.Stream.UDP.Port}
		if err := udp.Configure(endpoint); err != nil {
			logger.Warn("UDP stream not configured", slog.String("error", err.Error()))
		}
	}

	opts := bridge.Options{
		Source:         src.source,
		TCP:            tcp,
		UDP:            udp,
		Metrics:        appMetrics,
		Logger:         logger,
		CommandTimeout: cfg.CommandTimeout(),
	}

	if cfg.Stream.MQTT.Enabled {
		mqtt, err := stream.NewMQTTSender(cfg.Stream.MQTT, "cytonlink-"+bridge.ID(), logger)
		if err != nil {
			return err
		}
		defer mqtt.Close()
		if err := mqtt.Connect(ctx); err != nil {
			logger.Warn("MQTT broker not reachable, retrying in background", slog.String("error", err.Error()))
		}
		opts.MQTT = mqtt
	}

	if cfg.Capture.Path != "" {
		file, err := os.Create(cfg.Capture.Path)
		if err != nil {
			return fmt.Errorf("failed to create capture file: %w", err)
		}
		defer file.Close()
		opts.Capture = cyton.NewCaptureWriter(file)
		logger.Info("Capturing packets", slog.String("path", cfg.Capture.Path))
	}

	var b *bridge.Bridge
	var status *server.StatusServer
	if cfg.Status.Enabled {
		status = server.NewStatusServer(cfg.Status.Addr(), func() string { return b.BoardInfoJSON() }, appMetrics, logger)
		opts.Status = status
	}

	b = bridge.New(opts)

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP.Addr(), b, tcp, udp, appMetrics, logger, Version)
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- b.Run(ctx)
	}()

	if status != nil {
		if err := status.Start(); err != nil {
			return err
		}
	}
	if httpServer != nil {
		if err := httpServer.Start(); err != nil {
			return err
		}
	}

	applySampleRate(ctx, b, cfg, logger)

	logger.Info("Service started, waiting for signals...")

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
		err = <-runErr
	case err = <-runErr:
		if err != nil {
			logger.Error("Bridge stopped", slog.String("error", err.Error()))
		}
	}

	logger.Info("Starting graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if httpServer != nil {
		if stopErr := httpServer.Stop(shutdownCtx); stopErr != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", stopErr.Error()))
		}
	}
	if status != nil {
		if stopErr := status.Stop(shutdownCtx); stopErr != nil {
			logger.Error("Error stopping status server", slog.String("error", stopErr.Error()))
		}
	}

	info := b.BoardInfo()
	logger.Info("Service stopped",
		slog.Bool("streaming", info.Streaming),
		slog.Int("sample_rate", info.SampleRate),
	)
	return err
}

// applySampleRate sends the configured sample rate command to the board
func applySampleRate(ctx context.Context, b *bridge.Bridge, cfg *config.Config, logger *slog.Logger) {
	command, ok := config.SampleRateCommand(cfg.Board.SampleRate)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.CommandTimeout()+time.Second)
	defer cancel()

	text, err := b.Command(ctx, command)
	switch {
	case err == nil:
		logger.Info("Sample rate applied", slog.String("response", text))
	case errors.Is(err, context.Canceled), errors.Is(err, bridge.ErrStopped):
	default:
		logger.Warn("Failed to apply sample rate",
			slog.Int("sample_rate", cfg.Board.SampleRate),
			slog.String("error", err.Error()),
		)
	}
}
