// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cytonlink/cytonlink/pkg/config"
)

// Version is overridden at build time with -ldflags "-X ...cmd.Version=..."
var Version = "0.3.0"

var (
	configPath string

	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	sampleRate int
)

var rootCmd = &cobra.Command{
	Use:   "cytonlink",
	Short: "OpenBCI Cyton board bridge",
	Long: `cytonlink - speaks the OpenBCI Cyton wire protocol.

Runs a Cyton board session over a real board or a built-in synthetic
oscillator, decodes its sample, gain and command-response windows, and
streams framed samples to TCP, UDP and MQTT consumers.

Board sources:
  Synthetic: (default) a 15 Hz sine on every channel
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the CYTON_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().IntVarP(&sampleRate, "sample-rate", "r", 0, "Sample rate in Hz (250, 500 or 1000)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads --config (or the defaults) and applies the connection
// flags on top
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	switch {
	case wsURL != "":
		cfg.Board.Source = config.SourceWebSocket
		cfg.Board.URL = wsURL
		cfg.Board.Username = wsUsername
	case portName != "":
		cfg.Board.Source = config.SourceSerial
		cfg.Board.Port = portName
		cfg.Board.Baud = baudRate
	case flags.Changed("baud"):
		cfg.Board.Baud = baudRate
	}
	if sampleRate != 0 {
		cfg.Board.SampleRate = sampleRate
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
