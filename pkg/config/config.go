// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the bridge configuration from YAML.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cytonlink/cytonlink/pkg/cyton"
)

// Board sources
const (
	SourceSynthetic = "synthetic"
	SourceSerial    = "serial"
	SourceWebSocket = "websocket"
)

// TCP output formats
const (
	OutputRaw  = "raw"
	OutputJSON = "json"
)

// Config represents the complete bridge configuration
type Config struct {
	Board            BoardConfig   `yaml:"board"`
	HTTP             HTTPConfig    `yaml:"http"`
	Status           StatusConfig  `yaml:"status"`
	Stream           StreamConfig  `yaml:"stream"`
	Capture          CaptureConfig `yaml:"capture"`
	Logging          LoggingConfig `yaml:"logging"`
	CommandTimeoutMs int           `yaml:"command_timeout_ms"`
}

// BoardConfig selects where raw windows come from
type BoardConfig struct {
	Source     string  `yaml:"source"`
	Port       string  `yaml:"port"`
	Baud       int     `yaml:"baud"`
	URL        string  `yaml:"url"`
	Username   string  `yaml:"username"`
	SampleRate int     `yaml:"sample_rate"` // Hz
	Amplitude  float64 `yaml:"amplitude"`   // ADC counts, synthetic only
	Frequency  float64 `yaml:"frequency"`   // Hz, synthetic only
	Gains      []int   `yaml:"gains"`       // per-channel multipliers, synthetic only
	QueueSize  int     `yaml:"queue_size"`  // windows, relay only
}

// HTTPConfig contains REST server configuration
type HTTPConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	Enabled bool   `yaml:"enabled"`
}

// StatusConfig contains websocket status broadcaster configuration
type StatusConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	Enabled bool   `yaml:"enabled"`
}

// StreamConfig groups the packet senders
type StreamConfig struct {
	TCP  TCPConfig  `yaml:"tcp"`
	UDP  UDPConfig  `yaml:"udp"`
	MQTT MQTTConfig `yaml:"mqtt"`
}

// TCPConfig describes the TCP sample stream. An empty address leaves the
// stream unconfigured until set over REST.
type TCPConfig struct {
	Address   string `yaml:"address"`
	Port      int    `yaml:"port"`
	Delimiter bool   `yaml:"delimiter"`
	LatencyUs int    `yaml:"latency_us"`
	Output    string `yaml:"output"`
}

// UDPConfig describes the UDP sample stream
type UDPConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// MQTTConfig describes the MQTT sample publisher
type MQTTConfig struct {
	Broker  string `yaml:"broker"`
	Topic   string `yaml:"topic"`
	QoS     int    `yaml:"qos"`
	Enabled bool   `yaml:"enabled"`
}

// CaptureConfig enables recording emitted packets to a CBOR file
type CaptureConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns a configuration that runs the synthetic board with
// REST and status enabled and no outbound streams.
func Default() *Config {
	return &Config{
		Board: BoardConfig{
			Source:     SourceSynthetic,
			Baud:       115200,
			SampleRate: 250,
			Amplitude:  100000,
			Frequency:  15,
			Gains:      []int{24, 24, 24, 24, 24, 24, 24, 24},
			QueueSize:  256,
		},
		HTTP: HTTPConfig{
			Address: "0.0.0.0",
			Port:    8080,
			Enabled: true,
		},
		Status: StatusConfig{
			Address: "0.0.0.0",
			Port:    8081,
			Enabled: true,
		},
		Stream: StreamConfig{
			TCP: TCPConfig{
				Delimiter: true,
				LatencyUs: 10000,
				Output:    OutputRaw,
			},
			MQTT: MQTTConfig{
				Topic: "cyton/samples",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		CommandTimeoutMs: 1000,
	}
}

// Load reads and parses the configuration file. Keys missing from the
// file keep their Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate checks every section
func (c *Config) Validate() error {
	if err := c.Board.Validate(); err != nil {
		return fmt.Errorf("board config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Status.Validate(); err != nil {
		return fmt.Errorf("status config: %w", err)
	}

	if err := c.Stream.TCP.Validate(); err != nil {
		return fmt.Errorf("stream.tcp config: %w", err)
	}

	if err := c.Stream.UDP.Validate(); err != nil {
		return fmt.Errorf("stream.udp config: %w", err)
	}

	if err := c.Stream.MQTT.Validate(); err != nil {
		return fmt.Errorf("stream.mqtt config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if c.CommandTimeoutMs < 1 {
		return fmt.Errorf("command_timeout_ms must be at least 1, got %d", c.CommandTimeoutMs)
	}

	return nil
}

// Validate validates board configuration
func (b *BoardConfig) Validate() error {
	switch b.Source {
	case SourceSynthetic:
		if b.Amplitude <= 0 || b.Amplitude >= 1<<23 {
			return fmt.Errorf("amplitude must be between 0 and 8388608 counts (exclusive), got %f", b.Amplitude)
		}
		if b.Frequency <= 0 {
			return fmt.Errorf("frequency must be positive, got %f", b.Frequency)
		}
		if len(b.Gains) < 1 || len(b.Gains) > cyton.NumChannels {
			return fmt.Errorf("gains must list 1 to %d channels, got %d", cyton.NumChannels, len(b.Gains))
		}
		for i, g := range b.Gains {
			if _, ok := cyton.GainCode(uint8(g)); !ok || g > cyton.MaxGain {
				return fmt.Errorf("gains[%d] must be one of [1, 2, 4, 6, 8, 12, 24], got %d", i, g)
			}
		}
	case SourceSerial:
		if b.Port == "" {
			return fmt.Errorf("port cannot be empty for serial source")
		}
		if b.Baud < 1 {
			return fmt.Errorf("baud must be positive, got %d", b.Baud)
		}
	case SourceWebSocket:
		if b.URL == "" {
			return fmt.Errorf("url cannot be empty for websocket source")
		}
	default:
		return fmt.Errorf("source must be one of [synthetic, serial, websocket], got '%s'", b.Source)
	}

	if _, ok := SampleRateCommand(b.SampleRate); !ok {
		return fmt.Errorf("sample_rate must be 250, 500 or 1000 Hz, got %d", b.SampleRate)
	}

	if b.QueueSize < 0 {
		return fmt.Errorf("queue_size cannot be negative, got %d", b.QueueSize)
	}

	return nil
}

// GainMultipliers returns the configured gains in the form the board
// announces them
func (b *BoardConfig) GainMultipliers() []uint8 {
	gains := make([]uint8, len(b.Gains))
	for i, g := range b.Gains {
		gains[i] = uint8(g)
	}
	return gains
}

// Validate validates REST server configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}
		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}
	return nil
}

// Addr returns the listen address
func (h *HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Address, strconv.Itoa(h.Port))
}

// Validate validates status broadcaster configuration
func (s *StatusConfig) Validate() error {
	if s.Enabled {
		if s.Port < 1 || s.Port > 65535 {
			return fmt.Errorf("status port must be between 1 and 65535, got %d", s.Port)
		}
		if s.Address == "" {
			return fmt.Errorf("status address cannot be empty when status is enabled")
		}
	}
	return nil
}

// Addr returns the listen address
func (s *StatusConfig) Addr() string {
	return net.JoinHostPort(s.Address, strconv.Itoa(s.Port))
}

// Validate validates TCP stream configuration
func (t *TCPConfig) Validate() error {
	if t.Address != "" && (t.Port < 1 || t.Port > 65535) {
		return fmt.Errorf("port must be between 1 and 65535, got %d", t.Port)
	}

	if t.LatencyUs < 0 {
		return fmt.Errorf("latency_us cannot be negative, got %d", t.LatencyUs)
	}

	if t.Output != OutputRaw && t.Output != OutputJSON {
		return fmt.Errorf("output must be 'raw' or 'json', got '%s'", t.Output)
	}

	return nil
}

// Configured reports whether an endpoint is set
func (t *TCPConfig) Configured() bool {
	return t.Address != ""
}

// Latency returns the batching latency as a time.Duration
func (t *TCPConfig) Latency() time.Duration {
	return time.Duration(t.LatencyUs) * time.Microsecond
}

// Validate validates UDP stream configuration
func (u *UDPConfig) Validate() error {
	if u.Address != "" && (u.Port < 1 || u.Port > 65535) {
		return fmt.Errorf("port must be between 1 and 65535, got %d", u.Port)
	}
	return nil
}

// Configured reports whether an endpoint is set
func (u *UDPConfig) Configured() bool {
	return u.Address != ""
}

// Validate validates MQTT configuration
func (m *MQTTConfig) Validate() error {
	if !m.Enabled {
		return nil
	}

	if m.Broker == "" {
		return fmt.Errorf("broker cannot be empty when MQTT is enabled")
	}

	if m.Topic == "" {
		return fmt.Errorf("topic cannot be empty when MQTT is enabled")
	}

	if m.QoS < 0 || m.QoS > 2 {
		return fmt.Errorf("qos must be 0, 1 or 2, got %d", m.QoS)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	if l.Output == "" {
		return fmt.Errorf("output cannot be empty (stdout, stderr or a file path)")
	}

	return nil
}

// CommandTimeout returns the command response timeout
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutMs) * time.Millisecond
}

// SampleRateCommand returns the board command selecting a sample rate
func SampleRateCommand(hz int) (string, bool) {
	switch hz {
	case 250:
		return "~6", true
	case 500:
		return "~5", true
	case 1000:
		return "~4", true
	}
	return "", false
}
