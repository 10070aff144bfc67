// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package stream

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/cytonlink/cytonlink/pkg/config"
)

// DefaultDialTimeout bounds TCPSender.Connect
const DefaultDialTimeout = 5 * time.Second

// TCPSettings describe a TCP stream
type TCPSettings struct {
	Endpoint
	Delimiter bool   `json:"delimiter"`
	Output    string `json:"output"`
	LatencyUs int    `json:"latency"`
}

// TCPInfo is the stream description reported over REST
type TCPInfo struct {
	Connected bool   `json:"connected"`
	Delimiter bool   `json:"delimiter"`
	IP        string `json:"ip"`
	Output    string `json:"output"`
	Port      int    `json:"port"`
	Latency   int    `json:"latency"`
}

// SettingsFromConfig converts the stream.tcp config section
func SettingsFromConfig(c config.TCPConfig) TCPSettings {
	return TCPSettings{
		Endpoint:  Endpoint{IP: c.Address, Port: c.Port},
		Delimiter: c.Delimiter,
		Output:    c.Output,
		LatencyUs: c.LatencyUs,
	}
}

// TCPSender writes packets to one TCP consumer. With a non-zero latency,
// packets are buffered until Flush; otherwise each Send writes through.
type TCPSender struct {
	logger      *slog.Logger
	dialTimeout time.Duration

	mu       sync.Mutex
	conn     net.Conn
	settings TCPSettings
	buf      []byte
}

// NewTCPSender creates a disconnected sender
func NewTCPSender(logger *slog.Logger) *TCPSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &TCPSender{
		logger:      logger,
		dialTimeout: DefaultDialTimeout,
		settings:    TCPSettings{Output: config.OutputRaw},
	}
}

// Connect dials the endpoint in settings, replacing any current connection
func (t *TCPSender) Connect(ctx context.Context, settings TCPSettings) error {
	if settings.IsZero() {
		return ErrNotConfigured
	}
	if settings.Output == "" {
		settings.Output = config.OutputRaw
	}
	if settings.Output != config.OutputRaw && settings.Output != config.OutputJSON {
		return fmt.Errorf("unknown output %q", settings.Output)
	}

	dialer := net.Dialer{Timeout: t.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", settings.String())
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", settings.String(), err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}

	t.mu.Lock()
	old := t.conn
	t.conn = conn
	t.settings = settings
	t.buf = t.buf[:0]
	t.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}

	t.logger.Info("TCP stream connected",
		slog.String("remote", settings.String()),
		slog.String("output", settings.Output),
		slog.Int("latency_us", settings.LatencyUs),
	)
	return nil
}

// Disconnect closes the connection and drops buffered packets
func (t *TCPSender) Disconnect() {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.buf = t.buf[:0]
	t.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
		t.logger.Info("TCP stream disconnected")
	}
}

// Close implements io.Closer
func (t *TCPSender) Close() error {
	t.Disconnect()
	return nil
}

// Connected reports whether a consumer is attached
func (t *TCPSender) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// Settings returns the current stream settings
func (t *TCPSender) Settings() TCPSettings {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.settings
}

// Info describes the stream for REST clients
func (t *TCPSender) Info() TCPInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TCPInfo{
		Connected: t.conn != nil,
		Delimiter: t.settings.Delimiter,
		IP:        t.settings.IP,
		Output:    t.settings.Output,
		Port:      t.settings.Port,
		Latency:   t.settings.LatencyUs,
	}
}

// Latency returns the batching window in microseconds (0 = write-through)
func (t *TCPSender) Latency() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.settings.LatencyUs
}

// Buffered returns the number of bytes waiting for Flush
func (t *TCPSender) Buffered() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buf)
}

// Send writes or buffers one packet
func (t *TCPSender) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return ErrNotConnected
	}
	if t.settings.LatencyUs > 0 {
		t.buf = append(t.buf, data...)
		return nil
	}
	return t.writeLocked(data)
}

// Flush writes all buffered packets
func (t *TCPSender) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.buf) == 0 {
		return nil
	}
	if t.conn == nil {
		t.buf = t.buf[:0]
		return ErrNotConnected
	}
	err := t.writeLocked(t.buf)
	t.buf = t.buf[:0]
	return err
}

// writeLocked writes data; a failed write drops the connection
func (t *TCPSender) writeLocked(data []byte) error {
	n, err := t.conn.Write(data)
	if err == nil && n != len(data) {
		err = fmt.Errorf("%w: %d of %d bytes", ErrShortWrite, n, len(data))
	}
	if err != nil {
		t.logger.Warn("TCP stream write failed, disconnecting",
			slog.String("remote", t.settings.String()),
			slog.String("error", err.Error()),
		)
		_ = t.conn.Close()
		t.conn = nil
		return fmt.Errorf("tcp send: %w", err)
	}
	return nil
}
