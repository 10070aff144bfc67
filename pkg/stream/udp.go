// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package stream

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// UDPInfo is the stream description reported over REST
type UDPInfo struct {
	Configured bool   `json:"configured"`
	IP         string `json:"ip"`
	Port       int    `json:"port"`
}

// UDPSender sends each packet as one datagram to a configured endpoint
type UDPSender struct {
	logger *slog.Logger

	mu       sync.Mutex
	conn     *net.UDPConn
	endpoint Endpoint
}

// NewUDPSender creates an unconfigured sender
func NewUDPSender(logger *slog.Logger) *UDPSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &UDPSender{logger: logger}
}

// Configure points the sender at endpoint. A zero endpoint unconfigures it.
func (u *UDPSender) Configure(endpoint Endpoint) error {
	var conn *net.UDPConn
	if !endpoint.IsZero() {
		addr, err := net.ResolveUDPAddr("udp", endpoint.String())
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", endpoint.String(), err)
		}
		conn, err = net.DialUDP("udp", nil, addr)
		if err != nil {
			return fmt.Errorf("failed to open udp socket to %s: %w", endpoint.String(), err)
		}
	}

	u.mu.Lock()
	old := u.conn
	u.conn = conn
	u.endpoint = endpoint
	u.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}

	if conn != nil {
		u.logger.Info("UDP stream configured", slog.String("remote", endpoint.String()))
	} else {
		u.logger.Info("UDP stream cleared")
	}
	return nil
}

// Endpoint returns the configured endpoint
func (u *UDPSender) Endpoint() Endpoint {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.endpoint
}

// Info describes the stream for REST clients
func (u *UDPSender) Info() UDPInfo {
	u.mu.Lock()
	defer u.mu.Unlock()
	return UDPInfo{Configured: u.conn != nil, IP: u.endpoint.IP, Port: u.endpoint.Port}
}

// Configured reports whether an endpoint is set
func (u *UDPSender) Configured() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.conn != nil
}

// Send writes data as one datagram
func (u *UDPSender) Send(data []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.conn == nil {
		return ErrNotConfigured
	}
	n, err := u.conn.Write(data)
	if err != nil {
		return fmt.Errorf("udp send to %s: %w", u.endpoint.String(), err)
	}
	if n != len(data) {
		return fmt.Errorf("udp send to %s: %w: %d of %d bytes", u.endpoint.String(), ErrShortWrite, n, len(data))
	}
	return nil
}

// Close releases the socket
func (u *UDPSender) Close() error {
	return u.Configure(Endpoint{})
}
