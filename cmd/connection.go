// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"

	"github.com/cytonlink/cytonlink/pkg/config"
	"github.com/cytonlink/cytonlink/pkg/cyton"
)

const (
	wsHandshakeTimeout = 10 * time.Second
	wsDialTimeout      = 15 * time.Second
	passwordEnv        = "CYTON_PASSWORD"
)

// Connection is a byte stream to a Cyton board, serial or WebSocket
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

// SerialConnection is a Cyton dongle on a serial port
type SerialConnection struct {
	serial.Port
}

// Close stops any running stream before releasing the port, so the next
// session does not start in the middle of a sample burst
func (s *SerialConnection) Close() error {
	_, stopErr := s.Port.Write([]byte(cyton.CmdStopStream))
	return errors.Join(stopErr, s.Port.Close())
}

// ErrConnectionClosed is returned when reading from a closed WebSocket connection
var ErrConnectionClosed = errors.New("websocket connection closed")

// WebSocketConnection joins the binary messages of a WebSocket into one
// byte stream. Text messages are skipped.
type WebSocketConnection struct {
	conn    *websocket.Conn
	current io.Reader
	err     error
}

func (w *WebSocketConnection) Read(p []byte) (int, error) {
	for w.err == nil {
		if w.current != nil {
			n, err := w.current.Read(p)
			if err == io.EOF {
				w.current = nil
				err = nil
			}
			if n > 0 || err != nil {
				return n, err
			}
			continue
		}

		messageType, r, err := w.conn.NextReader()
		if err != nil {
			w.err = fmt.Errorf("%w: %v", ErrConnectionClosed, err)
			break
		}
		if messageType == websocket.BinaryMessage {
			w.current = r
		}
	}
	return 0, w.err
}

func (w *WebSocketConnection) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketConnection) Close() error {
	return w.conn.Close()
}

// OpenSerialConnection opens a serial port at 8N1
func OpenSerialConnection(portName string, baudRate int) (*SerialConnection, error) {
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	return &SerialConnection{Port: port}, nil
}

// OpenWebSocketConnection dials a board bridge. Basic auth is sent when
// both username and password are set.
func OpenWebSocketConnection(ctx context.Context, wsURL, username, password string, skipSSLVerify bool) (*WebSocketConnection, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: skipSSLVerify}
	}

	auth := &http.Request{Header: http.Header{}}
	if username != "" && password != "" {
		auth.SetBasicAuth(username, password)
	}

	ctx, cancel := context.WithTimeout(ctx, wsDialTimeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, auth.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}
	return &WebSocketConnection{conn: conn}, nil
}

// GetPassword reads CYTON_PASSWORD, or prompts on the terminal, or reads
// one line from a piped stdin
func GetPassword() (string, error) {
	if pw := os.Getenv(passwordEnv); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	defer fmt.Fprintln(os.Stderr)

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		pw, err := term.ReadPassword(fd)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(pw), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// OpenConnection opens the board connection a serial or websocket board
// config describes, with a one-line description for headers
func OpenConnection(ctx context.Context, cfg config.BoardConfig) (Connection, string, error) {
	switch cfg.Source {
	case config.SourceWebSocket:
		var password string
		if cfg.Username != "" {
			var err error
			if password, err = GetPassword(); err != nil {
				return nil, "", err
			}
		}

		conn, err := OpenWebSocketConnection(ctx, cfg.URL, cfg.Username, password, wsNoSSLVerify)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("WebSocket: %s", cfg.URL), nil

	case config.SourceSerial:
		conn, err := OpenSerialConnection(cfg.Port, cfg.Baud)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("Serial: %s @ %d baud", cfg.Port, cfg.Baud), nil
	}

	return nil, "", fmt.Errorf("board source %q has no connection (use --port or --url)", cfg.Source)
}
