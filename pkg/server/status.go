// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cytonlink/cytonlink/pkg/metrics"
)

// DefaultStatusSendBuffer is the per-client outbound queue length
const DefaultStatusSendBuffer = 64

// StatusServer broadcasts status messages to websocket clients. Every new
// client first receives the welcome message.
type StatusServer struct {
	server  *http.Server
	logger  *slog.Logger
	metrics *metrics.Metrics
	welcome func() string

	mu      sync.RWMutex
	clients map[*statusClient]struct{}
}

type statusClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// NewStatusServer creates a broadcaster listening on addr. welcome may be nil.
func NewStatusServer(addr string, welcome func() string, m *metrics.Metrics, logger *slog.Logger) *StatusServer {
	if logger == nil {
		logger = slog.Default()
	}

	s := &StatusServer{
		logger:  logger,
		metrics: m,
		welcome: welcome,
		clients: make(map[*statusClient]struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWS)
	s.server = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Handler returns the websocket upgrade handler
func (s *StatusServer) Handler() http.Handler {
	return s.server.Handler
}

// Start starts listening
func (s *StatusServer) Start() error {
	s.logger.Info("Starting status broadcaster", slog.String("address", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Status server error", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// Stop closes every client and the listener
func (s *StatusServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping status broadcaster...")
	for _, c := range s.snapshotClients() {
		c.close()
	}
	return s.server.Shutdown(ctx)
}

// ClientCount returns the number of connected clients
func (s *StatusServer) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Send broadcasts message to every client. It is a no-op with no clients.
// Slow clients miss messages rather than block the caller.
func (s *StatusServer) Send(message string) {
	clients := s.snapshotClients()
	if len(clients) == 0 {
		return
	}
	data := []byte(message)
	for _, c := range clients {
		c.trySend(data)
	}
}

func (s *StatusServer) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool {
			return true
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("Status upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &statusClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, DefaultStatusSendBuffer),
	}

	if s.welcome != nil {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(s.welcome())); err != nil {
			c.close()
			return
		}
	}

	s.addClient(c)
	s.logger.Info("Status client connected",
		slog.String("client_id", c.id),
		slog.String("remote", r.RemoteAddr),
	)

	go c.writeLoop()
	c.readLoop()

	c.close()
	s.removeClient(c)
	s.logger.Info("Status client disconnected", slog.String("client_id", c.id))
}

func (s *StatusServer) addClient(c *statusClient) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.SetStatusClients(n)
	}
}

func (s *StatusServer) removeClient(c *statusClient) {
	s.mu.Lock()
	delete(s.clients, c)
	n := len(s.clients)
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.SetStatusClients(n)
	}
}

func (s *StatusServer) snapshotClients() []*statusClient {
	s.mu.RLock()
	clients := make([]*statusClient, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()
	return clients
}

// readLoop discards client input until the connection closes
func (c *statusClient) readLoop() {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *statusClient) writeLoop() {
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.close()
			return
		}
	}
}

func (c *statusClient) trySend(msg []byte) {
	// send may already be closed by a concurrent close
	defer func() {
		_ = recover()
	}()
	select {
	case c.send <- msg:
	default:
	}
}

func (c *statusClient) close() {
	c.once.Do(func() {
		close(c.send)
		_ = c.conn.Close()
	})
}
