// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package server provides the REST control surface and the websocket
// status broadcaster.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"time"

	"github.com/cytonlink/cytonlink/pkg/bridge"
	"github.com/cytonlink/cytonlink/pkg/config"
	"github.com/cytonlink/cytonlink/pkg/metrics"
	"github.com/cytonlink/cytonlink/pkg/stream"
)

// Controller is the board session the REST surface drives
type Controller interface {
	Command(ctx context.Context, text string) (string, error)
	StartStream(ctx context.Context) error
	StopStream(ctx context.Context) error
	BoardInfo() bridge.BoardInfo
}

// HTTPServer serves the REST API
type HTTPServer struct {
	server  *http.Server
	logger  *slog.Logger
	ctrl    Controller
	tcp     *stream.TCPSender
	udp     *stream.UDPSender
	metrics *metrics.Metrics
	version string
}

// NewHTTPServer creates a REST server. tcp and udp may be nil, in which
// case their routes answer 404.
func NewHTTPServer(addr string, ctrl Controller, tcp *stream.TCPSender, udp *stream.UDPSender,
	m *metrics.Metrics, logger *slog.Logger, version string) *HTTPServer {

	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NewMetrics()
	}

	h := &HTTPServer{
		logger:  logger,
		ctrl:    ctrl,
		tcp:     tcp,
		udp:     udp,
		metrics: m,
		version: version,
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	return h
}

// Handler returns the route multiplexer
func (h *HTTPServer) Handler() http.Handler {
	return h.server.Handler
}

// setupRoutes configures the REST routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
	mux.HandleFunc("/version", h.route("/version", methods{
		http.MethodGet: h.handleVersion,
	}))
	mux.HandleFunc("/board", h.route("/board", methods{
		http.MethodGet: h.handleBoard,
	}))
	mux.HandleFunc("/tcp", h.route("/tcp", methods{
		http.MethodGet:    h.handleTCPGet,
		http.MethodPost:   h.handleTCPPost,
		http.MethodDelete: h.handleTCPDelete,
	}))
	mux.HandleFunc("/udp", h.route("/udp", methods{
		http.MethodGet:    h.handleUDPGet,
		http.MethodPost:   h.handleUDPPost,
		http.MethodDelete: h.handleUDPDelete,
	}))
	mux.HandleFunc("/stream/start", h.route("/stream/start", methods{
		http.MethodGet:  h.handleStreamStart,
		http.MethodPost: h.handleStreamStart,
	}))
	mux.HandleFunc("/stream/stop", h.route("/stream/stop", methods{
		http.MethodGet:  h.handleStreamStop,
		http.MethodPost: h.handleStreamStop,
	}))
	mux.HandleFunc("/command", h.route("/command", methods{
		http.MethodPost: h.handleCommand,
	}))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", h.metrics.Handler())
}

type methods map[string]http.HandlerFunc

// route dispatches by method, answering OPTIONS with CORS headers
func (h *HTTPServer) route(endpoint string, handlers methods) http.HandlerFunc {
	return h.withMetrics(endpoint, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			sendOptions(w)
			return
		}
		handler, ok := handlers[r.Method]
		if !ok {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handler(w, r)
	})
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()
		w.Header().Set("Access-Control-Allow-Origin", "*")

		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)
		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server", slog.String("address", h.server.Addr))

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")
	return h.server.Shutdown(ctx)
}

func sendOptions(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Methods", "POST,DELETE,GET,OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func notFound(w http.ResponseWriter, message string) {
	http.Error(w, message, http.StatusNotFound)
}

// handleRoot serves the landing page and answers 404 for unknown paths
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		notFound(w, "Not Found")
		return
	}
	switch r.Method {
	case http.MethodOptions:
		sendOptions(w)
	case http.MethodGet:
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<!DOCTYPE html><meta name="viewport" content="width=device-width, initial-scale=1.0">`+
			`<html lang="en"><h1 style="margin: auto;width: 90%%;text-align: center;">OpenBCI Interface</h1><br>`+
			`<p style="margin: auto;width: 80%%;text-align: center;">cytonlink %s &middot; <a href="/board">board</a> &middot; <a href="/metrics">metrics</a></p></html>`,
			html.EscapeString(h.version))
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *HTTPServer) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, h.version)
}

func (h *HTTPServer) handleBoard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.ctrl.BoardInfo())
}

func (h *HTTPServer) handleTCPGet(w http.ResponseWriter, r *http.Request) {
	if h.tcp == nil {
		notFound(w, "TCP stream not available")
		return
	}
	writeJSON(w, h.tcp.Info())
}

func (h *HTTPServer) handleTCPPost(w http.ResponseWriter, r *http.Request) {
	if h.tcp == nil {
		notFound(w, "TCP stream not available")
		return
	}

	settings := stream.TCPSettings{Output: config.OutputRaw, Delimiter: true}
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if settings.LatencyUs < 0 {
		http.Error(w, "latency cannot be negative", http.StatusBadRequest)
		return
	}
	if err := h.tcp.Connect(r.Context(), settings); err != nil {
		h.logger.Warn("TCP stream setup failed", slog.String("error", err.Error()))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, h.tcp.Info())
}

func (h *HTTPServer) handleTCPDelete(w http.ResponseWriter, r *http.Request) {
	if h.tcp == nil {
		notFound(w, "TCP stream not available")
		return
	}
	h.tcp.Disconnect()
	writeJSON(w, h.tcp.Info())
}

func (h *HTTPServer) handleUDPGet(w http.ResponseWriter, r *http.Request) {
	if h.udp == nil {
		notFound(w, "UDP stream not available")
		return
	}
	writeJSON(w, h.udp.Info())
}

func (h *HTTPServer) handleUDPPost(w http.ResponseWriter, r *http.Request) {
	if h.udp == nil {
		notFound(w, "UDP stream not available")
		return
	}

	var endpoint stream.Endpoint
	if err := json.NewDecoder(r.Body).Decode(&endpoint); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if endpoint.IsZero() {
		http.Error(w, "ip and port are required", http.StatusBadRequest)
		return
	}
	if err := h.udp.Configure(endpoint); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, h.udp.Info())
}

func (h *HTTPServer) handleUDPDelete(w http.ResponseWriter, r *http.Request) {
	if h.udp == nil {
		notFound(w, "UDP stream not available")
		return
	}
	if err := h.udp.Configure(stream.Endpoint{}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, h.udp.Info())
}

func (h *HTTPServer) handleStreamStart(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.StartStream(r.Context()); err != nil {
		writeCommandError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprint(w, "Stream started")
}

func (h *HTTPServer) handleStreamStop(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.StopStream(r.Context()); err != nil {
		writeCommandError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprint(w, "Stream stopped")
}

// handleCommand forwards {"command": "..."} to the board and answers with
// the response text
func (h *HTTPServer) handleCommand(w http.ResponseWriter, r *http.Request) {
	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	raw, ok := body["command"]
	if !ok {
		http.Error(w, "JSON doesn't contain 'command' element", http.StatusBadRequest)
		return
	}
	var command string
	if err := json.Unmarshal(raw, &command); err != nil {
		http.Error(w, "'command' must be a string", http.StatusBadRequest)
		return
	}

	text, err := h.ctrl.Command(r.Context(), command)
	if err != nil {
		h.logger.Warn("Command failed", slog.String("command", command), slog.String("error", err.Error()))
		writeCommandError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/json")
	fmt.Fprint(w, text)
}

// writeCommandError maps bridge errors to status codes
func writeCommandError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, bridge.ErrCommandTimeout), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, bridge.ErrBusy):
		status = http.StatusConflict
	case errors.Is(err, bridge.ErrStopped):
		status = http.StatusServiceUnavailable
	}
	http.Error(w, err.Error(), status)
}
