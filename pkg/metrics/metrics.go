// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exposes bridge counters to Prometheus
package metrics

import (
	"net/http"

	"github.com/cytonlink/cytonlink/pkg/cyton"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for the bridge.
// Each instance owns its registry so tests can create many.
type Metrics struct {
	registry *prometheus.Registry

	// Engine output
	Packets        *prometheus.CounterVec
	SequenceGaps   prometheus.Counter
	DroppedWindows prometheus.Counter
	Streaming      prometheus.Gauge
	SampleRate     prometheus.Gauge

	// Commands
	Commands        *prometheus.CounterVec
	CommandTimeouts prometheus.Counter
	CommandDuration prometheus.Histogram

	// Senders
	StreamPackets *prometheus.CounterVec
	StreamErrors  *prometheus.CounterVec
	StatusClients prometheus.Gauge

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on a fresh registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Packets: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cytonlink_packets_total",
			Help: "Total number of packets emitted by the engine, by kind",
		}, []string{"kind"}),
		SequenceGaps: factory.NewCounter(prometheus.CounterOpts{
			Name: "cytonlink_sequence_gaps_total",
			Help: "Total number of discontinuities in sample sequence numbers",
		}),
		DroppedWindows: factory.NewCounter(prometheus.CounterOpts{
			Name: "cytonlink_dropped_windows_total",
			Help: "Total number of board windows dropped on a full relay queue",
		}),
		Streaming: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cytonlink_streaming",
			Help: "1 while the board is streaming samples",
		}),
		SampleRate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cytonlink_sample_rate_hz",
			Help: "Configured sample rate",
		}),

		Commands: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cytonlink_commands_total",
			Help: "Total number of board commands, by outcome",
		}, []string{"outcome"}),
		CommandTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "cytonlink_command_timeouts_total",
			Help: "Total number of commands that got no response in time",
		}),
		CommandDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cytonlink_command_duration_seconds",
			Help:    "Time from command to response",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}),

		StreamPackets: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cytonlink_stream_packets_total",
			Help: "Total number of packets handed to a sender",
		}, []string{"sender"}),
		StreamErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cytonlink_stream_errors_total",
			Help: "Total number of failed sends",
		}, []string{"sender"}),
		StatusClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cytonlink_status_clients",
			Help: "Current number of websocket status clients",
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cytonlink_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cytonlink_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cytonlink_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the registry the metrics are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordPacket counts one emitted packet
func (m *Metrics) RecordPacket(kind cyton.Kind) {
	m.Packets.WithLabelValues(kind.String()).Inc()
}

// AddSequenceGaps adds newly observed sequence gaps
func (m *Metrics) AddSequenceGaps(n uint64) {
	m.SequenceGaps.Add(float64(n))
}

// AddDroppedWindows adds newly dropped relay windows
func (m *Metrics) AddDroppedWindows(n uint64) {
	m.DroppedWindows.Add(float64(n))
}

// SetStreaming records whether samples are flowing
func (m *Metrics) SetStreaming(streaming bool) {
	if streaming {
		m.Streaming.Set(1)
	} else {
		m.Streaming.Set(0)
	}
}

// SetSampleRate records the current sample rate
func (m *Metrics) SetSampleRate(hz int) {
	m.SampleRate.Set(float64(hz))
}

// RecordCommand records a completed command and its round-trip time
func (m *Metrics) RecordCommand(outcome string, durationSeconds float64) {
	m.Commands.WithLabelValues(outcome).Inc()
	m.CommandDuration.Observe(durationSeconds)
}

// RecordCommandTimeout records a command that got no response
func (m *Metrics) RecordCommandTimeout() {
	m.Commands.WithLabelValues("timeout").Inc()
	m.CommandTimeouts.Inc()
}

// RecordStreamSend records one send attempt on a sender
func (m *Metrics) RecordStreamSend(sender string, err error) {
	m.StreamPackets.WithLabelValues(sender).Inc()
	if err != nil {
		m.StreamErrors.WithLabelValues(sender).Inc()
	}
}

// SetStatusClients sets the current number of status clients
func (m *Metrics) SetStatusClients(count int) {
	m.StatusClients.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
