// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bridge runs a cyton.Engine on one goroutine and fans its output
// out to the configured senders, the status broadcaster and the capture
// file. Other goroutines reach the engine only through the Bridge methods.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cytonlink/cytonlink/pkg/cyton"
	"github.com/cytonlink/cytonlink/pkg/metrics"
	"github.com/cytonlink/cytonlink/pkg/stream"
)

// Errors returned to command callers
var (
	ErrCommandTimeout = errors.New("command timed out")
	ErrBusy           = errors.New("another command is pending")
	ErrStopped        = errors.New("bridge stopped")
)

// Defaults
const (
	DefaultCommandTimeout = time.Second
	DefaultPollInterval   = 250 * time.Microsecond
)

// StatusPublisher receives status events as JSON text
type StatusPublisher interface {
	Send(message string)
}

// boardLink is implemented by sources backed by a live connection
type boardLink interface {
	Done() <-chan struct{}
	Err() error
	Dropped() uint64
}

// Options configure a Bridge. Only Source is required.
type Options struct {
	Source cyton.SampleSource

	TCP     *stream.TCPSender
	UDP     *stream.UDPSender
	MQTT    stream.Sender
	Status  StatusPublisher
	Capture *cyton.CaptureWriter
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	CommandTimeout time.Duration
	PollInterval   time.Duration
	BridgeID       string
}

type request struct {
	id    string
	text  string
	reply chan result
}

type result struct {
	text string
	err  error
}

// Bridge owns the engine and everything the engine emits into
type Bridge struct {
	opts   Options
	logger *slog.Logger
	engine *cyton.Engine
	link   boardLink

	requests chan request
	done     chan struct{}
	start    time.Time
	now      uint64

	// loop-owned
	pending      *request
	pendingSince time.Time
	commandTimer cyton.DeadlineTimer
	flushTimer   cyton.DeadlineTimer
	gains        cyton.GainReport
	seenGaps     uint64
	seenDropped  uint64

	// published for other goroutines
	infoMu sync.RWMutex
	info   BoardInfo
}

// New creates a bridge. It does nothing until Run.
func New(opts Options) *Bridge {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.BridgeID == "" {
		opts.BridgeID = ID()
	}

	b := &Bridge{
		opts:     opts,
		logger:   opts.Logger,
		requests: make(chan request),
		done:     make(chan struct{}),
	}
	b.engine = cyton.NewEngine(opts.Source, b)
	if link, ok := opts.Source.(boardLink); ok {
		b.link = link
	}
	b.publishInfo()
	return b
}

// Run drives the engine until ctx is done or the board connection fails
func (b *Bridge) Run(ctx context.Context) error {
	defer close(b.done)

	b.start = time.Now()
	ticker := time.NewTicker(b.opts.PollInterval)
	defer ticker.Stop()

	var linkDone <-chan struct{}
	if b.link != nil {
		linkDone = b.link.Done()
	}

	b.logger.Info("Bridge started",
		slog.String("bridge_id", b.opts.BridgeID),
		slog.Bool("board_connected", b.link != nil),
	)

	for {
		select {
		case <-ctx.Done():
			b.shutdown()
			return nil
		case <-linkDone:
			b.shutdown()
			return fmt.Errorf("board connection lost: %w", b.link.Err())
		case req := <-b.requests:
			b.now = b.clock()
			b.handle(req)
		case <-ticker.C:
		}
		b.step(b.clock())
	}
}

// clock returns microseconds since Run started
func (b *Bridge) clock() uint64 {
	return uint64(time.Since(b.start).Microseconds())
}

// step advances the engine and both timers to now
func (b *Bridge) step(now uint64) {
	b.now = now
	b.engine.Tick(now)
	b.commandTimer.Poll(now)
	b.flushTimer.Poll(now)
	b.syncCounters()
	b.publishInfo()
}

func (b *Bridge) shutdown() {
	if b.pending != nil {
		b.pending.reply <- result{err: ErrStopped}
		b.pending = nil
	}
	b.commandTimer.Cancel()
	b.flushTimer.Cancel()
	if b.opts.TCP != nil {
		if err := b.opts.TCP.Flush(); err != nil && !errors.Is(err, stream.ErrNotConnected) {
			b.logger.Warn("Final TCP flush failed", slog.String("error", err.Error()))
		}
	}
	b.logger.Info("Bridge stopped", slog.String("stats", b.engine.Stats().String()))
}

// handle runs one command on the loop goroutine
func (b *Bridge) handle(req request) {
	switch req.text {
	case cyton.CmdStartStream, cyton.CmdStopStream:
		b.engine.Command(req.text)
		if b.opts.Metrics != nil {
			b.opts.Metrics.SetStreaming(b.engine.Streaming())
		}
		b.publishStream()
		req.reply <- result{}
		return
	}

	if b.pending != nil {
		req.reply <- result{err: ErrBusy}
		return
	}

	b.logger.Debug("Command issued",
		slog.String("request_id", req.id),
		slog.String("command", req.text),
	)

	pending := req
	b.pending = &pending
	b.pendingSince = time.Now()
	b.engine.Command(req.text)
	b.commandTimer.Arm(b.now, uint32(b.opts.CommandTimeout.Milliseconds()), b.onCommandTimeout)

	if b.opts.Metrics != nil {
		b.opts.Metrics.SetSampleRate(b.engine.SampleRate())
	}
}

func (b *Bridge) onCommandTimeout() {
	b.engine.CancelPending()
	if b.opts.Metrics != nil {
		b.opts.Metrics.RecordCommandTimeout()
	}
	if b.pending == nil {
		return
	}

	b.logger.Warn("Command timed out",
		slog.String("request_id", b.pending.id),
		slog.String("command", b.pending.text),
		slog.Duration("timeout", b.opts.CommandTimeout),
	)
	b.pending.reply <- result{err: ErrCommandTimeout}
	b.pending = nil
}

// send queues a command for the loop and waits for its outcome
func (b *Bridge) send(ctx context.Context, text string) (string, error) {
	req := request{id: uuid.NewString(), text: text, reply: make(chan result, 1)}

	select {
	case b.requests <- req:
	case <-b.done:
		return "", ErrStopped
	case <-ctx.Done():
		return "", ctx.Err()
	}

	select {
	case res := <-req.reply:
		return res.text, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Command sends a board command and waits for its response text
func (b *Bridge) Command(ctx context.Context, text string) (string, error) {
	return b.send(ctx, text)
}

// StartStream starts sample streaming without waiting for samples
func (b *Bridge) StartStream(ctx context.Context) error {
	_, err := b.send(ctx, cyton.CmdStartStream)
	return err
}

// StopStream stops sample streaming
func (b *Bridge) StopStream(ctx context.Context) error {
	_, err := b.send(ctx, cyton.CmdStopStream)
	return err
}

// TCP returns the TCP sender, or nil
func (b *Bridge) TCP() *stream.TCPSender {
	return b.opts.TCP
}

// UDP returns the UDP sender, or nil
func (b *Bridge) UDP() *stream.UDPSender {
	return b.opts.UDP
}

// statusEvent is broadcast to status clients
type statusEvent struct {
	Event      string `json:"event"`
	Streaming  *bool  `json:"streaming,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Gains      []int  `json:"gains,omitempty"`
	Command    string `json:"command,omitempty"`
	Result     string `json:"result,omitempty"`
}

func (b *Bridge) publish(ev statusEvent) {
	if b.opts.Status == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	b.opts.Status.Send(string(data))
}

func (b *Bridge) publishStream() {
	streaming := b.engine.Streaming()
	b.publish(statusEvent{Event: "stream", Streaming: &streaming, SampleRate: b.engine.SampleRate()})
}

// syncCounters forwards counter deltas to the metrics
func (b *Bridge) syncCounters() {
	if b.opts.Metrics == nil {
		return
	}

	if gaps := b.engine.Stats().SequenceGaps; gaps > b.seenGaps {
		b.opts.Metrics.AddSequenceGaps(gaps - b.seenGaps)
		b.seenGaps = gaps
	}
	if b.link != nil {
		if dropped := b.link.Dropped(); dropped > b.seenDropped {
			b.opts.Metrics.AddDroppedWindows(dropped - b.seenDropped)
			b.seenDropped = dropped
		}
	}
}
