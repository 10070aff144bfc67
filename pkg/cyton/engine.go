// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cyton

import (
	"fmt"
	"strings"
)

// PacketSink receives everything an Engine emits. Calls are synchronous
// and happen inside Engine.Tick.
type PacketSink interface {
	OnData(sample FramedSample)
	OnGains(report GainReport)
	OnCommandResult(text string)
}

// SinkFuncs adapts optional callbacks to a PacketSink.
// Packets of a kind with a nil callback are dropped.
type SinkFuncs struct {
	Data          func(FramedSample)
	Gains         func(GainReport)
	CommandResult func(string)
}

// OnData implements PacketSink
func (f SinkFuncs) OnData(sample FramedSample) {
	if f.Data != nil {
		f.Data(sample)
	}
}

// OnGains implements PacketSink
func (f SinkFuncs) OnGains(report GainReport) {
	if f.Gains != nil {
		f.Gains(report)
	}
}

// OnCommandResult implements PacketSink
func (f SinkFuncs) OnCommandResult(text string) {
	if f.CommandResult != nil {
		f.CommandResult(text)
	}
}

// State is the engine's session state
type State int

// Engine states
const (
	StateIdle State = iota
	StateStreaming
	StateAwaitingResponse
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStreaming:
		return "STREAMING"
	case StateAwaitingResponse:
		return "AWAITING_RESPONSE"
	default:
		return "UNKNOWN"
	}
}

// Engine owns one board session: command interpretation, sample rate,
// gain announcement and paced sample emission.
// It is not safe for concurrent use; one loop calls Command and Tick.
type Engine struct {
	src  SampleSource
	sink PacketSink

	state           State
	nextDeadline    uint64
	interval        uint64
	seq             uint8
	gainsConfigured bool

	pending    string
	hasPending bool
	response   []byte

	stats *Statistics
}

// NewEngine creates an idle engine at 250 Hz.
// A nil source selects a SyntheticOscillator; a nil sink drops everything.
func NewEngine(src SampleSource, sink PacketSink) *Engine {
	if src == nil {
		src = NewSyntheticOscillator()
	}
	if sink == nil {
		sink = SinkFuncs{}
	}
	return &Engine{
		src:      src,
		sink:     sink,
		state:    StateIdle,
		interval: DefaultInterval,
		stats:    NewStatistics(),
	}
}

// SampleRateAck returns the response to a successful sample rate command
func SampleRateAck(hz int) string {
	return fmt.Sprintf(sampleRateAckFormat, hz)
}

// Command interprets one board command
func (e *Engine) Command(text string) {
	answered := e.src.Forward(text)

	var response string
	switch {
	case text == CmdStartStream:
		e.state = StateStreaming
		e.nextDeadline = 0
		e.gainsConfigured = false
		e.seq = 0
		e.stats.ResetSequence()
		return

	case text == CmdStopStream:
		if e.state == StateStreaming {
			e.state = StateIdle
		}
		return

	case text == CmdVersion:
		response = FirmwareVersion

	case len(text) == 2 && strings.HasPrefix(text, CmdSampleRate):
		response = e.setSampleRate(text[1])

	default:
		response = FallbackResponse
	}

	if !answered {
		e.pending = response
		e.hasPending = true
	}
	if e.state != StateStreaming {
		e.state = StateAwaitingResponse
	}
}

func (e *Engine) setSampleRate(code byte) string {
	switch code {
	case '6':
		e.interval = Interval250Hz
	case '5':
		e.interval = Interval500Hz
	case '4':
		e.interval = Interval1000Hz
	case '~':
		// query only
	default:
		return SampleRateFailure
	}
	return SampleRateAck(e.SampleRate())
}

// Tick advances the engine to nowMicros. At most one sample or one command
// response is emitted, followed by the gain announcement on the first tick
// of a streaming session. Sample windows from an unpaced source are
// counted but dropped unless the engine is streaming.
func (e *Engine) Tick(nowMicros uint64) {
	emitted := false

	if e.src.Paced() {
		if e.state == StateStreaming && nowMicros >= e.nextDeadline {
			e.advanceDeadline(nowMicros)
			e.dispatch(e.src.Window(nowMicros, e.seq))
			e.seq++
			emitted = true
		}
	} else if window := e.src.Window(nowMicros, e.seq); window != nil {
		e.dispatch(window)
		emitted = true
	}

	if !emitted && e.hasPending {
		text := e.pending
		e.pending = ""
		e.hasPending = false
		for _, window := range EncodeCommandWindows(text) {
			e.dispatch(window)
		}
	}

	if e.state == StateStreaming && !e.gainsConfigured {
		if window := e.src.GainWindow(); window != nil {
			e.dispatch(window)
		}
		e.gainsConfigured = true
	}
}

// advanceDeadline schedules the next sample one interval out, minus the
// amount the current one was late, so lateness does not accumulate.
func (e *Engine) advanceDeadline(nowMicros uint64) {
	var drift uint64
	if e.nextDeadline != 0 {
		drift = nowMicros - e.nextDeadline
	}
	e.nextDeadline = nowMicros + e.interval - drift
}

// dispatch classifies a raw window and hands the decoded packet to the sink
func (e *Engine) dispatch(window []byte) {
	kind := Classify(window)
	e.stats.Record(kind)

	switch kind {
	case KindSample:
		// a board can keep sending after "s", or before any "b"
		if e.state != StateStreaming {
			return
		}
		sample := DecodeSample(window)
		e.stats.RecordSequence(sample.Sequence())
		e.sink.OnData(sample)

	case KindGainReport:
		e.sink.OnGains(DecodeGainReport(window))

	case KindCommandFragment:
		e.response = append(e.response, DecodeCommandFragment(window)...)

	case KindCommandFinal:
		e.response = append(e.response, DecodeCommandFragment(window)...)
		text := string(e.response)
		e.response = e.response[:0]
		if e.state == StateAwaitingResponse {
			e.state = StateIdle
		}
		e.sink.OnCommandResult(text)
	}
}

// CancelPending drops any response not yet emitted, including partially
// received board fragments, and leaves AwaitingResponse.
func (e *Engine) CancelPending() {
	e.pending = ""
	e.hasPending = false
	e.response = e.response[:0]
	if e.state == StateAwaitingResponse {
		e.state = StateIdle
	}
}

// State returns the current session state
func (e *Engine) State() State {
	return e.state
}

// Streaming reports whether samples are being emitted
func (e *Engine) Streaming() bool {
	return e.state == StateStreaming
}

// Interval returns the sample interval in microseconds
func (e *Engine) Interval() uint64 {
	return e.interval
}

// SampleRate returns the sample rate in Hz
func (e *Engine) SampleRate() int {
	return int(1_000_000 / e.interval)
}

// NextDeadline returns the time the next sample is due (0 = immediately)
func (e *Engine) NextDeadline() uint64 {
	return e.nextDeadline
}

// Sequence returns the sequence number the next synthesized sample gets
func (e *Engine) Sequence() uint8 {
	return e.seq
}

// GainsConfigured reports whether gains were announced this session
func (e *Engine) GainsConfigured() bool {
	return e.gainsConfigured
}

// PendingResponse returns the synthesized response waiting to be emitted
func (e *Engine) PendingResponse() (string, bool) {
	return e.pending, e.hasPending
}

// Stats returns the engine's packet statistics
func (e *Engine) Stats() *Statistics {
	return e.stats
}
