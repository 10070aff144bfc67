// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cyton

import (
	"strings"
	"testing"
)

// recordingSink captures everything an engine emits, in order
type recordingSink struct {
	samples []FramedSample
	gains   []GainReport
	results []string
	order   []Kind
}

func (r *recordingSink) OnData(sample FramedSample) {
	r.samples = append(r.samples, sample)
	r.order = append(r.order, KindSample)
}

func (r *recordingSink) OnGains(report GainReport) {
	r.gains = append(r.gains, report)
	r.order = append(r.order, KindGainReport)
}

func (r *recordingSink) OnCommandResult(text string) {
	r.results = append(r.results, text)
	r.order = append(r.order, KindCommandFinal)
}

func newTestEngine() (*Engine, *recordingSink) {
	sink := &recordingSink{}
	return NewEngine(nil, sink), sink
}

// ============================================================
// Command Tests
// ============================================================

func TestEngine_InitialState(t *testing.T) {
	e, _ := newTestEngine()

	if e.State() != StateIdle {
		t.Errorf("state = %s, want IDLE", e.State())
	}
	if e.Interval() != Interval250Hz || e.SampleRate() != 250 {
		t.Errorf("interval = %d (%d Hz), want 4000 (250 Hz)", e.Interval(), e.SampleRate())
	}
	if e.NextDeadline() != 0 || e.Sequence() != 0 || e.GainsConfigured() {
		t.Error("fresh engine should have zero deadline, sequence and gains flag")
	}
}

func TestEngine_SampleRateCommands(t *testing.T) {
	tests := []struct {
		command  string
		interval uint64
		want     string
	}{
		{"~6", Interval250Hz, "Success: Sample rate is 250Hz"},
		{"~5", Interval500Hz, "Success: Sample rate is 500Hz"},
		{"~4", Interval1000Hz, "Success: Sample rate is 1000Hz"},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			e, sink := newTestEngine()
			e.Command(tt.command)

			if e.Interval() != tt.interval {
				t.Errorf("interval = %d, want %d", e.Interval(), tt.interval)
			}
			if e.State() != StateAwaitingResponse {
				t.Errorf("state = %s, want AWAITING_RESPONSE", e.State())
			}

			e.Tick(1000)

			if len(sink.results) != 1 || sink.results[0] != tt.want {
				t.Fatalf("results = %q, want [%q]", sink.results, tt.want)
			}
			if e.State() != StateIdle {
				t.Errorf("state after response = %s, want IDLE", e.State())
			}
		})
	}
}

func TestEngine_SampleRateQuery(t *testing.T) {
	e, sink := newTestEngine()
	e.Command("~5")
	e.Tick(1)
	e.Command("~~")
	e.Tick(2)

	if e.Interval() != Interval500Hz {
		t.Errorf("query changed interval to %d", e.Interval())
	}
	if got := sink.results[len(sink.results)-1]; got != SampleRateAck(500) {
		t.Errorf("query response = %q", got)
	}
}

func TestEngine_InvalidSampleRate(t *testing.T) {
	for _, cmd := range []string{"~0", "~3", "~7", "~a"} {
		e, sink := newTestEngine()
		e.Command(cmd)
		e.Tick(1)

		if e.Interval() != Interval250Hz {
			t.Errorf("%s changed interval to %d", cmd, e.Interval())
		}
		if len(sink.results) != 1 || sink.results[0] != SampleRateFailure {
			t.Errorf("%s results = %q", cmd, sink.results)
		}
	}
}

func TestEngine_Version(t *testing.T) {
	e, sink := newTestEngine()
	e.Command(CmdVersion)
	e.Tick(1)

	if len(sink.results) != 1 || sink.results[0] != FirmwareVersion {
		t.Errorf("results = %q, want [%q]", sink.results, FirmwareVersion)
	}
}

func TestEngine_FallbackResponse(t *testing.T) {
	for _, cmd := range []string{"?", "", "~", "~66", "d", "bb"} {
		e, sink := newTestEngine()
		e.Command(cmd)
		e.Tick(1)

		if len(sink.results) != 1 || sink.results[0] != FallbackResponse {
			t.Errorf("%q results = %q, want [%q]", cmd, sink.results, FallbackResponse)
		}
	}
}

func TestEngine_ResponseEmittedOnce(t *testing.T) {
	e, sink := newTestEngine()
	e.Command(CmdVersion)
	for now := uint64(1); now < 10; now++ {
		e.Tick(now)
	}
	if len(sink.results) != 1 {
		t.Errorf("got %d results, want 1", len(sink.results))
	}
	if _, ok := e.PendingResponse(); ok {
		t.Error("response still pending after emission")
	}
}

func TestEngine_StopWhenIdle(t *testing.T) {
	e, sink := newTestEngine()
	e.Command(CmdStopStream)
	e.Tick(1)

	if e.State() != StateIdle || len(sink.order) != 0 {
		t.Errorf("state = %s, emitted %v", e.State(), sink.order)
	}
}

// ============================================================
// Streaming Tests
// ============================================================

func TestEngine_StartStreamFiveTicks(t *testing.T) {
	e, sink := newTestEngine()
	e.Command(CmdStartStream)

	start := uint64(1_000_000)
	for i := uint64(0); i < 5; i++ {
		e.Tick(start + i*Interval250Hz)
	}

	if len(sink.samples) != 5 {
		t.Errorf("got %d samples, want 5", len(sink.samples))
	}
	if len(sink.gains) != 1 {
		t.Fatalf("got %d gain reports, want 1", len(sink.gains))
	}
	if len(sink.order) < 2 || sink.order[0] != KindSample || sink.order[1] != KindGainReport {
		t.Errorf("first tick order = %v, want sample then gains", sink.order)
	}
	for i, g := range sink.gains[0] {
		if g != 24 {
			t.Errorf("gain[%d] = %d, want 24", i, g)
		}
	}
	for i, s := range sink.samples {
		if s.Sequence() != uint8(i) {
			t.Errorf("sample %d sequence = %d", i, s.Sequence())
		}
		if len(s) != SampleSize || s[0] != BeginByte || s.TypeByte() != EndByte {
			t.Errorf("sample %d badly framed: % X", i, []byte(s))
		}
	}
	if !e.GainsConfigured() {
		t.Error("gains flag not set after first streaming tick")
	}
}

func TestEngine_NoSampleBeforeDeadline(t *testing.T) {
	e, sink := newTestEngine()
	e.Command(CmdStartStream)

	e.Tick(10_000)
	e.Tick(10_000 + Interval250Hz - 1)
	if len(sink.samples) != 1 {
		t.Errorf("got %d samples, want 1", len(sink.samples))
	}

	e.Tick(10_000 + Interval250Hz)
	if len(sink.samples) != 2 {
		t.Errorf("got %d samples, want 2", len(sink.samples))
	}
}

func TestEngine_IdleTicksEmitNothing(t *testing.T) {
	e, sink := newTestEngine()
	for now := uint64(0); now < 100_000; now += 1000 {
		e.Tick(now)
	}
	if len(sink.order) != 0 {
		t.Errorf("idle engine emitted %v", sink.order)
	}
}

func TestEngine_StopStream(t *testing.T) {
	e, sink := newTestEngine()
	e.Command(CmdStartStream)
	e.Tick(1000)
	e.Command(CmdStopStream)

	if e.State() != StateIdle {
		t.Errorf("state = %s, want IDLE", e.State())
	}
	e.Tick(1000 + 10*Interval250Hz)
	if len(sink.samples) != 1 {
		t.Errorf("got %d samples after stop, want 1", len(sink.samples))
	}
}

func TestEngine_RestartResetsSession(t *testing.T) {
	e, sink := newTestEngine()
	e.Command(CmdStartStream)
	e.Tick(1000)
	e.Tick(5000)
	e.Command(CmdStopStream)

	e.Command(CmdStartStream)
	if e.Sequence() != 0 || e.NextDeadline() != 0 || e.GainsConfigured() {
		t.Error("restart should reset sequence, deadline and gains flag")
	}

	e.Tick(100_000)
	if len(sink.gains) != 2 {
		t.Errorf("got %d gain reports, want one per session", len(sink.gains))
	}
	if last := sink.samples[len(sink.samples)-1]; last.Sequence() != 0 {
		t.Errorf("first sample of new session has sequence %d", last.Sequence())
	}
}

func TestEngine_SequenceWraps(t *testing.T) {
	e, sink := newTestEngine()
	e.Command(CmdStartStream)

	now := uint64(1)
	for i := 0; i < 257; i++ {
		e.Tick(now)
		now = e.NextDeadline()
	}

	if len(sink.samples) != 257 {
		t.Fatalf("got %d samples, want 257", len(sink.samples))
	}
	for i, sample := range sink.samples {
		if sample.Sequence() != uint8(i) {
			t.Fatalf("sample %d sequence = %d, want %d", i, sample.Sequence(), uint8(i))
		}
	}
	if e.Stats().SequenceGaps != 0 {
		t.Errorf("wrap counted as %d sequence gaps", e.Stats().SequenceGaps)
	}
}

func TestEngine_RateChangeWhileStreaming(t *testing.T) {
	e, sink := newTestEngine()
	e.Command(CmdStartStream)
	e.Tick(1000)

	e.Command("~4")
	if e.State() != StateStreaming {
		t.Errorf("state = %s, rate change should not stop streaming", e.State())
	}

	// no sample due: the response goes out
	e.Tick(1001)
	if len(sink.results) != 1 || sink.results[0] != SampleRateAck(1000) {
		t.Fatalf("results = %q", sink.results)
	}

	// next deadline was computed at 250 Hz, later ones at 1000 Hz
	e.Tick(5000)
	if e.NextDeadline() != 6000 {
		t.Errorf("next deadline = %d, want 6000", e.NextDeadline())
	}
}

func TestEngine_ResponseDeferredBySample(t *testing.T) {
	e, sink := newTestEngine()
	e.Command(CmdStartStream)
	e.Tick(1000)
	e.Command(CmdVersion)

	// a sample is due, so this tick carries it and holds the response
	e.Tick(5000)
	if len(sink.results) != 0 {
		t.Fatalf("response emitted on a sample tick")
	}
	e.Tick(5001)
	if len(sink.results) != 1 {
		t.Errorf("response not emitted on the following tick")
	}
}

func TestEngine_DriftCompensation(t *testing.T) {
	e, _ := newTestEngine()
	e.Command(CmdStartStream)

	e.Tick(10_000)
	if e.NextDeadline() != 10_000+Interval250Hz {
		t.Fatalf("first deadline = %d", e.NextDeadline())
	}

	// 300us late: the following deadline is pulled in by the same amount
	e.Tick(14_300)
	if e.NextDeadline() != 18_000 {
		t.Errorf("deadline after late tick = %d, want 18000", e.NextDeadline())
	}
}

func TestEngine_CancelPending(t *testing.T) {
	e, sink := newTestEngine()
	e.Command(CmdVersion)
	e.CancelPending()

	if e.State() != StateIdle {
		t.Errorf("state = %s, want IDLE", e.State())
	}
	e.Tick(1)
	if len(sink.results) != 0 {
		t.Errorf("cancelled response emitted: %q", sink.results)
	}
}

// ============================================================
// Sink Tests
// ============================================================

func TestEngine_NilSinkDrops(t *testing.T) {
	e := NewEngine(nil, nil)
	e.Command(CmdStartStream)
	e.Tick(1)
	e.Command(CmdVersion)
	e.Tick(2)

	if e.Stats().Samples != 1 || e.Stats().CommandResults != 1 {
		t.Errorf("stats = %+v", e.Stats().Snapshot())
	}
}

func TestSinkFuncs_PartialCallbacks(t *testing.T) {
	var results []string
	e := NewEngine(nil, SinkFuncs{
		CommandResult: func(text string) { results = append(results, text) },
	})
	e.Command(CmdStartStream)
	e.Tick(1)
	e.Command(CmdVersion)
	e.Tick(2)

	if len(results) != 1 || results[0] != FirmwareVersion {
		t.Errorf("results = %q", results)
	}
}

func TestEngine_LongResponseReassembled(t *testing.T) {
	long := strings.Repeat("abcdefghij", 7)
	src := &scriptedSource{answered: false}
	sink := &recordingSink{}
	e := NewEngine(src, sink)

	for _, w := range EncodeCommandWindows(long) {
		e.dispatch(w)
	}
	if len(sink.results) != 1 || sink.results[0] != long {
		t.Errorf("results = %q", sink.results)
	}
	if e.Stats().CommandFragments != 2 || e.Stats().CommandResults != 1 {
		t.Errorf("fragments = %d, results = %d", e.Stats().CommandFragments, e.Stats().CommandResults)
	}
}

// ============================================================
// Unpaced Source Tests
// ============================================================

// scriptedSource replays a fixed list of windows, one per tick
type scriptedSource struct {
	windows   [][]byte
	forwarded []string
	answered  bool
}

func (s *scriptedSource) Paced() bool { return false }

func (s *scriptedSource) Window(uint64, uint8) []byte {
	if len(s.windows) == 0 {
		return nil
	}
	w := s.windows[0]
	s.windows = s.windows[1:]
	return w
}

func (s *scriptedSource) GainWindow() []byte { return nil }

func (s *scriptedSource) Forward(command string) bool {
	s.forwarded = append(s.forwarded, command)
	return s.answered
}

func TestEngine_UnpacedSource(t *testing.T) {
	src := &scriptedSource{answered: true}
	src.windows = append(src.windows,
		EncodeSampleWindow(9, 100),
		EncodeGainWindow([]uint8{1, 2, 4, 6}),
		make([]byte, WindowSize),
	)
	src.windows = append(src.windows, EncodeCommandWindows("Board reply")...)

	sink := &recordingSink{}
	e := NewEngine(src, sink)
	e.Command(CmdVersion)

	if len(src.forwarded) != 1 || src.forwarded[0] != CmdVersion {
		t.Fatalf("forwarded = %q", src.forwarded)
	}
	if _, ok := e.PendingResponse(); ok {
		t.Fatal("board-answered command should not synthesize a response")
	}

	for now := uint64(1); now <= 10; now++ {
		e.Tick(now)
	}

	if len(sink.samples) != 0 {
		t.Errorf("samples emitted while not streaming: %v", sink.samples)
	}
	if e.Stats().Samples != 1 {
		t.Errorf("sample windows counted = %d, want 1", e.Stats().Samples)
	}
	if len(sink.gains) != 1 || len(sink.gains[0]) != 4 {
		t.Errorf("gains = %v", sink.gains)
	}
	if len(sink.results) != 1 || sink.results[0] != "Board reply" {
		t.Errorf("results = %q", sink.results)
	}
	if e.State() != StateIdle {
		t.Errorf("state = %s, want IDLE after board reply", e.State())
	}
	if e.Stats().UnknownWindows != 1 {
		t.Errorf("unknown windows = %d, want 1", e.Stats().UnknownWindows)
	}
}

func TestEngine_UnpacedStreamingForwardsStart(t *testing.T) {
	src := &scriptedSource{answered: true}
	e := NewEngine(src, nil)
	e.Command(CmdStartStream)
	e.Tick(1)

	if len(src.forwarded) != 1 || src.forwarded[0] != CmdStartStream {
		t.Errorf("forwarded = %q", src.forwarded)
	}
	if !e.Streaming() || !e.GainsConfigured() {
		t.Error("engine should stream and mark gains handled by the board")
	}
}

func TestEngine_UnpacedSamplesFollowStreamState(t *testing.T) {
	src := &scriptedSource{answered: true}
	sink := &recordingSink{}
	e := NewEngine(src, sink)

	// already streaming before any "b"
	src.windows = append(src.windows, EncodeSampleWindow(1, 10))
	e.Tick(1)
	if len(sink.samples) != 0 {
		t.Fatalf("sample emitted before start: %v", sink.samples)
	}

	e.Command(CmdStartStream)
	src.windows = append(src.windows, EncodeSampleWindow(2, 20))
	e.Tick(2)
	if len(sink.samples) != 1 || sink.samples[0].Sequence() != 2 {
		t.Fatalf("samples while streaming = %v", sink.samples)
	}

	// windows the board queued before it saw "s"
	e.Command(CmdStopStream)
	for seq := uint8(3); seq < 8; seq++ {
		src.windows = append(src.windows, EncodeSampleWindow(seq, 30))
	}
	src.windows = append(src.windows, EncodeGainWindow([]uint8{8, 8}))
	src.windows = append(src.windows, EncodeCommandWindows("late reply")...)
	for now := uint64(3); now <= 12; now++ {
		e.Tick(now)
	}

	if e.State() != StateIdle {
		t.Errorf("state = %s, want IDLE", e.State())
	}
	if len(sink.samples) != 1 {
		t.Errorf("OnData fired %d times after stop", len(sink.samples)-1)
	}
	if len(sink.gains) != 1 || len(sink.results) != 1 {
		t.Errorf("gains = %v, results = %q; non-sample windows should still flow", sink.gains, sink.results)
	}
	if e.Stats().Samples != 7 {
		t.Errorf("sample windows counted = %d, want 7", e.Stats().Samples)
	}
}
