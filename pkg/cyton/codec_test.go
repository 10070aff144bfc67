// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cyton

import (
	"bytes"
	"testing"
)

// ============================================================
// Gain Table Tests
// ============================================================

func TestGainFor_AllCodes(t *testing.T) {
	want := []uint8{1, 2, 4, 6, 8, 12, 24}
	for code := 0; code <= 255; code++ {
		got := GainFor(uint8(code))
		if code < len(want) {
			if got != want[code] {
				t.Errorf("GainFor(%d) = %d, want %d", code, got, want[code])
			}
		} else if got != MaxGain {
			t.Errorf("GainFor(%d) = %d, want clamp to %d", code, got, MaxGain)
		}
	}
}

func TestGainCode_Reverse(t *testing.T) {
	for code := uint8(0); code < 7; code++ {
		got, ok := GainCode(GainFor(code))
		if !ok || got != code {
			t.Errorf("GainCode(GainFor(%d)) = %d, %v", code, got, ok)
		}
	}
	if _, ok := GainCode(3); ok {
		t.Error("GainCode(3) should not resolve")
	}
}

// ============================================================
// Classification Tests
// ============================================================

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		window []byte
		want   Kind
	}{
		{"empty", nil, KindUnknown},
		{"sample type C0", []byte{0xC0, 0x01}, KindSample},
		{"sample type C5", []byte{0xC5}, KindSample},
		{"gain report", []byte{MarkerGain, MarkerGain, 0x01, 0x06}, KindGainReport},
		{"gain marker then other byte", []byte{MarkerGain, 0x04}, KindUnknown},
		{"lone gain marker", []byte{MarkerGain}, KindUnknown},
		{"multi fragment", []byte{MarkerMulti, 'o', 'k'}, KindCommandFragment},
		{"last fragment", []byte{MarkerLast, 'o', 'k', 0x00}, KindCommandFinal},
		{"begin byte is not a sample", []byte{BeginByte, 0x00}, KindUnknown},
		{"padding", []byte{0x00, 0x00, 0x00}, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.window); got != tt.want {
				t.Errorf("Classify(% X) = %s, want %s", tt.window, got, tt.want)
			}
		})
	}
}

// ============================================================
// Sample Decoding Tests
// ============================================================

func TestDecodeSample_RoundTrip(t *testing.T) {
	window := EncodeSampleWindow(42, -12345)
	if len(window) != WindowSize {
		t.Fatalf("window length = %d, want %d", len(window), WindowSize)
	}
	if Classify(window) != KindSample {
		t.Fatalf("encoded window classified as %s", Classify(window))
	}

	frame := DecodeSample(window)
	if len(frame) != len(window)+1 {
		t.Errorf("frame length = %d, want %d", len(frame), len(window)+1)
	}
	if len(frame) != SampleSize || SampleSize != 33 {
		t.Errorf("frame length = %d, SampleSize = %d, want 33", len(frame), SampleSize)
	}
	if frame[0] != BeginByte {
		t.Errorf("frame[0] = 0x%02X, want BEGIN", frame[0])
	}
	if frame.TypeByte() != window[0] {
		t.Errorf("type byte = 0x%02X, want 0x%02X", frame.TypeByte(), window[0])
	}
	if frame.Sequence() != 42 {
		t.Errorf("sequence = %d, want 42", frame.Sequence())
	}
	if !bytes.Equal(frame[1:len(frame)-1], window[1:]) {
		t.Error("body bytes changed during re-framing")
	}
}

func TestDecodeSample_Short(t *testing.T) {
	if DecodeSample(nil) != nil {
		t.Error("empty window should decode to nil")
	}

	frame := DecodeSample([]byte{0xC1})
	if !bytes.Equal(frame, []byte{BeginByte, 0xC1}) {
		t.Errorf("one-byte window decoded to % X", []byte(frame))
	}
}

func TestFramedSample_Channels(t *testing.T) {
	tests := []struct {
		name  string
		value int32
	}{
		{"zero", 0},
		{"positive", 0x123456},
		{"negative", -1},
		{"min 24-bit", -(1 << 23)},
		{"max 24-bit", 1<<23 - 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := DecodeSample(EncodeSampleWindow(0, tt.value))
			channels := frame.Channels()
			if len(channels) != NumChannels {
				t.Fatalf("got %d channels, want %d", len(channels), NumChannels)
			}
			for i, v := range channels {
				if v != tt.value {
					t.Errorf("channel %d = %d, want %d", i, v, tt.value)
				}
			}
		})
	}
}

func TestEncodeSampleWindow_BytePlanes(t *testing.T) {
	window := EncodeSampleWindow(7, 0x0A0B0C)
	for ch := 0; ch < NumChannels; ch++ {
		off := channelOffset + ch*BytesPerChannel
		got := window[off : off+BytesPerChannel]
		if !bytes.Equal(got, []byte{0x0A, 0x0B, 0x0C}) {
			t.Errorf("channel %d bytes = % X", ch, got)
		}
	}
	aux := channelOffset + ChannelBytes
	if aux+AuxBytes != WindowSize {
		t.Fatalf("aux bytes end at %d, window is %d", aux+AuxBytes, WindowSize)
	}
	for i := aux; i < aux+AuxBytes; i++ {
		if window[i] != 0 {
			t.Errorf("aux byte %d = 0x%02X, want 0", i, window[i])
		}
	}
}

func TestMicrovolts(t *testing.T) {
	full := Microvolts(1<<23-1, 1)
	if full < 4499999 || full > 4500001 {
		t.Errorf("full scale at gain 1 = %f uV, want 4.5V", full)
	}
	if Microvolts(1000, 24) >= Microvolts(1000, 1) {
		t.Error("higher gain should shrink the microvolt value")
	}
	if Microvolts(1000, 0) != Microvolts(1000, MaxGain) {
		t.Error("zero gain should fall back to MaxGain")
	}
}

// ============================================================
// Gain Report Decoding Tests
// ============================================================

func TestDecodeGainReport(t *testing.T) {
	tests := []struct {
		name   string
		window []byte
		want   GainReport
	}{
		{
			name:   "too short",
			window: []byte{MarkerGain, MarkerGain, 1},
			want:   nil,
		},
		{
			name:   "four channels",
			window: []byte{MarkerGain, MarkerGain, 4, 0, 1, 2, 6},
			want:   GainReport{1, 2, 4, 24},
		},
		{
			name:   "out of range code clamps",
			window: []byte{MarkerGain, MarkerGain, 2, 9, 0xFF},
			want:   GainReport{24, 24},
		},
		{
			name:   "count past window truncates",
			window: []byte{MarkerGain, MarkerGain, 8, 3, 4},
			want:   GainReport{6, 8},
		},
		{
			name:   "count above channel limit",
			window: EncodeGainWindow([]uint8{1, 1, 1, 1, 1, 1, 1, 1}),
			want:   GainReport{1, 1, 1, 1, 1, 1, 1, 1},
		},
		{
			name:   "zero channels",
			window: []byte{MarkerGain, MarkerGain, 0, 5},
			want:   GainReport{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeGainReport(tt.window)
			if tt.want == nil {
				if got != nil {
					t.Errorf("got %v, want nil", got)
				}
				return
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodeGainReport_CountClamp(t *testing.T) {
	window := make([]byte, WindowSize)
	window[0], window[1], window[2] = MarkerGain, MarkerGain, 20
	if got := DecodeGainReport(window); len(got) != NumChannels {
		t.Errorf("decoded %d gains, want %d", len(got), NumChannels)
	}
}

func TestEncodeGainWindow_UnknownMultiplier(t *testing.T) {
	report := DecodeGainReport(EncodeGainWindow([]uint8{2, 3, 12}))
	if !bytes.Equal(report, GainReport{2, 24, 12}) {
		t.Errorf("got %v", report)
	}
}

// ============================================================
// Command Fragment Tests
// ============================================================

func TestDecodeCommandFragment(t *testing.T) {
	tests := []struct {
		name   string
		window []byte
		want   string
	}{
		{"marker only", []byte{MarkerLast}, ""},
		{"terminated", []byte{MarkerLast, 'o', 'k', 0x00, 'x', 'y'}, "ok"},
		{"unterminated", []byte{MarkerMulti, 'a', 'b', 'c'}, "abc"},
		{"immediate terminator", []byte{MarkerMulti, 0x00, 'a'}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecodeCommandFragment(tt.window); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEncodeCommandWindows(t *testing.T) {
	long := "OpenBCI V3 8-16 channel On Board ADS1299 Device ID: 0x3E"
	windows := EncodeCommandWindows(long)
	if len(windows) != 2 {
		t.Fatalf("got %d windows, want 2", len(windows))
	}
	if Classify(windows[0]) != KindCommandFragment || Classify(windows[1]) != KindCommandFinal {
		t.Errorf("kinds = %s, %s", Classify(windows[0]), Classify(windows[1]))
	}

	text := DecodeCommandFragment(windows[0]) + DecodeCommandFragment(windows[1])
	if text != long {
		t.Errorf("reassembled %q", text)
	}

	short := EncodeCommandWindows(FallbackResponse)
	if len(short) != 1 || Classify(short[0]) != KindCommandFinal {
		t.Fatalf("short response should be a single final window")
	}
}
