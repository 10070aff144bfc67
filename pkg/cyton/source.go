// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cyton

import "math"

// SampleSource supplies raw SPI windows to an Engine
type SampleSource interface {
	// Paced reports whether the engine schedules sample windows itself.
	Paced() bool

	// Window returns the next raw window. Paced sources are asked once per
	// due sample with the sequence number to use; unpaced sources are
	// polled on every tick and return nil when nothing has arrived.
	Window(nowMicros uint64, seq uint8) []byte

	// GainWindow returns a gain report window to announce when streaming
	// starts, or nil when the board announces gains itself.
	GainWindow() []byte

	// Forward hands command text to the board. It reports whether the
	// board answers with response windows of its own; when false the
	// engine synthesizes the response.
	Forward(command string) bool
}

// DemoGains are the gains a synthetic board announces
var DemoGains = []uint8{24, 24, 24, 24, 24, 24, 24, 24}

// SyntheticOscillator stands in for a board: every sample carries one
// sine wave value replicated across all channels.
type SyntheticOscillator struct {
	amplitude float64
	frequency float64
	gains     []uint8
}

// OscillatorOption configures a SyntheticOscillator
type OscillatorOption func(*SyntheticOscillator)

// WithAmplitude sets the peak value in ADC counts
func WithAmplitude(counts float64) OscillatorOption {
	return func(o *SyntheticOscillator) {
		if counts > 0 {
			o.amplitude = counts
		}
	}
}

// WithFrequency sets the sine frequency in Hz
func WithFrequency(hz float64) OscillatorOption {
	return func(o *SyntheticOscillator) {
		if hz > 0 {
			o.frequency = hz
		}
	}
}

// WithGains sets the gains announced on stream start
func WithGains(gains []uint8) OscillatorOption {
	return func(o *SyntheticOscillator) {
		if len(gains) > 0 {
			o.gains = append([]uint8(nil), gains...)
		}
	}
}

// NewSyntheticOscillator creates an oscillator at OscillatorFrequency
func NewSyntheticOscillator(opts ...OscillatorOption) *SyntheticOscillator {
	o := &SyntheticOscillator{
		amplitude: DefaultAmplitude,
		frequency: OscillatorFrequency,
		gains:     DemoGains,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Value returns the oscillator output at nowMicros, clamped to 24 bits
func (o *SyntheticOscillator) Value(nowMicros uint64) int32 {
	t := float64(nowMicros) / 1e6
	v := math.Round(o.amplitude * math.Sin(2*math.Pi*o.frequency*t))

	const max24 = 1<<23 - 1
	switch {
	case v > max24:
		v = max24
	case v < -max24-1:
		v = -max24 - 1
	}
	return int32(v)
}

// Paced implements SampleSource
func (o *SyntheticOscillator) Paced() bool {
	return true
}

// Window implements SampleSource
func (o *SyntheticOscillator) Window(nowMicros uint64, seq uint8) []byte {
	return EncodeSampleWindow(seq, o.Value(nowMicros))
}

// GainWindow implements SampleSource
func (o *SyntheticOscillator) GainWindow() []byte {
	return EncodeGainWindow(o.gains)
}

// Forward implements SampleSource. There is no board to answer.
func (o *SyntheticOscillator) Forward(string) bool {
	return false
}
