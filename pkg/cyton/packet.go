// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cyton

import "fmt"

// Kind identifies what a raw SPI window carries
type Kind int

// Window kinds
const (
	KindUnknown Kind = iota
	KindSample
	KindGainReport
	KindCommandFragment
	KindCommandFinal
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case KindSample:
		return "SAMPLE"
	case KindGainReport:
		return "GAIN_REPORT"
	case KindCommandFragment:
		return "COMMAND_FRAGMENT"
	case KindCommandFinal:
		return "COMMAND_FINAL"
	default:
		return "UNKNOWN"
	}
}

// FramedSample is a Cyton sample packet as sent to network clients:
// BEGIN, sequence number, 24 channel bytes, aux bytes, type byte.
type FramedSample []byte

// Sequence returns the sample sequence number
func (s FramedSample) Sequence() uint8 {
	if len(s) < 2 {
		return 0
	}
	return s[1]
}

// TypeByte returns the trailing packet type byte
func (s FramedSample) TypeByte() byte {
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1]
}

// Channel returns the sign-extended 24-bit value of channel i.
// ok is false when the frame is too short to hold the channel.
func (s FramedSample) Channel(i int) (value int32, ok bool) {
	off := channelOffset + i*BytesPerChannel
	if i < 0 || i >= NumChannels || off+BytesPerChannel > len(s) {
		return 0, false
	}
	raw := uint32(s[off])<<24 | uint32(s[off+1])<<16 | uint32(s[off+2])<<8
	return int32(raw) >> 8, true
}

// Channels returns every channel value present in the frame
func (s FramedSample) Channels() []int32 {
	values := make([]int32, 0, NumChannels)
	for i := 0; i < NumChannels; i++ {
		v, ok := s.Channel(i)
		if !ok {
			break
		}
		values = append(values, v)
	}
	return values
}

// Microvolts converts a raw channel count to microvolts at the given gain
func Microvolts(count int32, gain uint8) float64 {
	if gain == 0 {
		gain = MaxGain
	}
	scale := referenceVolts / float64(gain) / float64(1<<23-1) * 1e6
	return float64(count) * scale
}

// GainReport holds the per-channel gain multipliers announced by the board
type GainReport []uint8

// String formats the report as a list of multipliers
func (g GainReport) String() string {
	return fmt.Sprintf("%v", []uint8(g))
}
