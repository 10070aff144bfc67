// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package cyton implements the protocol engine that bridges a Cyton
// biosignal board to network clients.
//
// Raw 32-byte windows arrive from the board over SPI (or are synthesized
// when no board is attached). The codec classifies each window by its
// header bytes and re-frames samples into the 33-byte Cyton wire packet;
// the Engine interprets text commands, tracks sample rate and gain state,
// and paces sample emission with drift compensation. Everything in this
// package is single-threaded and driven by repeated calls to Engine.Tick.
package cyton

// Cyton wire framing
const (
	BeginByte  = 0xA0 // first byte of every framed sample
	EndByte    = 0xC0 // packet type byte, high nibble marks a sample
	SampleSize = channelOffset + ChannelBytes + AuxBytes + 1 // framed sample length, 33
)

// SPI window markers
const (
	MarkerLast  = 0x01 // final command response fragment
	MarkerMulti = 0x02 // intermediate command response fragment
	MarkerGain  = 0x03 // gain report (appears in bytes 0 and 1)
	WindowSize  = 32   // raw SPI window length
)

// Sample layout
const (
	NumChannels     = 8
	BytesPerChannel = 3
	ChannelBytes    = NumChannels * BytesPerChannel // 24
	AuxBytes        = 6 // accelerometer or analog data, passed through

	channelOffset = 2 // after type byte and sequence number
	endNibble     = EndByte >> 4
)

// Sample intervals in microseconds
const (
	Interval250Hz  = 4000
	Interval500Hz  = 2000
	Interval1000Hz = 1000

	DefaultInterval = Interval250Hz
)

// Board commands
const (
	CmdStartStream = "b"
	CmdStopStream  = "s"
	CmdVersion     = "V"
	CmdSampleRate  = "~"
)

// Synthesized responses
const (
	FirmwareVersion     = "v3.1.2"
	FallbackResponse    = "x"
	SampleRateFailure   = "Failure: invalid sample rate"
	sampleRateAckFormat = "Success: Sample rate is %dHz"
)

// Oscillator defaults
const (
	OscillatorFrequency = 15.0 // Hz
	DefaultAmplitude    = 100000.0
)

// ADS1299 scale: 4.5V reference over a 24-bit range
const referenceVolts = 4.5
