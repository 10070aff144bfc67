// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cyton

import (
	"fmt"
	"time"
)

// Statistics tracks window counts and sample continuity
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalWindows     uint64
	Samples          uint64
	GainReports      uint64
	CommandFragments uint64
	CommandResults   uint64
	UnknownWindows   uint64
	SequenceGaps     uint64
	MissedSamples    uint64

	// Rates (calculated)
	SampleRate  float64 // samples/sec
	UnknownRate float64 // unknown windows/sec

	lastSeq uint8
	haveSeq bool
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Record counts one classified window
func (s *Statistics) Record(kind Kind) {
	s.TotalWindows++

	switch kind {
	case KindSample:
		s.Samples++
	case KindGainReport:
		s.GainReports++
	case KindCommandFragment:
		s.CommandFragments++
	case KindCommandFinal:
		s.CommandResults++
	default:
		s.UnknownWindows++
	}

	s.LastUpdateTime = time.Now()
}

// RecordSequence checks a sample sequence number against the previous one
func (s *Statistics) RecordSequence(seq uint8) {
	if s.haveSeq {
		if expected := s.lastSeq + 1; seq != expected {
			s.SequenceGaps++
			s.MissedSamples += uint64(seq - expected)
		}
	}
	s.lastSeq = seq
	s.haveSeq = true
}

// ResetSequence forgets the last sequence number (new stream)
func (s *Statistics) ResetSequence() {
	s.haveSeq = false
}

// CalculateRates calculates sample and unknown window rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.SampleRate = float64(s.Samples) / elapsed
		s.UnknownRate = float64(s.UnknownWindows) / elapsed
	}
}

// Snapshot returns a copy safe to hand to another goroutine
func (s *Statistics) Snapshot() Statistics {
	return *s
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var samplePercent, unknownPercent float64
	if s.TotalWindows > 0 {
		samplePercent = float64(s.Samples) * 100.0 / float64(s.TotalWindows)
		unknownPercent = float64(s.UnknownWindows) * 100.0 / float64(s.TotalWindows)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Windows:   %8d\n", s.TotalWindows)
	result += fmt.Sprintf("Samples:         %8d (%.1f%%)\n", s.Samples, samplePercent)

	if s.GainReports > 0 {
		result += fmt.Sprintf("Gain Reports:    %8d\n", s.GainReports)
	}
	if s.CommandResults > 0 || s.CommandFragments > 0 {
		result += fmt.Sprintf("Command Results: %8d (%d fragments)\n", s.CommandResults, s.CommandFragments)
	}
	if s.UnknownWindows > 0 {
		result += fmt.Sprintf("Unknown Windows: %8d (%.1f%%)\n", s.UnknownWindows, unknownPercent)
	}
	if s.SequenceGaps > 0 {
		result += fmt.Sprintf("Sequence Gaps:   %8d (%d samples missed)\n", s.SequenceGaps, s.MissedSamples)
	}

	result += fmt.Sprintf("Sample Rate:     %8.1f samples/sec\n", s.SampleRate)
	result += fmt.Sprintf("Unknown Rate:    %8.1f windows/sec\n", s.UnknownRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
