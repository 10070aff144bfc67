// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cyton

import (
	"fmt"
	"strings"
	"time"
)

// FormatWindow classifies a raw window and formats what it carries
func FormatWindow(window []byte, gains GainReport) string {
	kind := Classify(window)
	timestamp := time.Now().Format("15:04:05.000")
	header := fmt.Sprintf("[%s] %s len=%d\n", timestamp, kind, len(window))

	switch kind {
	case KindSample:
		return header + formatChannels(DecodeSample(window), gains)
	case KindGainReport:
		return header + fmt.Sprintf("  Gains: %s\n", DecodeGainReport(window))
	case KindCommandFragment, KindCommandFinal:
		return header + fmt.Sprintf("  Text: %q\n", DecodeCommandFragment(window))
	default:
		return header + hexDump(window)
	}
}

// FormatSample formats a framed sample with per-channel values
func FormatSample(sample FramedSample, gains GainReport) string {
	timestamp := time.Now().Format("15:04:05.000")
	result := fmt.Sprintf("[%s] SAMPLE seq=%d type=0x%02X len=%d\n",
		timestamp, sample.Sequence(), sample.TypeByte(), len(sample))
	return result + formatChannels(sample, gains)
}

// FormatGainReport formats a gain report
func FormatGainReport(report GainReport) string {
	timestamp := time.Now().Format("15:04:05.000")
	return fmt.Sprintf("[%s] GAIN_REPORT channels=%d\n  Gains: %s\n", timestamp, len(report), report)
}

// FormatCommandResult formats a completed command response
func FormatCommandResult(text string) string {
	timestamp := time.Now().Format("15:04:05.000")
	return fmt.Sprintf("[%s] COMMAND_RESULT\n  Text: %q\n", timestamp, text)
}

func formatChannels(sample FramedSample, gains GainReport) string {
	var b strings.Builder
	for i, count := range sample.Channels() {
		gain := uint8(MaxGain)
		if i < len(gains) {
			gain = gains[i]
		}
		fmt.Fprintf(&b, "  Ch%d: %8d (%9.2f uV, x%d)\n", i+1, count, Microvolts(count, gain), gain)
	}
	return b.String()
}

// hexDump is the fallback for windows nothing else understands
func hexDump(data []byte) string {
	result := "  Payload: "
	for i, b := range data {
		if i > 0 && i%16 == 0 {
			result += "\n           "
		}
		result += fmt.Sprintf("%02X ", b)
	}
	return result + "\n"
}
