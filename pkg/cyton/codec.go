// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cyton

// Classify inspects the header bytes of a raw window.
// Windows matching no marker are KindUnknown and are meant to be ignored.
func Classify(window []byte) Kind {
	if len(window) == 0 {
		return KindUnknown
	}

	switch {
	case window[0]>>4 == endNibble:
		return KindSample
	case len(window) >= 2 && window[0] == MarkerGain && window[1] == MarkerGain:
		return KindGainReport
	case window[0] == MarkerMulti:
		return KindCommandFragment
	case window[0] == MarkerLast:
		return KindCommandFinal
	}
	return KindUnknown
}

// DecodeSample re-frames a sample window: the leading type byte is
// replaced by BeginByte and appended at the end. The result is one byte
// longer than the window. Returns nil for an empty window.
func DecodeSample(window []byte) FramedSample {
	if len(window) < 1 {
		return nil
	}

	frame := make(FramedSample, len(window)+1)
	frame[0] = BeginByte
	copy(frame[1:], window[1:])
	frame[len(window)] = window[0]
	return frame
}

// DecodeGainReport reads the channel count from byte 2 and maps the gain
// codes that follow through the gain table. Decoding stops early when the
// count runs past the window or NumChannels. Returns nil for windows
// shorter than four bytes.
func DecodeGainReport(window []byte) GainReport {
	if len(window) < 4 {
		return nil
	}

	count := int(window[2])
	if count > NumChannels {
		count = NumChannels
	}

	report := make(GainReport, 0, count)
	for i := 3; i < 3+count && i < len(window); i++ {
		report = append(report, GainFor(window[i]))
	}
	return report
}

// DecodeCommandFragment returns the text carried after the marker byte,
// up to (not including) the first 0x00.
func DecodeCommandFragment(window []byte) string {
	if len(window) < 2 {
		return ""
	}

	text := make([]byte, 0, len(window)-1)
	for _, b := range window[1:] {
		if b == 0x00 {
			break
		}
		text = append(text, b)
	}
	return string(text)
}

// EncodeSampleWindow builds a raw sample window: type byte, sequence
// number, then value written big-endian into each 3-byte channel slot,
// zero padded to WindowSize.
func EncodeSampleWindow(seq uint8, value int32) []byte {
	window := make([]byte, WindowSize)
	window[0] = EndByte
	window[1] = seq
	for i := 0; i < ChannelBytes; i++ {
		shift := uint(8 * (BytesPerChannel - 1 - i%BytesPerChannel))
		window[channelOffset+i] = byte(uint32(value) >> shift)
	}
	return window
}

// EncodeGainWindow builds a raw gain report window for the given multipliers.
// Multipliers missing from the gain table are sent as the highest code.
func EncodeGainWindow(gains []uint8) []byte {
	if len(gains) > NumChannels {
		gains = gains[:NumChannels]
	}

	window := make([]byte, WindowSize)
	window[0] = MarkerGain
	window[1] = MarkerGain
	window[2] = uint8(len(gains))
	for i, g := range gains {
		code, ok := GainCode(g)
		if !ok {
			code = uint8(len(gainTable) - 1)
		}
		window[3+i] = code
	}
	return window
}

// EncodeCommandWindows splits response text into MULTI fragments followed
// by one LAST fragment, each zero terminated when shorter than a window.
func EncodeCommandWindows(text string) [][]byte {
	data := []byte(text)

	var windows [][]byte
	for {
		window := make([]byte, WindowSize)
		n := copy(window[1:], data)
		data = data[n:]
		if len(data) == 0 {
			window[0] = MarkerLast
			return append(windows, window)
		}
		window[0] = MarkerMulti
		windows = append(windows, window)
	}
}
