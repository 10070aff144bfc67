// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cyton

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// CaptureRecord is one emitted packet in a capture file.
// Data holds the framed sample, the gain multipliers, or the response text.
type CaptureRecord struct {
	Kind   Kind   `cbor:"0,keyasint"`
	Micros uint64 `cbor:"1,keyasint"`
	Data   []byte `cbor:"2,keyasint"`
}

// CaptureWriter appends CBOR records to a stream
type CaptureWriter struct {
	enc *cbor.Encoder
}

// NewCaptureWriter creates a writer over w
func NewCaptureWriter(w io.Writer) *CaptureWriter {
	return &CaptureWriter{enc: cbor.NewEncoder(w)}
}

// Write encodes one record
func (c *CaptureWriter) Write(rec CaptureRecord) error {
	if err := c.enc.Encode(rec); err != nil {
		return fmt.Errorf("failed to encode capture record: %w", err)
	}
	return nil
}

// WriteSample records a framed sample
func (c *CaptureWriter) WriteSample(micros uint64, sample FramedSample) error {
	return c.Write(CaptureRecord{Kind: KindSample, Micros: micros, Data: sample})
}

// WriteGains records a gain report
func (c *CaptureWriter) WriteGains(micros uint64, report GainReport) error {
	return c.Write(CaptureRecord{Kind: KindGainReport, Micros: micros, Data: report})
}

// WriteCommandResult records a completed command response
func (c *CaptureWriter) WriteCommandResult(micros uint64, text string) error {
	return c.Write(CaptureRecord{Kind: KindCommandFinal, Micros: micros, Data: []byte(text)})
}

// CaptureReader decodes records written by CaptureWriter
type CaptureReader struct {
	dec *cbor.Decoder
}

// NewCaptureReader creates a reader over r
func NewCaptureReader(r io.Reader) *CaptureReader {
	return &CaptureReader{dec: cbor.NewDecoder(r)}
}

// Next returns the next record, or io.EOF at the end of the stream
func (c *CaptureReader) Next() (CaptureRecord, error) {
	var rec CaptureRecord
	if err := c.dec.Decode(&rec); err != nil {
		if err == io.EOF {
			return rec, io.EOF
		}
		return rec, fmt.Errorf("failed to decode capture record: %w", err)
	}
	return rec, nil
}

// FormatRecord formats a capture record for display
func FormatRecord(rec CaptureRecord, gains GainReport) string {
	prefix := fmt.Sprintf("@%d.%06ds ", rec.Micros/1_000_000, rec.Micros%1_000_000)
	switch rec.Kind {
	case KindSample:
		return prefix + FormatSample(FramedSample(rec.Data), gains)
	case KindGainReport:
		return prefix + FormatGainReport(GainReport(rec.Data))
	case KindCommandFinal:
		return prefix + FormatCommandResult(string(rec.Data))
	default:
		return prefix + fmt.Sprintf("%s\n", rec.Kind) + hexDump(rec.Data)
	}
}
