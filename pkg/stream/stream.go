// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package stream delivers framed samples to network consumers over TCP,
// UDP and MQTT.
package stream

import (
	"encoding/json"
	"errors"
	"net"
	"strconv"

	"github.com/cytonlink/cytonlink/pkg/config"
	"github.com/cytonlink/cytonlink/pkg/cyton"
)

// Errors returned by senders
var (
	ErrNotConnected  = errors.New("not connected")
	ErrNotConfigured = errors.New("remote endpoint not configured")
	ErrShortWrite    = errors.New("short write")
)

// Delimiter terminates each packet when delimiting is enabled
const Delimiter = "\r\n"

// Sender delivers one encoded packet
type Sender interface {
	Send(data []byte) error
}

// Endpoint is a remote host and port
type Endpoint struct {
	IP   string `json:"ip"`
	Port int    `json:"port"`
}

// IsZero reports whether the endpoint is unset
func (e Endpoint) IsZero() bool {
	return e.IP == "" || e.Port == 0
}

// String returns host:port
func (e Endpoint) String() string {
	return net.JoinHostPort(e.IP, strconv.Itoa(e.Port))
}

// jsonSample is one sample in json output
type jsonSample struct {
	Seq      uint8     `json:"seq"`
	Channels []float64 `json:"channels"`
}

// Encode renders a framed sample for the wire. Raw output is the framed
// bytes as is; json output is one object with gain-scaled microvolts.
// Gains missing from the report scale at cyton.MaxGain.
func Encode(sample cyton.FramedSample, gains cyton.GainReport, output string, delimit bool) ([]byte, error) {
	var data []byte

	switch output {
	case config.OutputJSON:
		counts := sample.Channels()
		msg := jsonSample{Seq: sample.Sequence(), Channels: make([]float64, len(counts))}
		for i, c := range counts {
			gain := uint8(cyton.MaxGain)
			if i < len(gains) {
				gain = gains[i]
			}
			msg.Channels[i] = cyton.Microvolts(c, gain)
		}
		encoded, err := json.Marshal(msg)
		if err != nil {
			return nil, err
		}
		data = encoded
		if !delimit {
			data = append(data, '\n')
		}
	default:
		data = append(data, sample...)
	}

	if delimit {
		data = append(data, Delimiter...)
	}
	return data, nil
}
