// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"encoding/json"
	"sync"

	"github.com/denisbrodbeck/machineid"
	"github.com/google/uuid"

	"github.com/cytonlink/cytonlink/pkg/cyton"
)

// BoardType is reported in BoardInfo
const BoardType = "cyton"

// BoardInfo describes the attached board
type BoardInfo struct {
	BoardConnected bool   `json:"board_connected"`
	BoardType      string `json:"board_type"`
	NumChannels    int    `json:"num_channels"`
	Gains          []int  `json:"gains"`
	Streaming      bool   `json:"streaming"`
	SampleRate     int    `json:"sample_rate"`
	BridgeID       string `json:"bridge_id"`
}

// ID returns a stable identifier for this host. The raw machine id is
// hashed per application; hosts without one get a random id per process.
var ID = sync.OnceValue(func() string {
	id, err := machineid.ProtectedID("cytonlink")
	if err != nil {
		return uuid.NewString()
	}
	if len(id) > 16 {
		id = id[:16]
	}
	return id
})

// publishInfo snapshots loop state for BoardInfo readers
func (b *Bridge) publishInfo() {
	info := BoardInfo{
		BoardConnected: b.link != nil,
		BoardType:      BoardType,
		NumChannels:    cyton.NumChannels,
		Gains:          gainList(b.gains),
		Streaming:      b.engine.Streaming(),
		SampleRate:     b.engine.SampleRate(),
		BridgeID:       b.opts.BridgeID,
	}

	b.infoMu.Lock()
	b.info = info
	b.infoMu.Unlock()
}

// BoardInfo returns the latest board description
func (b *Bridge) BoardInfo() BoardInfo {
	b.infoMu.RLock()
	defer b.infoMu.RUnlock()
	return b.info
}

// BoardInfoJSON renders BoardInfo, used as the status welcome message
func (b *Bridge) BoardInfoJSON() string {
	data, err := json.Marshal(b.BoardInfo())
	if err != nil {
		return "{}"
	}
	return string(data)
}
