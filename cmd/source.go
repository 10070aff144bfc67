// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/cytonlink/cytonlink/pkg/bridge"
	"github.com/cytonlink/cytonlink/pkg/config"
	"github.com/cytonlink/cytonlink/pkg/cyton"
)

// boardSource is the engine input a board config selects
type boardSource struct {
	source cyton.SampleSource
	relay  *cyton.DeviceRelay
	conn   Connection
	info   string
}

// openSource builds the synthetic oscillator, or opens the board
// connection and starts a relay over it
func openSource(ctx context.Context, cfg config.BoardConfig) (*boardSource, error) {
	if cfg.Source == config.SourceSynthetic {
		return &boardSource{
			source: cyton.NewSyntheticOscillator(
				cyton.WithAmplitude(cfg.Amplitude),
				cyton.WithFrequency(cfg.Frequency),
				cyton.WithGains(cfg.GainMultipliers()),
			),
			info: fmt.Sprintf("Synthetic: %g Hz sine, amplitude %.0f counts", cfg.Frequency, cfg.Amplitude),
		}, nil
	}

	conn, info, err := OpenConnection(ctx, cfg)
	if err != nil {
		return nil, err
	}

	relay := cyton.NewDeviceRelay(conn, cfg.QueueSize)
	relay.Start(ctx)
	return &boardSource{source: relay, relay: relay, conn: conn, info: info}, nil
}

// linkDone is closed when the board connection fails; nil for synthetic
func (s *boardSource) linkDone() <-chan struct{} {
	if s.relay == nil {
		return nil
	}
	return s.relay.Done()
}

func (s *boardSource) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// drive ticks eng until ctx is done or the board connection is lost.
// Commands received on commands are applied between ticks. afterTick, if
// set, runs on the same goroutine after every tick.
func drive(ctx context.Context, src *boardSource, eng *cyton.Engine, commands <-chan string, afterTick func()) error {
	start := time.Now()
	ticker := time.NewTicker(bridge.DefaultPollInterval)
	defer ticker.Stop()

	done := src.linkDone()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-done:
			return fmt.Errorf("board connection lost: %w", src.relay.Err())
		case text := <-commands:
			eng.Command(text)
		case <-ticker.C:
		}
		eng.Tick(uint64(time.Since(start).Microseconds()))
		if afterTick != nil {
			afterTick()
		}
	}
}
