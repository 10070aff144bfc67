// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cyton

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// DefaultRelayQueue is the number of windows a DeviceRelay buffers
const DefaultRelayQueue = 256

// DeviceRelay is a SampleSource backed by a physical board. A reader
// goroutine cuts the byte stream into WindowSize windows and queues them;
// the engine pops at most one per tick. Windows arriving while the queue
// is full are dropped and counted.
type DeviceRelay struct {
	rw      io.ReadWriter
	windows chan []byte
	dropped atomic.Uint64
	read    atomic.Uint64

	mu  sync.Mutex
	err error

	done chan struct{}
}

// NewDeviceRelay creates a relay over a board connection.
// queueSize <= 0 selects DefaultRelayQueue.
func NewDeviceRelay(rw io.ReadWriter, queueSize int) *DeviceRelay {
	if queueSize <= 0 {
		queueSize = DefaultRelayQueue
	}
	return &DeviceRelay{
		rw:      rw,
		windows: make(chan []byte, queueSize),
		done:    make(chan struct{}),
	}
}

// Start launches the reader goroutine. It exits on the first read error
// or once ctx is cancelled and the next read returns.
func (r *DeviceRelay) Start(ctx context.Context) {
	go r.readLoop(ctx)
}

func (r *DeviceRelay) readLoop(ctx context.Context) {
	defer close(r.done)

	for {
		if ctx.Err() != nil {
			return
		}

		window := make([]byte, WindowSize)
		if _, err := io.ReadFull(r.rw, window); err != nil {
			r.setErr(fmt.Errorf("relay read: %w", err))
			return
		}
		r.read.Add(1)

		select {
		case r.windows <- window:
		default:
			r.dropped.Add(1)
		}
	}
}

func (r *DeviceRelay) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err == nil {
		r.err = err
	}
}

// Err returns the error that stopped the reader or a failed forward
func (r *DeviceRelay) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Done is closed when the reader goroutine exits
func (r *DeviceRelay) Done() <-chan struct{} {
	return r.done
}

// Dropped returns how many windows were discarded on a full queue
func (r *DeviceRelay) Dropped() uint64 {
	return r.dropped.Load()
}

// WindowsRead returns how many windows were read from the board
func (r *DeviceRelay) WindowsRead() uint64 {
	return r.read.Load()
}

// Paced implements SampleSource. The board sets its own pace.
func (r *DeviceRelay) Paced() bool {
	return false
}

// Window implements SampleSource
func (r *DeviceRelay) Window(uint64, uint8) []byte {
	select {
	case w := <-r.windows:
		return w
	default:
		return nil
	}
}

// GainWindow implements SampleSource. Real boards report their own gains.
func (r *DeviceRelay) GainWindow() []byte {
	return nil
}

// Forward implements SampleSource by writing the command to the board.
// Write failures are kept for Err; the board is still assumed to own the
// answer so a caller-side timeout can give up on it.
func (r *DeviceRelay) Forward(command string) bool {
	if _, err := r.rw.Write([]byte(command)); err != nil {
		r.setErr(fmt.Errorf("relay forward %q: %w", command, err))
	}
	return true
}
