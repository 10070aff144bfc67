// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/cytonlink/cytonlink/pkg/config"
	"github.com/cytonlink/cytonlink/pkg/cyton"
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for commanding a Cyton board",
	Long: `Command a Cyton board via an interactive terminal UI.

Features:
  - Command presets (start/stop streaming, version, sample rate)
  - Free-form command entry
  - Live channel values in microvolts
  - Statistics tracking
  - Event log
  - Automatic reconnection on connection loss

Tab switches between the preset list and the command input. Arrow keys
navigate the preset list, Enter sends.

Supports synthetic, serial and WebSocket board sources.`,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
}

// engineState is the part of the engine the TUI displays
type engineState struct {
	streaming  bool
	sampleRate int
}

// connectionManager owns the engine session and its reconnection
type connectionManager struct {
	cfg      config.BoardConfig
	mu       sync.RWMutex
	src      *boardSource
	connInfo string
	p        *tea.Program
	commands chan string
	batch    chan controlDataMsg
}

func newConnectionManager(cfg config.BoardConfig, src *boardSource) *connectionManager {
	return &connectionManager{
		cfg:      cfg,
		src:      src,
		connInfo: src.info,
		commands: make(chan string, 8),
		batch:    make(chan controlDataMsg, 100),
	}
}

func (cm *connectionManager) getSource() *boardSource {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.src
}

func (cm *connectionManager) setSource(src *boardSource) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.src = src
	cm.connInfo = src.info
}

// send queues a command for the engine; false when the queue is full
func (cm *connectionManager) send(text string) bool {
	select {
	case cm.commands <- text:
		return true
	default:
		return false
	}
}

func runControl(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src, err := openSource(ctx, cfg.Board)
	if err != nil {
		return err
	}

	cm := newConnectionManager(cfg.Board, src)

	m := initialControlModel(cm, src.info)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	cm.p = p

	go cm.sessionLoop(ctx)
	go cm.batchLoop(ctx)

	_, err = p.Run()
	cancel()
	cm.getSource().Close()
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// sessionLoop runs engine sessions, reconnecting whenever the board is lost
func (cm *connectionManager) sessionLoop(ctx context.Context) {
	for {
		if !cm.runSession(ctx) {
			return
		}

		cm.p.Send(connectionLostMsg{})
		if !cm.reconnect(ctx) {
			return
		}
	}
}

// runSession drives one engine until the board is lost (true) or ctx is
// done (false)
func (cm *connectionManager) runSession(ctx context.Context) bool {
	src := cm.getSource()

	push := func(msg controlDataMsg) {
		select {
		case cm.batch <- msg:
		default:
		}
	}

	eng := cyton.NewEngine(src.source, cyton.SinkFuncs{
		Data: func(sample cyton.FramedSample) {
			push(controlDataMsg{sample: sample})
		},
		Gains: func(report cyton.GainReport) {
			push(controlDataMsg{gains: report})
		},
		CommandResult: func(text string) {
			push(controlDataMsg{response: text, hasResponse: true})
		},
	})

	last := engineState{}
	push(controlDataMsg{state: &engineState{sampleRate: eng.SampleRate()}})

	err := drive(ctx, src, eng, cm.commands, func() {
		current := engineState{streaming: eng.Streaming(), sampleRate: eng.SampleRate()}
		if current != last {
			last = current
			push(controlDataMsg{state: &current})
		}
	})
	return err != nil && ctx.Err() == nil
}

// batchLoop forwards engine output to the TUI at a fixed rate
func (cm *connectionManager) batchLoop(ctx context.Context) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var batch controlBatchMsg

		drainLoop:
			for {
				select {
				case msg := <-cm.batch:
					batch.messages = append(batch.messages, msg)
				default:
					break drainLoop
				}
			}

			if len(batch.messages) > 0 {
				cm.p.Send(batch)
			}
		}
	}
}

// reconnect reopens the board with exponential backoff.
// Returns false if shutdown was requested during reconnection.
func (cm *connectionManager) reconnect(ctx context.Context) bool {
	cm.getSource().Close()

	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}

		src, err := openSource(ctx, cm.cfg)
		if err == nil {
			cm.setSource(src)
			cm.p.Send(reconnectedMsg{connInfo: src.info})
			return true
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
