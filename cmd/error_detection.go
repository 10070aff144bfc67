// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/cytonlink/cytonlink/pkg/cyton"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

var errorDetectionCmd = &cobra.Command{
	Use:   "error_detection",
	Short: "Detect sequence gaps, dropped windows and railed channels",
	Long: `Stream from the board and watch the sample stream for problems.

This command detects:
  - Sequence gaps (samples lost between board and host)
  - Windows dropped because the host fell behind the board
  - Unknown windows (noise or a desynchronized byte stream)
  - Railed channels (ADC at full scale, usually a lead off)

By default, only problems are displayed. Use --show-all to display every
sample too.

Problems are highlighted as they happen, with periodic statistics summaries
displayed at configurable intervals.`,
	RunE: runErrorDetection,
}

func init() {
	rootCmd.AddCommand(errorDetectionCmd)
	errorDetectionCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all samples (not just problems)")
	errorDetectionCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	errorDetectionCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

// fullScale is the largest magnitude a 24-bit channel reports
const fullScale = 1<<23 - 1

// detection is one problem (or, with --show-all, one notable packet)
type detection struct {
	message string
	isError bool
}

// detector checks the packets an engine emits. All methods run on the
// engine goroutine.
type detector struct {
	lastSeq     uint8
	haveSeq     bool
	lastDropped uint64
	railed      [cyton.NumChannels]bool
	report      func(detection)
}

func newDetector(report func(detection)) *detector {
	return &detector{report: report}
}

func (d *detector) sample(s cyton.FramedSample) {
	seq := s.Sequence()
	if d.haveSeq {
		if expected := d.lastSeq + 1; seq != expected {
			d.report(detection{
				message: fmt.Sprintf("Sequence gap: expected %d, got %d (%d missed)", expected, seq, seq-expected),
				isError: true,
			})
		}
	}
	d.lastSeq = seq
	d.haveSeq = true

	// only transitions are reported
	for i, v := range s.Channels() {
		railed := v >= fullScale || v <= -fullScale-1
		if railed && !d.railed[i] {
			d.report(detection{
				message: fmt.Sprintf("Ch%d railed at %d counts (seq %d)", i+1, v, seq),
			})
		} else if !railed && d.railed[i] {
			d.report(detection{message: fmt.Sprintf("Ch%d recovered (seq %d)", i+1, seq)})
		}
		d.railed[i] = railed
	}
}

// dropped reports windows the relay dropped since the last call
func (d *detector) dropped(total uint64) {
	if total > d.lastDropped {
		d.report(detection{
			message: fmt.Sprintf("Host fell behind: %d windows dropped", total-d.lastDropped),
			isError: true,
		})
	}
	d.lastDropped = total
}

// unknown reports new unknown windows from the engine statistics
func (d *detector) unknown(before, after uint64) {
	if after > before {
		d.report(detection{
			message: fmt.Sprintf("%d unknown windows", after-before),
			isError: true,
		})
	}
}

func runErrorDetection(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := openSource(ctx, cfg.Board)
	if err != nil {
		return err
	}
	defer src.Close()

	if useTUI {
		return runTUIMode(ctx, src)
	}
	return runTextMode(ctx, src)
}

// detectionSession wires an engine, a detector and the start command
type detectionSession struct {
	eng         *cyton.Engine
	det         *detector
	src         *boardSource
	commands    chan string
	lastUnknown uint64
}

func newDetectionSession(src *boardSource, report func(detection), onSample func(cyton.FramedSample), onGains func(cyton.GainReport)) *detectionSession {
	s := &detectionSession{
		det:      newDetector(report),
		src:      src,
		commands: make(chan string, 1),
	}
	s.eng = cyton.NewEngine(src.source, cyton.SinkFuncs{
		Data: func(sample cyton.FramedSample) {
			s.det.sample(sample)
			if onSample != nil {
				onSample(sample)
			}
		},
		Gains: onGains,
		CommandResult: func(text string) {
			report(detection{message: fmt.Sprintf("Command response: %q", text)})
		},
	})
	s.commands <- cyton.CmdStartStream
	return s
}

// check runs the per-tick checks that need engine or relay state
func (s *detectionSession) check() {
	if s.src.relay != nil {
		s.det.dropped(s.src.relay.Dropped())
	}
	unknown := s.eng.Stats().UnknownWindows
	s.det.unknown(s.lastUnknown, unknown)
	s.lastUnknown = unknown
}

// printDetection prints a detection in highlighted format
func printDetection(d detection) {
	timestamp := time.Now().Format("15:04:05.000")
	if d.isError {
		fmt.Printf("[%s] \033[1;31mERROR:\033[0m %s\n", timestamp, d.message)
		return
	}
	fmt.Printf("[%s] \033[1;33mNOTICE:\033[0m %s\n", timestamp, d.message)
}

// runTUIMode runs error detection in TUI mode
func runTUIMode(ctx context.Context, src *boardSource) error {
	m := initialModel(src.info, statsInterval, showAll)
	p := tea.NewProgram(m)

	var latest cyton.FramedSample
	session := newDetectionSession(src,
		func(d detection) { p.Send(detectionMsg(d)) },
		func(sample cyton.FramedSample) {
			latest = sample
			if showAll {
				p.Send(detectionMsg{message: fmt.Sprintf("Sample seq=%d", sample.Sequence())})
			}
		},
		func(report cyton.GainReport) { p.Send(gainsMsg(report)) },
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lastSnapshot := time.Now()
	go func() {
		err := drive(ctx, src, session.eng, session.commands, func() {
			session.check()
			if time.Since(lastSnapshot) < 250*time.Millisecond {
				return
			}
			lastSnapshot = time.Now()
			msg := statsMsg{stats: session.eng.Stats().Snapshot(), sample: latest}
			if src.relay != nil {
				msg.dropped = src.relay.Dropped()
			}
			p.Send(msg)
		})
		if err != nil {
			p.Send(detectionMsg{message: err.Error(), isError: true})
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// runTextMode runs error detection with plain output
func runTextMode(ctx context.Context, src *boardSource) error {
	fmt.Printf("cytonlink - Error Detection Mode\n")
	fmt.Printf("Connection: %s\n", src.info)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All samples\n")
	} else {
		fmt.Printf("Mode: Problems only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	var gains cyton.GainReport
	session := newDetectionSession(src, printDetection,
		func(sample cyton.FramedSample) {
			if showAll {
				fmt.Print(cyton.FormatSample(sample, gains))
			}
		},
		func(report cyton.GainReport) {
			gains = report
			fmt.Printf("[SYNC] Gains: %s\n\n", report)
		},
	)

	interval := time.Duration(statsInterval) * time.Second
	lastStats := time.Now()
	err := drive(ctx, src, session.eng, session.commands, func() {
		session.check()
		if time.Since(lastStats) < interval {
			return
		}
		lastStats = time.Now()
		fmt.Println()
		fmt.Print(session.eng.Stats().String())
		fmt.Println()
	})

	fmt.Println()
	fmt.Print(session.eng.Stats().String())
	return err
}
