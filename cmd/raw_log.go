// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cytonlink/cytonlink/pkg/config"
	"github.com/cytonlink/cytonlink/pkg/cyton"
)

var (
	rawLogRecord  string
	rawLogNoStart bool
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display board packets in human-readable format",
	Long: `Start streaming and decode every packet the board emits.

Each framed sample is shown with its sequence number and per-channel values
in counts and microvolts. Gain reports and command responses are shown as
they arrive. With --record, every packet is also appended to a CBOR capture
file that the replay command can read back.

Supports synthetic, serial and WebSocket board sources.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().StringVar(&rawLogRecord, "record", "", "Append packets to a CBOR capture file")
	rawLogCmd.Flags().BoolVar(&rawLogNoStart, "no-start", false, "Do not send the start-stream command")
}

func runRawLog(cmd *cobra.Command, args []string) error {
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

	var capture *cyton.CaptureWriter
	if rawLogRecord != "" {
		file, err := os.Create(rawLogRecord)
		if err != nil {
			return fmt.Errorf("failed to create capture file: %w", err)
		}
		defer file.Close()
		capture = cyton.NewCaptureWriter(file)
	}

	fmt.Printf("cytonlink - Raw Packet Log\n")
	fmt.Printf("Connection: %s\n", src.info)
	if capture != nil {
		fmt.Printf("Recording: %s\n", rawLogRecord)
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	start := time.Now()
	micros := func() uint64 { return uint64(time.Since(start).Microseconds()) }
	record := func(write func(*cyton.CaptureWriter) error) {
		if capture == nil {
			return
		}
		if err := write(capture); err != nil {
			fmt.Fprintf(os.Stderr, "[ERROR] %v, recording stopped\n", err)
			capture = nil
		}
	}

	var gains cyton.GainReport
	eng := cyton.NewEngine(src.source, cyton.SinkFuncs{
		Data: func(sample cyton.FramedSample) {
			fmt.Print(cyton.FormatSample(sample, gains))
			record(func(c *cyton.CaptureWriter) error { return c.WriteSample(micros(), sample) })
		},
		Gains: func(report cyton.GainReport) {
			gains = report
			fmt.Print(cyton.FormatGainReport(report))
			record(func(c *cyton.CaptureWriter) error { return c.WriteGains(micros(), report) })
		},
		CommandResult: func(text string) {
			fmt.Print(cyton.FormatCommandResult(text))
			record(func(c *cyton.CaptureWriter) error { return c.WriteCommandResult(micros(), text) })
		},
	})

	commands := make(chan string, 2)
	if command, ok := config.SampleRateCommand(cfg.Board.SampleRate); ok {
		commands <- command
	}
	if !rawLogNoStart {
		commands <- cyton.CmdStartStream
	}

	err = drive(ctx, src, eng, commands, nil)
	if eng.Streaming() {
		eng.Command(cyton.CmdStopStream)
	}

	fmt.Println()
	fmt.Print(eng.Stats().String())
	return err
}
