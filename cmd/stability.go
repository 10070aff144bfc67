// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cytonlink/cytonlink/pkg/config"
	"github.com/cytonlink/cytonlink/pkg/cyton"
)

var stabilityCmd = &cobra.Command{
	Use:   "stability",
	Short: "Test raw connection stability",
	Long: `Listen on the board connection without sending anything.

Incoming bytes are cut into raw windows and classified, and the connection is
watched for errors for the test duration. Useful for debugging cabling, dongle
and WebSocket bridge issues.

Exit codes:
  0 - Test completed normally
  1 - Connection failed during the test
  2 - Connection error`,
	RunE: runStability,
}

var (
	stabilityDuration int
	stabilityVerbose  bool
)

func init() {
	rootCmd.AddCommand(stabilityCmd)
	stabilityCmd.Flags().IntVar(&stabilityDuration, "duration", 30, "Test duration in seconds")
	stabilityCmd.Flags().BoolVarP(&stabilityVerbose, "verbose", "v", false, "Print every window")
}

func runStability(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Board.Source == config.SourceSynthetic {
		return fmt.Errorf("stability needs a board connection (--port or --url)")
	}

	conn, connInfo, err := OpenConnection(context.Background(), cfg.Board)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Connection Stability Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Duration: %d seconds\n\n", stabilityDuration)

	windowChan := make(chan []byte, 100)
	errChan := make(chan error, 1)

	go func() {
		for {
			window := make([]byte, cyton.WindowSize)
			if _, err := io.ReadFull(conn, window); err != nil {
				errChan <- err
				return
			}
			windowChan <- window
		}
	}()

	stats := cyton.NewStatistics()
	startTime := time.Now()
	endTime := startTime.Add(time.Duration(stabilityDuration) * time.Second)

	printResults := func(result string) {
		fmt.Printf("\n--- Test Results ---\n")
		fmt.Printf("Duration: %v\n", time.Since(startTime).Round(time.Millisecond))
		fmt.Print(stats.String())
		fmt.Printf("Result: %s\n", result)
	}

	fmt.Printf("Listening for data...\n\n")

	heartbeat := time.NewTicker(time.Second)
	defer heartbeat.Stop()

	for time.Now().Before(endTime) {
		select {
		case window := <-windowChan:
			kind := cyton.Classify(window)
			stats.Record(kind)
			if kind == cyton.KindSample {
				stats.RecordSequence(cyton.DecodeSample(window).Sequence())
			}
			if stabilityVerbose {
				fmt.Print(cyton.FormatWindow(window, nil))
			} else if kind == cyton.KindUnknown {
				fmt.Printf("[%s] Unknown window: %x\n", time.Now().Format("15:04:05.000"), window)
			}

		case err := <-errChan:
			fmt.Printf("\n[%s] Connection error: %v\n", time.Now().Format("15:04:05.000"), err)
			printResults("FAILED (connection error)")
			os.Exit(1)

		case <-heartbeat.C:
			remaining := time.Until(endTime).Seconds()
			fmt.Printf("[%s] Still connected... %d windows (%.0fs remaining)\n",
				time.Now().Format("15:04:05.000"), stats.TotalWindows, remaining)
		}
	}

	printResults("PASSED (connection stable)")
	return nil
}
