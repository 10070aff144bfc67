// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cytonlink/cytonlink/pkg/cyton"
)

var replayStats bool

var replayCmd = &cobra.Command{
	Use:   "replay <capture-file>",
	Short: "Decode a CBOR capture file",
	Long: `Print every packet recorded by "serve" or "raw_log --record".

Samples are scaled with the most recent gain report in the capture. With
--stats, only the summary is printed.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayStats, "stats", false, "Print only the statistics summary")
}

func runReplay(cmd *cobra.Command, args []string) error {
	file, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open capture: %w", err)
	}
	defer file.Close()

	reader := cyton.NewCaptureReader(file)
	stats := cyton.NewStatistics()
	var gains cyton.GainReport
	var last uint64

	for {
		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		stats.Record(rec.Kind)
		switch rec.Kind {
		case cyton.KindSample:
			stats.RecordSequence(cyton.FramedSample(rec.Data).Sequence())
		case cyton.KindGainReport:
			gains = cyton.GainReport(rec.Data)
		}
		last = rec.Micros

		if !replayStats {
			fmt.Print(cyton.FormatRecord(rec, gains))
		}
	}

	fmt.Printf("\nCapture span: %.3f s\n", float64(last)/1e6)
	fmt.Print(stats.String())
	return nil
}
