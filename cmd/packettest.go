// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cytonlink/cytonlink/pkg/cyton"
)

var (
	packetTestTimeout int
)

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test the board by waiting for a framed sample",
	Long: `Start streaming and wait for one framed sample until timeout.

Windows that are not samples (gain reports, command responses, noise) are
counted and skipped.

Exit codes:
  0 - Sample received before timeout
  1 - Timeout reached without receiving a sample
  2 - Connection error`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout", 10, "Timeout in seconds to wait for a sample")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src, err := openSource(ctx, cfg.Board)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer src.Close()

	fmt.Printf("cytonlink - Packet Test\n")
	fmt.Printf("Connection: %s\n", src.info)
	fmt.Printf("Timeout: %d seconds\n", packetTestTimeout)
	fmt.Printf("Waiting for a framed sample...\n\n")

	sampleChan := make(chan cyton.FramedSample, 1)
	skipped := 0
	eng := cyton.NewEngine(src.source, cyton.SinkFuncs{
		Data: func(sample cyton.FramedSample) {
			select {
			case sampleChan <- sample:
			default:
			}
		},
		Gains:         func(cyton.GainReport) { skipped++ },
		CommandResult: func(string) { skipped++ },
	})

	commands := make(chan string, 1)
	commands <- cyton.CmdStartStream

	errChan := make(chan error, 1)
	go func() {
		errChan <- drive(ctx, src, eng, commands, nil)
	}()

	select {
	case sample := <-sampleChan:
		cancel()
		<-errChan
		if skipped > 0 {
			fmt.Printf("(skipped %d non-sample packets)\n", skipped)
		}
		fmt.Printf("SUCCESS: Received framed sample\n")
		fmt.Printf("  Sequence: %d\n", sample.Sequence())
		fmt.Printf("  Type: 0x%02X\n", sample.TypeByte())
		fmt.Printf("  Length: %d bytes\n", len(sample))
		fmt.Printf("  Ch1: %d counts\n", sample.Channels()[0])
		eng.Command(cyton.CmdStopStream)
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(packetTestTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No sample received within %d seconds\n", packetTestTimeout)
		os.Exit(1)
	}

	return nil
}
