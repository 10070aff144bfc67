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
	pingTimeout int
	pingCount   int
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Test the command path by querying the firmware version",
	Long: `Send the version command to the board and wait for its response.

This command tests the full command round trip: the command is written to the
board and the response is reassembled from its command-response windows.

This is useful for verifying:
  - The connection is established and writable
  - HTTP Basic authentication works (WebSocket)
  - The board answers commands
  - Response latency

Exit codes:
  0 - All pings answered
  1 - One or more pings failed or timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingTimeout, "timeout", 5, "Timeout in seconds for each ping")
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
}

func runPing(cmd *cobra.Command, args []string) error {
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

	fmt.Printf("cytonlink - Ping Test\n")
	fmt.Printf("Connection: %s\n", src.info)
	fmt.Printf("Timeout: %d seconds per ping\n", pingTimeout)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	responses := make(chan string, 1)
	eng := cyton.NewEngine(src.source, cyton.SinkFuncs{
		CommandResult: func(text string) {
			select {
			case responses <- text:
			default:
			}
		},
	})

	commands := make(chan string)
	errChan := make(chan error, 1)
	go func() {
		errChan <- drive(ctx, src, eng, commands, nil)
	}()

	successCount := 0
	failCount := 0

	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		// drop a late answer to the previous ping
		select {
		case <-responses:
		default:
		}

		startTime := time.Now()
		select {
		case commands <- cyton.CmdVersion:
		case err := <-errChan:
			fmt.Printf("SEND FAILED: %v\n", err)
			os.Exit(2)
		}

		select {
		case text := <-responses:
			rtt := time.Since(startTime)
			fmt.Printf("%q, rtt=%v\n", text, rtt.Round(time.Microsecond))
			successCount++

		case err := <-errChan:
			fmt.Printf("READ FAILED: %v\n", err)
			os.Exit(2)

		case <-time.After(time.Duration(pingTimeout) * time.Second):
			fmt.Printf("TIMEOUT (no response in %ds)\n", pingTimeout)
			failCount++
		}

		if i < pingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d responses received, %.0f%% loss\n",
		pingCount, successCount, float64(failCount)/float64(pingCount)*100)

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}
