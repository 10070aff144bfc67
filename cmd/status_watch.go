// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var statusWatchCmd = &cobra.Command{
	Use:   "status_watch [ws-url]",
	Short: "Print events from a running bridge's status websocket",
	Long: `Connect to the status websocket of "cytonlink serve" and print each event.

The first message is the board description; stream, gains and command events
follow as they happen. The URL defaults to ws://localhost:8081/.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatusWatch,
}

func init() {
	rootCmd.AddCommand(statusWatchCmd)
}

func runStatusWatch(cmd *cobra.Command, args []string) error {
	url := "ws://localhost:8081/"
	if len(args) == 1 {
		url = args[0]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	fmt.Printf("cytonlink - Status Watch\n")
	fmt.Printf("Connection: %s\n", url)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("status connection closed: %w", err)
		}
		fmt.Println(formatStatusMessage(data))
	}
}

// formatStatusMessage labels a status message with its event name
func formatStatusMessage(data []byte) string {
	timestamp := mutedStyle.Render(time.Now().Format("15:04:05.000"))

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Sprintf("%s %s", timestamp, data)
	}

	event, ok := fields["event"].(string)
	if !ok {
		event = "board"
	}
	return fmt.Sprintf("%s %s %s", timestamp, labelStyle.Render(event), data)
}
