// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.bug.st/serial/enumerator"
)

// FTDI FT231X, the chip on the OpenBCI USB dongle
const (
	dongleVID = "0403"
	donglePID = "6015"
)

var portsAll bool

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports and find OpenBCI dongles",
	Long: `Enumerate the serial ports on this machine.

USB ports are shown with their vendor and product IDs. Ports whose IDs match
the OpenBCI USB dongle are marked; pass one of them to --port.

Exit codes:
  0 - At least one dongle found (or any port with --all)
  1 - No matching port
  2 - Enumeration error`,
	RunE: runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
	portsCmd.Flags().BoolVar(&portsAll, "all", false, "Succeed when any serial port exists")
}

func runPorts(cmd *cobra.Command, args []string) error {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Enumeration error: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("cytonlink - Serial Ports\n\n")

	dongles := 0
	for _, port := range ports {
		fmt.Printf("%s\n", port.Name)
		if !port.IsUSB {
			continue
		}
		fmt.Printf("  USB ID: %s:%s\n", port.VID, port.PID)
		if port.SerialNumber != "" {
			fmt.Printf("  Serial: %s\n", port.SerialNumber)
		}
		if port.Product != "" {
			fmt.Printf("  Product: %s\n", port.Product)
		}
		if isDongle(port.VID, port.PID) {
			dongles++
			fmt.Printf("  >>> OpenBCI dongle <<<\n")
		}
	}

	fmt.Printf("\n--- Port summary ---\n")
	fmt.Printf("Ports found: %d\n", len(ports))
	fmt.Printf("Dongles found: %d\n", dongles)

	if dongles == 0 && !(portsAll && len(ports) > 0) {
		fmt.Printf("No dongle found. Check that it is plugged in and the FTDI driver is loaded.\n")
		os.Exit(1)
	}
	return nil
}

func isDongle(vid, pid string) bool {
	return strings.EqualFold(vid, dongleVID) && strings.EqualFold(pid, donglePID)
}
