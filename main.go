// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// cytonlink - OpenBCI Cyton board bridge
//
// Decodes the Cyton wire protocol from a real or synthetic board and
// streams framed samples to network consumers.

package main

import (
	"os"

	"github.com/cytonlink/cytonlink/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
