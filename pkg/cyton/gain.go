// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cyton

// gainTable maps ADS1299 PGA gain codes to multipliers
var gainTable = [...]uint8{1, 2, 4, 6, 8, 12, 24}

// MaxGain is the multiplier unknown codes resolve to
const MaxGain = 24

// GainFor returns the gain multiplier for a gain code.
// Codes past the end of the table clamp to MaxGain so gain is never ambiguous.
func GainFor(code uint8) uint8 {
	if int(code) >= len(gainTable) {
		return gainTable[len(gainTable)-1]
	}
	return gainTable[code]
}

// GainCode returns the code for a gain multiplier
func GainCode(multiplier uint8) (uint8, bool) {
	for code, g := range gainTable {
		if g == multiplier {
			return uint8(code), true
		}
	}
	return 0, false
}
