//go:build rp2040

package main

const mcuName = "rp2040"

// TIMER raw (unlatched) registers
const (
	timerBase     = 0x40054000
	timerRawHAddr = timerBase + 0x24
	timerRawLAddr = timerBase + 0x28
)
