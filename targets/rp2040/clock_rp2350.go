//go:build rp2350

package main

const mcuName = "rp2350"

// TIMER0 raw (unlatched) registers. TIMER0 moved on the RP2350.
const (
	timerBase     = 0x400B0000
	timerRawHAddr = timerBase + 0x24
	timerRawLAddr = timerBase + 0x28
)
