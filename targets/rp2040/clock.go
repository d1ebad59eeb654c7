//go:build rp2040 || rp2350

package main

import (
	"runtime/volatile"
	"unsafe"

	"gomotor/core"
)

// clockFreq is the rate of the 64-bit microsecond timer on both chips
const clockFreq = 1000000

var (
	timerRawH = (*volatile.Register32)(unsafe.Pointer(uintptr(timerRawHAddr)))
	timerRawL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerRawLAddr)))
)

// InitClock publishes the timer rate. TinyGo's runtime has already started
// the tick generator; the first reads after boot are discarded.
func InitClock() {
	_ = timerRawL.Get()
	_ = timerRawL.Get()

	core.RegisterConstant("MCU", mcuName)
	core.RegisterConstant("CLOCK_FREQ", uint32(clockFreq))
}

// GetHardwareTime returns the low 32 bits of the microsecond counter
func GetHardwareTime() uint32 {
	return timerRawL.Get()
}

// GetHardwareUptime reads the full 64-bit counter, retrying across a
// rollover of the low word.
func GetHardwareUptime() uint64 {
	for {
		high1 := timerRawH.Get()
		low := timerRawL.Get()
		high2 := timerRawH.Get()
		if high1 == high2 {
			return (uint64(high1) << 32) | uint64(low)
		}
	}
}

// UpdateSystemTime copies hardware time into the core scheduler clock
func UpdateSystemTime() {
	core.SetTime(GetHardwareTime())
}
