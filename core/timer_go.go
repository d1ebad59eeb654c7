//go:build !tinygo

package core

// systemTicks is advanced by SetTime only; host tests drive the clock.
var systemTicks uint32

func getSystemTicks() uint32 {
	return systemTicks
}

func setSystemTicks(ticks uint32) {
	systemTicks = ticks
}
