package core

// TimerFreq is the scheduler tick rate. Targets feed SetTime from the 1 MHz
// microsecond timer and publish the same value as CLOCK_FREQ.
const TimerFreq = 1000000

// GetTime returns the current system time in timer ticks
func GetTime() uint32 {
	return getSystemTicks()
}

// SetTime sets the current system time (for testing/hardware integration)
func SetTime(ticks uint32) {
	setSystemTicks(ticks)
}

// GetUptime returns uptime in timer ticks. Only the low word is tracked;
// targets with a 64-bit counter report it directly.
func GetUptime() uint64 {
	return uint64(GetTime())
}

// TimerFromUS converts microseconds to timer ticks
func TimerFromUS(us uint32) uint32 {
	return uint32(uint64(us) * TimerFreq / 1000000)
}

// TimerToUS converts timer ticks to microseconds
func TimerToUS(ticks uint32) uint32 {
	return uint32(uint64(ticks) * 1000000 / TimerFreq)
}

// TimerFromMS converts milliseconds to timer ticks
func TimerFromMS(ms uint32) uint32 {
	return uint32(uint64(ms) * TimerFreq / 1000)
}

// TimeReached reports whether now is at or past deadline, across wraparound
// of the 32-bit clock.
func TimeReached(now, deadline uint32) bool {
	return int32(now-deadline) >= 0
}

// ProcessTimers processes scheduled timers
func ProcessTimers() {
	currentTime = GetTime()
	TimerDispatch()
}
