package core

// Timer is a scheduled callback. Handler runs from TimerDispatch with
// interrupts masked and returns SF_DONE or SF_RESCHEDULE (after moving
// WakeTime forward).
type Timer struct {
	WakeTime uint32
	Handler  func(*Timer) uint8
	Next     *Timer
}

const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

var (
	timerList   *Timer
	currentTime uint32
)

// ScheduleTimer adds a timer to the schedule. A timer already in the list is
// moved rather than linked twice.
func ScheduleTimer(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	unlinkTimer(t)
	insertTimer(t)
}

// CancelTimer removes t from the schedule. Cancelling an idle timer is a
// no-op.
func CancelTimer(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	unlinkTimer(t)
}

// TimerPending reports whether t is waiting in the schedule.
func TimerPending(t *Timer) bool {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	for cur := timerList; cur != nil; cur = cur.Next {
		if cur == t {
			return true
		}
	}
	return false
}

// wakesBefore orders wake times across the 32-bit wrap; deadlines are
// always within half the clock range of each other.
func wakesBefore(a, b uint32) bool {
	return int32(a-b) < 0
}

// insertTimer inserts a timer in sorted order by WakeTime. Equal times keep
// scheduling order.
func insertTimer(t *Timer) {
	if timerList == nil || wakesBefore(t.WakeTime, timerList.WakeTime) {
		t.Next = timerList
		timerList = t
		return
	}

	current := timerList
	for current.Next != nil && !wakesBefore(t.WakeTime, current.Next.WakeTime) {
		current = current.Next
	}

	t.Next = current.Next
	current.Next = t
}

func unlinkTimer(t *Timer) {
	if timerList == t {
		timerList = t.Next
		t.Next = nil
		return
	}
	for cur := timerList; cur != nil; cur = cur.Next {
		if cur.Next == t {
			cur.Next = t.Next
			break
		}
	}
	t.Next = nil
}

// TimerDispatch runs every timer whose WakeTime has passed
func TimerDispatch() {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	for timerList != nil && TimeReached(currentTime, timerList.WakeTime) {
		timer := timerList
		timerList = timer.Next
		timer.Next = nil

		if timer.Handler(timer) == SF_RESCHEDULE {
			insertTimer(timer)
		}
	}
}

// resetTimers drops every scheduled timer
func resetTimers() {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	for timerList != nil {
		t := timerList
		timerList = t.Next
		t.Next = nil
	}
}
