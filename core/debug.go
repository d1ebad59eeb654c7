package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// Event captures a state change for post-mortem analysis. Recording one never
// blocks, so it is the only diagnostic allowed from interrupt context.
type Event struct {
	Kind   uint8  // Evt* code
	OID    uint8  // object the event concerns (0 when not applicable)
	Clock  uint32 // system ticks at record time
	Value1 uint32 // kind-dependent
	Value2 uint32 // kind-dependent
}

// Event kinds
const (
	EvtMotorApply  = 1 // outputs written: v1=duty v2=bit0 forward, bit1 reverse
	EvtContract    = 2 // out-of-range speed rejected
	EvtReentrant   = 3 // nested critical section
	EvtEncoderEdge = 4 // edge serviced: v1=count
	EvtSlotEmpty   = 5 // interrupt fired before its slot was filled
	EvtShutdown    = 6 // all motors stopped
	EvtMotorExpire = 7 // max_duration elapsed without a new drive
)

const (
	EventRingSize = 32 // Keep last 32 events for post-mortem
)

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {} // No-op by default

	// debugEnabled controls whether debug output is active
	debugEnabled bool = false

	eventRing     [EventRingSize]Event
	eventRingHead uint8
	eventsEnabled = true

	// Async debug output channel
	debugChan chan string
)

// SetDebugWriter sets the platform-specific debug output function
// This allows platforms to redirect debug output to UART, USB, etc.
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled
}

// InitAsyncDebug starts the async debug output goroutine
// Call this from main() after SetDebugWriter
func InitAsyncDebug() {
	debugChan = make(chan string, 16)
	go debugOutputWorker()
}

func debugOutputWorker() {
	for msg := range debugChan {
		if debugPrintln != nil {
			debugPrintln(msg)
		}
	}
}

// DebugPrintln writes a debug message using the platform-specific writer.
// Messages from interrupt context are dropped; use RecordEvent there.
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil && !InInterrupt() {
		debugPrintln(msg)
	}
}

// DebugAsync queues a debug message for async output (non-blocking)
// Returns immediately even if channel is full (drops message)
func DebugAsync(msg string) {
	if debugChan != nil {
		select {
		case debugChan <- msg:
		default:
		}
	}
}

// RecordEvent appends to the event ring, overwriting the oldest entry.
func RecordEvent(kind, oid uint8, value1, value2 uint32) {
	if !eventsEnabled {
		return
	}
	state := disableInterrupts()
	idx := eventRingHead
	eventRing[idx] = Event{
		Kind:   kind,
		OID:    oid,
		Clock:  GetTime(),
		Value1: value1,
		Value2: value2,
	}
	eventRingHead = (idx + 1) % EventRingSize
	restoreInterrupts(state)
}

// Events returns recorded events, oldest first.
func Events() []Event {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	out := make([]Event, 0, EventRingSize)
	start := eventRingHead
	for i := uint8(0); i < EventRingSize; i++ {
		evt := eventRing[(start+i)%EventRingSize]
		if evt.Kind == 0 {
			continue
		}
		out = append(out, evt)
	}
	return out
}

func eventName(kind uint8) string {
	switch kind {
	case EvtMotorApply:
		return "MOTOR_APPLY"
	case EvtContract:
		return "CONTRACT!"
	case EvtReentrant:
		return "REENTRANT!"
	case EvtEncoderEdge:
		return "ENC_EDGE"
	case EvtSlotEmpty:
		return "SLOT_EMPTY"
	case EvtShutdown:
		return "SHUTDOWN"
	case EvtMotorExpire:
		return "MOTOR_EXPIRE"
	default:
		return "UNKNOWN"
	}
}

// DumpEventRing writes the ring through the debug writer (call on
// shutdown/error, never from an interrupt handler).
func DumpEventRing() {
	if debugPrintln == nil || InInterrupt() {
		return
	}

	debugPrintln("[EVENT] === Event Ring Dump ===")
	for _, evt := range Events() {
		debugPrintln("[EVENT] " + eventName(evt.Kind) +
			" oid=" + itoa(int(evt.OID)) +
			" clock=" + utoa(evt.Clock) +
			" v1=" + utoa(evt.Value1) +
			" v2=" + utoa(evt.Value2))
	}
	debugPrintln("[EVENT] === End Dump ===")
}

// ClearEventRing clears the event buffer
func ClearEventRing() {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	for i := range eventRing {
		eventRing[i] = Event{}
	}
	eventRingHead = 0
}
