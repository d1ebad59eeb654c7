package core

import "sync/atomic"

// Shared is a single slot reachable from both the main loop and an interrupt
// handler. Every access goes through With, which masks interrupts for the
// duration of the callback. The slot is filled once, before the interrupt
// that uses it is enabled.
//
// The zero value is an empty slot ready for use.
type Shared[T any] struct {
	val  *T
	held uint32 // atomic bool, set while a With callback runs
}

// Put stores v in the slot. A slot can be filled only once.
func (s *Shared[T]) Put(v *T) error {
	if v == nil {
		return newError(ErrSlotEmpty, "shared_put", "nil value", nil)
	}
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if s.val != nil {
		return ErrSlotFilled
	}
	s.val = v
	return nil
}

// Filled reports whether Put has succeeded on this slot.
func (s *Shared[T]) Filled() bool {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	return s.val != nil
}

// With runs fn on the slot's value inside a critical section.
//
// fn must be short and must not call With on the same slot: a nested
// acquisition panics with ErrReentrant. An empty slot returns ErrSlotEmpty
// without calling fn.
func (s *Shared[T]) With(fn func(v *T)) error {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	// With interrupts masked nobody else can hold the slot, so a set flag
	// means this context already owns it.
	if !atomic.CompareAndSwapUint32(&s.held, 0, 1) {
		RecordEvent(EvtReentrant, 0, 0, 0)
		panic(ErrReentrant)
	}
	defer atomic.StoreUint32(&s.held, 0)

	if s.val == nil {
		return ErrSlotEmpty
	}
	fn(s.val)
	return nil
}
