//go:build rp2040 || rp2350

package main

import (
	"errors"
	"machine"
	"runtime/volatile"

	"gomotor/core"
)

// maxGPIO bounds the pin numbers accepted by the driver (RP2350B has 48)
const maxGPIO = 48

// RPGPIODriver implements core.GPIODriver on the RP2040/RP2350.
//
// TinyGo acknowledges the hardware edge status before calling the pin
// callback, so the driver keeps its own latch: the callback sets the pin's
// pending bit and then runs the core handler. ClearInterrupt clears the bit.
type RPGPIODriver struct {
	configured [maxGPIO]bool
	handlers   [maxGPIO]func()
	pending    [2]uint32 // bit per pin, written from interrupt context
}

// NewRPGPIODriver creates a new GPIO driver
func NewRPGPIODriver() *RPGPIODriver {
	return &RPGPIODriver{}
}

func (d *RPGPIODriver) pin(pin core.GPIOPin) (machine.Pin, error) {
	if pin >= maxGPIO {
		return machine.NoPin, errors.New("gpio" + itoa(int(pin)) + " out of range")
	}
	return machine.Pin(pin), nil
}

// ConfigureOutput configures a pin as a push-pull output at level initial.
// The level is set before the pin is switched to output so it never glitches.
func (d *RPGPIODriver) ConfigureOutput(pin core.GPIOPin, initial bool) error {
	p, err := d.pin(pin)
	if err != nil {
		return err
	}
	p.Set(initial)
	p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	p.Set(initial)
	d.configured[pin] = true
	return nil
}

// ConfigureInput configures a pin as an input with the given bias
func (d *RPGPIODriver) ConfigureInput(pin core.GPIOPin, pull core.Pull) error {
	p, err := d.pin(pin)
	if err != nil {
		return err
	}
	mode := machine.PinInput
	switch pull {
	case core.PullUp:
		mode = machine.PinInputPullup
	case core.PullDown:
		mode = machine.PinInputPulldown
	}
	p.Configure(machine.PinConfig{Mode: mode})
	d.configured[pin] = true
	return nil
}

// SetPin drives a configured output
func (d *RPGPIODriver) SetPin(pin core.GPIOPin, value bool) error {
	p, err := d.pin(pin)
	if err != nil {
		return err
	}
	if !d.configured[pin] {
		return errors.New("gpio" + itoa(int(pin)) + " not configured")
	}
	p.Set(value)
	return nil
}

// GetPin reads the current pin level
func (d *RPGPIODriver) GetPin(pin core.GPIOPin) (bool, error) {
	p, err := d.pin(pin)
	if err != nil {
		return false, err
	}
	return p.Get(), nil
}

// ListenEdge routes edge interrupts on pin to handler. EdgeNone disables
// the interrupt and drops any latched edge.
func (d *RPGPIODriver) ListenEdge(pin core.GPIOPin, edge core.Edge, handler func()) error {
	p, err := d.pin(pin)
	if err != nil {
		return err
	}

	var change machine.PinChange
	switch edge {
	case core.EdgeRising:
		change = machine.PinRising
	case core.EdgeFalling:
		change = machine.PinFalling
	case core.EdgeBoth:
		change = machine.PinToggle
	case core.EdgeNone:
		d.handlers[pin] = nil
		d.ClearInterrupt(pin)
		return p.SetInterrupt(0, nil)
	default:
		return errors.New("unknown edge " + edge.String())
	}

	d.handlers[pin] = handler
	return p.SetInterrupt(change, d.onEdge)
}

// onEdge runs in interrupt context
func (d *RPGPIODriver) onEdge(p machine.Pin) {
	n := uint32(p)
	if n >= maxGPIO {
		return
	}
	word := &d.pending[n/32]
	volatile.StoreUint32(word, volatile.LoadUint32(word)|1<<(n%32))
	if h := d.handlers[n]; h != nil {
		h()
	}
}

// InterruptPending reports whether an edge is latched on pin
func (d *RPGPIODriver) InterruptPending(pin core.GPIOPin) bool {
	if pin >= maxGPIO {
		return false
	}
	return volatile.LoadUint32(&d.pending[pin/32])&(1<<(pin%32)) != 0
}

// ClearInterrupt clears the latch for pin
func (d *RPGPIODriver) ClearInterrupt(pin core.GPIOPin) {
	if pin >= maxGPIO {
		return
	}
	word := &d.pending[pin/32]
	volatile.StoreUint32(word, volatile.LoadUint32(word)&^(1<<(pin%32)))
}
