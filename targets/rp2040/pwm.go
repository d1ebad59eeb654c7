//go:build rp2040 || rp2350

package main

import (
	"errors"
	"machine"

	"gomotor/core"
	"gomotor/targets/rp2040/pwmslice"
)

// pwmPeripheral abstracts over TinyGo's unexported *pwmGroup type
type pwmPeripheral interface {
	Configure(config machine.PWMConfig) error
	Channel(pin machine.Pin) (uint8, error)
	Top() uint32
	Set(channel uint8, value uint32)
}

type pwmChannel struct {
	slice   uint8
	channel uint8
	top     uint32 // logical top from core.PWMConfig
}

// RP2040PWMDriver implements core.PWMDriver on the RP2040/RP2350 PWM
// slices. Both channels of a slice share one counter, so two pins on the same
// slice must ask for the same frequency.
type RP2040PWMDriver struct {
	periods  map[uint8]uint64 // slice -> period in ns
	channels map[core.PWMPin]pwmChannel
}

// NewRP2040PWMDriver creates a new PWM driver
func NewRP2040PWMDriver() *RP2040PWMDriver {
	return &RP2040PWMDriver{
		periods:  make(map[uint8]uint64),
		channels: make(map[core.PWMPin]pwmChannel),
	}
}

// ConfigureHardwarePWM starts the slice driving pin at cfg.FrequencyHz with
// the output low.
func (d *RP2040PWMDriver) ConfigureHardwarePWM(pin core.PWMPin, cfg core.PWMConfig) error {
	if cfg.FrequencyHz == 0 || cfg.Top == 0 {
		return errors.New("pwm frequency and top must be nonzero")
	}
	if cfg.Mode != core.PWMCountUp {
		return errors.New("pwm: only count-up mode is supported")
	}

	slice, err := pwmslice.Of(uint32(pin))
	if err != nil {
		return err
	}
	period := uint64(1e9) / uint64(cfg.FrequencyHz)
	if existing, ok := d.periods[slice]; ok && existing != period {
		return errors.New("pwm slice " + itoa(int(slice)) + " already runs at another frequency")
	}

	pwm := pwmSlice(slice)
	if err := pwm.Configure(machine.PWMConfig{Period: period}); err != nil {
		return err
	}
	ch, err := pwm.Channel(machine.Pin(pin))
	if err != nil {
		return err
	}
	pwm.Set(ch, 0)

	// Compare writes on this chip are double-buffered and land at the next
	// wrap whatever cfg.UpdateImmediate says; at 10 kHz that is 100us.
	d.periods[slice] = period
	d.channels[pin] = pwmChannel{slice: slice, channel: ch, top: cfg.Top}
	return nil
}

// SetDutyCycle scales value from 0..cfg.Top to the slice's hardware top
func (d *RP2040PWMDriver) SetDutyCycle(pin core.PWMPin, value core.PWMValue) error {
	c, ok := d.channels[pin]
	if !ok {
		return errors.New("pwm gpio" + itoa(int(pin)) + " not configured")
	}
	if uint32(value) > c.top {
		return errors.New("pwm duty above top")
	}
	pwm := pwmSlice(c.slice)
	duty := uint64(value) * uint64(pwm.Top()) / uint64(c.top)
	pwm.Set(c.channel, uint32(duty))
	return nil
}

// DisablePWM zeroes the channel and hands the pin back as a low GPIO output
func (d *RP2040PWMDriver) DisablePWM(pin core.PWMPin) error {
	c, ok := d.channels[pin]
	if !ok {
		return nil
	}
	pwmSlice(c.slice).Set(c.channel, 0)
	delete(d.channels, pin)

	inUse := false
	for _, other := range d.channels {
		if other.slice == c.slice {
			inUse = true
			break
		}
	}
	if !inUse {
		delete(d.periods, c.slice)
	}

	p := machine.Pin(pin)
	p.Low()
	p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	p.Low()
	return nil
}

// pwmSlice returns TinyGo's PWM0-PWM7 through the pwmPeripheral interface
func pwmSlice(slice uint8) pwmPeripheral {
	switch slice {
	case 0:
		return machine.PWM0
	case 1:
		return machine.PWM1
	case 2:
		return machine.PWM2
	case 3:
		return machine.PWM3
	case 4:
		return machine.PWM4
	case 5:
		return machine.PWM5
	case 6:
		return machine.PWM6
	default:
		return machine.PWM7
	}
}
