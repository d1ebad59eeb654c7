// Package pwmslice maps RP2040/RP2350 GPIOs to PWM slices.
package pwmslice

import (
	"errors"
	"strconv"
)

// Slices reachable through machine.PWM0..PWM7. RP2350B GPIO 32-47 sit on
// slices 8-11, which this firmware does not drive.
const (
	Slices = 8
	MaxPin = 32
)

// ErrNoSlice is returned for a GPIO with no usable PWM slice.
var ErrNoSlice = errors.New("no pwm slice")

// Of returns the slice of gpio. Each slice drives two consecutive pins,
// channel A on the even one; GPIO 16-31 reuse slices 0-7.
func Of(gpio uint32) (uint8, error) {
	if gpio >= MaxPin {
		return 0, errors.New("gpio" + strconv.Itoa(int(gpio)) + ": " + ErrNoSlice.Error())
	}
	return uint8((gpio >> 1) % Slices), nil
}
