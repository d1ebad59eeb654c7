// Package serial opens the USB CDC link to the motor firmware.
package serial

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

// Port is an open link to the MCU
type Port interface {
	io.ReadWriteCloser

	// Flush discards unread input and unsent output
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate. USB CDC ignores it but the driver wants one.
	Baud int

	// ReadTimeout bounds a single Read; 0 blocks
	ReadTimeout time.Duration
}

// DefaultConfig returns the settings the firmware expects on device
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        250000,
		ReadTimeout: 100 * time.Millisecond,
	}
}

// Validate checks cfg before a port is opened
func (c *Config) Validate() error {
	switch {
	case c == nil:
		return errors.New("serial: nil config")
	case c.Device == "":
		return errors.New("serial: no device")
	case c.Baud <= 0:
		return fmt.Errorf("serial: invalid baud %d", c.Baud)
	case c.ReadTimeout < 0:
		return fmt.Errorf("serial: negative read timeout %v", c.ReadTimeout)
	}
	return nil
}

// Open opens the port described by cfg
func Open(cfg *Config) (Port, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Device, err)
	}
	return port, nil
}
