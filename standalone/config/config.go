// Package config loads the wiring and timing of the standalone demo.
package config

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// EncoderWiring names the two encoder channels. Pins use the firmware's
// "gpioN" names.
type EncoderWiring struct {
	PinA     string `json:"pin_a"`
	PinB     string `json:"pin_b"`
	Inverted bool   `json:"inverted"` // count up when B is high at A's rising edge
}

// MotorWiring names the H-bridge inputs
type MotorWiring struct {
	Forward string        `json:"forward_pin"`
	Reverse string        `json:"reverse_pin"`
	PWM     string        `json:"pwm_pin"`
	Encoder EncoderWiring `json:"encoder"`
}

// DemoConfig is the complete standalone configuration
type DemoConfig struct {
	Motor   MotorWiring `json:"motor"`
	Speed   float32     `json:"speed"`    // drive speed in [-1, 1]
	DriveMs uint32      `json:"drive_ms"` // how long each run lasts
	RestMs  uint32      `json:"rest_ms"`  // pause after logging the count
}

// LoadConfig parses a JSON configuration, fills in defaults and validates
// the result.
func LoadConfig(jsonData []byte) (*DemoConfig, error) {
	var cfg DemoConfig
	if err := json.Unmarshal(jsonData, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultDemoConfig is the wiring of the reference board: bridge on
// gpio2-4, encoder on gpio6/gpio7, 0.75 for 2 s then 5 s of rest.
func DefaultDemoConfig() *DemoConfig {
	cfg := &DemoConfig{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *DemoConfig) {
	m := &cfg.Motor
	if m.Forward == "" {
		m.Forward = "gpio2"
	}
	if m.Reverse == "" {
		m.Reverse = "gpio3"
	}
	if m.PWM == "" {
		m.PWM = "gpio4"
	}
	if m.Encoder.PinA == "" {
		m.Encoder.PinA = "gpio6"
	}
	if m.Encoder.PinB == "" {
		m.Encoder.PinB = "gpio7"
	}
	if cfg.Speed == 0 {
		cfg.Speed = 0.75
	}
	if cfg.DriveMs == 0 {
		cfg.DriveMs = 2000
	}
	if cfg.RestMs == 0 {
		cfg.RestMs = 5000
	}
}

// Validate checks the speed range and that every pin name parses and is
// used once.
func (c *DemoConfig) Validate() error {
	if !(c.Speed >= -1 && c.Speed <= 1) {
		return errors.New("speed must be within [-1, 1]")
	}
	seen := make(map[uint32]string, 5)
	for _, name := range []string{c.Motor.Forward, c.Motor.Reverse, c.Motor.PWM, c.Motor.Encoder.PinA, c.Motor.Encoder.PinB} {
		pin, err := ParsePin(name)
		if err != nil {
			return err
		}
		if prev, dup := seen[pin]; dup {
			return errors.New(name + " is wired twice (also " + prev + ")")
		}
		seen[pin] = name
	}
	return nil
}

// ParsePin converts "gpioN" (or a bare number) to a pin number
func ParsePin(name string) (uint32, error) {
	num := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(name)), "gpio")
	n, err := strconv.ParseUint(num, 10, 32)
	if err != nil || n > 47 {
		return 0, errors.New("bad pin name " + strconv.Quote(name))
	}
	return uint32(n), nil
}

// Pins returns the parsed pin numbers: forward, reverse, pwm, A, B.
// Call it on a validated config.
func (c *DemoConfig) Pins() (fwd, rev, pwm, a, b uint32) {
	fwd, _ = ParsePin(c.Motor.Forward)
	rev, _ = ParsePin(c.Motor.Reverse)
	pwm, _ = ParsePin(c.Motor.PWM)
	a, _ = ParsePin(c.Motor.Encoder.PinA)
	b, _ = ParsePin(c.Motor.Encoder.PinB)
	return
}
