// Package config loads the host tools' motor.yaml and applies environment
// overrides on top of it.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v2"
)

// DefaultPath is read when MOTOR_CONFIG is not set
const DefaultPath = "motor.yaml"

// Encoder is the encoder attached to one motor
type Encoder struct {
	OID      uint8  `yaml:"oid"`
	PinA     uint32 `yaml:"pin_a"`
	PinB     uint32 `yaml:"pin_b"`
	Inverted bool   `yaml:"inverted"`
	// ReportMs is the period of encoder_state reports; 0 polls only
	ReportMs uint32 `yaml:"report_ms"`
}

// Motor is one H-bridge channel
type Motor struct {
	OID        uint8  `yaml:"oid"`
	ForwardPin uint32 `yaml:"forward_pin"`
	ReversePin uint32 `yaml:"reverse_pin"`
	PWMPin     uint32 `yaml:"pwm_pin"`
	// MaxDurationMs stops the motor if no drive arrives for this long
	MaxDurationMs uint32   `yaml:"max_duration_ms"`
	Encoder       *Encoder `yaml:"encoder,omitempty"`
}

// MaxDuration returns MaxDurationMs as a Duration
func (m Motor) MaxDuration() time.Duration {
	return time.Duration(m.MaxDurationMs) * time.Millisecond
}

// ReportInterval returns the encoder report period, 0 without an encoder
func (m Motor) ReportInterval() time.Duration {
	if m.Encoder == nil {
		return 0
	}
	return time.Duration(m.Encoder.ReportMs) * time.Millisecond
}

// Influx is where motor-logger writes points
type Influx struct {
	Server string `yaml:"server" env:"INFLUX_SERVER"`
	Token  string `yaml:"token" env:"INFLUX_TOKEN"`
	Org    string `yaml:"org" env:"INFLUX_ORG"`
	Bucket string `yaml:"bucket" env:"INFLUX_BUCKET"`
}

// Config is the parsed motor.yaml
type Config struct {
	Device string  `yaml:"device" env:"MOTOR_DEVICE"`
	Baud   int     `yaml:"baud" env:"MOTOR_BAUD"`
	Motors []Motor `yaml:"motors"`
	Influx Influx  `yaml:"influx"`
}

// Default returns the settings used for anything motor.yaml leaves out
func Default() *Config {
	return &Config{
		Device: "/dev/ttyACM0",
		Baud:   250000,
		Influx: Influx{
			Server: "http://localhost:9999",
			Org:    "gomotor",
			Bucket: "motor.raw",
		},
	}
}

// Path returns MOTOR_CONFIG, or DefaultPath when it is unset
func Path() string {
	var p struct {
		Path string `env:"MOTOR_CONFIG" envDefault:"motor.yaml"`
	}
	if err := env.Parse(&p); err != nil || p.Path == "" {
		return DefaultPath
	}
	return p.Path
}

// Load reads the file at path, then applies environment overrides
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies environment overrides and validates
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects duplicate oids and pins used twice
func (c *Config) Validate() error {
	if c.Device == "" {
		return errors.New("config: no device")
	}
	if c.Baud <= 0 {
		return fmt.Errorf("config: invalid baud %d", c.Baud)
	}

	oids := make(map[uint8]string)
	pins := make(map[uint32]string)
	claim := func(pin uint32, what string) error {
		if prev, ok := pins[pin]; ok {
			return fmt.Errorf("config: pin %d used by %s and %s", pin, prev, what)
		}
		pins[pin] = what
		return nil
	}
	useOID := func(oid uint8, what string) error {
		if prev, ok := oids[oid]; ok {
			return fmt.Errorf("config: oid %d used by %s and %s", oid, prev, what)
		}
		oids[oid] = what
		return nil
	}

	for _, m := range c.Motors {
		name := fmt.Sprintf("motor %d", m.OID)
		if err := useOID(m.OID, name); err != nil {
			return err
		}
		for _, p := range []struct {
			pin  uint32
			role string
		}{{m.ForwardPin, "forward"}, {m.ReversePin, "reverse"}, {m.PWMPin, "pwm"}} {
			if err := claim(p.pin, name+" "+p.role); err != nil {
				return err
			}
		}
		if m.Encoder == nil {
			continue
		}
		enc := fmt.Sprintf("encoder %d", m.Encoder.OID)
		if err := useOID(m.Encoder.OID, enc); err != nil {
			return err
		}
		if err := claim(m.Encoder.PinA, enc+" A"); err != nil {
			return err
		}
		if err := claim(m.Encoder.PinB, enc+" B"); err != nil {
			return err
		}
	}
	return nil
}

// Motor finds a motor by oid
func (c *Config) Motor(oid uint8) (Motor, bool) {
	for _, m := range c.Motors {
		if m.OID == oid {
			return m, true
		}
	}
	return Motor{}, false
}
