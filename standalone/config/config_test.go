package config

import (
	"strings"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig([]byte(`{}`))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Speed != 0.75 || cfg.DriveMs != 2000 || cfg.RestMs != 5000 {
		t.Errorf("timing defaults = %+v", cfg)
	}
	fwd, rev, pwm, a, b := cfg.Pins()
	if fwd != 2 || rev != 3 || pwm != 4 || a != 6 || b != 7 {
		t.Errorf("pins = %d %d %d %d %d", fwd, rev, pwm, a, b)
	}
	if cfg.Motor.Encoder.Inverted {
		t.Error("inverted by default")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	data := `{
		"motor": {
			"forward_pin": "gpio10", "reverse_pin": "GPIO11", "pwm_pin": "12",
			"encoder": {"pin_a": "gpio14", "pin_b": "gpio15", "inverted": true}
		},
		"speed": -0.5,
		"drive_ms": 500
	}`
	cfg, err := LoadConfig([]byte(data))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	fwd, rev, pwm, a, b := cfg.Pins()
	if fwd != 10 || rev != 11 || pwm != 12 || a != 14 || b != 15 {
		t.Errorf("pins = %d %d %d %d %d", fwd, rev, pwm, a, b)
	}
	if cfg.Speed != -0.5 || cfg.DriveMs != 500 || cfg.RestMs != 5000 {
		t.Errorf("timing = %+v", cfg)
	}
	if !cfg.Motor.Encoder.Inverted {
		t.Error("inverted flag lost")
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		json string
		want string
	}{
		{"syntax", `{"speed":`, ""},
		{"speed", `{"speed": 1.5}`, "speed"},
		{"pin name", `{"motor": {"pwm_pin": "led"}}`, "bad pin"},
		{"pin range", `{"motor": {"pwm_pin": "gpio48"}}`, "bad pin"},
		{"duplicate", `{"motor": {"encoder": {"pin_a": "gpio2"}}}`, "wired twice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig([]byte(tt.json))
			if err == nil {
				t.Fatal("LoadConfig succeeded")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}
