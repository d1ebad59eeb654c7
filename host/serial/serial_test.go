package serial

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig("/dev/ttyACM0")
	if c.Device != "/dev/ttyACM0" || c.Baud != 250000 || c.ReadTimeout != 100*time.Millisecond {
		t.Errorf("DefaultConfig = %+v", c)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil", nil},
		{"no device", &Config{Baud: 250000}},
		{"zero baud", &Config{Device: "/dev/ttyACM0"}},
		{"negative timeout", &Config{Device: "/dev/ttyACM0", Baud: 1, ReadTimeout: -1}},
	}
	for _, tt := range tests {
		if err := tt.cfg.Validate(); err == nil {
			t.Errorf("%s: Validate accepted %+v", tt.name, tt.cfg)
		}
		if _, err := Open(tt.cfg); err == nil {
			t.Errorf("%s: Open accepted %+v", tt.name, tt.cfg)
		}
	}
}
