//go:build rp2040 || rp2350

package main

// standaloneFlag selects the firmware mode at link time:
//
//	tinygo flash -target=pico -ldflags="-X main.standaloneFlag=true" ./targets/rp2040
var standaloneFlag = "false"

// ModeConfig determines which mode to run
type ModeConfig struct {
	// Standalone runs the built-in drive/stop demo instead of waiting for a
	// host to configure motors over USB.
	Standalone bool
}

// GetMode returns the mode selected at build time
func GetMode() ModeConfig {
	return ModeConfig{Standalone: standaloneFlag == "true"}
}
