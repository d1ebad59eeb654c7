//go:build rp2040 || rp2350

package main

import (
	_ "embed"
	"machine"
	"time"

	"gomotor/core"
	"gomotor/standalone"
	"gomotor/standalone/config"
)

//go:embed wiring.json
var wiringJSON []byte

// RunStandaloneMode runs the drive/stop demo with no host attached. The
// GPIO and PWM drivers must already be registered.
func RunStandaloneMode() {
	cfg, err := config.LoadConfig(wiringJSON)
	if err != nil {
		core.DebugPrintln("[demo] wiring.json: " + err.Error() + ", using defaults")
		cfg = config.DefaultDemoConfig()
	}

	manager, err := standalone.NewManagerWithConfig(cfg)
	if err == nil {
		err = manager.Initialize()
	}
	if err != nil {
		// config_fatal: the motor cannot be trusted, so never return
		core.DebugPrintln("[demo] " + err.Error())
		core.DumpEventRing()
		haltBlinking()
	}

	UpdateSystemTime()
	if err := manager.Start(core.GetTime()); err != nil {
		core.DebugPrintln("[demo] " + err.Error())
		haltBlinking()
	}

	for {
		UpdateSystemTime()
		now := core.GetTime()

		if USBAvailable() > 0 {
			if b, err := USBRead(); err == nil {
				if err := manager.ProcessByte(b, now); err != nil {
					manager.SendResponse("error: " + err.Error() + "\n")
				}
			}
		}

		if err := manager.Poll(now); err != nil {
			manager.EmergencyStop()
			manager.SendResponse("error: " + err.Error() + "\n")
		}

		if out := manager.GetOutput(); len(out) > 0 {
			_, _ = USBWriteBytes(out)
		}

		core.ProcessTimers()
		time.Sleep(100 * time.Microsecond)
	}
}

// haltBlinking flashes the LED rapidly forever
func haltBlinking() {
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	for {
		led.High()
		time.Sleep(100 * time.Millisecond)
		led.Low()
		time.Sleep(100 * time.Millisecond)
	}
}
