//go:build rp2040 || rp2350

// Firmware entry point: an H-bridge motor with a quadrature encoder,
// controlled over USB with the Klipper protocol or running the standalone
// demo.
package main

import (
	"machine"
	"strconv"
	"time"

	"gomotor/core"
)

func main() {
	// A watchdog left armed by a previous reset would fire mid-boot
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0}); err != nil {
		return
	}

	InitUSB()
	InitDebugUART()
	InitClock()

	core.SetGPIODriver(NewRPGPIODriver())
	core.SetPWMDriver(NewRP2040PWMDriver())

	if GetMode().Standalone {
		RunStandaloneMode()
		return
	}

	core.InitCoreCommands()
	core.InitMotorCommands()
	registerPins()
	// every command is registered; compress the dictionary once
	core.GetGlobalDictionary().BuildDictionary()

	link := newUSBLink()
	core.SetGlobalTransport(link.tr)
	core.SetResetHandler(rebootViaWatchdog)

	go link.readLoop()
	for {
		runOnce(link)
		time.Sleep(10 * time.Microsecond)
	}
}

// runOnce is one main loop pass. A panic here is a broken invariant (a
// reentrant critical section, a contract violation): stop driving and
// report it rather than reboot into an unknown state.
func runOnce(link *usbLink) {
	defer func() {
		if r := recover(); r != nil {
			link.errors++
			core.DumpEventRing()
			core.TryShutdown("firmware panic")
			link.dropInput()
		}
	}()

	UpdateSystemTime()
	link.service()
	// after the ACK for reset has gone out
	core.CheckPendingReset()
	// max_duration stops and encoder reports
	core.ProcessTimers()
}

// rebootViaWatchdog stops the motors and lets the watchdog reset the chip.
// That re-enumerates USB more reliably than SYSRESETREQ.
func rebootViaWatchdog() {
	core.ShutdownAllMotors()
	_ = machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 1})
	_ = machine.Watchdog.Start()
	for {
		time.Sleep(time.Millisecond)
	}
}

// registerPins publishes the "pin" enumeration: gpio0..gpio29 on the
// RP2040, gpio0..gpio47 on the RP2350B. Only gpio0..gpio31 can carry PWM
// (see pwmslice); the rest serve direction and encoder inputs.
func registerPins() {
	n := 30
	if mcuName == "rp2350" {
		n = maxGPIO
	}
	names := make([]string, n)
	for i := range names {
		names[i] = "gpio" + itoa(i)
	}
	core.RegisterEnumeration("pin", names)
}

func itoa(i int) string { return strconv.Itoa(i) }
