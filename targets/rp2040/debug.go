//go:build rp2040 || rp2350

package main

import (
	"machine"

	"gomotor/core"
)

var debugUART *machine.UART

// InitDebugUART routes core debug output to UART0 on GPIO0 (TX) / GPIO1
// (RX) at 115200 baud. USB carries the protocol, so logs need their own
// port.
func InitDebugUART() {
	uart := machine.UART0
	err := uart.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.GPIO0,
		RX:       machine.GPIO1,
	})
	if err != nil {
		return
	}
	debugUART = uart

	core.SetDebugWriter(writeDebugLine)
	core.InitAsyncDebug()
	core.SetDebugEnabled(true)
	core.DebugPrintln("=== gomotor " + mcuName + " debug ===")
}

func writeDebugLine(s string) {
	if debugUART == nil {
		return
	}
	debugUART.Write([]byte(s))
	debugUART.Write([]byte("\r\n"))
}
