//go:build rp2040 || rp2350

package main

import "machine"

// InitUSB configures machine.Serial, which TinyGo maps to USB CDC-ACM on
// these chips. The descriptors come from TinyGo's runtime.
func InitUSB() {
	_ = machine.Serial.Configure(machine.UARTConfig{})
}

// USBAvailable returns the number of bytes available to read from USB
func USBAvailable() int {
	return machine.Serial.Buffered()
}

// USBRead reads a single byte from USB
func USBRead() (byte, error) {
	return machine.Serial.ReadByte()
}

// USBWriteBytes writes data to USB, returning the count accepted
func USBWriteBytes(data []byte) (int, error) {
	return machine.Serial.Write(data)
}
