//go:build rp2040 || rp2350

package main

import (
	"time"

	"gomotor/core"
	"gomotor/protocol"
)

// maxWriteFailures in a row mark the host as gone
const maxWriteFailures = 10

// usbLink carries the Klipper protocol over USB CDC. The reader goroutine
// fills in; the main loop parses and flushes out. TinyGo schedules both on
// one core and only switches at sleeps, so the buffers need no lock.
type usbLink struct {
	in  *protocol.FifoBuffer
	out *protocol.ScratchOutput
	tr  *protocol.Transport

	received, sent, errors uint32
	writeFailures          uint32
	disconnected           bool
}

func newUSBLink() *usbLink {
	l := &usbLink{
		in:  protocol.NewFifoBuffer(256),
		out: protocol.NewScratchOutput(),
	}
	l.tr = protocol.NewTransport(l.out, core.DispatchCommand)
	l.tr.SetResetCallback(func() {
		l.in.Reset()
		l.out.Reset()
		core.ResetFirmwareState()
	})
	// push each ACK to the wire as soon as it is encoded
	l.tr.SetFlushCallback(l.flush)
	l.tr.SetErrorHandler(func(cmdID uint16, err error) {
		l.errors++
		// queued: the UART must not stall the loop that is parsing frames
		core.DebugAsync("[cmd] id=" + itoa(int(cmdID)) + ": " + err.Error())
	})
	return l
}

// service parses whatever input is complete, then flushes responses
func (l *usbLink) service() {
	if l.in.Available() > 0 {
		data := l.in.Data()
		frame := protocol.NewSliceInputBuffer(data)
		l.tr.Receive(frame)
		l.received++
		if consumed := len(data) - frame.Available(); consumed > 0 {
			l.in.Pop(consumed)
		}
	}
	if len(l.out.Result()) > 0 {
		l.flush()
		l.sent++
	}
}

// dropInput discards a partial frame after a panic while parsing it
func (l *usbLink) dropInput() {
	l.in.Reset()
}

// readLoop moves bytes from USB into in, restarting itself after a panic
func (l *usbLink) readLoop() {
	defer func() {
		if r := recover(); r != nil {
			l.errors++
			time.Sleep(100 * time.Millisecond)
			go l.readLoop()
		}
	}()

	for {
		if USBAvailable() == 0 {
			time.Sleep(100 * time.Microsecond)
			continue
		}
		b, err := USBRead()
		if err != nil {
			l.errors++
			time.Sleep(time.Millisecond)
			continue
		}
		if l.disconnected {
			l.reconnect()
		}
		if l.in.Write([]byte{b}) == 0 {
			l.errors++
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// reconnect gives a returning host a clean session. Motors were already
// stopped when the link dropped.
func (l *usbLink) reconnect() {
	core.DebugAsync("[usb] host back")
	l.disconnected = false
	l.in.Reset()
	l.out.Reset()
	l.tr.Reset()
	core.ResetFirmwareState()
	l.received, l.sent, l.writeFailures = 0, 0, 0
}

// flush drains out to USB. Repeated failures mean the host is gone:
// motors are stopped and stale data dropped.
func (l *usbLink) flush() {
	pending := l.out.Result()
	for len(pending) > 0 {
		n, err := USBWriteBytes(pending)
		if err != nil || n == 0 {
			l.writeFailures++
			if l.writeFailures > maxWriteFailures {
				l.disconnected = true
				l.writeFailures = 0
				core.DebugAsync("[usb] host gone, motors stopped")
				core.ShutdownAllMotors()
				l.out.Reset()
				l.in.Reset()
			}
			return
		}
		pending = pending[n:]
	}
	l.writeFailures = 0
	l.out.Reset()
}
