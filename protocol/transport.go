package protocol

import "sync/atomic"

// CommandHandler is a function type for handling decoded commands
type CommandHandler func(cmdID uint16, data *[]byte) error

// Transport is the MCU side of the link: it parses host frames, dispatches
// their commands and writes ACKs and responses.
type Transport struct {
	isSynchronized uint32 // atomic bool
	// nextSequence is the sequence expected from the host. ACKs and
	// responses carry the same value.
	nextSequence uint32 // atomic uint8

	output        OutputBuffer
	handler       CommandHandler
	errorHandler  func(cmdID uint16, err error)
	resetCallback func() // host restarted its sequence
	flushCallback func() // push output to the wire now
}

// NewTransport creates a new Transport instance
func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	return &Transport{
		isSynchronized: 1,
		nextSequence:   MessageDest,
		output:         output,
		handler:        handler,
	}
}

// Receive consumes as many complete frames as input holds. A partial frame
// stays in input for the next call.
func (t *Transport) Receive(input InputBuffer) {
	data := input.Data()

	for len(data) > 0 {
		if !t.getSynchronized() {
			var found bool
			data, found = Resync(data)
			if found {
				t.setSynchronized(true)
				t.encodeAckNak()
			}
			continue
		}

		f, n, res := Scan(data)
		switch res {
		case ScanNeedMore:
			input.Pop(input.Available() - len(data))
			return
		case ScanSync:
			data = data[n:]
			continue
		case ScanBad:
			t.setSynchronized(false)
			continue
		}
		data = data[n:]

		expected := uint8(atomic.LoadUint32(&t.nextSequence))
		if f.Seq == MessageDest && expected != MessageDest {
			// host restarted
			atomic.StoreUint32(&t.nextSequence, MessageDest)
			expected = MessageDest
			if t.resetCallback != nil {
				t.resetCallback()
			}
		}

		// A frame with an unexpected sequence is dropped; the ACK below then
		// doubles as a NAK naming the sequence we want.
		if f.Seq == expected {
			atomic.StoreUint32(&t.nextSequence, uint32(NextSequence(f.Seq)))
			t.parseFrame(f.Payload)
		}
		t.encodeAckNak()
	}

	input.Pop(input.Available() - len(data))
}

// parseFrame dispatches every command in a payload. A handler error stops
// the rest of the frame; a panic desynchronizes the link instead of taking
// the firmware down.
func (t *Transport) parseFrame(frame []byte) {
	defer func() {
		if r := recover(); r != nil {
			t.setSynchronized(false)
		}
	}()

	for len(frame) > 0 {
		cmdID, err := DecodeVLQUint(&frame)
		if err != nil {
			t.setSynchronized(false)
			return
		}
		if t.handler == nil {
			continue
		}
		if err := t.handler(uint16(cmdID), &frame); err != nil {
			if t.errorHandler != nil {
				t.errorHandler(uint16(cmdID), err)
			}
			return
		}
	}
}

// encodeAckNak sends an empty frame carrying the next expected sequence.
// It is flushed at once: the host will not accept responses before it.
func (t *Transport) encodeAckNak() {
	WriteFrame(t.output, uint8(atomic.LoadUint32(&t.nextSequence)), nil)
	if t.flushCallback != nil {
		t.flushCallback()
	}
}

// EncodeFrame writes one response frame
func (t *Transport) EncodeFrame(body func(output OutputBuffer)) {
	WriteFrame(t.output, uint8(atomic.LoadUint32(&t.nextSequence)), body)
}

// SendCommand sends a message with arguments
func (t *Transport) SendCommand(cmdID uint16, args func(output OutputBuffer)) {
	t.EncodeFrame(func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(cmdID))
		if args != nil {
			args(output)
		}
	})
}

// Reset resets the transport state (useful after USB disconnect/reconnect)
func (t *Transport) Reset() {
	atomic.StoreUint32(&t.isSynchronized, 1)
	atomic.StoreUint32(&t.nextSequence, MessageDest)
	if t.resetCallback != nil {
		t.resetCallback()
	}
}

// SetResetCallback sets a callback to be called when host reset is detected
func (t *Transport) SetResetCallback(callback func()) {
	t.resetCallback = callback
}

// SetFlushCallback sets a callback that pushes pending output to the wire
func (t *Transport) SetFlushCallback(callback func()) {
	t.flushCallback = callback
}

// SetErrorHandler sets a callback for command handler errors
func (t *Transport) SetErrorHandler(callback func(cmdID uint16, err error)) {
	t.errorHandler = callback
}

// Synchronized reports whether the transport is framed on the host stream
func (t *Transport) Synchronized() bool {
	return t.getSynchronized()
}

func (t *Transport) getSynchronized() bool {
	return atomic.LoadUint32(&t.isSynchronized) != 0
}

func (t *Transport) setSynchronized(val bool) {
	var v uint32
	if val {
		v = 1
	}
	atomic.StoreUint32(&t.isSynchronized, v)
}
