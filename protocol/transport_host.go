package protocol

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// ErrStopped is returned by blocking calls once the transport is closed.
var ErrStopped = errors.New("transport stopped")

// DefaultAckTimeout bounds the wait for the MCU to acknowledge a command.
const DefaultAckTimeout = 2 * time.Second

// ResponseHandler sees every response frame, on the read goroutine, before
// it is queued. data starts after the message id.
type ResponseHandler func(cmdID uint16, data *[]byte) error

// Message is a response frame received by the host.
type Message struct {
	Sequence uint8
	Payload  []byte // owned copy
}

// HostTransport is the host end of the link. One command is in flight at a
// time: SendCommand writes a frame and returns once the MCU acknowledges
// it. Responses arrive on the read goroutine; they go to the handler and
// to a bounded queue that drops its oldest entry when full.
type HostTransport struct {
	port       io.ReadWriteCloser
	AckTimeout time.Duration

	sendMu sync.Mutex
	seq    uint8 // next sequence to send, guarded by sendMu

	acks      chan uint8
	responses chan *Message

	handlerMu sync.RWMutex
	handler   ResponseHandler

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewHostTransport starts reading from port.
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:       port,
		AckTimeout: DefaultAckTimeout,
		seq:        MessageDest,
		acks:       make(chan uint8, 1),
		responses:  make(chan *Message, 64),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// BuildFrame encodes one command frame.
func BuildFrame(seq uint8, cmdID uint16, args func(output OutputBuffer)) ([]byte, error) {
	out := NewScratchOutput()
	n := WriteFrame(out, seq, func(o OutputBuffer) {
		EncodeVLQUint(o, uint32(cmdID))
		if args != nil {
			args(o)
		}
	})
	if n > MessageLengthMax {
		return nil, fmt.Errorf("message too long: %d bytes (max %d)", n, MessageLengthMax)
	}
	return append([]byte(nil), out.Result()...), nil
}

// SendCommand frames cmdID with args and waits for its ACK.
func (t *HostTransport) SendCommand(cmdID uint16, args func(output OutputBuffer)) error {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	frame, err := BuildFrame(t.seq, cmdID, args)
	if err != nil {
		return err
	}

	// an ACK that arrived after an earlier timeout is not ours
	select {
	case <-t.acks:
	default:
	}

	if n, err := t.port.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	} else if n != len(frame) {
		return fmt.Errorf("write frame: short write %d/%d", n, len(frame))
	}

	want := NextSequence(t.seq)
	timer := time.NewTimer(t.AckTimeout)
	defer timer.Stop()
	select {
	case got := <-t.acks:
		if got != want {
			return fmt.Errorf("sequence mismatch: expected 0x%02x, got 0x%02x", want, got)
		}
		t.seq = want
		return nil
	case <-timer.C:
		return fmt.Errorf("ACK timeout after %v", t.AckTimeout)
	case <-t.stop:
		return ErrStopped
	}
}

// ReceiveResponse returns the oldest queued response.
func (t *HostTransport) ReceiveResponse(timeout time.Duration) (*Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case msg := <-t.responses:
		return msg, nil
	case <-timer.C:
		return nil, fmt.Errorf("response timeout after %v", timeout)
	case <-t.stop:
		return nil, ErrStopped
	}
}

// SetResponseHandler installs h for responses arriving from now on.
func (t *HostTransport) SetResponseHandler(h ResponseHandler) {
	t.handlerMu.Lock()
	t.handler = h
	t.handlerMu.Unlock()
}

// GetCurrentSequence returns the sequence the next command will carry.
func (t *HostTransport) GetCurrentSequence() uint8 {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	return t.seq
}

// Close stops the read loop and closes the port.
func (t *HostTransport) Close() error {
	var err error
	t.stopOnce.Do(func() {
		close(t.stop)
		// unblocks the pending Read
		err = t.port.Close()
		<-t.done
	})
	return err
}

func (t *HostTransport) readLoop() {
	defer close(t.done)

	pending := NewFifoBuffer(1024)
	synced := true
	buf := make([]byte, 256)
	for {
		n, err := t.port.Read(buf)
		if n > 0 {
			pending.Write(buf[:n])
			synced = t.scan(pending, synced)
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return
			}
			select {
			case <-t.stop:
				return
			case <-time.After(10 * time.Millisecond):
			}
		}
	}
}

// scan delivers every complete frame in pending and reports whether the
// stream is still in sync.
func (t *HostTransport) scan(pending *FifoBuffer, synced bool) bool {
	data := pending.Data()
	for len(data) > 0 {
		if !synced {
			data, synced = Resync(data)
			continue
		}
		f, n, res := Scan(data)
		switch res {
		case ScanNeedMore:
			pending.Pop(pending.Available() - len(data))
			return synced
		case ScanBad:
			synced = false
			continue
		}
		data = data[n:]
		if res == ScanFrame {
			t.deliver(f)
		}
	}
	pending.Pop(pending.Available())
	return synced
}

// deliver routes an empty frame as an ACK and anything else as a response.
func (t *HostTransport) deliver(f Frame) {
	if f.IsAck() {
		select {
		case t.acks <- f.Seq:
		default:
		}
		return
	}

	msg := &Message{Sequence: f.Seq, Payload: append([]byte(nil), f.Payload...)}

	t.handlerMu.RLock()
	h := t.handler
	t.handlerMu.RUnlock()
	if h != nil {
		data := append([]byte(nil), f.Payload...)
		if id, err := DecodeVLQUint(&data); err == nil {
			_ = h(uint16(id), &data)
		}
	}

	for {
		select {
		case t.responses <- msg:
			return
		default:
		}
		select {
		case <-t.responses:
		default:
		}
	}
}
