package protocol

import (
	"errors"
	"net"
	"testing"
	"time"
)

type recordedCmd struct {
	id   uint16
	args []uint32
}

func commandFrame(t *testing.T, seq uint8, id uint16, args ...uint32) []byte {
	t.Helper()
	msg, err := BuildFrame(seq, id, func(o OutputBuffer) {
		for _, a := range args {
			EncodeVLQUint(o, a)
		}
	})
	if err != nil {
		t.Fatalf("BuildFrame: %v", err)
	}
	return msg
}

func TestTransportReceiveDispatchesAndAcks(t *testing.T) {
	var got []recordedCmd
	out := NewScratchOutput()
	tr := NewTransport(out, func(id uint16, data *[]byte) error {
		v, err := DecodeVLQUint(data)
		if err != nil {
			return err
		}
		got = append(got, recordedCmd{id: id, args: []uint32{v}})
		return nil
	})

	stream := append(commandFrame(t, 0x10, 4, 300), commandFrame(t, 0x11, 7, 2)...)
	tr.Receive(NewSliceInputBuffer(stream))

	if len(got) != 2 || got[0].id != 4 || got[0].args[0] != 300 || got[1].id != 7 {
		t.Fatalf("dispatched %+v", got)
	}

	// two ACKs, carrying 0x11 then 0x12
	data := out.Result()
	for _, want := range []uint8{0x11, 0x12} {
		f, n, res := Scan(data)
		if res != ScanFrame || !f.IsAck() || f.Seq != want {
			t.Fatalf("ack = %+v res=%d, want seq 0x%02x", f, res, want)
		}
		data = data[n:]
	}
	if len(data) != 0 {
		t.Errorf("%d trailing bytes", len(data))
	}
}

func TestTransportPartialFrame(t *testing.T) {
	calls := 0
	tr := NewTransport(NewScratchOutput(), func(uint16, *[]byte) error { calls++; return nil })

	frame := commandFrame(t, 0x10, 3)
	in := NewFifoBuffer(64)
	in.Write(frame[:4])
	tr.Receive(in)
	if calls != 0 || in.Available() != 4 {
		t.Fatalf("partial frame: calls=%d available=%d", calls, in.Available())
	}
	in.Write(frame[4:])
	tr.Receive(in)
	if calls != 1 || in.Available() != 0 {
		t.Errorf("completed frame: calls=%d available=%d", calls, in.Available())
	}
}

func TestTransportWrongSequenceNaks(t *testing.T) {
	calls := 0
	out := NewScratchOutput()
	tr := NewTransport(out, func(uint16, *[]byte) error { calls++; return nil })

	tr.Receive(NewSliceInputBuffer(commandFrame(t, 0x10, 1)))
	out.Reset()
	// repeat of 0x10 would reset; send 0x15 instead
	tr.Receive(NewSliceInputBuffer(commandFrame(t, 0x15, 1)))

	if calls != 1 {
		t.Errorf("out-of-sequence frame dispatched (calls=%d)", calls)
	}
	f, _, res := Scan(out.Result())
	if res != ScanFrame || f.Seq != 0x11 {
		t.Errorf("nak = %+v, want seq 0x11", f)
	}
}

func TestTransportResyncAfterGarbage(t *testing.T) {
	calls := 0
	tr := NewTransport(NewScratchOutput(), func(uint16, *[]byte) error { calls++; return nil })

	stream := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, MessageValueSync}
	stream = append(stream, commandFrame(t, 0x10, 9)...)
	tr.Receive(NewSliceInputBuffer(stream))

	if calls != 1 {
		t.Errorf("calls = %d after resync, want 1", calls)
	}
	if !tr.Synchronized() {
		t.Error("transport not synchronized")
	}
}

func TestTransportHandlerError(t *testing.T) {
	var reported error
	tr := NewTransport(NewScratchOutput(), func(uint16, *[]byte) error { return errors.New("boom") })
	tr.SetErrorHandler(func(id uint16, err error) { reported = err })

	tr.Receive(NewSliceInputBuffer(commandFrame(t, 0x10, 2)))
	if reported == nil {
		t.Error("error handler not called")
	}
	if !tr.Synchronized() {
		t.Error("handler error must not desync the link")
	}
}

// fakeMCU runs a Transport on one end of a pipe, answering every command
// id 1 with a response id 2 carrying the argument doubled.
func fakeMCU(t *testing.T, conn net.Conn) {
	out := NewScratchOutput()
	in := NewFifoBuffer(256)
	var tr *Transport
	tr = NewTransport(out, func(id uint16, data *[]byte) error {
		v, err := DecodeVLQUint(data)
		if err != nil {
			return err
		}
		if id == 1 {
			tr.SendCommand(2, func(o OutputBuffer) { EncodeVLQUint(o, v*2) })
		}
		return nil
	})

	buf := make([]byte, 64)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		in.Write(buf[:n])
		tr.Receive(in)
		if _, err := conn.Write(out.Result()); err != nil {
			return
		}
		out.Reset()
	}
}

func TestHostTransportLoopback(t *testing.T) {
	hostEnd, mcuEnd := net.Pipe()
	go fakeMCU(t, mcuEnd)
	defer mcuEnd.Close()

	host := NewHostTransport(hostEnd)
	defer host.Close()

	for i, arg := range []uint32{21, 500} {
		err := host.SendCommand(1, func(o OutputBuffer) { EncodeVLQUint(o, arg) })
		if err != nil {
			t.Fatalf("SendCommand %d: %v", i, err)
		}
		msg, err := host.ReceiveResponse(time.Second)
		if err != nil {
			t.Fatalf("ReceiveResponse %d: %v", i, err)
		}
		payload := msg.Payload
		id, _ := DecodeVLQUint(&payload)
		v, _ := DecodeVLQUint(&payload)
		if id != 2 || v != arg*2 {
			t.Errorf("response %d = id %d value %d", i, id, v)
		}
	}

	if seq := host.GetCurrentSequence(); seq != 0x12 {
		t.Errorf("sequence after two commands = 0x%02x, want 0x12", seq)
	}
}

func TestBuildFrameTooLong(t *testing.T) {
	_, err := BuildFrame(0x10, 1, func(o OutputBuffer) {
		EncodeVLQBytes(o, make([]byte, MessageLengthMax))
	})
	if err == nil {
		t.Error("expected error for oversized frame")
	}
}
