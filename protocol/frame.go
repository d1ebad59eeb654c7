package protocol

// ScanResult is the outcome of looking for a frame at the start of a buffer.
type ScanResult uint8

const (
	// ScanFrame: a complete, valid frame was found
	ScanFrame ScanResult = iota
	// ScanNeedMore: the buffer holds the start of a frame; wait for bytes
	ScanNeedMore
	// ScanSync: leading sync byte, skip one byte
	ScanSync
	// ScanBad: length, destination, sync or CRC check failed
	ScanBad
)

// Frame is a decoded frame. Payload aliases the scanned buffer.
type Frame struct {
	Seq     uint8
	Payload []byte
}

// IsAck reports whether the frame carries no payload.
func (f Frame) IsAck() bool { return len(f.Payload) == 0 }

// Scan examines the start of data. On ScanFrame, n is the frame length; on
// ScanSync n is 1; otherwise n is 0.
func Scan(data []byte) (f Frame, n int, res ScanResult) {
	if len(data) == 0 {
		return f, 0, ScanNeedMore
	}
	if data[0] == MessageValueSync {
		return f, 1, ScanSync
	}
	if len(data) < MessageLengthMin {
		return f, 0, ScanNeedMore
	}

	msgLen := int(data[MessagePositionLen])
	if msgLen < MessageLengthMin || msgLen > MessageLengthMax {
		return f, 0, ScanBad
	}
	seq := data[MessagePositionSeq]
	if seq&^MessageSeqMask != MessageDest {
		return f, 0, ScanBad
	}
	if len(data) < msgLen {
		return f, 0, ScanNeedMore
	}
	if data[msgLen-MessageTrailerSync] != MessageValueSync {
		return f, 0, ScanBad
	}

	crc := uint16(data[msgLen-MessageTrailerCRC])<<8 | uint16(data[msgLen-MessageTrailerCRC+1])
	if crc != CRC16(data[:msgLen-MessageTrailerSize]) {
		return f, 0, ScanBad
	}

	f.Seq = seq
	f.Payload = data[MessageHeaderSize : msgLen-MessageTrailerSize]
	return f, msgLen, ScanFrame
}

// Resync drops bytes up to and including the next sync byte. It returns the
// remainder and whether a sync byte was found.
func Resync(data []byte) ([]byte, bool) {
	for i, b := range data {
		if b == MessageValueSync {
			return data[i+1:], true
		}
	}
	return nil, false
}

// WriteFrame appends a frame with the given sequence to out. body writes the
// payload. It returns the frame length; a frame longer than
// MessageLengthMax is still written, the caller decides whether that is an
// error.
func WriteFrame(out OutputBuffer, seq uint8, body func(out OutputBuffer)) int {
	start := out.CurPosition()
	out.Output([]byte{0, seq})
	if body != nil {
		body(out)
	}

	n := len(out.DataSince(start)) + MessageTrailerSize
	out.Update(start+MessagePositionLen, uint8(n))

	crc := CRC16(out.DataSince(start))
	out.Output([]byte{uint8(crc >> 8), uint8(crc), MessageValueSync})
	return n
}
