// Package protocol implements the Klipper-style serial protocol spoken
// between the motor firmware and its host tools: VLQ-encoded integers inside
// CRC16-checked frames.
//
// Frame layout:
//
//	len(1) seq(1) payload(len-5) crc16(2, big endian) sync(0x7E)
//
// seq carries 0x10 in the high nibble and a 4-bit sequence number in the low
// nibble. A frame with an empty payload is an ACK/NAK.
package protocol

// Version is the protocol implementation version
const Version = "0.1.0"

const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E
	MessageDest        = 0x10
	MessageSeqMask     = 0x0F

	// MessageMax sizes the MCU output scratch buffer: a response burst may
	// hold several frames.
	MessageMax = 512
)

// NextSequence returns the sequence byte that follows seq.
func NextSequence(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}
