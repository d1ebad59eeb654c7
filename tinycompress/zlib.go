// Package tinycompress writes zlib streams made of stored (uncompressed)
// DEFLATE blocks. The output is readable by any zlib decoder, and producing it
// needs no tables or hashing state, which suits small firmware images.
package tinycompress

import (
	"errors"
	"hash/adler32"
	"io"
)

const (
	maxStoredBlock = 0xFFFF

	// CMF 0x78: deflate, 32K window. FLG 0x01 makes CMF*256+FLG a
	// multiple of 31 with FLEVEL 0 (fastest).
	zlibCMF = 0x78
	zlibFLG = 0x01
)

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("tinycompress: write after close")

// Writer buffers everything written to it and emits the zlib stream on
// Close.
type Writer struct {
	output io.Writer
	buf    []byte
	closed bool
}

// NewWriter creates a Writer that emits to w on Close.
func NewWriter(w io.Writer) *Writer {
	// Sized for a typical dictionary so Write does not reallocate.
	return &Writer{
		output: w,
		buf:    make([]byte, 0, 4096),
	}
}

// Write implements io.Writer
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrClosed
	}
	w.buf = append(w.buf, p...)
	return len(p), nil
}

// Close writes header, stored blocks and checksum. The Writer cannot be
// reused.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if _, err := w.output.Write([]byte{zlibCMF, zlibFLG}); err != nil {
		return err
	}

	data := w.buf
	for {
		n := len(data)
		final := byte(1)
		if n > maxStoredBlock {
			n = maxStoredBlock
			final = 0
		}
		if err := writeStoredBlock(w.output, data[:n], final); err != nil {
			return err
		}
		data = data[n:]
		if final == 1 {
			break
		}
	}

	sum := adler32.Checksum(w.buf)
	_, err := w.output.Write([]byte{byte(sum >> 24), byte(sum >> 16), byte(sum >> 8), byte(sum)})
	return err
}

// writeStoredBlock emits BTYPE=00: header bit, LEN and NLEN little endian,
// then the raw bytes.
func writeStoredBlock(w io.Writer, p []byte, final byte) error {
	n := uint16(len(p))
	hdr := []byte{final, byte(n), byte(n >> 8), byte(^n), byte(^n >> 8)}
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	_, err := w.Write(p)
	return err
}

// Compress returns p as a complete zlib stream.
func Compress(p []byte) []byte {
	var out sliceWriter
	w := NewWriter(&out)
	w.buf = p
	_ = w.Close()
	return out
}

type sliceWriter []byte

func (s *sliceWriter) Write(p []byte) (int, error) {
	*s = append(*s, p...)
	return len(p), nil
}
