package protocol

// InputBuffer is the receive side seen by Transport.Receive
type InputBuffer interface {
	// Data returns the unread bytes as one contiguous slice
	Data() []byte
	// Available returns the number of unread bytes
	Available() int
	// Pop discards n bytes from the front
	Pop(n int)
}

// OutputBuffer is the transmit side written by frame encoders
type OutputBuffer interface {
	// Output appends data
	Output(data []byte)
	// CurPosition returns the current write position
	CurPosition() int
	// Update overwrites the byte at pos
	Update(pos int, val byte)
	// DataSince returns bytes written since pos
	DataSince(pos int) []byte
}

// SliceInputBuffer implements InputBuffer over a byte slice
type SliceInputBuffer struct {
	data []byte
}

// NewSliceInputBuffer creates a new SliceInputBuffer
func NewSliceInputBuffer(data []byte) *SliceInputBuffer {
	return &SliceInputBuffer{data: data}
}

func (s *SliceInputBuffer) Data() []byte   { return s.data }
func (s *SliceInputBuffer) Available() int { return len(s.data) }

func (s *SliceInputBuffer) Pop(n int) {
	if n > len(s.data) {
		n = len(s.data)
	}
	s.data = s.data[n:]
}

// ScratchOutput implements OutputBuffer over a fixed array. Writes past the
// end are truncated.
type ScratchOutput struct {
	buf [MessageMax]byte
	pos int
}

// NewScratchOutput creates a new ScratchOutput
func NewScratchOutput() *ScratchOutput {
	return &ScratchOutput{}
}

func (s *ScratchOutput) Output(data []byte) {
	s.pos += copy(s.buf[s.pos:], data)
}

func (s *ScratchOutput) CurPosition() int { return s.pos }

func (s *ScratchOutput) Update(pos int, val byte) {
	if pos >= 0 && pos < s.pos {
		s.buf[pos] = val
	}
}

func (s *ScratchOutput) DataSince(pos int) []byte {
	if pos < 0 || pos > s.pos {
		return nil
	}
	return s.buf[pos:s.pos]
}

// Result returns the accumulated output data
func (s *ScratchOutput) Result() []byte { return s.buf[:s.pos] }

// Reset clears the buffer
func (s *ScratchOutput) Reset() { s.pos = 0 }

// FifoBuffer is a ring buffer for serial I/O. One slot stays empty to tell
// full from empty, so it holds capacity-1 bytes.
type FifoBuffer struct {
	buf   []byte
	read  int
	write int
}

// NewFifoBuffer creates a new FifoBuffer with the specified capacity
func NewFifoBuffer(capacity int) *FifoBuffer {
	return &FifoBuffer{buf: make([]byte, capacity)}
}

// Write appends as much of data as fits and returns the count written
func (f *FifoBuffer) Write(data []byte) int {
	n := 0
	for _, b := range data {
		next := (f.write + 1) % len(f.buf)
		if next == f.read {
			break
		}
		f.buf[f.write] = b
		f.write = next
		n++
	}
	return n
}

// Read moves up to len(data) bytes out of the buffer
func (f *FifoBuffer) Read(data []byte) int {
	n := 0
	for n < len(data) && f.read != f.write {
		data[n] = f.buf[f.read]
		f.read = (f.read + 1) % len(f.buf)
		n++
	}
	return n
}

// Available returns the number of bytes available for reading
func (f *FifoBuffer) Available() int {
	if f.write >= f.read {
		return f.write - f.read
	}
	return len(f.buf) - f.read + f.write
}

// Free returns the number of bytes available for writing
func (f *FifoBuffer) Free() int {
	return len(f.buf) - f.Available() - 1
}

// Data returns the unread bytes contiguously. A wrapped buffer is rotated in
// place first, so no allocation happens on the receive path.
func (f *FifoBuffer) Data() []byte {
	if f.read > f.write {
		f.rotate()
	}
	return f.buf[f.read:f.write]
}

// rotate moves the unread bytes to the start of buf
func (f *FifoBuffer) rotate() {
	n := f.Available()
	reverse(f.buf[:f.read])
	reverse(f.buf[f.read:])
	reverse(f.buf)
	// buf now starts with the old [read:] segment followed by [:write]
	f.read = 0
	f.write = n
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

// Pop removes n bytes from the front
func (f *FifoBuffer) Pop(n int) {
	if a := f.Available(); n > a {
		n = a
	}
	f.read = (f.read + n) % len(f.buf)
}

// IsEmpty returns true if the buffer is empty
func (f *FifoBuffer) IsEmpty() bool {
	return f.read == f.write
}

// Reset clears the buffer
func (f *FifoBuffer) Reset() {
	f.read = 0
	f.write = 0
}
