// Package mcu is the host-side client of the motor firmware: it retrieves
// the data dictionary, encodes commands by name and routes responses.
package mcu

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"gomotor/host/serial"
	"gomotor/protocol"
)

// Fixed ids: the firmware registers identify_response and identify first
// so a host can fetch the dictionary before it knows anything else.
const (
	identifyResponseID = 0
	identifyID         = 1
)

var (
	ErrNotConnected  = errors.New("not connected to MCU")
	ErrNoDictionary  = errors.New("dictionary not loaded")
	ErrUnknownFormat = errors.New("unknown command")
)

// Dictionary is the parsed MCU data dictionary
type Dictionary struct {
	Version       string                    `json:"version"`
	BuildVersions string                    `json:"build_versions"`
	Config        map[string]string         `json:"config"`
	Commands      map[string]int            `json:"commands"`
	Responses     map[string]int            `json:"responses"`
	Enumerations  map[string]map[string]int `json:"enumerations,omitempty"`
}

type waiter struct {
	name  string
	match func(*Response) bool
	ch    chan *Response
}

// MCU is a connection to one motor controller
type MCU struct {
	transport *protocol.HostTransport

	dictionary     *Dictionary
	dictionaryData []byte // decompressed JSON
	commands       map[string]*Format
	responses      map[int]*Format

	mu      sync.Mutex
	waiters []*waiter
	subs    map[string][]func(*Response)

	// Timeout bounds each identify/query round trip
	Timeout time.Duration
	Logger  *log.Logger
}

// NewMCU creates a new MCU instance (not yet connected)
func NewMCU() *MCU {
	return &MCU{
		subs:    make(map[string][]func(*Response)),
		Timeout: time.Second,
		Logger:  log.New(io.Discard, "", 0),
	}
}

// Connect opens device with the default serial settings
func (m *MCU) Connect(device string) error {
	return m.ConnectWithConfig(serial.DefaultConfig(device))
}

// ConnectWithConfig opens a serial port and attaches to it
func (m *MCU) ConnectWithConfig(cfg *serial.Config) error {
	port, err := serial.Open(cfg)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	m.Attach(port)
	return nil
}

// Attach runs the host transport over an already open port
func (m *MCU) Attach(port io.ReadWriteCloser) {
	m.transport = protocol.NewHostTransport(port)
	m.transport.SetResponseHandler(m.handleResponse)
}

// Close closes the connection to the MCU
func (m *MCU) Close() error {
	if m.transport == nil {
		return nil
	}
	err := m.transport.Close()
	m.transport = nil
	return err
}

// IsConnected returns whether a port is attached
func (m *MCU) IsConnected() bool { return m.transport != nil }

// RetrieveDictionary fetches the dictionary in identify chunks, inflates
// it and indexes every command and response format.
func (m *MCU) RetrieveDictionary(ctx context.Context) error {
	if m.transport == nil {
		return ErrNotConnected
	}

	var raw bytes.Buffer
	const chunkSize = 40
	for offset := uint32(0); ; {
		chunk, err := m.identifyChunk(ctx, offset, chunkSize)
		if err != nil {
			return fmt.Errorf("identify at offset %d: %w", offset, err)
		}
		raw.Write(chunk)
		offset += uint32(len(chunk))
		if len(chunk) < chunkSize {
			break
		}
	}
	m.Logger.Printf("dictionary: %d bytes", raw.Len())

	data := raw.Bytes()
	if len(data) >= 2 && data[0] == 0x78 {
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("dictionary: %w", err)
		}
		inflated, err := io.ReadAll(zr)
		if err != nil {
			return fmt.Errorf("dictionary: inflate: %w", err)
		}
		m.Logger.Printf("dictionary: inflated to %d bytes", len(inflated))
		data = inflated
	}
	return m.LoadDictionary(data)
}

// LoadDictionary installs a dictionary from its JSON form
func (m *MCU) LoadDictionary(data []byte) error {
	dict := &Dictionary{}
	if err := json.Unmarshal(data, dict); err != nil {
		return fmt.Errorf("dictionary: %w", err)
	}

	commands := make(map[string]*Format, len(dict.Commands))
	for s, id := range dict.Commands {
		f, err := ParseFormat(id, s)
		if err != nil {
			return fmt.Errorf("dictionary: %w", err)
		}
		commands[f.Name] = f
	}
	responses := make(map[int]*Format, len(dict.Responses))
	for s, id := range dict.Responses {
		f, err := ParseFormat(id, s)
		if err != nil {
			return fmt.Errorf("dictionary: %w", err)
		}
		responses[id] = f
	}

	m.mu.Lock()
	m.dictionary = dict
	m.dictionaryData = data
	m.commands = commands
	m.responses = responses
	m.mu.Unlock()
	return nil
}

// identifyChunk sends identify and waits for the matching
// identify_response. Responses are read off the transport queue because
// the dictionary, and with it the response formats, is not known yet.
func (m *MCU) identifyChunk(ctx context.Context, offset uint32, count uint8) ([]byte, error) {
	err := m.transport.SendCommand(identifyID, func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, offset)
		protocol.EncodeVLQUint(out, uint32(count))
	})
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(m.Timeout)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		msg, err := m.transport.ReceiveResponse(time.Until(deadline))
		if err != nil {
			return nil, err
		}
		payload := msg.Payload
		id, err := protocol.DecodeVLQUint(&payload)
		if err != nil || id != identifyResponseID {
			continue
		}
		respOffset, err := protocol.DecodeVLQUint(&payload)
		if err != nil || respOffset != offset {
			continue
		}
		return protocol.DecodeVLQBytes(&payload)
	}
}

// Dictionary returns the parsed dictionary, nil before it is loaded
func (m *MCU) Dictionary() *Dictionary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dictionary
}

// DictionaryJSON returns the decompressed dictionary
func (m *MCU) DictionaryJSON() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dictionaryData
}

// Constant returns a value from the dictionary config section
func (m *MCU) Constant(name string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dictionary == nil {
		return "", false
	}
	v, ok := m.dictionary.Config[name]
	return v, ok
}

// CommandNames lists the commands the firmware accepts, sorted
func (m *MCU) CommandNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.commands))
	for name := range m.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *MCU) format(name string) (*Format, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.commands == nil {
		return nil, ErrNoDictionary
	}
	f, ok := m.commands[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, name)
	}
	return f, nil
}

// Send encodes command name with args and waits for the ACK
func (m *MCU) Send(name string, args ...interface{}) error {
	if m.transport == nil {
		return ErrNotConnected
	}
	f, err := m.format(name)
	if err != nil {
		return err
	}
	body, err := f.Encoder(args...)
	if err != nil {
		return err
	}
	if err := m.transport.SendCommand(uint16(f.ID), body); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Query sends a command and waits for the first response named resp for
// which match returns true (nil matches any).
func (m *MCU) Query(ctx context.Context, resp string, match func(*Response) bool, name string, args ...interface{}) (*Response, error) {
	w := &waiter{name: resp, match: match, ch: make(chan *Response, 1)}
	m.mu.Lock()
	m.waiters = append(m.waiters, w)
	m.mu.Unlock()
	defer m.removeWaiter(w)

	if err := m.Send(name, args...); err != nil {
		return nil, err
	}

	timer := time.NewTimer(m.Timeout)
	defer timer.Stop()
	select {
	case r := <-w.ch:
		return r, nil
	case <-timer.C:
		return nil, fmt.Errorf("%s: no %s within %v", name, resp, m.Timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *MCU) removeWaiter(w *waiter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, o := range m.waiters {
		if o == w {
			m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)
			return
		}
	}
}

// Subscribe calls fn for every response named name. fn runs on the
// transport's read goroutine and must not block.
func (m *MCU) Subscribe(name string, fn func(*Response)) {
	m.mu.Lock()
	m.subs[name] = append(m.subs[name], fn)
	m.mu.Unlock()
}

// handleResponse decodes a response and hands it to the first matching
// waiter and to every subscriber.
func (m *MCU) handleResponse(cmdID uint16, data *[]byte) error {
	m.mu.Lock()
	f := m.responses[int(cmdID)]
	m.mu.Unlock()
	if f == nil {
		return nil
	}
	r, err := f.Decode(data)
	if err != nil {
		m.Logger.Printf("decode %s: %v", f.Name, err)
		return err
	}

	m.mu.Lock()
	for i, w := range m.waiters {
		if w.name == r.Name && (w.match == nil || w.match(r)) {
			w.ch <- r
			m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)
			break
		}
	}
	subs := m.subs[r.Name]
	m.mu.Unlock()

	for _, fn := range subs {
		fn(r)
	}
	return nil
}
