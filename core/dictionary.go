package core

import (
	"bytes"
	"sync"

	"gomotor/tinycompress"
)

const firmwareVersion = "gomotor-0.1.0"

// Dictionary is what identify serves: every command and response format
// with its id, the constants the host needs (MOTOR_PERIOD, CLOCK_FREQ) and
// enumerations such as pin names. It is rendered as JSON and sent
// zlib-compressed.
type Dictionary struct {
	mu     sync.RWMutex
	reg    *CommandRegistry
	config map[string]string
	enums  map[string][]string
	built  []byte // compressed, nil until BuildDictionary or after a change
}

var globalDictionary = NewDictionary(globalRegistry)

// NewDictionary returns an empty dictionary over the commands in reg.
func NewDictionary(reg *CommandRegistry) *Dictionary {
	return &Dictionary{
		reg:    reg,
		config: make(map[string]string),
		enums:  make(map[string][]string),
	}
}

// GetGlobalDictionary returns the dictionary served by identify.
func GetGlobalDictionary() *Dictionary {
	return globalDictionary
}

// RegisterConstant adds a constant to the served dictionary.
func RegisterConstant(name string, value interface{}) {
	globalDictionary.AddConstant(name, value)
}

// RegisterEnumeration adds an enumeration to the served dictionary.
func RegisterEnumeration(name string, values []string) {
	globalDictionary.AddEnumeration(name, values)
}

// AddConstant records value under name. Integers and strings are both sent
// as JSON strings.
func (d *Dictionary) AddConstant(name string, value interface{}) {
	d.mu.Lock()
	d.config[name] = valueToString(value)
	d.built = nil
	d.mu.Unlock()
}

// AddEnumeration maps each non-empty value to its index. Empty entries
// leave a gap so indices match the hardware numbering.
func (d *Dictionary) AddEnumeration(name string, values []string) {
	d.mu.Lock()
	d.enums[name] = append([]string(nil), values...)
	d.built = nil
	d.mu.Unlock()
}

// BuildDictionary compresses the dictionary once all commands are
// registered. If compression fails the plain JSON is served instead.
func (d *Dictionary) BuildDictionary() {
	raw := d.JSON()

	var buf bytes.Buffer
	zw := tinycompress.NewWriter(&buf)
	_, err := zw.Write(raw)
	if err == nil {
		err = zw.Close()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		DebugPrintln("[dict] compression failed: " + err.Error())
		d.built = raw
		return
	}
	d.built = append([]byte(nil), buf.Bytes()...)
	DebugPrintln("[dict] " + itoa(len(raw)) + " bytes json, " + itoa(len(d.built)) + " bytes zlib")
}

// Generate returns the bytes identify serves: the built dictionary, or the
// plain JSON when nothing has been built since the last change.
func (d *Dictionary) Generate() []byte {
	d.mu.RLock()
	built := d.built
	d.mu.RUnlock()
	if built != nil {
		return built
	}
	return d.JSON()
}

// GetChunk returns at most count bytes of Generate() starting at offset.
// Past the end it returns an empty chunk, which ends the host's download.
func (d *Dictionary) GetChunk(offset uint32, count uint8) []byte {
	data := d.Generate()
	if offset >= uint32(len(data)) {
		return []byte{}
	}
	end := offset + uint32(count)
	if end > uint32(len(data)) {
		end = uint32(len(data))
	}
	return append([]byte(nil), data[offset:end]...)
}

// JSON renders the uncompressed dictionary.
func (d *Dictionary) JSON() []byte {
	// registry lock first, never both in the opposite order
	commands, responses := d.reg.GetCommandsAndResponses()

	d.mu.RLock()
	defer d.mu.RUnlock()

	var w jsonWriter
	w.raw(`{"version":`)
	w.str(firmwareVersion)
	w.raw(`,"build_versions":"go-tinygo","config":{`)
	for i, name := range sortedKeys(d.config) {
		w.sep(i)
		w.str(name)
		w.raw(":")
		w.str(d.config[name])
	}
	w.raw(`},"commands":`)
	w.ids(commands)
	w.raw(`,"responses":`)
	w.ids(responses)
	if len(d.enums) > 0 {
		w.raw(`,"enumerations":{`)
		for i, name := range sortedKeys(d.enums) {
			w.sep(i)
			w.str(name)
			w.raw(":{")
			n := 0
			for idx, v := range d.enums[name] {
				if v == "" {
					continue
				}
				w.sep(n)
				w.str(v)
				w.raw(":" + itoa(idx))
				n++
			}
			w.raw("}")
		}
		w.raw("}")
	}
	w.raw("}")
	return w.b
}

// jsonWriter emits the small JSON subset the dictionary needs without
// pulling encoding/json into the firmware image. Names and formats never
// contain quotes or backslashes.
type jsonWriter struct{ b []byte }

func (w *jsonWriter) raw(s string) { w.b = append(w.b, s...) }

func (w *jsonWriter) str(s string) {
	w.b = append(w.b, '"')
	w.b = append(w.b, s...)
	w.b = append(w.b, '"')
}

func (w *jsonWriter) sep(i int) {
	if i > 0 {
		w.b = append(w.b, ',')
	}
}

// ids writes m as an object ordered by id
func (w *jsonWriter) ids(m map[string]int) {
	keys := sortedKeys(m)
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && m[keys[j]] < m[keys[j-1]]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	w.raw("{")
	for i, k := range keys {
		w.sep(i)
		w.str(k)
		w.raw(":" + itoa(m[k]))
	}
	w.raw("}")
}

// sortedKeys is an insertion sort; the maps are small and the sort package
// stays out of the image.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}
