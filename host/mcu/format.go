package mcu

import (
	"fmt"
	"strings"

	"gomotor/protocol"
)

// ParamType is the wire class of a dictionary parameter
type ParamType uint8

const (
	ParamUint  ParamType = iota // %c %hu %u
	ParamInt                    // %hi %i
	ParamBytes                  // %s %*s %.*s
)

// Param is one name=%type entry of a message format
type Param struct {
	Name string
	Type ParamType
}

// Format is a parsed command or response from the dictionary, for example
// "motor_drive oid=%c speed=%i".
type Format struct {
	ID     int
	Name   string
	Params []Param
}

// ParseFormat parses a dictionary key
func ParseFormat(id int, s string) (*Format, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty format")
	}
	f := &Format{ID: id, Name: fields[0]}
	for _, field := range fields[1:] {
		name, typ, ok := strings.Cut(field, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("%s: malformed parameter %q", f.Name, field)
		}
		var pt ParamType
		switch typ {
		case "%c", "%hu", "%u":
			pt = ParamUint
		case "%hi", "%i":
			pt = ParamInt
		case "%s", "%*s", "%.*s":
			pt = ParamBytes
		default:
			return nil, fmt.Errorf("%s: unknown type %q for %s", f.Name, typ, name)
		}
		f.Params = append(f.Params, Param{Name: name, Type: pt})
	}
	return f, nil
}

// String renders the format back to dictionary form
func (f *Format) String() string {
	var b strings.Builder
	b.WriteString(f.Name)
	for _, p := range f.Params {
		b.WriteString(" " + p.Name + "=")
		switch p.Type {
		case ParamUint:
			b.WriteString("%u")
		case ParamInt:
			b.WriteString("%i")
		default:
			b.WriteString("%*s")
		}
	}
	return b.String()
}

// Encoder checks args against the format and returns the body writer for
// the transport. Integers of any Go width, bool, string and []byte are
// accepted.
func (f *Format) Encoder(args ...interface{}) (func(protocol.OutputBuffer), error) {
	if len(args) != len(f.Params) {
		return nil, fmt.Errorf("%s: got %d arguments, want %d", f.Name, len(args), len(f.Params))
	}

	ints := make([]int64, len(args))
	bufs := make([][]byte, len(args))
	for i, a := range args {
		p := f.Params[i]
		if p.Type == ParamBytes {
			switch v := a.(type) {
			case string:
				bufs[i] = []byte(v)
			case []byte:
				bufs[i] = v
			default:
				return nil, fmt.Errorf("%s: %s wants bytes, got %T", f.Name, p.Name, a)
			}
			continue
		}
		v, err := toInt64(a)
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", f.Name, p.Name, err)
		}
		if p.Type == ParamUint && (v < 0 || v > 0xFFFFFFFF) {
			return nil, fmt.Errorf("%s: %s=%d out of range", f.Name, p.Name, v)
		}
		if p.Type == ParamInt && (v < -1<<31 || v > 1<<31-1) {
			return nil, fmt.Errorf("%s: %s=%d out of range", f.Name, p.Name, v)
		}
		ints[i] = v
	}

	return func(out protocol.OutputBuffer) {
		for i, p := range f.Params {
			switch p.Type {
			case ParamUint:
				protocol.EncodeVLQUint(out, uint32(ints[i]))
			case ParamInt:
				protocol.EncodeVLQInt(out, int32(ints[i]))
			default:
				protocol.EncodeVLQBytes(out, bufs[i])
			}
		}
	}, nil
}

func toInt64(a interface{}) (int64, error) {
	switch v := a.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("unsupported argument type %T", a)
	}
}

// Response is a decoded response message
type Response struct {
	Name   string
	Values map[string]int64
	Data   map[string][]byte
}

// Decode reads the parameters of f from data (the command id already
// consumed).
func (f *Format) Decode(data *[]byte) (*Response, error) {
	r := &Response{Name: f.Name, Values: make(map[string]int64, len(f.Params))}
	for _, p := range f.Params {
		switch p.Type {
		case ParamUint:
			v, err := protocol.DecodeVLQUint(data)
			if err != nil {
				return nil, fmt.Errorf("%s: %s: %w", f.Name, p.Name, err)
			}
			r.Values[p.Name] = int64(v)
		case ParamInt:
			v, err := protocol.DecodeVLQInt(data)
			if err != nil {
				return nil, fmt.Errorf("%s: %s: %w", f.Name, p.Name, err)
			}
			r.Values[p.Name] = int64(v)
		default:
			b, err := protocol.DecodeVLQBytes(data)
			if err != nil {
				return nil, fmt.Errorf("%s: %s: %w", f.Name, p.Name, err)
			}
			if r.Data == nil {
				r.Data = make(map[string][]byte)
			}
			r.Data[p.Name] = append([]byte(nil), b...)
		}
	}
	return r, nil
}

// Uint returns a parameter as uint32
func (r *Response) Uint(name string) uint32 { return uint32(r.Values[name]) }

// Int returns a parameter as int32
func (r *Response) Int(name string) int32 { return int32(r.Values[name]) }

// String returns a bytes parameter as a string
func (r *Response) String(name string) string { return string(r.Data[name]) }
