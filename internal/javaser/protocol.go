// Package javaser reads and writes the subset of the Java Object
// Serialization Stream protocol needed to inspect class descriptors and flat
// field data. Every class name is reported to a callback before any data
// belonging to an instance of that class is read.
package javaser

import (
	"errors"
	"unicode/utf16"
)

// Stream header.
const (
	StreamMagic   uint16 = 0xACED
	StreamVersion uint16 = 5
)

// Type codes.
const (
	TCNull           byte = 0x70
	TCReference      byte = 0x71
	TCClassDesc      byte = 0x72
	TCObject         byte = 0x73
	TCString         byte = 0x74
	TCArray          byte = 0x75
	TCClass          byte = 0x76
	TCBlockData      byte = 0x77
	TCEndBlockData   byte = 0x78
	TCReset          byte = 0x79
	TCBlockDataLong  byte = 0x7A
	TCException      byte = 0x7B
	TCLongString     byte = 0x7C
	TCProxyClassDesc byte = 0x7D
	TCEnum           byte = 0x7E
)

// Class descriptor flags.
const (
	SCWriteMethod    byte = 0x01
	SCSerializable   byte = 0x02
	SCExternalizable byte = 0x04
	SCBlockData      byte = 0x08
	SCEnum           byte = 0x10
)

const baseWireHandle = 0x7E0000

// StringClass is the class name reported for a top-level string.
const StringClass = "java.lang.String"

var (
	// ErrMalformed reports a stream that violates the protocol.
	ErrMalformed = errors.New("malformed object stream")
	// ErrUnsupported reports valid stream content this reader does not handle.
	ErrUnsupported = errors.New("unsupported object stream content")
	// ErrTooDeep reports nesting beyond the configured depth.
	ErrTooDeep = errors.New("object graph too deep")
)

// Object is one instance read from a stream, before it is bound to a Go type.
// Field values are bool, int64, float64, string, nil or *Object.
type Object struct {
	Class  string
	Fields map[string]any
}

// Map converts the object graph to nested maps suitable for JSON binding.
func (o *Object) Map() map[string]any {
	out := make(map[string]any, len(o.Fields))
	for k, v := range o.Fields {
		if nested, ok := v.(*Object); ok && nested != nil {
			out[k] = nested.Map()
			continue
		}
		out[k] = v
	}
	return out
}

// decodeModifiedUTF8 decodes Java's modified UTF-8. Invalid sequences yield ErrMalformed.
func decodeModifiedUTF8(b []byte) (string, error) {
	units := make([]uint16, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c&0x80 == 0:
			units = append(units, uint16(c))
			i++
		case c&0xE0 == 0xC0:
			if i+1 >= len(b) || b[i+1]&0xC0 != 0x80 {
				return "", ErrMalformed
			}
			units = append(units, uint16(c&0x1F)<<6|uint16(b[i+1]&0x3F))
			i += 2
		case c&0xF0 == 0xE0:
			if i+2 >= len(b) || b[i+1]&0xC0 != 0x80 || b[i+2]&0xC0 != 0x80 {
				return "", ErrMalformed
			}
			units = append(units, uint16(c&0x0F)<<12|uint16(b[i+1]&0x3F)<<6|uint16(b[i+2]&0x3F))
			i += 3
		default:
			return "", ErrMalformed
		}
	}
	return string(utf16.Decode(units)), nil
}

func encodeModifiedUTF8(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, 0, len(units))
	for _, u := range units {
		switch {
		case u >= 0x01 && u <= 0x7F:
			out = append(out, byte(u))
		case u <= 0x7FF:
			out = append(out, 0xC0|byte(u>>6), 0x80|byte(u&0x3F))
		default:
			out = append(out, 0xE0|byte(u>>12), 0x80|byte((u>>6)&0x3F), 0x80|byte(u&0x3F))
		}
	}
	return out
}
