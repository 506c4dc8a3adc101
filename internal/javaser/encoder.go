package javaser

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Encoder writes flat serializable objects. Field order follows Java's
// ObjectStreamClass: primitives first, then references, each sorted by name.
// Field values may be bool, int8, int16, int32, int, int64, float32,
// float64, string, nil or *Object.
type Encoder struct {
	buf bytes.Buffer
}

// Encode returns a complete stream containing v (an *Object or a string).
func Encode(v any) ([]byte, error) {
	e := &Encoder{}
	e.u16(StreamMagic)
	e.u16(StreamVersion)
	if err := e.writeContent(v); err != nil {
		return nil, err
	}
	return e.buf.Bytes(), nil
}

func (e *Encoder) writeContent(v any) error {
	switch val := v.(type) {
	case nil:
		e.buf.WriteByte(TCNull)
	case string:
		e.writeString(val)
	case *Object:
		if val == nil {
			e.buf.WriteByte(TCNull)
			return nil
		}
		return e.writeObject(val)
	default:
		return fmt.Errorf("javaser: cannot encode %T as content", v)
	}
	return nil
}

func (e *Encoder) writeObject(o *Object) error {
	fields, err := describeFields(o.Fields)
	if err != nil {
		return fmt.Errorf("javaser: class %s: %w", o.Class, err)
	}

	e.buf.WriteByte(TCObject)
	e.buf.WriteByte(TCClassDesc)
	e.utf(o.Class)
	e.u64(0) // serialVersionUID
	e.buf.WriteByte(SCSerializable)
	e.u16(uint16(len(fields)))
	for _, f := range fields {
		e.buf.WriteByte(f.code)
		e.utf(f.name)
		if f.className != "" {
			e.writeString(f.className)
		}
	}
	e.buf.WriteByte(TCEndBlockData)
	e.buf.WriteByte(TCNull) // no superclass

	for _, f := range fields {
		if err := e.writeValue(f.code, o.Fields[f.name]); err != nil {
			return fmt.Errorf("javaser: field %s: %w", f.name, err)
		}
	}
	return nil
}

func (e *Encoder) writeValue(code byte, v any) error {
	switch code {
	case 'Z':
		if v.(bool) {
			e.buf.WriteByte(1)
		} else {
			e.buf.WriteByte(0)
		}
	case 'B':
		e.buf.WriteByte(byte(v.(int8)))
	case 'S':
		e.u16(uint16(v.(int16)))
	case 'I':
		switch n := v.(type) {
		case int32:
			e.u32(uint32(n))
		case int:
			e.u32(uint32(int32(n)))
		}
	case 'J':
		e.u64(uint64(v.(int64)))
	case 'F':
		e.u32(math.Float32bits(v.(float32)))
	case 'D':
		e.u64(math.Float64bits(v.(float64)))
	default:
		return e.writeContent(v)
	}
	return nil
}

func describeFields(values map[string]any) ([]fieldDesc, error) {
	var prims, refs []fieldDesc
	for name, v := range values {
		f := fieldDesc{name: name}
		switch val := v.(type) {
		case bool:
			f.code = 'Z'
		case int8:
			f.code = 'B'
		case int16:
			f.code = 'S'
		case int32:
			f.code = 'I'
		case int:
			if val < math.MinInt32 || val > math.MaxInt32 {
				return nil, fmt.Errorf("field %s: %d overflows int", name, val)
			}
			f.code = 'I'
		case int64:
			f.code = 'J'
		case float32:
			f.code = 'F'
		case float64:
			f.code = 'D'
		case string:
			f.code, f.className = 'L', "Ljava/lang/String;"
		case *Object:
			f.code, f.className = 'L', "L"+strings.ReplaceAll(val.Class, ".", "/")+";"
		case nil:
			f.code, f.className = 'L', "Ljava/lang/Object;"
		default:
			return nil, fmt.Errorf("field %s: unsupported value type %T", name, v)
		}
		if f.className == "" {
			prims = append(prims, f)
		} else {
			refs = append(refs, f)
		}
	}
	sort.Slice(prims, func(i, j int) bool { return prims[i].name < prims[j].name })
	sort.Slice(refs, func(i, j int) bool { return refs[i].name < refs[j].name })
	return append(prims, refs...), nil
}

func (e *Encoder) writeString(s string) {
	b := encodeModifiedUTF8(s)
	if len(b) > math.MaxUint16 {
		e.buf.WriteByte(TCLongString)
		e.u64(uint64(len(b)))
	} else {
		e.buf.WriteByte(TCString)
		e.u16(uint16(len(b)))
	}
	e.buf.Write(b)
}

func (e *Encoder) utf(s string) {
	b := encodeModifiedUTF8(s)
	e.u16(uint16(len(b)))
	e.buf.Write(b)
}

func (e *Encoder) u16(v uint16) {
	_ = binary.Write(&e.buf, binary.BigEndian, v)
}

func (e *Encoder) u32(v uint32) {
	_ = binary.Write(&e.buf, binary.BigEndian, v)
}

func (e *Encoder) u64(v uint64) {
	_ = binary.Write(&e.buf, binary.BigEndian, v)
}
