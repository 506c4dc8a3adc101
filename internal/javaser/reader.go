package javaser

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// ClassFunc is called with each class name as soon as it is read. A non-nil
// error aborts the read before any instance data of that class is consumed.
type ClassFunc func(name string) error

// DefaultMaxDepth bounds object nesting when no limit is given.
const DefaultMaxDepth = 32

type classDesc struct {
	name   string
	flags  byte
	fields []fieldDesc
	super  *classDesc
}

type fieldDesc struct {
	code      byte
	name      string
	className string
}

// Reader reads one top-level content element from a stream.
type Reader struct {
	r          *bytes.Reader
	onClass    ClassFunc
	maxDepth   int
	handles    []any
	inProgress map[int]bool
	building   map[*classDesc]bool // superclass not read yet
}

// NewReader validates the stream header and returns a Reader.
func NewReader(data []byte, onClass ClassFunc, maxDepth int) (*Reader, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	r := &Reader{
		r:          bytes.NewReader(data),
		onClass:    onClass,
		maxDepth:   maxDepth,
		inProgress: make(map[int]bool),
		building:   make(map[*classDesc]bool),
	}
	magic, err := r.u16()
	if err != nil {
		return nil, err
	}
	version, err := r.u16()
	if err != nil {
		return nil, err
	}
	if magic != StreamMagic || version != StreamVersion {
		return nil, fmt.Errorf("%w: bad header %04x %04x", ErrMalformed, magic, version)
	}
	return r, nil
}

// ReadContent reads the next element: *Object, string or nil.
func (r *Reader) ReadContent() (any, error) {
	return r.readContent(0)
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return r.r.Len()
}

func (r *Reader) readContent(depth int) (any, error) {
	if depth > r.maxDepth {
		return nil, ErrTooDeep
	}
	tc, err := r.byte()
	if err != nil {
		return nil, err
	}
	switch tc {
	case TCNull:
		return nil, nil
	case TCObject:
		return r.readNewObject(depth)
	case TCString, TCLongString:
		if depth == 0 {
			if err := r.checkClass(StringClass); err != nil {
				return nil, err
			}
		}
		return r.readNewString(tc)
	case TCReference:
		v, h, err := r.readHandle()
		if err != nil {
			return nil, err
		}
		if r.inProgress[h] {
			return nil, fmt.Errorf("%w: cyclic object reference", ErrUnsupported)
		}
		switch v.(type) {
		case *Object, string:
			return v, nil
		}
		return nil, fmt.Errorf("%w: reference to %T where content expected", ErrMalformed, v)
	case TCArray, TCEnum:
		// The element or enum class is still subject to admission.
		if _, err := r.readClassDesc(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: type code 0x%02x", ErrUnsupported, tc)
	case TCClass, TCClassDesc, TCProxyClassDesc, TCException, TCReset, TCBlockData, TCBlockDataLong:
		return nil, fmt.Errorf("%w: type code 0x%02x", ErrUnsupported, tc)
	}
	return nil, fmt.Errorf("%w: unknown type code 0x%02x", ErrMalformed, tc)
}

func (r *Reader) readNewObject(depth int) (*Object, error) {
	cd, err := r.readClassDesc()
	if err != nil {
		return nil, err
	}
	if cd == nil {
		return nil, fmt.Errorf("%w: object without class descriptor", ErrMalformed)
	}

	var chain []*classDesc
	for c := cd; c != nil; c = c.super {
		if c.flags&(SCExternalizable|SCEnum) != 0 {
			return nil, fmt.Errorf("%w: externalizable or enum class %s", ErrUnsupported, c.name)
		}
		if c.flags&SCSerializable == 0 {
			return nil, fmt.Errorf("%w: class %s is not serializable", ErrMalformed, c.name)
		}
		chain = append([]*classDesc{c}, chain...)
	}

	obj := &Object{Class: cd.name, Fields: make(map[string]any)}
	h := r.newHandle(obj)
	r.inProgress[h] = true
	defer delete(r.inProgress, h)

	// Superclass data precedes subclass data.
	for _, c := range chain {
		for _, f := range c.fields {
			v, err := r.readValue(f, depth)
			if err != nil {
				return nil, err
			}
			obj.Fields[f.name] = v
		}
		if c.flags&SCWriteMethod != 0 {
			if err := r.skipAnnotation(depth); err != nil {
				return nil, err
			}
		}
	}
	return obj, nil
}

func (r *Reader) readClassDesc() (*classDesc, error) {
	tc, err := r.byte()
	if err != nil {
		return nil, err
	}
	switch tc {
	case TCNull:
		return nil, nil
	case TCReference:
		v, _, err := r.readHandle()
		if err != nil {
			return nil, err
		}
		cd, ok := v.(*classDesc)
		if !ok {
			return nil, fmt.Errorf("%w: reference to %T where class descriptor expected", ErrMalformed, v)
		}
		if r.building[cd] {
			return nil, fmt.Errorf("%w: class %s is its own superclass", ErrMalformed, cd.name)
		}
		return cd, nil
	case TCClassDesc:
		return r.readNewClassDesc()
	case TCProxyClassDesc:
		return nil, fmt.Errorf("%w: proxy class descriptor", ErrUnsupported)
	}
	return nil, fmt.Errorf("%w: type code 0x%02x where class descriptor expected", ErrMalformed, tc)
}

func (r *Reader) readNewClassDesc() (*classDesc, error) {
	name, err := r.utf()
	if err != nil {
		return nil, err
	}
	if err := r.checkClass(name); err != nil {
		return nil, err
	}
	if _, err := r.i64(); err != nil { // serialVersionUID
		return nil, err
	}
	cd := &classDesc{name: name}
	r.newHandle(cd)

	if cd.flags, err = r.byte(); err != nil {
		return nil, err
	}
	count, err := r.u16()
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(count); i++ {
		code, err := r.byte()
		if err != nil {
			return nil, err
		}
		fname, err := r.utf()
		if err != nil {
			return nil, err
		}
		f := fieldDesc{code: code, name: fname}
		switch code {
		case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		case 'L', '[':
			if f.className, err = r.readTypeString(); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: field %s has type code %q", ErrMalformed, fname, code)
		}
		cd.fields = append(cd.fields, f)
	}

	if err := r.skipClassAnnotation(); err != nil {
		return nil, err
	}
	r.building[cd] = true
	cd.super, err = r.readClassDesc()
	delete(r.building, cd)
	if err != nil {
		return nil, err
	}
	return cd, nil
}

func (r *Reader) checkClass(name string) error {
	if r.onClass == nil {
		return nil
	}
	return r.onClass(name)
}

func (r *Reader) readValue(f fieldDesc, depth int) (any, error) {
	switch f.code {
	case 'B':
		b, err := r.byte()
		return int64(int8(b)), err
	case 'C':
		v, err := r.u16()
		return string(rune(v)), err
	case 'D':
		v, err := r.u64()
		return math.Float64frombits(v), err
	case 'F':
		v, err := r.u32()
		return float64(math.Float32frombits(v)), err
	case 'I':
		v, err := r.u32()
		return int64(int32(v)), err
	case 'J':
		return r.i64()
	case 'S':
		v, err := r.u16()
		return int64(int16(v)), err
	case 'Z':
		b, err := r.byte()
		return b != 0, err
	}
	return r.readContent(depth + 1)
}

// skipClassAnnotation consumes annotateClass output. Only block data is accepted.
func (r *Reader) skipClassAnnotation() error {
	for {
		tc, err := r.byte()
		if err != nil {
			return err
		}
		switch tc {
		case TCEndBlockData:
			return nil
		case TCBlockData, TCBlockDataLong:
			if err := r.skipBlock(tc); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: class annotation content 0x%02x", ErrUnsupported, tc)
		}
	}
}

// skipAnnotation consumes writeObject output. Nested objects are still
// read through readContent so their classes are checked.
func (r *Reader) skipAnnotation(depth int) error {
	for {
		tc, err := r.peek()
		if err != nil {
			return err
		}
		switch tc {
		case TCEndBlockData:
			_, _ = r.byte()
			return nil
		case TCBlockData, TCBlockDataLong:
			_, _ = r.byte()
			if err := r.skipBlock(tc); err != nil {
				return err
			}
		default:
			if _, err := r.readContent(depth + 1); err != nil {
				return err
			}
		}
	}
}

func (r *Reader) skipBlock(tc byte) error {
	var n int64
	if tc == TCBlockData {
		b, err := r.byte()
		if err != nil {
			return err
		}
		n = int64(b)
	} else {
		v, err := r.u32()
		if err != nil {
			return err
		}
		n = int64(int32(v))
	}
	if n < 0 || n > int64(r.r.Len()) {
		return fmt.Errorf("%w: block length %d", ErrMalformed, n)
	}
	_, err := r.r.Seek(n, io.SeekCurrent)
	return err
}

func (r *Reader) readTypeString() (string, error) {
	tc, err := r.byte()
	if err != nil {
		return "", err
	}
	switch tc {
	case TCString, TCLongString:
		return r.readNewString(tc)
	case TCReference:
		v, _, err := r.readHandle()
		if err != nil {
			return "", err
		}
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("%w: field type is not a string", ErrMalformed)
		}
		return s, nil
	}
	return "", fmt.Errorf("%w: type code 0x%02x where field type expected", ErrMalformed, tc)
}

func (r *Reader) readNewString(tc byte) (string, error) {
	var s string
	var err error
	if tc == TCLongString {
		var n int64
		if n, err = r.i64(); err != nil {
			return "", err
		}
		if n < 0 || n > int64(r.r.Len()) {
			return "", fmt.Errorf("%w: string length %d", ErrMalformed, n)
		}
		s, err = r.utfBytes(int(n))
	} else {
		s, err = r.utf()
	}
	if err != nil {
		return "", err
	}
	r.newHandle(s)
	return s, nil
}

func (r *Reader) newHandle(v any) int {
	r.handles = append(r.handles, v)
	return len(r.handles) - 1
}

func (r *Reader) readHandle() (any, int, error) {
	v, err := r.u32()
	if err != nil {
		return nil, 0, err
	}
	idx := int(v) - baseWireHandle
	if idx < 0 || idx >= len(r.handles) {
		return nil, 0, fmt.Errorf("%w: handle 0x%x out of range", ErrMalformed, v)
	}
	return r.handles[idx], idx, nil
}

func (r *Reader) utf() (string, error) {
	n, err := r.u16()
	if err != nil {
		return "", err
	}
	return r.utfBytes(int(n))
}

func (r *Reader) utfBytes(n int) (string, error) {
	if n > r.r.Len() {
		return "", fmt.Errorf("%w: truncated string", ErrMalformed)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return decodeModifiedUTF8(buf)
}

func (r *Reader) peek() (byte, error) {
	b, err := r.byte()
	if err != nil {
		return 0, err
	}
	_ = r.r.UnreadByte()
	return b, nil
}

func (r *Reader) byte() (byte, error) {
	b, err := r.r.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("%w: unexpected end of stream", ErrMalformed)
	}
	return b, nil
}

func (r *Reader) read(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, fmt.Errorf("%w: unexpected end of stream", ErrMalformed)
	}
	return buf, nil
}

func (r *Reader) u16() (uint16, error) {
	b, err := r.read(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *Reader) u32() (uint32, error) {
	b, err := r.read(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *Reader) u64() (uint64, error) {
	b, err := r.read(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (r *Reader) i64() (int64, error) {
	v, err := r.u64()
	return int64(v), err
}
