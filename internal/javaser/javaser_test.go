package javaser

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// stream builds raw protocol bytes for cases the Encoder does not produce.
type stream struct{ bytes.Buffer }

func newStream() *stream {
	s := &stream{}
	s.u16(StreamMagic)
	s.u16(StreamVersion)
	return s
}

func (s *stream) b(v ...byte) *stream { s.Write(v); return s }
func (s *stream) u16(v uint16) *stream {
	_ = binary.Write(s, binary.BigEndian, v)
	return s
}
func (s *stream) u32(v uint32) *stream {
	_ = binary.Write(s, binary.BigEndian, v)
	return s
}
func (s *stream) u64(v uint64) *stream {
	_ = binary.Write(s, binary.BigEndian, v)
	return s
}
func (s *stream) utf(v string) *stream {
	s.u16(uint16(len(v)))
	s.WriteString(v)
	return s
}

// classDesc writes TC_CLASSDESC name suid flags with the given int fields and no annotation.
func (s *stream) classDesc(name string, flags byte, intFields ...string) *stream {
	s.b(TCClassDesc).utf(name).u64(1).b(flags).u16(uint16(len(intFields)))
	for _, f := range intFields {
		s.b('I').utf(f)
	}
	return s.b(TCEndBlockData)
}

func readAll(t *testing.T, data []byte, onClass ClassFunc) (any, error) {
	t.Helper()
	r, err := NewReader(data, onClass, 0)
	if err != nil {
		return nil, err
	}
	return r.ReadContent()
}

func TestEncodeReadRoundTrip(t *testing.T) {
	obj := &Object{
		Class: "io.typegate.safe.SafeClass",
		Fields: map[string]any{
			"name":    "demo",
			"value":   42,
			"flag":    true,
			"ratio":   0.5,
			"big":     int64(1) << 40,
			"small":   int8(-3),
			"short":   int16(300),
			"single":  float32(1.5),
			"comment": nil,
		},
	}
	data, err := Encode(obj)
	if err != nil {
		t.Fatal(err)
	}

	var seen []string
	v, err := readAll(t, data, func(name string) error {
		seen = append(seen, name)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	got, ok := v.(*Object)
	if !ok {
		t.Fatalf("expected *Object, got %T", v)
	}
	want := map[string]any{
		"name":    "demo",
		"value":   int64(42),
		"flag":    true,
		"ratio":   0.5,
		"big":     int64(1) << 40,
		"small":   int64(-3),
		"short":   int64(300),
		"single":  1.5,
		"comment": nil,
	}
	if diff := cmp.Diff(want, got.Fields); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"io.typegate.safe.SafeClass"}, seen); diff != "" {
		t.Errorf("class callbacks mismatch (-want +got):\n%s", diff)
	}
}

func TestClassCallbackAbortsBeforeFieldData(t *testing.T) {
	data, err := Encode(&Object{Class: "org.gadget.Evil", Fields: map[string]any{"cmd": "x"}})
	if err != nil {
		t.Fatal(err)
	}
	// Cut the stream right after the class name: a reader that consumed any
	// further bytes would fail with ErrMalformed instead of the veto.
	nameEnd := 4 + 2 + 2 + len("org.gadget.Evil")
	veto := errors.New("veto")

	_, err = readAll(t, data[:nameEnd], func(string) error { return veto })
	if !errors.Is(err, veto) {
		t.Fatalf("expected veto error, got %v", err)
	}
}

func TestNestedObjectClassChecked(t *testing.T) {
	inner := &Object{Class: "org.gadget.Inner", Fields: map[string]any{"x": 1}}
	outer := &Object{Class: "io.typegate.safe.Outer", Fields: map[string]any{"child": inner}}
	data, err := Encode(outer)
	if err != nil {
		t.Fatal(err)
	}

	var seen []string
	_, err = readAll(t, data, func(name string) error {
		seen = append(seen, name)
		if name == "org.gadget.Inner" {
			return errors.New("inner rejected")
		}
		return nil
	})
	if err == nil || err.Error() != "inner rejected" {
		t.Fatalf("expected inner rejection, got %v", err)
	}
	if diff := cmp.Diff([]string{"io.typegate.safe.Outer", "org.gadget.Inner"}, seen); diff != "" {
		t.Errorf("callbacks mismatch (-want +got):\n%s", diff)
	}
}

func TestNestedObjectMap(t *testing.T) {
	inner := &Object{Class: "a.Inner", Fields: map[string]any{"x": 1}}
	data, err := Encode(&Object{Class: "a.Outer", Fields: map[string]any{"child": inner, "name": "n"}})
	if err != nil {
		t.Fatal(err)
	}
	v, err := readAll(t, data, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"name": "n", "child": map[string]any{"x": int64(1)}}
	if diff := cmp.Diff(want, v.(*Object).Map()); diff != "" {
		t.Errorf("Map() mismatch (-want +got):\n%s", diff)
	}
}

func TestSuperclassChainCheckedAndOrdered(t *testing.T) {
	s := newStream().b(TCObject)
	s.classDesc("a.Child", SCSerializable, "c")
	s.classDesc("a.Parent", SCSerializable, "p")
	s.b(TCNull)
	s.u32(1) // parent data first
	s.u32(2)

	var seen []string
	v, err := readAll(t, s.Bytes(), func(name string) error {
		seen = append(seen, name)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	obj := v.(*Object)
	if obj.Class != "a.Child" {
		t.Errorf("expected class a.Child, got %s", obj.Class)
	}
	if diff := cmp.Diff(map[string]any{"p": int64(1), "c": int64(2)}, obj.Fields); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a.Child", "a.Parent"}, seen); diff != "" {
		t.Errorf("callbacks mismatch (-want +got):\n%s", diff)
	}
}

// readWithin fails the test if reading data does not finish in time.
func readWithin(t *testing.T, data []byte) error {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		_, err := readAll(t, data, nil)
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not return")
		return nil
	}
}

func TestSelfSuperclassMalformed(t *testing.T) {
	s := newStream().b(TCObject)
	// handle 0 names itself as its superclass
	s.b(TCClassDesc).utf("a.Loop").u64(1).b(SCSerializable).u16(0).b(TCEndBlockData)
	s.b(TCReference).u32(baseWireHandle)

	if err := readWithin(t, s.Bytes()); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestSuperclassCycleMalformed(t *testing.T) {
	s := newStream().b(TCObject)
	s.classDesc("a.A", SCSerializable)
	s.classDesc("a.B", SCSerializable)
	s.b(TCReference).u32(baseWireHandle) // a.B extends a.A extends a.B

	if err := readWithin(t, s.Bytes()); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestSharedSuperclassReferenceAllowed(t *testing.T) {
	s := newStream().b(TCObject)
	s.b(TCClassDesc).utf("a.Pair").u64(1).b(SCSerializable).u16(2)
	s.b('L').utf("x").b(TCString).utf("La/Base;")
	s.b('L').utf("y").b(TCReference).u32(baseWireHandle + 1)
	s.b(TCEndBlockData, TCNull)
	// handle 3: a.Left extends a.Base, handle 4: a.Base
	s.b(TCObject)
	s.classDesc("a.Left", SCSerializable)
	s.classDesc("a.Base", SCSerializable, "v")
	s.b(TCNull)
	s.u32(7)
	// a.Right reuses a.Base by reference
	s.b(TCObject)
	s.classDesc("a.Right", SCSerializable)
	s.b(TCReference).u32(baseWireHandle + 4)
	s.u32(8)

	v, err := readAll(t, s.Bytes(), nil)
	if err != nil {
		t.Fatal(err)
	}
	fields := v.(*Object).Fields
	if got := fields["y"].(*Object); got.Class != "a.Right" || got.Fields["v"] != int64(8) {
		t.Errorf("unexpected y: %+v", got)
	}
}

func TestWriteMethodAnnotationSkipped(t *testing.T) {
	s := newStream().b(TCObject)
	s.classDesc("a.Custom", SCSerializable|SCWriteMethod, "n")
	s.b(TCNull)
	s.u32(7)
	s.b(TCBlockData, 3, 0xde, 0xad, 0xbe)
	s.b(TCEndBlockData)

	v, err := readAll(t, s.Bytes(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := v.(*Object).Fields["n"]; got != int64(7) {
		t.Errorf("expected n=7, got %v", got)
	}
}

func TestTopLevelStringChecked(t *testing.T) {
	data, err := Encode("hello")
	if err != nil {
		t.Fatal(err)
	}
	var seen []string
	v, err := readAll(t, data, func(name string) error {
		seen = append(seen, name)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if v != "hello" {
		t.Errorf("expected hello, got %v", v)
	}
	if diff := cmp.Diff([]string{StringClass}, seen); diff != "" {
		t.Errorf("callbacks mismatch (-want +got):\n%s", diff)
	}
}

func TestArrayClassCheckedThenUnsupported(t *testing.T) {
	s := newStream().b(TCArray)
	s.b(TCClassDesc).utf("[Ljava.lang.Object;").u64(1).b(SCSerializable).u16(0).b(TCEndBlockData, TCNull)
	s.u32(0)

	var seen []string
	_, err := readAll(t, s.Bytes(), func(name string) error {
		seen = append(seen, name)
		return nil
	})
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if len(seen) != 1 || seen[0] != "[Ljava.lang.Object;" {
		t.Errorf("expected array class reported, got %v", seen)
	}
}

func TestCyclicReferenceUnsupported(t *testing.T) {
	s := newStream().b(TCObject)
	// handle 0: class desc, handle 1: field type string, handle 2: object
	s.b(TCClassDesc).utf("a.Node").u64(1).b(SCSerializable).u16(1)
	s.b('L').utf("next").b(TCString).utf("La/Node;")
	s.b(TCEndBlockData, TCNull)
	s.b(TCReference).u32(baseWireHandle + 2)

	_, err := readAll(t, s.Bytes(), nil)
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported for cycle, got %v", err)
	}
}

func TestSharedReferenceAllowed(t *testing.T) {
	s := newStream().b(TCObject)
	s.b(TCClassDesc).utf("a.Pair").u64(1).b(SCSerializable).u16(2)
	s.b('L').utf("a").b(TCString).utf("Ljava/lang/String;")
	s.b('L').utf("b").b(TCReference).u32(baseWireHandle + 1)
	s.b(TCEndBlockData, TCNull)
	s.b(TCString).utf("same")                // handle 3
	s.b(TCReference).u32(baseWireHandle + 3) // same string again

	v, err := readAll(t, s.Bytes(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(map[string]any{"a": "same", "b": "same"}, v.(*Object).Fields); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
}

func TestDepthLimit(t *testing.T) {
	obj := &Object{Class: "a.N0", Fields: map[string]any{}}
	cur := obj
	for i := 0; i < 5; i++ {
		next := &Object{Class: "a.N", Fields: map[string]any{}}
		cur.Fields["next"] = next
		cur = next
	}
	data, err := Encode(obj)
	if err != nil {
		t.Fatal(err)
	}
	r, err := NewReader(data, nil, 3)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.ReadContent(); !errors.Is(err, ErrTooDeep) {
		t.Fatalf("expected ErrTooDeep, got %v", err)
	}
}

func TestBadHeader(t *testing.T) {
	for _, data := range [][]byte{
		nil,
		{0xAC},
		{0xCA, 0xFE, 0x00, 0x05},
		{0xAC, 0xED, 0x00, 0x04},
	} {
		if _, err := NewReader(data, nil, 0); !errors.Is(err, ErrMalformed) {
			t.Errorf("%x: expected ErrMalformed, got %v", data, err)
		}
	}
}

func TestTruncatedStream(t *testing.T) {
	data, err := Encode(&Object{Class: "a.B", Fields: map[string]any{"n": 1}})
	if err != nil {
		t.Fatal(err)
	}
	for cut := 5; cut < len(data); cut++ {
		if _, err := readAll(t, data[:cut], nil); err == nil {
			t.Errorf("cut at %d: expected error", cut)
		}
	}
}

func TestUnsupportedTypeCodes(t *testing.T) {
	for _, tc := range []byte{TCClass, TCProxyClassDesc, TCException, TCReset, TCBlockData} {
		data := newStream().b(tc).Bytes()
		if _, err := readAll(t, data, nil); !errors.Is(err, ErrUnsupported) {
			t.Errorf("0x%02x: expected ErrUnsupported, got %v", tc, err)
		}
	}
	if _, err := readAll(t, newStream().b(0x10).Bytes(), nil); !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed for unknown code, got %v", err)
	}
}

func TestModifiedUTF8(t *testing.T) {
	for _, s := range []string{"plain", "caffè", "日本", "nul\x00byte", "emoji 😀"} {
		got, err := decodeModifiedUTF8(encodeModifiedUTF8(s))
		if err != nil {
			t.Fatalf("%q: %v", s, err)
		}
		if got != s {
			t.Errorf("round trip %q → %q", s, got)
		}
	}
	if enc := encodeModifiedUTF8("\x00"); !bytes.Equal(enc, []byte{0xC0, 0x80}) {
		t.Errorf("NUL must encode as C0 80, got %x", enc)
	}
	if _, err := decodeModifiedUTF8([]byte{0xC3}); !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed for truncated sequence, got %v", err)
	}
}

func TestEncodeRejectsUnsupportedValues(t *testing.T) {
	if _, err := Encode(&Object{Class: "a.B", Fields: map[string]any{"x": []int{1}}}); err == nil {
		t.Error("expected error for slice field")
	}
	if _, err := Encode(42); err == nil {
		t.Error("expected error for non-object content")
	}
}
