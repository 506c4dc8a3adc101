package registry

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type widget struct{ N int }

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	if err := r.Register("pkg.Widget", func() any { return &widget{} }); err != nil {
		t.Fatal(err)
	}

	v, err := r.Lookup("pkg.Widget")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := v.(*widget); !ok {
		t.Fatalf("expected *widget, got %T", v)
	}

	v2, _ := r.Lookup("pkg.Widget")
	if v == v2 {
		t.Error("Lookup must return a fresh value each call")
	}
}

func TestDuplicateRegistration(t *testing.T) {
	r := New()
	f := func() any { return &widget{} }
	if err := r.Register("pkg.Widget", f); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("pkg.Widget", f); err == nil {
		t.Error("expected error on duplicate registration")
	}
}

func TestRegisterRequiresNameAndFactory(t *testing.T) {
	r := New()
	if err := r.Register("", func() any { return nil }); err == nil {
		t.Error("expected error for empty name")
	}
	if err := r.Register("pkg.X", nil); err == nil {
		t.Error("expected error for nil factory")
	}
}

func TestUnknownType(t *testing.T) {
	r := New()
	_, err := r.Lookup("pkg.Missing")
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
	if r.Has("pkg.Missing") {
		t.Error("Has should be false for unregistered type")
	}
}

func TestNamesSorted(t *testing.T) {
	r := New()
	for _, n := range []string{"c.C", "a.A", "b.B"} {
		if err := r.Register(n, func() any { return &widget{} }); err != nil {
			t.Fatal(err)
		}
	}
	if diff := cmp.Diff([]string{"a.A", "b.B", "c.C"}, r.Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}
}
