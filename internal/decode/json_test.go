package decode

import (
	"errors"
	"testing"

	"github.com/ppiankov/typegate/internal/admission"
	"github.com/ppiankov/typegate/internal/sample"
)

func TestJSONSafeClass(t *testing.T) {
	res, err := NewJSON(secureOptions(t)).Decode([]byte(`{"@type":"io.typegate.safe.SafeClass","name":"alpha","value":3}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	sc, ok := res.Value.(*sample.SafeClass)
	if !ok {
		t.Fatalf("expected *sample.SafeClass, got %T", res.Value)
	}
	if sc.Name != "alpha" || sc.Value != 3 {
		t.Errorf("unexpected value %s", sc)
	}
	if len(res.Candidates) != 1 || res.Candidates[0] != sample.SafeClassName {
		t.Errorf("unexpected candidates %v", res.Candidates)
	}
}

func TestJSONGadgetRejected(t *testing.T) {
	cases := map[string]string{
		"root":   `{"@type":"io.typegate.gadget.Probe","command":"calc"}`,
		"nested": `{"@type":"io.typegate.safe.SafeClass","name":"a","extra":{"@type":"io.typegate.gadget.Probe","command":"calc"}}`,
		"array":  `{"@type":"io.typegate.safe.SafeClass","list":[1,{"x":{"@type":"io.typegate.gadget.Probe"}}]}`,
		"escape": `{"@type":"io.typegate.gadget.\u0050robe","command":"calc"}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			probeUntouched(t, func() {
				_, err := NewJSON(secureOptions(t)).Decode([]byte(payload))
				expectRejected(t, err, sample.ProbeClassName)
			})
		})
	}
}

func TestJSONInsecureRunsHook(t *testing.T) {
	before := sample.ProbeRuns()
	res, err := NewJSON(insecureOptions(t)).Decode([]byte(`{"@type":"io.typegate.gadget.Probe","command":"id"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := res.Value.(*sample.Probe); !ok {
		t.Fatalf("expected *sample.Probe, got %T", res.Value)
	}
	if sample.ProbeRuns() != before+1 {
		t.Errorf("expected exactly one hook run, got %d", sample.ProbeRuns()-before)
	}
}

func TestJSONMalformedDiscriminator(t *testing.T) {
	cases := map[string]string{
		"missing":   `{"name":"a"}`,
		"number":    `{"@type":42}`,
		"null":      `{"@type":null}`,
		"empty":     `{"@type":""}`,
		"bad chars": `{"@type":"io.typegate.safe.Safe Class"}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewJSON(secureOptions(t)).Decode([]byte(payload))
			if !errors.Is(err, ErrTypeRejected) {
				t.Fatalf("expected ErrTypeRejected, got %v", err)
			}
			if !errors.Is(err, admission.ErrMalformedTypeIdentifier) {
				t.Errorf("expected ErrMalformedTypeIdentifier in chain, got %v", err)
			}
		})
	}
}

func TestJSONMalformedDocument(t *testing.T) {
	cases := map[string]string{
		"empty":    ``,
		"truncate": `{"@type":"io.typegate.safe.SafeClass"`,
		"trailing": `{"@type":"io.typegate.safe.SafeClass"} {}`,
		"garbage":  `not json`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewJSON(secureOptions(t)).Decode([]byte(payload))
			if !errors.Is(err, ErrMalformedPayload) {
				t.Errorf("expected ErrMalformedPayload, got %v", err)
			}
		})
	}
}

func TestJSONRootArrayUnsupported(t *testing.T) {
	_, err := NewJSON(secureOptions(t)).Decode([]byte(`[{"@type":"io.typegate.safe.SafeClass"}]`))
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}

func TestJSONRootScalar(t *testing.T) {
	res, err := NewJSON(secureOptions(t)).Decode([]byte(` "hi" `))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Value != "hi" || res.Type != "string" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestJSONTooDeep(t *testing.T) {
	opts := secureOptions(t)
	opts.MaxDepth = 3
	payload := `{"@type":"io.typegate.safe.SafeClass","a":{"b":{"c":{}}}}`

	_, err := NewJSON(opts).Decode([]byte(payload))
	if !errors.Is(err, ErrTooDeep) {
		t.Errorf("expected ErrTooDeep, got %v", err)
	}
}

func TestJSONCustomTypeProperty(t *testing.T) {
	opts := secureOptions(t)
	opts.TypeProperty = "class"

	res, err := NewJSON(opts).Decode([]byte(`{"class":"io.typegate.safe.SafeClass","@type":"ignored","name":"b"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Type != sample.SafeClassName {
		t.Errorf("expected %s, got %s", sample.SafeClassName, res.Type)
	}
}

func TestJSONUnknownType(t *testing.T) {
	_, err := NewJSON(secureOptions(t)).Decode([]byte(`{"@type":"io.typegate.safe.Missing"}`))
	if !errors.Is(err, ErrUnknownType) {
		t.Errorf("expected ErrUnknownType, got %v", err)
	}
}
