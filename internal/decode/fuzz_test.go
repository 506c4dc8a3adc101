package decode

import (
	"testing"
	"time"

	"github.com/ppiankov/typegate/internal/admission"
	"github.com/ppiankov/typegate/internal/javaser"
	"github.com/ppiankov/typegate/internal/sample"
)

// FuzzDecodeJSON checks that no input gets a Probe constructed under a policy
// that only admits the safe namespace, and that every success was admitted.
func FuzzDecodeJSON(f *testing.F) {
	seeds := []string{
		`{"@type":"io.typegate.safe.SafeClass","name":"a","value":1}`,
		`{"@type":"io.typegate.gadget.Probe","command":"calc"}`,
		`{"@type":"io.typegate.safe.SafeClass","x":{"@type":"io.typegate.gadget.Probe"}}`,
		`{"@type":"io.typegate.safe.SafeClass","x":[{"@type":"io.typegate.gadget.Probe"}]}`,
		`{"@type":"io.typegate.safeX.Probe"}`,
		`{"@type":42}`,
		`"str"`,
		`[]`,
		`{`,
	}
	for _, s := range seeds {
		f.Add(s)
	}

	policy := admission.MustPolicy(sample.SafeNamespace + ".*")

	f.Fuzz(func(t *testing.T, payload string) {
		opts := secureOptions(t)
		opts.Checker = policy

		before := sample.ProbeRuns()
		res, err := NewJSON(opts).Decode([]byte(payload))
		if sample.ProbeRuns() != before {
			t.Fatalf("probe constructed for %q", payload)
		}
		if err != nil {
			return
		}
		for _, c := range res.Candidates {
			if !policy.Evaluate(c).Admitted() {
				t.Fatalf("decoded %q despite rejected candidate %q", payload, c)
			}
		}
	})
}

// FuzzDecodeYAML is the YAML counterpart of FuzzDecodeJSON.
func FuzzDecodeYAML(f *testing.F) {
	seeds := []string{
		"name: a\nvalue: 1\n",
		"!!io.typegate.gadget.Probe {command: calc}\n",
		"x: !io.typegate.gadget.Probe {}\n",
		"a: &x !!io.typegate.gadget.Probe {}\nb: *x\n",
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, payload string) {
		before := sample.ProbeRuns()
		_, _ = NewYAML(secureOptions(t)).Decode([]byte(payload))
		if sample.ProbeRuns() != before {
			t.Fatalf("probe constructed for %q", payload)
		}
	})
}

// FuzzDecodeNative mutates encoded streams. Every input must return promptly
// and none may construct a Probe under the safe-namespace policy.
func FuzzDecodeNative(f *testing.F) {
	safe := &javaser.Object{Class: sample.SafeClassName, Fields: map[string]any{"name": "a", "value": 1}}
	gadget := &javaser.Object{Class: sample.ProbeClassName, Fields: map[string]any{"command": "calc"}}
	for _, v := range []any{
		safe,
		gadget,
		&javaser.Object{Class: sample.SafeClassName, Fields: map[string]any{"name": "n", "value": 2, "extra": gadget}},
		"plain string",
	} {
		data, err := javaser.Encode(v)
		if err != nil {
			f.Fatal(err)
		}
		f.Add(data)
	}
	// class descriptor naming itself as superclass
	f.Add([]byte{
		0xAC, 0xED, 0x00, 0x05, javaser.TCObject, javaser.TCClassDesc,
		0x00, 0x06, 'a', '.', 'L', 'o', 'o', 'p',
		0, 0, 0, 0, 0, 0, 0, 1, javaser.SCSerializable, 0x00, 0x00, javaser.TCEndBlockData,
		javaser.TCReference, 0x00, 0x7E, 0x00, 0x00,
	})

	f.Fuzz(func(t *testing.T, payload []byte) {
		dec := NewNative(secureOptions(t))
		before := sample.ProbeRuns()
		done := make(chan struct{})
		go func() {
			defer close(done)
			_, _ = dec.Decode(payload)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("decode did not return for %x", payload)
		}
		if sample.ProbeRuns() != before {
			t.Fatalf("probe constructed for %x", payload)
		}
	})
}
