package decode

import (
	"errors"
	"testing"

	"github.com/ppiankov/typegate/internal/sample"
)

func TestYAMLUntaggedRootBindsRootType(t *testing.T) {
	res, err := NewYAML(secureOptions(t)).Decode([]byte("name: alpha\nvalue: 9\n"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	sc, ok := res.Value.(*sample.SafeClass)
	if !ok {
		t.Fatalf("expected *sample.SafeClass, got %T", res.Value)
	}
	if sc.String() != "SafeClass{name='alpha', value=9}" {
		t.Errorf("unexpected value %s", sc)
	}
}

func TestYAMLExplicitSafeTag(t *testing.T) {
	res, err := NewYAML(secureOptions(t)).Decode([]byte("!!io.typegate.safe.SafeClass {name: a, value: 1}\n"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Type != sample.SafeClassName {
		t.Errorf("expected %s, got %s", sample.SafeClassName, res.Type)
	}
}

func TestYAMLCoreTagsPass(t *testing.T) {
	res, err := NewYAML(secureOptions(t)).Decode([]byte("name: !!str beta\nvalue: !!int 4\n"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	sc := res.Value.(*sample.SafeClass)
	if sc.Name != "beta" || sc.Value != 4 {
		t.Errorf("unexpected value %s", sc)
	}
}

func TestYAMLGadgetRejected(t *testing.T) {
	cases := map[string]string{
		"global":   "!!io.typegate.gadget.Probe {command: calc}\n",
		"local":    "!io.typegate.gadget.Probe {command: calc}\n",
		"verbatim": "!<tag:yaml.org,2002:io.typegate.gadget.Probe> {command: calc}\n",
		"nested":   "name: a\nvalue: 1\nextra: !!io.typegate.gadget.Probe {command: calc}\n",
		"in list":  "name: a\nitems:\n  - 1\n  - !!io.typegate.gadget.Probe {command: calc}\n",
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			probeUntouched(t, func() {
				_, err := NewYAML(secureOptions(t)).Decode([]byte(payload))
				expectRejected(t, err, sample.ProbeClassName)
			})
		})
	}
}

func TestYAMLInsecureRunsNestedHook(t *testing.T) {
	before := sample.ProbeRuns()
	res, err := NewYAML(insecureOptions(t)).Decode([]byte("outer:\n  inner: !!io.typegate.gadget.Probe {command: whoami}\n"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := res.Value.(map[string]any); !ok {
		t.Fatalf("expected generic map root, got %T", res.Value)
	}
	if sample.ProbeRuns() <= before {
		t.Error("expected probe hook to run without a policy")
	}
	if sample.LastProbeCommand() != "whoami" {
		t.Errorf("unexpected probe command %q", sample.LastProbeCommand())
	}
}

func TestYAMLMalformed(t *testing.T) {
	cases := map[string]string{
		"empty":     "",
		"multi doc": "name: a\n---\nname: b\n",
		"alias key": "base: &k name\n*k : x\n",
		"syntax":    "name: [unclosed\n",
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewYAML(secureOptions(t)).Decode([]byte(payload))
			if !errors.Is(err, ErrMalformedPayload) {
				t.Errorf("expected ErrMalformedPayload, got %v", err)
			}
		})
	}
}

func TestYAMLRootTypeStillChecked(t *testing.T) {
	opts := secureOptions(t)
	opts.RootType = sample.ProbeClassName

	probeUntouched(t, func() {
		_, err := NewYAML(opts).Decode([]byte("command: calc\n"))
		expectRejected(t, err, sample.ProbeClassName)
	})
}

func TestYAMLTooDeep(t *testing.T) {
	opts := secureOptions(t)
	opts.MaxDepth = 2

	_, err := NewYAML(opts).Decode([]byte("a: {b: {c: 1}}\n"))
	if !errors.Is(err, ErrTooDeep) {
		t.Errorf("expected ErrTooDeep, got %v", err)
	}
}

func TestClassName(t *testing.T) {
	cases := map[string]string{
		"!!a.B":                  "a.B",
		"!a.B":                   "a.B",
		"tag:yaml.org,2002:a.B":  "a.B",
		"tag:example.com,2000:x": "tag:example.com,2000:x",
	}
	for in, want := range cases {
		if got := className(in); got != want {
			t.Errorf("className(%q) = %q, want %q", in, got, want)
		}
	}
}
