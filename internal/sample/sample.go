// Package sample holds the demo types the service can deserialize: a benign
// SafeClass and a Probe that stands in for a gadget class.
package sample

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/typegate/internal/registry"
)

const (
	// SafeNamespace holds the types the default policy admits.
	SafeNamespace = "io.typegate.safe"
	// SafeClassName is the identifier of SafeClass on every wire format.
	SafeClassName = SafeNamespace + ".SafeClass"
	// ProbeClassName is the identifier of Probe. It is outside SafeNamespace.
	ProbeClassName = "io.typegate.gadget.Probe"
)

// SafeClass is a plain data holder with no decode hooks.
type SafeClass struct {
	Name  string `json:"name" yaml:"name"`
	Value int    `json:"value" yaml:"value"`
}

func (s *SafeClass) String() string {
	return fmt.Sprintf("SafeClass{name='%s', value=%d}", s.Name, s.Value)
}

// Probe mimics a gadget: each decode hook runs code on behalf of whoever wrote
// the payload. Here that code only records the call.
type Probe struct {
	Command string `json:"command" yaml:"command"`
}

var (
	probeRuns atomic.Int64
	lastMu    sync.Mutex
	lastCmd   string
)

func (p *Probe) trigger() {
	probeRuns.Add(1)
	lastMu.Lock()
	lastCmd = p.Command
	lastMu.Unlock()
}

// UnmarshalJSON runs as soon as encoding/json constructs a Probe.
func (p *Probe) UnmarshalJSON(data []byte) error {
	type plain Probe
	if err := json.Unmarshal(data, (*plain)(p)); err != nil {
		return err
	}
	p.trigger()
	return nil
}

// UnmarshalYAML runs as soon as yaml.v3 constructs a Probe.
func (p *Probe) UnmarshalYAML(value *yaml.Node) error {
	type plain Probe
	if err := value.Decode((*plain)(p)); err != nil {
		return err
	}
	p.trigger()
	return nil
}

// ReadObject runs after a Probe is read from a native object stream.
func (p *Probe) ReadObject() error {
	p.trigger()
	return nil
}

// ProbeRuns returns how many times any Probe hook has run in this process.
func ProbeRuns() int64 {
	return probeRuns.Load()
}

// LastProbeCommand returns the command carried by the most recent Probe.
func LastProbeCommand() string {
	lastMu.Lock()
	defer lastMu.Unlock()
	return lastCmd
}

// Register adds the sample types to r.
func Register(r *registry.Registry) error {
	if err := r.Register(SafeClassName, func() any { return &SafeClass{} }); err != nil {
		return err
	}
	return r.Register(ProbeClassName, func() any { return &Probe{} })
}
