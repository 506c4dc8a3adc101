// Package decode turns raw payloads into Go values. Every decoder extracts the
// type identifiers a payload claims, runs each through an admission.Checker,
// and constructs nothing unless all of them are admitted.
package decode

import (
	"errors"
	"fmt"

	"github.com/ppiankov/typegate/internal/admission"
	"github.com/ppiankov/typegate/internal/registry"
)

// Format names a wire encoding.
type Format string

const (
	FormatNative Format = "native"
	FormatJSON   Format = "json"
	FormatYAML   Format = "yaml"
)

// ParseFormat maps a string to a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatNative, FormatJSON, FormatYAML:
		return Format(s), nil
	}
	return "", fmt.Errorf("unknown format %q (expected native|json|yaml)", s)
}

// Defaults applied when Options leaves a field empty.
const (
	DefaultTypeProperty = "@type"
	DefaultMaxDepth     = 32
)

var (
	// ErrTypeRejected matches every *TypeRejectedError.
	ErrTypeRejected = errors.New("type rejected")
	// ErrMalformedPayload reports input that is not a valid document of its format.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrUnknownType reports an admitted identifier with no registered Go type.
	ErrUnknownType = errors.New("unknown type")
	// ErrUnsupported reports valid input this service does not decode.
	ErrUnsupported = errors.New("unsupported payload")
	// ErrTooDeep reports nesting or expansion beyond the configured limit.
	ErrTooDeep = errors.New("payload too deep")
)

// TypeRejectedError is returned when the checker rejects a candidate type.
// Nothing of that type, and nothing after it, has been constructed.
type TypeRejectedError struct {
	Format    Format
	Candidate string
	Reason    string
	Cause     error
}

func (e *TypeRejectedError) Error() string {
	return fmt.Sprintf("%s: type %q rejected: %s", e.Format, e.Candidate, e.Reason)
}

// Is reports true for ErrTypeRejected.
func (e *TypeRejectedError) Is(target error) bool {
	return target == ErrTypeRejected
}

// Unwrap exposes the admission error, so callers can test for
// admission.ErrMalformedTypeIdentifier and friends.
func (e *TypeRejectedError) Unwrap() error {
	return e.Cause
}

// Result is a successfully decoded payload.
type Result struct {
	Value      any
	Type       string
	Candidates []string
}

// Decoder decodes one payload per call. Implementations are safe for concurrent use.
type Decoder interface {
	Format() Format
	Decode(raw []byte) (*Result, error)
}

// ObjectReader is implemented by types that run code once populated from a
// native object stream, like Java's readObject.
type ObjectReader interface {
	ReadObject() error
}

// Options configures a decoder.
type Options struct {
	// Checker decides admission. Nil rejects everything.
	Checker admission.Checker
	// Registry maps admitted identifiers to Go types.
	Registry *registry.Registry
	// Observe, if set, receives every decision in evaluation order.
	Observe func(admission.Decision)
	// MaxDepth bounds nesting. Zero means DefaultMaxDepth.
	MaxDepth int
	// TypeProperty is the JSON discriminator property. Empty means DefaultTypeProperty.
	TypeProperty string
	// RootType is the type an untagged YAML root binds to. Empty decodes an
	// untagged root into generic maps and slices.
	RootType string
}

func (o Options) maxDepth() int {
	if o.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return o.MaxDepth
}

// New returns the decoder for format.
func New(format Format, opts Options) (Decoder, error) {
	switch format {
	case FormatNative:
		return NewNative(opts), nil
	case FormatJSON:
		return NewJSON(opts), nil
	case FormatYAML:
		return NewYAML(opts), nil
	}
	return nil, fmt.Errorf("unknown format %q", format)
}

// gatekeeper evaluates the candidates of a single Decode call.
type gatekeeper struct {
	format  Format
	checker admission.Checker
	observe func(admission.Decision)
	seen    []string
}

func newGatekeeper(format Format, opts Options) *gatekeeper {
	return &gatekeeper{format: format, checker: opts.Checker, observe: opts.Observe}
}

func (g *gatekeeper) check(candidate string) error {
	g.seen = append(g.seen, candidate)

	var d admission.Decision
	if g.checker == nil {
		d = admission.Evaluate(candidate, nil)
	} else {
		d = g.checker.Evaluate(candidate)
	}
	if g.observe != nil {
		g.observe(d)
	}
	if d.Admitted() {
		return nil
	}
	return &TypeRejectedError{
		Format:    g.format,
		Candidate: candidate,
		Reason:    d.Reason,
		Cause:     d.Err(),
	}
}

func construct(reg *registry.Registry, name string) (any, error) {
	if reg == nil {
		return nil, fmt.Errorf("%w: %s (no registry)", ErrUnknownType, name)
	}
	v, err := reg.Lookup(name)
	if err != nil {
		if errors.Is(err, registry.ErrUnknownType) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownType, name)
		}
		return nil, err
	}
	return v, nil
}
