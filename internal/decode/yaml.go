package decode

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// maxYAMLNodes bounds how many nodes construction may visit, alias
// expansions included.
const maxYAMLNodes = 100000

// coreTags are the YAML 1.2 core schema tags. They never name a class.
var coreTags = map[string]bool{
	"!!str": true, "!!int": true, "!!float": true, "!!bool": true,
	"!!null": true, "!!map": true, "!!seq": true, "!!binary": true,
	"!!timestamp": true, "!!merge": true, "!!omap": true, "!!pairs": true,
	"!!set": true,
}

type yamlDecoder struct {
	opts Options
}

// NewYAML returns a decoder for single YAML documents. Explicit tags outside
// the core schema are class names and are checked before anything is built.
func NewYAML(opts Options) Decoder {
	return &yamlDecoder{opts: opts}
}

func (d *yamlDecoder) Format() Format { return FormatYAML }

func (d *yamlDecoder) Decode(raw []byte) (*Result, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	var doc yaml.Node
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrMalformedPayload)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: expected a single document", ErrMalformedPayload)
	}

	root := &doc
	if doc.Kind == yaml.DocumentNode && len(doc.Content) == 1 {
		root = doc.Content[0]
	}

	gk := newGatekeeper(FormatYAML, d.opts)
	w := &yamlWalker{gk: gk, maxDepth: d.opts.maxDepth(), classes: map[*yaml.Node]string{}}

	rootClass := ""
	if !isClassTagged(root) && d.opts.RootType != "" {
		rootClass = d.opts.RootType
		if err := gk.check(rootClass); err != nil {
			return nil, err
		}
	}
	if err := w.walk(root, 1); err != nil {
		return nil, err
	}
	if c, ok := w.classes[root]; ok {
		rootClass = c
	}

	b := &yamlBuilder{opts: d.opts, classes: w.classes}
	value, err := b.build(root, rootClass)
	if err != nil {
		return nil, err
	}
	typ := rootClass
	if typ == "" {
		typ = fmt.Sprintf("%T", value)
	}
	return &Result{Value: value, Type: typ, Candidates: gk.seen}, nil
}

type yamlWalker struct {
	gk       *gatekeeper
	maxDepth int
	classes  map[*yaml.Node]string
}

// walk checks every class tag in the tree and strips it, so later decoding
// resolves the node by its kind alone.
func (w *yamlWalker) walk(n *yaml.Node, depth int) error {
	if depth > w.maxDepth {
		return fmt.Errorf("%w: nesting exceeds %d", ErrTooDeep, w.maxDepth)
	}
	if isClassTagged(n) {
		class := className(n.Tag)
		if err := w.gk.check(class); err != nil {
			return err
		}
		w.classes[n] = class
		n.Tag = ""
		n.Style &^= yaml.TaggedStyle
	}
	if n.Kind == yaml.MappingNode {
		for i := 0; i < len(n.Content); i += 2 {
			if n.Content[i].Kind == yaml.AliasNode {
				return fmt.Errorf("%w: alias used as a mapping key", ErrMalformedPayload)
			}
		}
	}
	// Alias targets are anchored earlier in the document and walked there.
	for _, c := range n.Content {
		if err := w.walk(c, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func isClassTagged(n *yaml.Node) bool {
	if n.Style&yaml.TaggedStyle == 0 || n.Tag == "" || n.Tag == "!" {
		return false
	}
	return !coreTags[n.Tag]
}

// className strips the tag handle: "!!a.B", "!a.B" and
// "tag:yaml.org,2002:a.B" all name a.B. Any other URI is passed through and
// fails identifier validation.
func className(tag string) string {
	switch {
	case strings.HasPrefix(tag, "tag:yaml.org,2002:"):
		return strings.TrimPrefix(tag, "tag:yaml.org,2002:")
	case strings.HasPrefix(tag, "!!"):
		return tag[2:]
	case strings.HasPrefix(tag, "!"):
		return tag[1:]
	}
	return tag
}

// yamlBuilder constructs values once every class tag has been admitted.
type yamlBuilder struct {
	opts    Options
	classes map[*yaml.Node]string
	visited int
}

func (b *yamlBuilder) build(n *yaml.Node, class string) (any, error) {
	b.visited++
	if b.visited > maxYAMLNodes {
		return nil, fmt.Errorf("%w: document expands past %d nodes", ErrTooDeep, maxYAMLNodes)
	}

	if class != "" {
		target, err := construct(b.opts.Registry, class)
		if err != nil {
			return nil, err
		}
		if err := n.Decode(target); err != nil {
			return nil, fmt.Errorf("%w: bind %s: %v", ErrMalformedPayload, class, err)
		}
		return target, nil
	}

	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return b.child(n.Content[0])
	case yaml.AliasNode:
		return b.child(n.Alias)
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := b.child(c)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.MappingNode:
		out := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			var key any
			if err := n.Content[i].Decode(&key); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
			}
			v, err := b.child(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			out[fmt.Sprint(key)] = v
		}
		return out, nil
	}

	var v any
	if err := n.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return v, nil
}

func (b *yamlBuilder) child(n *yaml.Node) (any, error) {
	if n == nil {
		return nil, nil
	}
	return b.build(n, b.classes[n])
}
