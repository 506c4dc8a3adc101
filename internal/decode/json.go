package decode

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/buger/jsonparser"
)

type jsonDecoder struct {
	opts Options
}

// NewJSON returns a decoder for JSON documents whose objects name their type
// in a discriminator property. Every discriminator in the document is checked
// before the root is bound.
func NewJSON(opts Options) Decoder {
	return &jsonDecoder{opts: opts}
}

func (d *jsonDecoder) Format() Format { return FormatJSON }

func (d *jsonDecoder) typeProperty() string {
	if d.opts.TypeProperty == "" {
		return DefaultTypeProperty
	}
	return d.opts.TypeProperty
}

func (d *jsonDecoder) Decode(raw []byte) (*Result, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrMalformedPayload)
	}
	// json.Valid also rejects trailing tokens after the first value.
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrMalformedPayload)
	}

	switch raw[0] {
	case '{':
	case '[':
		return nil, fmt.Errorf("%w: root must be a typed object or a scalar", ErrUnsupported)
	default:
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		return &Result{Value: v, Type: fmt.Sprintf("%T", v)}, nil
	}

	gk := newGatekeeper(FormatJSON, d.opts)
	w := &jsonWalker{prop: d.typeProperty(), maxDepth: d.opts.maxDepth(), gk: gk}
	rootType, err := w.object(raw, 1, true)
	if err != nil {
		return nil, err
	}

	target, err := construct(d.opts.Registry, rootType)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return nil, fmt.Errorf("%w: bind %s: %v", ErrMalformedPayload, rootType, err)
	}
	return &Result{Value: target, Type: rootType, Candidates: gk.seen}, nil
}

type jsonWalker struct {
	prop     string
	maxDepth int
	gk       *gatekeeper
}

// object checks the discriminator of obj, then every nested value. The root
// object must carry a discriminator; nested objects may omit it.
func (w *jsonWalker) object(obj []byte, depth int, root bool) (string, error) {
	if depth > w.maxDepth {
		return "", fmt.Errorf("%w: nesting exceeds %d", ErrTooDeep, w.maxDepth)
	}

	candidate, present, err := w.discriminator(obj)
	if err != nil {
		return "", err
	}
	if present || root {
		if err := w.gk.check(candidate); err != nil {
			return "", err
		}
	}

	err = jsonparser.ObjectEach(obj, func(_ []byte, value []byte, vt jsonparser.ValueType, _ int) error {
		return w.value(value, vt, depth+1)
	})
	if err != nil {
		return "", err
	}
	return candidate, nil
}

func (w *jsonWalker) value(value []byte, vt jsonparser.ValueType, depth int) error {
	switch vt {
	case jsonparser.Object:
		_, err := w.object(value, depth, false)
		return err
	case jsonparser.Array:
		return w.array(value, depth)
	}
	return nil
}

func (w *jsonWalker) array(arr []byte, depth int) error {
	if depth > w.maxDepth {
		return fmt.Errorf("%w: nesting exceeds %d", ErrTooDeep, w.maxDepth)
	}
	var walkErr error
	_, err := jsonparser.ArrayEach(arr, func(value []byte, vt jsonparser.ValueType, _ int, _ error) {
		if walkErr != nil {
			return
		}
		walkErr = w.value(value, vt, depth+1)
	})
	if walkErr != nil {
		return walkErr
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}

// discriminator returns the type property of obj. A present property that is
// not a string yields the empty candidate, which admission rejects as malformed.
func (w *jsonWalker) discriminator(obj []byte) (string, bool, error) {
	value, vt, _, err := jsonparser.Get(obj, w.prop)
	if errors.Is(err, jsonparser.KeyPathNotFoundError) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if vt != jsonparser.String {
		return "", true, nil
	}
	s, err := jsonparser.ParseString(value)
	if err != nil {
		return "", true, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return s, true, nil
}
